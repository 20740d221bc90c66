// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sqlite

import (
	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/database/types"
)

func (d *MetadataStoreSqlite) AddJournalEntry(
	entry *models.JournalEntry,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	return db.Create(entry).Error
}

// GetJournalEntries returns a page of journal entries for a DAO in
// submission order. A limit of zero or less returns all entries and ignores
// the offset.
func (d *MetadataStoreSqlite) GetJournalEntries(
	daoID string,
	limit int,
	offset int,
	descending bool,
	txn types.Txn,
) ([]models.JournalEntry, error) {
	var ret []models.JournalEntry
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	order := "id ASC"
	if descending {
		order = "id DESC"
	}
	query := db.Where("dao_id = ?", daoID).Order(order)
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (d *MetadataStoreSqlite) CountJournalEntries(
	daoID string,
	txn types.Txn,
) (int64, error) {
	var count int64
	db, err := d.resolveDB(txn)
	if err != nil {
		return 0, err
	}
	result := db.Model(&models.JournalEntry{}).Where("dao_id = ?", daoID).Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}
