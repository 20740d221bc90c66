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


package database

import (
	"github.com/capidao/capiledger/database/models"
)

// JournalQuery selects a page of journal entries
type JournalQuery struct {
	DaoID      string
	Limit      int
	Offset     int
	Descending bool
}

func (d *Database) AddJournalEntry(entry *models.JournalEntry, txn *Txn) error {
	return d.metadata.AddJournalEntry(entry, metadataTxn(txn))
}

// GetJournal returns a page of journal entries and the total number of
// entries for the DAO
func (d *Database) GetJournal(
	query JournalQuery,
	txn *Txn,
) ([]models.JournalEntry, int64, error) {
	mTxn := metadataTxn(txn)
	total, err := d.metadata.CountJournalEntries(query.DaoID, mTxn)
	if err != nil {
		return nil, 0, err
	}
	entries, err := d.metadata.GetJournalEntries(
		query.DaoID,
		query.Limit,
		query.Offset,
		query.Descending,
		mTxn,
	)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
