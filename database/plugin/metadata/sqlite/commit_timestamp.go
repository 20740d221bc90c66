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

// GetCommitTimestamp returns the last commit timestamp, or 0 on a fresh store
func (d *MetadataStoreSqlite) GetCommitTimestamp() (int64, error) {
	var rows []models.CommitTimestamp
	result := d.DB().
		Where("id = ?", models.CommitTimestampRowID).
		Limit(1).
		Find(&rows)
	if result.Error != nil {
		return 0, result.Error
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Timestamp, nil
}

func (d *MetadataStoreSqlite) SetCommitTimestamp(
	timestamp int64,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	// Save inserts the row on first use and updates it afterwards
	return db.Save(&models.CommitTimestamp{
		ID:        models.CommitTimestampRowID,
		Timestamp: timestamp,
	}).Error
}
