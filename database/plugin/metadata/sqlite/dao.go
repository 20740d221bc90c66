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
	"errors"

	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SetDao creates or replaces the summary row for a DAO
func (d *MetadataStoreSqlite) SetDao(dao *models.Dao, txn types.Txn) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dao_id"}},
		UpdateAll: true,
	}).Create(dao)
	return result.Error
}

// GetDao returns the summary row for a DAO, or nil if it does not exist
func (d *MetadataStoreSqlite) GetDao(
	daoID string,
	txn types.Txn,
) (*models.Dao, error) {
	ret := &models.Dao{}
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	result := db.Where("dao_id = ?", daoID).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetDaos returns the summary rows for all DAOs ordered by id
func (d *MetadataStoreSqlite) GetDaos(txn types.Txn) ([]models.Dao, error) {
	var ret []models.Dao
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	result := db.Order("dao_id ASC").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
