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
)

// SetInvestors replaces the investor rows of a DAO with the given set
func (d *MetadataStoreSqlite) SetInvestors(
	daoID string,
	investors []models.Investor,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	if result := db.Where("dao_id = ?", daoID).Delete(&models.Investor{}); result.Error != nil {
		return result.Error
	}
	if len(investors) == 0 {
		return nil
	}
	for i := range investors {
		investors[i].ID = 0
		investors[i].DaoID = daoID
	}
	return db.CreateInBatches(investors, 100).Error
}

// GetInvestor returns one investor row, or nil if the address has no
// account in the DAO
func (d *MetadataStoreSqlite) GetInvestor(
	daoID string,
	address string,
	txn types.Txn,
) (*models.Investor, error) {
	ret := &models.Investor{}
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	result := db.Where("dao_id = ? AND address = ?", daoID, address).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetInvestors returns all investor rows of a DAO ordered by address
func (d *MetadataStoreSqlite) GetInvestors(
	daoID string,
	txn types.Txn,
) ([]models.Investor, error) {
	var ret []models.Investor
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	result := db.Where("dao_id = ?", daoID).Order("address ASC").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
