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
	"errors"

	"github.com/capidao/capiledger/database/models"
)

// ErrInvestorNotFound is returned when an address has no investor account
// in a DAO
var ErrInvestorNotFound = errors.New("investor not found")

func (d *Database) SetInvestors(
	daoID string,
	investors []models.Investor,
	txn *Txn,
) error {
	return d.metadata.SetInvestors(daoID, investors, metadataTxn(txn))
}

func (d *Database) GetInvestor(
	daoID string,
	address string,
	txn *Txn,
) (*models.Investor, error) {
	inv, err := d.metadata.GetInvestor(daoID, address, metadataTxn(txn))
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvestorNotFound
	}
	return inv, nil
}

func (d *Database) GetInvestors(
	daoID string,
	txn *Txn,
) ([]models.Investor, error) {
	return d.metadata.GetInvestors(daoID, metadataTxn(txn))
}
