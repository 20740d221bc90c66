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
	"fmt"

	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/database/types"
)

// ErrDaoNotFound is returned when no state record exists for a DAO
var ErrDaoNotFound = errors.New("dao not found")

func metadataTxn(txn *Txn) types.Txn {
	if txn == nil {
		return nil
	}
	return txn.Metadata()
}

// GetDaoState returns the encoded state record of a DAO
func (d *Database) GetDaoState(daoID string, txn *Txn) ([]byte, error) {
	if txn == nil {
		txn = NewBlobOnlyTxn(d, false)
		defer txn.Release()
	}
	val, err := d.Blob().Get(txn.Blob(), types.DaoStateKey(daoID))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, ErrDaoNotFound
		}
		return nil, fmt.Errorf("get state for dao %q: %w", daoID, err)
	}
	return val, nil
}

// SetDaoState stores the encoded state record of a DAO
func (d *Database) SetDaoState(daoID string, data []byte, txn *Txn) error {
	if daoID == "" {
		return errors.New("empty dao id")
	}
	if txn == nil {
		return NewBlobOnlyTxn(d, true).Do(func(txn *Txn) error {
			return d.SetDaoState(daoID, data, txn)
		})
	}
	return d.Blob().Set(txn.Blob(), types.DaoStateKey(daoID), data)
}

// IterateDaoStates calls fn with every stored DAO state record in id order.
// Iteration stops at the first error returned by fn.
func (d *Database) IterateDaoStates(
	txn *Txn,
	fn func(daoID string, data []byte) error,
) error {
	if txn == nil {
		txn = NewBlobOnlyTxn(d, false)
		defer txn.Release()
	}
	prefix := []byte(types.DaoStateKeyPrefix)
	iter := d.Blob().NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{Prefix: prefix},
	)
	defer iter.Close()
	for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
		item := iter.Item()
		daoID, ok := types.DaoIDFromStateKey(item.Key())
		if !ok {
			continue
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read state for dao %q: %w", daoID, err)
		}
		if err := fn(daoID, val); err != nil {
			return err
		}
	}
	return iter.Err()
}

// SetDao stores the summary row of a DAO
func (d *Database) SetDao(dao *models.Dao, txn *Txn) error {
	return d.metadata.SetDao(dao, metadataTxn(txn))
}

// GetDao returns the summary row of a DAO
func (d *Database) GetDao(daoID string, txn *Txn) (*models.Dao, error) {
	dao, err := d.metadata.GetDao(daoID, metadataTxn(txn))
	if err != nil {
		return nil, err
	}
	if dao == nil {
		return nil, ErrDaoNotFound
	}
	return dao, nil
}

// GetDaos returns the summary rows of all DAOs
func (d *Database) GetDaos(txn *Txn) ([]models.Dao, error) {
	return d.metadata.GetDaos(metadataTxn(txn))
}
