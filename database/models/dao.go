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


package models

import (
	"time"

	"github.com/capidao/capiledger/database/types"
)

// Dao is the queryable summary of a DAO. The authoritative state record
// lives in the blob store.
type Dao struct {
	UpdatedAt      time.Time
	DaoID          string       `gorm:"primaryKey;size:128"`
	Owner          string       `gorm:"index;size:128"`
	Name           string
	Seq            uint64       `gorm:"not null"`
	SharesAssetID  uint64
	FundsAssetID   uint64
	ShareSupply    types.Uint64 `gorm:"not null"`
	Raised         types.Uint64 `gorm:"not null"`
	Target         types.Uint64 `gorm:"not null"`
	LockedShares   types.Uint64 `gorm:"not null"`
	CentralTotal   types.Uint64 `gorm:"not null"`
	TargetEndDate  int64
	InvestorsCount int
}

func (Dao) TableName() string {
	return "dao"
}
