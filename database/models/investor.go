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

import "github.com/capidao/capiledger/database/types"

// Investor is the read model of one investor account in a DAO. It is
// rewritten every time the DAO state changes.
type Investor struct {
	ID              uint         `gorm:"primarykey"`
	DaoID           string       `gorm:"uniqueIndex:idx_investor_dao_address;size:128;not null"`
	Address         string       `gorm:"uniqueIndex:idx_investor_dao_address;size:128;not null"`
	Shares          types.Uint64 `gorm:"not null"`
	ClaimedTotal    types.Uint64 `gorm:"not null"`
	ClaimedBaseline types.Uint64 `gorm:"not null"`
	Invested        types.Uint64 `gorm:"not null"`
	OptedInAt       int64
	Seq             uint64 `gorm:"not null"`
}

func (Investor) TableName() string {
	return "investor"
}
