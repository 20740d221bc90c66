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


package api

import (
	"context"

	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/ledger"
)

// Ledger is the part of the ledger engine used by the API. It is satisfied
// by *ledger.Engine.
type Ledger interface {
	Submit(
		ctx context.Context,
		daoID string,
		group ledger.Group,
	) (*ledger.LedgerState, error)
	State(daoID string) (*ledger.LedgerState, error)
	ListDaos() ([]models.Dao, error)
	Investor(daoID string, addr ledger.Address) (ledger.InvestorView, error)
	VoteStatus(daoID string, slot uint32) (ledger.VoteStatus, error)
	Journal(
		daoID string,
		limit int,
		offset int,
		descending bool,
	) ([]models.JournalEntry, int64, error)
}

var _ Ledger = (*ledger.Engine)(nil)
