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


package ledger

import (
	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/database/types"
)

func daoSummary(state *LedgerState) *models.Dao {
	dao := &state.Dao
	return &models.Dao{
		DaoID:          state.ID,
		Owner:          string(dao.Owner),
		Name:           dao.Name,
		Seq:            state.Seq,
		SharesAssetID:  uint64(dao.SharesAssetID),
		FundsAssetID:   uint64(dao.FundsAssetID),
		ShareSupply:    types.Uint64(dao.ShareSupply),
		Raised:         types.Uint64(dao.Raised),
		Target:         types.Uint64(dao.Target),
		LockedShares:   types.Uint64(dao.LockedShares),
		CentralTotal:   types.Uint64(dao.CentralReceivedTotal),
		TargetEndDate:  dao.TargetEndDate,
		InvestorsCount: len(state.Investors),
	}
}

func investorRows(state *LedgerState) []models.Investor {
	ret := make([]models.Investor, 0, len(state.Investors))
	for _, addr := range state.InvestorAddresses() {
		inv := state.Investors[addr]
		ret = append(ret, models.Investor{
			DaoID:           state.ID,
			Address:         string(addr),
			Shares:          types.Uint64(inv.Shares),
			ClaimedTotal:    types.Uint64(inv.ClaimedTotal),
			ClaimedBaseline: types.Uint64(inv.ClaimedBaseline),
			Invested:        types.Uint64(inv.Invested),
			OptedInAt:       inv.OptedInAt,
			Seq:             state.Seq,
		})
	}
	return ret
}

func journalEntry(daoID string, seq uint64, group Group, err error) *models.JournalEntry {
	entry := &models.JournalEntry{
		DaoID:   daoID,
		Seq:     seq,
		Sender:  string(group.Sender),
		Time:    group.Time,
		Outcome: models.JournalOutcomeApplied,
	}
	if group.Op != nil {
		entry.Kind = group.Op.Kind().String()
		entry.Amount = types.Uint64(Amount(group.Op))
	}
	if err != nil {
		entry.Outcome = models.JournalOutcomeRejected
		entry.Reason = err.Error()
		if kind := KindOf(err); kind != 0 {
			entry.RejectionKind = kind.String()
		}
	}
	return entry
}
