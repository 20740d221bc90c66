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
	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/ledger"
)

type ErrorResponse struct {
	StatusCode    int    `json:"status_code"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	Reason        string `json:"reason,omitempty"`
	RejectionKind string `json:"rejection_kind,omitempty"`
}

type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

type DaoSummaryResponse struct {
	ID             string `json:"id"`
	Owner          string `json:"owner"`
	Name           string `json:"name"`
	Seq            uint64 `json:"seq"`
	ShareSupply    uint64 `json:"share_supply"`
	LockedShares   uint64 `json:"locked_shares"`
	Raised         uint64 `json:"raised"`
	CentralTotal   uint64 `json:"central_received_total"`
	InvestorsCount int    `json:"investors_count"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Asset   uint64 `json:"asset"`
	Amount  uint64 `json:"amount"`
}

type SlotResponse struct {
	Index uint32 `json:"index"`
	ledger.VoteStatus
}

// StateResponse is the JSON rendering of a complete DAO state
type StateResponse struct {
	ID        string                                    `json:"id"`
	Seq       uint64                                    `json:"seq"`
	Dao       ledger.DaoAccount                         `json:"dao"`
	Investors map[ledger.Address]ledger.InvestorAccount `json:"investors"`
	Slots     []SlotResponse                            `json:"slots"`
	Balances  []BalanceResponse                         `json:"balances"`
}

type JournalEntryResponse struct {
	Seq           uint64 `json:"seq"`
	Kind          string `json:"kind"`
	Sender        string `json:"sender"`
	Amount        uint64 `json:"amount"`
	Time          int64  `json:"time"`
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason,omitempty"`
	RejectionKind string `json:"rejection_kind,omitempty"`
}

type DrainSplitResponse struct {
	Balance  uint64 `json:"balance"`
	FeeBP    uint64 `json:"fee_bp"`
	Platform uint64 `json:"platform"`
	Central  uint64 `json:"central"`
}

func newDaoSummaryResponse(dao models.Dao) DaoSummaryResponse {
	return DaoSummaryResponse{
		ID:             dao.DaoID,
		Owner:          dao.Owner,
		Name:           dao.Name,
		Seq:            dao.Seq,
		ShareSupply:    uint64(dao.ShareSupply),
		LockedShares:   uint64(dao.LockedShares),
		Raised:         uint64(dao.Raised),
		CentralTotal:   uint64(dao.CentralTotal),
		InvestorsCount: dao.InvestorsCount,
	}
}

func newStateResponse(state *ledger.LedgerState) StateResponse {
	ret := StateResponse{
		ID:        state.ID,
		Seq:       state.Seq,
		Dao:       state.Dao,
		Investors: state.Investors,
		Slots:     make([]SlotResponse, 0, len(state.Slots)),
		Balances:  []BalanceResponse{},
	}
	for i := range state.Slots {
		ret.Slots = append(ret.Slots, SlotResponse{
			Index:      uint32(i), //nolint:gosec
			VoteStatus: ledger.SlotVoteStatus(&state.Slots[i]),
		})
	}
	for _, entry := range state.Escrow.Entries() {
		ret.Balances = append(ret.Balances, BalanceResponse{
			Account: entry.Account.String(),
			Asset:   uint64(entry.Asset),
			Amount:  entry.Amount,
		})
	}
	return ret
}

func newJournalEntryResponse(entry models.JournalEntry) JournalEntryResponse {
	return JournalEntryResponse{
		Seq:           entry.Seq,
		Kind:          entry.Kind,
		Sender:        entry.Sender,
		Amount:        uint64(entry.Amount),
		Time:          entry.Time,
		Outcome:       entry.Outcome,
		Reason:        entry.Reason,
		RejectionKind: entry.RejectionKind,
	}
}
