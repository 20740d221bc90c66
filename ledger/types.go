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
	"maps"
	"slices"

	"github.com/capidao/capiledger/escrow"
)

// Address is an opaque identity supplied by the caller, such as an investor
// or owner key
type Address string

const (
	DefaultWithdrawalSlots = 4
	MaxWithdrawalSlots     = 16
)

// DaoAccount is the global state of a single DAO instance
type DaoAccount struct {
	SharesAssetID        escrow.AssetID `json:"sharesAssetId"        cbor:"1,keyasint,omitempty"`
	FundsAssetID         escrow.AssetID `json:"fundsAssetId"         cbor:"2,keyasint,omitempty"`
	SharePrice           uint64         `json:"sharePrice"           cbor:"3,keyasint,omitempty"`
	InvestorsShareBP     uint64         `json:"investorsShareBp"     cbor:"4,keyasint,omitempty"`
	ShareSupply          uint64         `json:"shareSupply"          cbor:"5,keyasint,omitempty"`
	LockedShares         uint64         `json:"lockedShares"         cbor:"6,keyasint,omitempty"`
	CentralReceivedTotal uint64         `json:"centralReceivedTotal" cbor:"7,keyasint,omitempty"`
	Raised               uint64         `json:"raised"               cbor:"8,keyasint,omitempty"`
	Target               uint64         `json:"target"               cbor:"9,keyasint,omitempty"`
	TargetEndDate        int64          `json:"targetEndDate"        cbor:"10,keyasint,omitempty"`
	Owner                Address        `json:"owner"                cbor:"11,keyasint,omitempty"`
	CustomerEscrowRef    string         `json:"customerEscrowRef"    cbor:"12,keyasint,omitempty"`
	Name                 string         `json:"name"                 cbor:"13,keyasint,omitempty"`
	Description          string         `json:"description"          cbor:"14,keyasint,omitempty"`
	URLs                 []string       `json:"urls,omitempty"       cbor:"15,keyasint,omitempty"`
	VoteThreshold        uint64         `json:"voteThreshold"        cbor:"16,keyasint,omitempty"`
	PlatformFeeBP        uint64         `json:"platformFeeBp"        cbor:"17,keyasint,omitempty"`
	Reclaimed            uint64         `json:"reclaimed"            cbor:"18,keyasint,omitempty"`
	CreatedAt            int64          `json:"createdAt"            cbor:"19,keyasint,omitempty"`
	SetupAt              int64          `json:"setupAt"              cbor:"20,keyasint,omitempty"`
}

// IsSetup reports whether the exactly-once setup has happened
func (d *DaoAccount) IsSetup() bool {
	return d.ShareSupply != 0
}

// RaiseOpen reports whether the capital raise accepts investments at now
func (d *DaoAccount) RaiseOpen(now int64) bool {
	return now < d.TargetEndDate
}

// RaiseSucceeded reports whether the raise closed having reached its target
func (d *DaoAccount) RaiseSucceeded(now int64) bool {
	return !d.RaiseOpen(now) && d.Raised >= d.Target
}

// RaiseFailed reports whether the raise closed short of its target
func (d *DaoAccount) RaiseFailed(now int64) bool {
	return !d.RaiseOpen(now) && d.Raised < d.Target
}

func (d DaoAccount) clone() DaoAccount {
	d.URLs = slices.Clone(d.URLs)
	return d
}

// InvestorAccount is the per-investor state, created by OptIn and destroyed
// by Unlock or Reclaim
type InvestorAccount struct {
	Shares          uint64 `json:"shares"          cbor:"1,keyasint,omitempty"`
	ClaimedTotal    uint64 `json:"claimedTotal"    cbor:"2,keyasint,omitempty"`
	ClaimedBaseline uint64 `json:"claimedBaseline" cbor:"3,keyasint,omitempty"`
	// Invested is the amount this investor paid in during the raise
	Invested uint64 `json:"invested" cbor:"4,keyasint,omitempty"`
	OptedInAt int64 `json:"optedInAt" cbor:"5,keyasint,omitempty"`
}

// LocalVote is a voter's ballot in a withdrawal slot. It only counts while
// its Round matches the slot's Round.
type LocalVote struct {
	Shares uint64 `json:"shares" cbor:"1,keyasint,omitempty"`
	Round  uint64 `json:"round"  cbor:"2,keyasint,omitempty"`
}

// WithdrawalSlot is one ballot of the fixed pool gating owner withdrawals
type WithdrawalSlot struct {
	RequestedAmount uint64
	VotesTotal      uint64
	Threshold       uint64
	Round           uint64
	RequestedAt     int64
	LocalVotes      map[Address]LocalVote
}

// Free reports whether the slot has no active request
func (s *WithdrawalSlot) Free() bool {
	return s.RequestedAmount == 0
}

// ValidVote returns the voter's ballot for the current round, if any
func (s *WithdrawalSlot) ValidVote(voter Address) (LocalVote, bool) {
	v, ok := s.LocalVotes[voter]
	if !ok || v.Round != s.Round {
		return LocalVote{}, false
	}
	return v, true
}

// release returns the slot to Free and invalidates every ballot
func (s *WithdrawalSlot) release() {
	s.RequestedAmount = 0
	s.VotesTotal = 0
	s.Threshold = 0
	s.RequestedAt = 0
	s.Round++
	// Stale ballots carry no weight, so they are dropped eagerly to keep the
	// record small
	clear(s.LocalVotes)
}

func (s WithdrawalSlot) clone() WithdrawalSlot {
	s.LocalVotes = maps.Clone(s.LocalVotes)
	if s.LocalVotes == nil {
		s.LocalVotes = make(map[Address]LocalVote)
	}
	return s
}

// LedgerState is the complete state of one DAO. It is only ever advanced by
// Apply, which never mutates its input.
type LedgerState struct {
	ID        string
	Seq       uint64
	UpdatedAt int64 // time of the last applied group
	Dao       DaoAccount
	Investors map[Address]InvestorAccount
	Slots     []WithdrawalSlot
	Escrow    *escrow.Router
}

// NewLedgerState returns an empty state for the given DAO id with n
// withdrawal slots
func NewLedgerState(id string, slots int) *LedgerState {
	ret := &LedgerState{
		ID:        id,
		Investors: make(map[Address]InvestorAccount),
		Slots:     make([]WithdrawalSlot, slots),
		Escrow:    escrow.New(),
	}
	for i := range ret.Slots {
		ret.Slots[i].LocalVotes = make(map[Address]LocalVote)
	}
	return ret
}

// Clone returns a deep copy of the state
func (s *LedgerState) Clone() *LedgerState {
	ret := &LedgerState{
		ID:        s.ID,
		Seq:       s.Seq,
		UpdatedAt: s.UpdatedAt,
		Dao:       s.Dao.clone(),
		Investors: maps.Clone(s.Investors),
		Slots:     make([]WithdrawalSlot, len(s.Slots)),
		Escrow:    s.Escrow.Clone(),
	}
	if ret.Investors == nil {
		ret.Investors = make(map[Address]InvestorAccount)
	}
	for i, slot := range s.Slots {
		ret.Slots[i] = slot.clone()
	}
	return ret
}

// Investor returns the investor account for addr
func (s *LedgerState) Investor(addr Address) (InvestorAccount, bool) {
	inv, ok := s.Investors[addr]
	return inv, ok
}

// InvestorAddresses returns all investor keys in sorted order
func (s *LedgerState) InvestorAddresses() []Address {
	return slices.Sorted(maps.Keys(s.Investors))
}

// Slot returns the withdrawal slot at idx
func (s *LedgerState) Slot(idx uint32) (*WithdrawalSlot, bool) {
	if int(idx) >= len(s.Slots) {
		return nil, false
	}
	return &s.Slots[idx], true
}
