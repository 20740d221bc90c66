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
	"fmt"

	"github.com/capidao/capiledger/fixedpoint"
)

// Entitlement returns the cumulative amount owed to a holder of shares from
// all funds ever routed into the central pool.
//
// The percentage is applied first and the share fraction second:
//
//	x           = floor(central_received_total * investors_share_bp / Scale)
//	entitlement = floor(x * shares / share_supply)
//
// This order is fixed. Because x is the investors' total cut, the sum of the
// entitlements of all holders never exceeds x.
func Entitlement(shares uint64, dao *DaoAccount) (uint64, error) {
	investorsCut, err := fixedpoint.ScaledMulDiv(
		dao.CentralReceivedTotal,
		dao.InvestorsShareBP,
		fixedpoint.Scale,
	)
	if err != nil {
		return 0, arithmeticFault(err)
	}
	ret, err := fixedpoint.ScaledMulDiv(investorsCut, shares, dao.ShareSupply)
	if err != nil {
		return 0, arithmeticFault(err)
	}
	return ret, nil
}

// Claimable returns entitlement minus what the investor already claimed. A
// claimed total above the entitlement is a broken invariant and is reported
// as ErrNegativeEntitlement instead of wrapping.
func Claimable(inv *InvestorAccount, dao *DaoAccount) (uint64, error) {
	ent, err := Entitlement(inv.Shares, dao)
	if err != nil {
		return 0, err
	}
	ret, err := fixedpoint.Sub(ent, inv.ClaimedTotal)
	if err != nil {
		return 0, &RejectionError{
			Reason: ErrNegativeEntitlement.Reason,
			Kind:   KindArithmetic,
			Detail: fmt.Sprintf(
				"claimed total %d exceeds entitlement %d",
				inv.ClaimedTotal,
				ent,
			),
			Err: err,
		}
	}
	return ret, nil
}

// DrainSplit splits balance into the platform fee and the amount routed to
// the central pool. The two always sum to balance exactly.
func DrainSplit(balance, feeBP uint64) (platform uint64, central uint64, err error) {
	if feeBP > fixedpoint.Scale {
		return 0, 0, reject(
			ErrInvalidParameter,
			"fee %d exceeds scale %d",
			feeBP,
			fixedpoint.Scale,
		)
	}
	platform, err = fixedpoint.ScaledMulDiv(balance, feeBP, fixedpoint.Scale)
	if err != nil {
		return 0, 0, arithmeticFault(err)
	}
	// platform <= balance because feeBP <= Scale
	return platform, balance - platform, nil
}

type SlotState uint8

const (
	SlotFree SlotState = iota
	SlotRequested
)

func (s SlotState) String() string {
	if s == SlotRequested {
		return "requested"
	}
	return "free"
}

func (s SlotState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SlotState) UnmarshalText(data []byte) error {
	switch string(data) {
	case "free":
		*s = SlotFree
	case "requested":
		*s = SlotRequested
	default:
		return fmt.Errorf("unknown slot state %q", data)
	}
	return nil
}

// VoteStatus describes a withdrawal slot for read-only callers
type VoteStatus struct {
	State     SlotState `json:"state"`
	Amount    uint64    `json:"amount,omitempty"`
	Votes     uint64    `json:"votes,omitempty"`
	Threshold uint64    `json:"threshold,omitempty"`
	Round     uint64    `json:"round"`
}

// Passed reports whether a requested slot has enough votes to execute
func (v VoteStatus) Passed() bool {
	return v.State == SlotRequested && v.Votes >= v.Threshold
}

// SlotVoteStatus returns the status of a single slot
func SlotVoteStatus(slot *WithdrawalSlot) VoteStatus {
	if slot.Free() {
		return VoteStatus{State: SlotFree, Round: slot.Round}
	}
	return VoteStatus{
		State:     SlotRequested,
		Amount:    slot.RequestedAmount,
		Votes:     slot.VotesTotal,
		Threshold: slot.Threshold,
		Round:     slot.Round,
	}
}

// VoteStatusOf returns the status of the slot at idx in state
func VoteStatusOf(state *LedgerState, idx uint32) (VoteStatus, error) {
	slot, ok := state.Slot(idx)
	if !ok {
		return VoteStatus{}, reject(
			ErrSlotOutOfRange,
			"slot %d of %d",
			idx,
			len(state.Slots),
		)
	}
	return SlotVoteStatus(slot), nil
}

// InvestorView combines an investor account with its derived values
type InvestorView struct {
	Address     Address         `json:"address"`
	Account     InvestorAccount `json:"account"`
	Entitlement uint64          `json:"entitlement"`
	Claimable   uint64          `json:"claimable"`
}

// InvestorViewOf returns the investor account and derived values for addr
func InvestorViewOf(state *LedgerState, addr Address) (InvestorView, error) {
	inv, ok := state.Investor(addr)
	if !ok {
		return InvestorView{}, reject(ErrNotOptedIn, "%s", addr)
	}
	ret := InvestorView{Address: addr, Account: inv}
	if !state.Dao.IsSetup() {
		return ret, nil
	}
	var err error
	if ret.Entitlement, err = Entitlement(inv.Shares, &state.Dao); err != nil {
		return InvestorView{}, err
	}
	if ret.Claimable, err = Claimable(&inv, &state.Dao); err != nil {
		return InvestorView{}, err
	}
	return ret, nil
}
