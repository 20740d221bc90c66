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
	"github.com/capidao/capiledger/escrow"
	"github.com/capidao/capiledger/fixedpoint"
)

// CheckInvariants verifies the bookkeeping relations that every reachable
// state satisfies. A violation is reported as an arithmetic fault.
func CheckInvariants(state *LedgerState) error {
	if state == nil {
		return nil
	}
	dao := &state.Dao
	if dao.LockedShares > dao.ShareSupply {
		return reject(
			ErrInvariantViolation,
			"locked shares %d exceed supply %d",
			dao.LockedShares,
			dao.ShareSupply,
		)
	}
	var sumShares, sumClaimed uint64
	var err error
	for addr, inv := range state.Investors {
		if inv.ClaimedTotal < inv.ClaimedBaseline {
			return reject(
				ErrInvariantViolation,
				"investor %s claimed total %d below baseline %d",
				addr,
				inv.ClaimedTotal,
				inv.ClaimedBaseline,
			)
		}
		if sumShares, err = fixedpoint.Add(sumShares, inv.Shares); err != nil {
			return arithmeticFault(err)
		}
		if sumClaimed, err = fixedpoint.Add(sumClaimed, inv.ClaimedTotal); err != nil {
			return arithmeticFault(err)
		}
		if dao.IsSetup() {
			if _, err := Claimable(&inv, dao); err != nil {
				return err
			}
		}
	}
	if sumShares != dao.LockedShares {
		return reject(
			ErrInvariantViolation,
			"investor shares %d do not match locked shares %d",
			sumShares,
			dao.LockedShares,
		)
	}
	if sumClaimed > dao.CentralReceivedTotal {
		return reject(
			ErrInvariantViolation,
			"claimed %d exceeds central received total %d",
			sumClaimed,
			dao.CentralReceivedTotal,
		)
	}
	if dao.IsSetup() {
		if err := checkShareEscrow(state); err != nil {
			return err
		}
	}
	for i := range state.Slots {
		if err := checkSlot(state, i); err != nil {
			return err
		}
	}
	return nil
}

func checkShareEscrow(state *LedgerState) error {
	dao := &state.Dao
	locked := state.Escrow.Balance(escrow.Locked(), dao.SharesAssetID)
	if locked != dao.LockedShares {
		return reject(
			ErrInvariantViolation,
			"locked pool holds %d shares, expected %d",
			locked,
			dao.LockedShares,
		)
	}
	total, err := state.Escrow.Total(dao.SharesAssetID)
	if err != nil {
		return arithmeticFault(err)
	}
	if total != dao.ShareSupply {
		return reject(
			ErrInvariantViolation,
			"%d shares in escrow, supply is %d",
			total,
			dao.ShareSupply,
		)
	}
	return nil
}

func checkSlot(state *LedgerState, idx int) error {
	slot := &state.Slots[idx]
	if slot.Free() {
		if slot.VotesTotal != 0 {
			return reject(
				ErrInvariantViolation,
				"free slot %d has %d votes",
				idx,
				slot.VotesTotal,
			)
		}
		return nil
	}
	var sum uint64
	var err error
	for voter := range slot.LocalVotes {
		v, ok := slot.ValidVote(voter)
		if !ok {
			continue
		}
		if sum, err = fixedpoint.Add(sum, v.Shares); err != nil {
			return arithmeticFault(err)
		}
	}
	if sum != slot.VotesTotal {
		return reject(
			ErrInvariantViolation,
			"slot %d votes total %d does not match ballots %d",
			idx,
			slot.VotesTotal,
			sum,
		)
	}
	return nil
}

// checkTransition verifies the monotonic counters did not go backwards
func checkTransition(prev, next *LedgerState) error {
	if prev == nil {
		return nil
	}
	if next.Dao.CentralReceivedTotal < prev.Dao.CentralReceivedTotal {
		return reject(
			ErrInvariantViolation,
			"central received total decreased from %d to %d",
			prev.Dao.CentralReceivedTotal,
			next.Dao.CentralReceivedTotal,
		)
	}
	for addr, inv := range next.Investors {
		old, ok := prev.Investors[addr]
		if !ok {
			continue
		}
		if inv.ClaimedTotal < old.ClaimedTotal {
			return reject(
				ErrInvariantViolation,
				"investor %s claimed total decreased from %d to %d",
				addr,
				old.ClaimedTotal,
				inv.ClaimedTotal,
			)
		}
	}
	return nil
}
