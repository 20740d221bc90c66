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
	"slices"

	"github.com/capidao/capiledger/escrow"
	"github.com/capidao/capiledger/fixedpoint"
)

// Apply advances state by exactly one group. On success it returns a new state
// and leaves the input untouched. On failure it returns a *RejectionError and
// nothing is changed. Apply keeps no hidden state and is safe to call
// concurrently for different ledgers.
//
// A nil state is only valid with CreateDao.
func Apply(state *LedgerState, group Group) (*LedgerState, error) {
	if err := Validate(state, group); err != nil {
		return nil, err
	}
	var next *LedgerState
	if state != nil {
		next = state.Clone()
	}
	next, err := transition(next, group)
	if err != nil {
		return nil, arithmeticFault(err)
	}
	if err := CheckInvariants(next); err != nil {
		return nil, err
	}
	if err := checkTransition(state, next); err != nil {
		return nil, err
	}
	next.Seq++
	next.UpdatedAt = group.Time
	return next, nil
}

// transition mutates next, which is a private copy. Preconditions were already
// checked by Validate, so any error here is an arithmetic fault.
func transition(next *LedgerState, group Group) (*LedgerState, error) {
	switch op := group.Op.(type) {
	case CreateDao:
		return applyCreateDao(group, op), nil
	case SetupDao:
		return next, applySetupDao(next, group, op)
	case OptIn:
		next.Investors[group.Sender] = InvestorAccount{OptedInAt: group.Time}
		return next, nil
	case Invest:
		return next, applyInvest(next, group, op)
	case Lock:
		return next, applyLock(next, group, op)
	case Claim:
		return next, applyClaim(next, group, op)
	case Unlock:
		return next, applyUnlock(next, group)
	case PayRevenue:
		return next, next.Escrow.Deposit(
			escrow.Customer(),
			next.Dao.FundsAssetID,
			op.Amount,
		)
	case Drain:
		return next, applyDrain(next)
	case Withdraw:
		return next, next.Escrow.Transfer(
			escrow.Central(),
			escrow.Party(string(next.Dao.Owner)),
			next.Dao.FundsAssetID,
			op.Amount,
		)
	case InitRequest:
		slot := &next.Slots[op.Slot]
		slot.RequestedAmount = op.Amount
		slot.VotesTotal = 0
		slot.Threshold = next.Dao.VoteThreshold
		slot.RequestedAt = group.Time
		return next, nil
	case Vote:
		return next, applyVote(next, group, op)
	case CancelRequest:
		next.Slots[op.Slot].release()
		return next, nil
	case ExecuteWithdrawal:
		return next, applyExecuteWithdrawal(next, op)
	case Reclaim:
		return next, applyReclaim(next, group)
	case UpdateData:
		applyUpdateData(next, op)
		return next, nil
	default:
		return nil, reject(ErrUnknownOperation, "%T", group.Op)
	}
}

func applyCreateDao(group Group, op CreateDao) *LedgerState {
	slots := int(op.Slots)
	if slots == 0 {
		slots = DefaultWithdrawalSlots
	}
	ret := NewLedgerState(op.ID, slots)
	ret.Dao.Owner = group.Sender
	ret.Dao.PlatformFeeBP = op.PlatformFeeBP
	ret.Dao.CreatedAt = group.Time
	return ret
}

func applySetupDao(next *LedgerState, group Group, op SetupDao) error {
	dao := &next.Dao
	dao.SharesAssetID = op.SharesAssetID
	dao.FundsAssetID = op.FundsAssetID
	dao.SharePrice = op.SharePrice
	dao.InvestorsShareBP = op.InvestorsShareBP
	dao.ShareSupply = op.ShareSupply
	dao.Target = op.Target
	dao.TargetEndDate = op.TargetEndDate
	dao.VoteThreshold = op.VoteThreshold
	dao.CentralReceivedTotal = 0
	dao.SetupAt = group.Time
	if op.CustomerEscrowRef != "" {
		dao.CustomerEscrowRef = op.CustomerEscrowRef
	}
	return next.Escrow.Deposit(escrow.Holding(), op.SharesAssetID, op.ShareSupply)
}

// rebaseline resets the investor's claimed total to the entitlement of its
// current shares. Dividends accrued on a smaller previous balance and not yet
// claimed are forfeited.
func rebaseline(dao *DaoAccount, inv *InvestorAccount) error {
	ent, err := Entitlement(inv.Shares, dao)
	if err != nil {
		return err
	}
	inv.ClaimedBaseline = ent
	inv.ClaimedTotal = ent
	return nil
}

// addLocked credits n newly locked shares to inv and the DAO totals
func addLocked(next *LedgerState, inv *InvestorAccount, n uint64) error {
	var err error
	if inv.Shares, err = fixedpoint.Add(inv.Shares, n); err != nil {
		return err
	}
	if next.Dao.LockedShares, err = fixedpoint.Add(next.Dao.LockedShares, n); err != nil {
		return err
	}
	return rebaseline(&next.Dao, inv)
}

func applyInvest(next *LedgerState, group Group, op Invest) error {
	inv := next.Investors[group.Sender]
	dao := &next.Dao
	if err := next.Escrow.Transfer(
		escrow.Holding(),
		escrow.Locked(),
		dao.SharesAssetID,
		op.Shares,
	); err != nil {
		return err
	}
	if err := next.Escrow.Deposit(escrow.Central(), dao.FundsAssetID, op.Payment); err != nil {
		return err
	}
	var err error
	if dao.Raised, err = fixedpoint.Add(dao.Raised, op.Payment); err != nil {
		return err
	}
	if inv.Invested, err = fixedpoint.Add(inv.Invested, op.Payment); err != nil {
		return err
	}
	if err := addLocked(next, &inv, op.Shares); err != nil {
		return err
	}
	next.Investors[group.Sender] = inv
	return nil
}

func applyLock(next *LedgerState, group Group, op Lock) error {
	inv := next.Investors[group.Sender]
	if err := next.Escrow.Transfer(
		escrow.Party(string(group.Sender)),
		escrow.Locked(),
		next.Dao.SharesAssetID,
		op.Shares,
	); err != nil {
		return err
	}
	if err := addLocked(next, &inv, op.Shares); err != nil {
		return err
	}
	next.Investors[group.Sender] = inv
	return nil
}

func applyClaim(next *LedgerState, group Group, op Claim) error {
	inv := next.Investors[group.Sender]
	var err error
	if inv.ClaimedTotal, err = fixedpoint.Add(inv.ClaimedTotal, op.Amount); err != nil {
		return err
	}
	if err := next.Escrow.Transfer(
		escrow.Central(),
		escrow.Party(string(group.Sender)),
		next.Dao.FundsAssetID,
		op.Amount,
	); err != nil {
		return err
	}
	next.Investors[group.Sender] = inv
	return nil
}

// retractVotes removes addr's ballots from every slot for the current round
func retractVotes(next *LedgerState, addr Address) error {
	for i := range next.Slots {
		slot := &next.Slots[i]
		if v, ok := slot.ValidVote(addr); ok {
			var err error
			if slot.VotesTotal, err = fixedpoint.Sub(slot.VotesTotal, v.Shares); err != nil {
				return err
			}
		}
		delete(slot.LocalVotes, addr)
	}
	return nil
}

func applyUnlock(next *LedgerState, group Group) error {
	inv := next.Investors[group.Sender]
	if err := retractVotes(next, group.Sender); err != nil {
		return err
	}
	if err := next.Escrow.Transfer(
		escrow.Locked(),
		escrow.Party(string(group.Sender)),
		next.Dao.SharesAssetID,
		inv.Shares,
	); err != nil {
		return err
	}
	var err error
	if next.Dao.LockedShares, err = fixedpoint.Sub(next.Dao.LockedShares, inv.Shares); err != nil {
		return err
	}
	delete(next.Investors, group.Sender)
	return nil
}

func applyDrain(next *LedgerState) error {
	dao := &next.Dao
	balance := next.Escrow.Balance(escrow.Customer(), dao.FundsAssetID)
	platform, central, err := DrainSplit(balance, dao.PlatformFeeBP)
	if err != nil {
		return err
	}
	if err := next.Escrow.Transfer(
		escrow.Customer(),
		escrow.PlatformFee(),
		dao.FundsAssetID,
		platform,
	); err != nil {
		return err
	}
	if err := next.Escrow.Transfer(
		escrow.Customer(),
		escrow.Central(),
		dao.FundsAssetID,
		central,
	); err != nil {
		return err
	}
	dao.CentralReceivedTotal, err = fixedpoint.Add(dao.CentralReceivedTotal, central)
	return err
}

func applyVote(next *LedgerState, group Group, op Vote) error {
	inv := next.Investors[group.Sender]
	slot := &next.Slots[op.Slot]
	var err error
	if slot.VotesTotal, err = fixedpoint.Add(slot.VotesTotal, inv.Shares); err != nil {
		return err
	}
	slot.LocalVotes[group.Sender] = LocalVote{
		Shares: inv.Shares,
		Round:  slot.Round,
	}
	return nil
}

func applyExecuteWithdrawal(next *LedgerState, op ExecuteWithdrawal) error {
	slot := &next.Slots[op.Slot]
	if err := next.Escrow.Transfer(
		escrow.Central(),
		escrow.Party(string(next.Dao.Owner)),
		next.Dao.FundsAssetID,
		slot.RequestedAmount,
	); err != nil {
		return err
	}
	slot.release()
	return nil
}

// applyReclaim refunds exactly what the investor paid in. Shares bought in the
// raise go back to the holding pool; any shares locked from the investor's own
// balance go back to the investor.
func applyReclaim(next *LedgerState, group Group) error {
	inv := next.Investors[group.Sender]
	dao := &next.Dao
	if err := retractVotes(next, group.Sender); err != nil {
		return err
	}
	bought := min(inv.Invested/dao.SharePrice, inv.Shares)
	if err := next.Escrow.Transfer(
		escrow.Locked(),
		escrow.Holding(),
		dao.SharesAssetID,
		bought,
	); err != nil {
		return err
	}
	if err := next.Escrow.Transfer(
		escrow.Locked(),
		escrow.Party(string(group.Sender)),
		dao.SharesAssetID,
		inv.Shares-bought,
	); err != nil {
		return err
	}
	if err := next.Escrow.Transfer(
		escrow.Central(),
		escrow.Party(string(group.Sender)),
		dao.FundsAssetID,
		inv.Invested,
	); err != nil {
		return err
	}
	var err error
	if dao.LockedShares, err = fixedpoint.Sub(dao.LockedShares, inv.Shares); err != nil {
		return err
	}
	if dao.Reclaimed, err = fixedpoint.Add(dao.Reclaimed, inv.Invested); err != nil {
		return err
	}
	delete(next.Investors, group.Sender)
	return nil
}

func applyUpdateData(next *LedgerState, op UpdateData) {
	dao := &next.Dao
	if op.Name != nil {
		dao.Name = *op.Name
	}
	if op.Description != nil {
		dao.Description = *op.Description
	}
	if op.URLs != nil {
		dao.URLs = slices.Clone(*op.URLs)
	}
	if op.CustomerEscrowRef != nil {
		dao.CustomerEscrowRef = *op.CustomerEscrowRef
	}
	if op.Owner != nil {
		dao.Owner = *op.Owner
	}
}
