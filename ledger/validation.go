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

// Validate checks group against state without changing anything. It returns
// nil if Apply would accept the group, subject to arithmetic faults that only
// show while computing the new state.
func Validate(state *LedgerState, group Group) error {
	if group.Op == nil {
		return reject(ErrUnknownOperation, "empty group")
	}
	switch op := group.Op.(type) {
	case CreateDao:
		return validateCreateDao(state, group, op)
	case SetupDao:
		return validateSetupDao(state, group, op)
	case OptIn:
		return validateOptIn(state, group)
	case Invest:
		return validateInvest(state, group, op)
	case Lock:
		return validateLock(state, group, op)
	case Claim:
		return validateClaim(state, group, op)
	case Unlock:
		return validateUnlock(state, group)
	case PayRevenue:
		return validatePayRevenue(state, op)
	case Drain:
		return validateDrain(state)
	case Withdraw:
		return validateWithdraw(state, group, op)
	case InitRequest:
		return validateInitRequest(state, group, op)
	case Vote:
		return validateVote(state, group, op)
	case CancelRequest:
		return validateCancelRequest(state, group, op)
	case ExecuteWithdrawal:
		return validateExecuteWithdrawal(state, group, op)
	case Reclaim:
		return validateReclaim(state, group)
	case UpdateData:
		return validateUpdateData(state, group, op)
	default:
		return reject(ErrUnknownOperation, "%T", group.Op)
	}
}

func requireDao(state *LedgerState) error {
	if state == nil {
		return reject(ErrNotFound, "dao does not exist")
	}
	return nil
}

func requireSetup(state *LedgerState) error {
	if err := requireDao(state); err != nil {
		return err
	}
	if !state.Dao.IsSetup() {
		return reject(ErrNotSetup, "dao %s", state.ID)
	}
	return nil
}

func requireOwner(state *LedgerState, group Group) error {
	if group.Sender == "" || group.Sender != state.Dao.Owner {
		return reject(ErrUnauthorized, "sender %q is not the owner", group.Sender)
	}
	return nil
}

func requireInvestor(state *LedgerState, group Group) (InvestorAccount, error) {
	inv, ok := state.Investor(group.Sender)
	if !ok {
		return InvestorAccount{}, reject(ErrNotOptedIn, "%s", group.Sender)
	}
	return inv, nil
}

func requireSlot(state *LedgerState, idx uint32) (*WithdrawalSlot, error) {
	slot, ok := state.Slot(idx)
	if !ok {
		return nil, reject(
			ErrSlotOutOfRange,
			"slot %d of %d",
			idx,
			len(state.Slots),
		)
	}
	return slot, nil
}

func requireRequested(state *LedgerState, idx uint32) (*WithdrawalSlot, error) {
	slot, err := requireSlot(state, idx)
	if err != nil {
		return nil, err
	}
	if slot.Free() {
		return nil, reject(ErrSlotNotRequested, "slot %d", idx)
	}
	return slot, nil
}

func requireFunds(state *LedgerState, from escrow.Account, amount uint64) error {
	bal := state.Escrow.Balance(from, state.Dao.FundsAssetID)
	if bal < amount {
		return reject(
			ErrInsufficientFunds,
			"%s holds %d, needs %d",
			from,
			bal,
			amount,
		)
	}
	return nil
}

func validateCreateDao(state *LedgerState, group Group, op CreateDao) error {
	if state != nil {
		return reject(ErrAlreadyExists, "dao %s", state.ID)
	}
	if op.ID == "" {
		return reject(ErrInvalidParameter, "missing dao id")
	}
	if group.Sender == "" {
		return reject(ErrInvalidParameter, "missing sender")
	}
	if op.PlatformFeeBP > fixedpoint.Scale {
		return reject(
			ErrInvalidParameter,
			"platform fee %d exceeds scale %d",
			op.PlatformFeeBP,
			fixedpoint.Scale,
		)
	}
	if op.Slots > MaxWithdrawalSlots {
		return reject(
			ErrInvalidParameter,
			"%d withdrawal slots exceeds maximum of %d",
			op.Slots,
			MaxWithdrawalSlots,
		)
	}
	return nil
}

func validateSetupDao(state *LedgerState, group Group, op SetupDao) error {
	if err := requireDao(state); err != nil {
		return err
	}
	if err := requireOwner(state, group); err != nil {
		return err
	}
	if state.Dao.IsSetup() {
		return reject(ErrAlreadySetup, "dao %s", state.ID)
	}
	switch {
	case op.SharesAssetID == 0 || op.FundsAssetID == 0:
		return reject(ErrInvalidParameter, "asset ids must be set")
	case op.SharesAssetID == op.FundsAssetID:
		return reject(ErrInvalidParameter, "shares and funds must be different assets")
	case op.ShareSupply == 0:
		return reject(ErrInvalidParameter, "share supply must be positive")
	case op.SharePrice == 0:
		return reject(ErrInvalidParameter, "share price must be positive")
	case op.InvestorsShareBP > fixedpoint.Scale:
		return reject(
			ErrInvalidParameter,
			"investors share %d exceeds scale %d",
			op.InvestorsShareBP,
			fixedpoint.Scale,
		)
	case op.TargetEndDate <= group.Time:
		return reject(
			ErrInvalidParameter,
			"target end date %d is not after %d",
			op.TargetEndDate,
			group.Time,
		)
	case op.VoteThreshold == 0 || op.VoteThreshold > op.ShareSupply:
		return reject(
			ErrInvalidParameter,
			"vote threshold %d must be within 1..%d",
			op.VoteThreshold,
			op.ShareSupply,
		)
	}
	// The whole supply must be purchasable without overflowing
	maxRaise, err := fixedpoint.Mul(op.ShareSupply, op.SharePrice)
	if err != nil {
		return reject(ErrInvalidParameter, "supply times price: %s", err)
	}
	if op.Target > maxRaise {
		return reject(
			ErrInvalidParameter,
			"target %d exceeds maximum raise %d",
			op.Target,
			maxRaise,
		)
	}
	return nil
}

func validateOptIn(state *LedgerState, group Group) error {
	if err := requireDao(state); err != nil {
		return err
	}
	if group.Sender == "" {
		return reject(ErrInvalidParameter, "missing sender")
	}
	if _, ok := state.Investor(group.Sender); ok {
		return reject(ErrAlreadyOptedIn, "%s", group.Sender)
	}
	return nil
}

func validateInvest(state *LedgerState, group Group, op Invest) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	if _, err := requireInvestor(state, group); err != nil {
		return err
	}
	if !state.Dao.RaiseOpen(group.Time) {
		return reject(
			ErrRaiseClosed,
			"raise ended at %d",
			state.Dao.TargetEndDate,
		)
	}
	if op.Shares == 0 {
		return reject(ErrInvalidAmount, "shares must be positive")
	}
	price, err := fixedpoint.Mul(op.Shares, state.Dao.SharePrice)
	if err != nil {
		return arithmeticFault(err)
	}
	if op.Payment != price {
		return reject(
			ErrPaymentMismatch,
			"%d shares cost %d, paid %d",
			op.Shares,
			price,
			op.Payment,
		)
	}
	available := state.Escrow.Balance(escrow.Holding(), state.Dao.SharesAssetID)
	if available < op.Shares {
		return reject(
			ErrInsufficientShares,
			"%d shares available, requested %d",
			available,
			op.Shares,
		)
	}
	return nil
}

func validateLock(state *LedgerState, group Group, op Lock) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	if _, err := requireInvestor(state, group); err != nil {
		return err
	}
	if op.Shares == 0 {
		return reject(ErrInvalidAmount, "shares must be positive")
	}
	held := state.Escrow.Balance(
		escrow.Party(string(group.Sender)),
		state.Dao.SharesAssetID,
	)
	if held < op.Shares {
		return reject(
			ErrInsufficientShares,
			"%s holds %d shares, requested %d",
			group.Sender,
			held,
			op.Shares,
		)
	}
	return nil
}

func validateClaim(state *LedgerState, group Group, op Claim) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	inv, err := requireInvestor(state, group)
	if err != nil {
		return err
	}
	if op.Amount == 0 {
		return reject(ErrInvalidAmount, "claim amount must be positive")
	}
	claimable, err := Claimable(&inv, &state.Dao)
	if err != nil {
		return err
	}
	if claimable < op.Amount {
		return reject(
			ErrInsufficientEntitlement,
			"claimable %d, requested %d",
			claimable,
			op.Amount,
		)
	}
	return requireFunds(state, escrow.Central(), op.Amount)
}

func validateUnlock(state *LedgerState, group Group) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	inv, err := requireInvestor(state, group)
	if err != nil {
		return err
	}
	if inv.Shares == 0 {
		return reject(ErrNoShares, "%s has no locked shares", group.Sender)
	}
	// Unlocking deletes the account, and with it the record Reclaim pays from
	if inv.Invested > 0 && !state.Dao.RaiseSucceeded(group.Time) {
		return reject(
			ErrRefundPending,
			"%s invested %d in a raise that has not succeeded; use reclaim",
			group.Sender,
			inv.Invested,
		)
	}
	return nil
}

func validatePayRevenue(state *LedgerState, op PayRevenue) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	if op.Amount == 0 {
		return reject(ErrInvalidAmount, "payment must be positive")
	}
	return nil
}

func validateDrain(state *LedgerState) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	if state.Escrow.Balance(escrow.Customer(), state.Dao.FundsAssetID) == 0 {
		return reject(ErrNothingToDrain, "customer escrow is empty")
	}
	return nil
}

func validateWithdraw(state *LedgerState, group Group, op Withdraw) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	if err := requireOwner(state, group); err != nil {
		return err
	}
	if state.Dao.RaiseOpen(group.Time) {
		return reject(
			ErrRaiseStillOpen,
			"raise ends at %d",
			state.Dao.TargetEndDate,
		)
	}
	if state.Dao.Raised < state.Dao.Target {
		return reject(
			ErrRaiseNotSucceeded,
			"raised %d of %d",
			state.Dao.Raised,
			state.Dao.Target,
		)
	}
	if op.Amount == 0 {
		return reject(ErrInvalidAmount, "withdrawal must be positive")
	}
	return requireFunds(state, escrow.Central(), op.Amount)
}

func validateInitRequest(state *LedgerState, group Group, op InitRequest) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	if err := requireOwner(state, group); err != nil {
		return err
	}
	slot, err := requireSlot(state, op.Slot)
	if err != nil {
		return err
	}
	if !slot.Free() {
		return reject(
			ErrSlotNotFree,
			"slot %d has a pending request of %d",
			op.Slot,
			slot.RequestedAmount,
		)
	}
	if op.Amount == 0 {
		return reject(ErrInvalidAmount, "requested amount must be positive")
	}
	return nil
}

func validateVote(state *LedgerState, group Group, op Vote) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	inv, err := requireInvestor(state, group)
	if err != nil {
		return err
	}
	slot, err := requireRequested(state, op.Slot)
	if err != nil {
		return err
	}
	if inv.Shares == 0 {
		return reject(ErrNoShares, "%s has no locked shares", group.Sender)
	}
	if _, ok := slot.ValidVote(group.Sender); ok {
		return reject(
			ErrAlreadyVoted,
			"%s in slot %d round %d",
			group.Sender,
			op.Slot,
			slot.Round,
		)
	}
	return nil
}

func validateCancelRequest(state *LedgerState, group Group, op CancelRequest) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	if err := requireOwner(state, group); err != nil {
		return err
	}
	_, err := requireRequested(state, op.Slot)
	return err
}

func validateExecuteWithdrawal(
	state *LedgerState,
	group Group,
	op ExecuteWithdrawal,
) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	if err := requireOwner(state, group); err != nil {
		return err
	}
	slot, err := requireRequested(state, op.Slot)
	if err != nil {
		return err
	}
	if slot.VotesTotal < slot.Threshold {
		return reject(
			ErrVoteThresholdNotMet,
			"slot %d has %d of %d votes",
			op.Slot,
			slot.VotesTotal,
			slot.Threshold,
		)
	}
	return requireFunds(state, escrow.Central(), slot.RequestedAmount)
}

func validateReclaim(state *LedgerState, group Group) error {
	if err := requireSetup(state); err != nil {
		return err
	}
	inv, err := requireInvestor(state, group)
	if err != nil {
		return err
	}
	if state.Dao.RaiseOpen(group.Time) {
		return reject(
			ErrRaiseStillOpen,
			"raise ends at %d",
			state.Dao.TargetEndDate,
		)
	}
	if state.Dao.Raised >= state.Dao.Target {
		return reject(
			ErrRaiseNotFailed,
			"raised %d of %d",
			state.Dao.Raised,
			state.Dao.Target,
		)
	}
	if inv.Invested == 0 {
		return reject(ErrNoShares, "%s has nothing to reclaim", group.Sender)
	}
	return requireFunds(state, escrow.Central(), inv.Invested)
}

func validateUpdateData(state *LedgerState, group Group, op UpdateData) error {
	if err := requireDao(state); err != nil {
		return err
	}
	if err := requireOwner(state, group); err != nil {
		return err
	}
	if op.Owner != nil && *op.Owner == "" {
		return reject(ErrInvalidParameter, "owner cannot be empty")
	}
	if op.URLs != nil {
		for _, u := range *op.URLs {
			if u == "" {
				return reject(ErrInvalidParameter, "empty url")
			}
		}
	}
	return nil
}
