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

package ledger_test

import (
	"testing"

	"github.com/capidao/capiledger/escrow"
	"github.com/capidao/capiledger/internal/test/testutil"
	"github.com/capidao/capiledger/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDividendScenario(t *testing.T) {
	for _, tc := range []struct {
		name    string
		feeBP   uint64
		revenue uint64
	}{
		{name: "no platform fee", feeBP: 0, revenue: 5_000_000},
		{name: "three percent fee", feeBP: testFeeBP, revenue: 5_154_639},
	} {
		t.Run(tc.name, func(t *testing.T) {
			state := newTestDao(t, tc.feeBP)
			state = invest(t, state, testAlice, 100_000)
			require.Equal(t, uint64(0), state.Dao.CentralReceivedTotal)
			require.Equal(t, uint64(0), claimable(t, state, testAlice))

			state = drainRevenue(t, state, testStart+10, tc.revenue)
			require.Equal(t, uint64(5_000_000), state.Dao.CentralReceivedTotal)
			require.Equal(t, uint64(200_000), claimable(t, state, testAlice))

			state = mustApply(t, state, group(testAlice, testStart+20, ledger.Claim{Amount: 200_000}))
			inv, ok := state.Investor(testAlice)
			require.True(t, ok)
			assert.Equal(t, uint64(200_000), inv.ClaimedTotal)
			assert.Equal(t, uint64(0), claimable(t, state, testAlice))
			assert.Equal(
				t,
				uint64(200_000),
				state.Escrow.Balance(escrow.Party(string(testAlice)), testFunds),
			)

			err := requireRejectedUnchanged(
				t,
				state,
				group(testAlice, testStart+30, ledger.Claim{Amount: 1}),
				ledger.ErrInsufficientEntitlement,
			)
			assert.True(t, ledger.IsRecoverable(err))
		})
	}
}

func TestDrainRoutesPlatformFee(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = drainRevenue(t, state, testStart, 1_000)
	assert.Equal(t, uint64(30), state.Escrow.Balance(escrow.PlatformFee(), testFunds))
	assert.Equal(t, uint64(970), state.Escrow.Balance(escrow.Central(), testFunds))
	assert.Equal(t, uint64(0), state.Escrow.Balance(escrow.Customer(), testFunds))
	assert.Equal(t, uint64(970), state.Dao.CentralReceivedTotal)
	requireRejectedUnchanged(
		t,
		state,
		group(testCarol, testStart, ledger.Drain{}),
		ledger.ErrNothingToDrain,
	)
}

func TestVoteThresholdScenario(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = invest(t, state, testAlice, 300_000)
	state = invest(t, state, testBob, 250_000)
	require.Equal(t, uint64(5_500_000), state.Dao.Raised)

	state = mustApply(t, state, group(testOwner, testAfterEnd, ledger.InitRequest{
		Slot:   1,
		Amount: 1_000_000,
	}))
	status, err := ledger.VoteStatusOf(state, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.SlotRequested, status.State)
	assert.Equal(t, uint64(testThreshold), status.Threshold)

	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testAfterEnd, ledger.ExecuteWithdrawal{Slot: 1}),
		ledger.ErrVoteThresholdNotMet,
	)

	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Vote{Slot: 1}))
	state = mustApply(t, state, group(testBob, testAfterEnd, ledger.Vote{Slot: 1}))
	status, err = ledger.VoteStatusOf(state, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(550_000), status.Votes)
	assert.True(t, status.Passed())

	for _, voter := range []ledger.Address{testAlice, testBob} {
		requireRejectedUnchanged(
			t,
			state,
			group(voter, testAfterEnd, ledger.Vote{Slot: 1}),
			ledger.ErrAlreadyVoted,
		)
	}

	centralBefore := state.Escrow.Balance(escrow.Central(), testFunds)
	state = mustApply(t, state, group(testOwner, testAfterEnd, ledger.ExecuteWithdrawal{Slot: 1}))
	assert.Equal(
		t,
		uint64(1_000_000),
		state.Escrow.Balance(escrow.Party(string(testOwner)), testFunds),
	)
	assert.Equal(t, centralBefore-1_000_000, state.Escrow.Balance(escrow.Central(), testFunds))
	status, err = ledger.VoteStatusOf(state, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.SlotFree, status.State)
	assert.Equal(t, uint64(1), status.Round)
	assert.Equal(t, uint64(0), state.Slots[1].VotesTotal)

	// Ballots from the executed round do not carry over
	state = mustApply(t, state, group(testOwner, testAfterEnd, ledger.InitRequest{
		Slot:   1,
		Amount: 10,
	}))
	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Vote{Slot: 1}))
	assert.Equal(t, uint64(300_000), state.Slots[1].VotesTotal)
}

func TestWithdrawalSlotGuards(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = invest(t, state, testAlice, 100_000)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.InitRequest{Slot: 0, Amount: 1}),
		ledger.ErrUnauthorized,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testStart, ledger.InitRequest{Slot: 9, Amount: 1}),
		ledger.ErrSlotOutOfRange,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.Vote{Slot: 0}),
		ledger.ErrSlotNotRequested,
	)
	state = mustApply(t, state, group(testOwner, testStart, ledger.InitRequest{Slot: 0, Amount: 5}))
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testStart, ledger.InitRequest{Slot: 0, Amount: 7}),
		ledger.ErrSlotNotFree,
	)
	state = mustApply(t, state, group(testAlice, testStart, ledger.Vote{Slot: 0}))
	state = mustApply(t, state, group(testOwner, testStart, ledger.CancelRequest{Slot: 0}))
	assert.True(t, state.Slots[0].Free())
	assert.Equal(t, uint64(0), state.Slots[0].VotesTotal)
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testStart, ledger.CancelRequest{Slot: 0}),
		ledger.ErrSlotNotRequested,
	)
}

func TestUnlockRetractsVotes(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = invest(t, state, testAlice, 300_000)
	state = invest(t, state, testBob, 250_000)
	state = mustApply(t, state, group(testOwner, testAfterEnd, ledger.InitRequest{Slot: 0, Amount: 1}))
	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Vote{Slot: 0}))
	state = mustApply(t, state, group(testBob, testAfterEnd, ledger.Vote{Slot: 0}))
	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Unlock{}))
	assert.Equal(t, uint64(250_000), state.Slots[0].VotesTotal)
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testAfterEnd, ledger.ExecuteWithdrawal{Slot: 0}),
		ledger.ErrVoteThresholdNotMet,
	)
}

func TestLockUnlockRoundTrip(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = invest(t, state, testBob, 50_000)
	// alice obtains free shares by investing and unlocking once the raise
	// has succeeded
	state = invest(t, state, testAlice, 100_000)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.Unlock{}),
		ledger.ErrRefundPending,
	)
	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Unlock{}))
	_, ok := state.Investor(testAlice)
	require.False(t, ok)
	assert.Equal(
		t,
		uint64(100_000),
		state.Escrow.Balance(escrow.Party(string(testAlice)), testShares),
	)

	lockedBefore := state.Dao.LockedShares
	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.OptIn{}))
	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Lock{Shares: 60_000}))
	assert.Equal(t, lockedBefore+60_000, state.Dao.LockedShares)
	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Unlock{}))
	assert.Equal(t, lockedBefore, state.Dao.LockedShares)
	_, ok = state.Investor(testAlice)
	assert.False(t, ok)

	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.OptIn{}))
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testAfterEnd, ledger.Lock{Shares: 100_001}),
		ledger.ErrInsufficientShares,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testAfterEnd, ledger.Lock{}),
		ledger.ErrInvalidAmount,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testAfterEnd, ledger.Unlock{}),
		ledger.ErrNoShares,
	)
}

func TestUnlockKeepsRefundAfterFailedRaise(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = invest(t, state, testAlice, 1_000)
	require.True(t, state.Dao.RaiseFailed(testAfterEnd))

	err := requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testAfterEnd, ledger.Unlock{}),
		ledger.ErrRefundPending,
	)
	assert.True(t, ledger.IsRecoverable(err))

	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Reclaim{}))
	_, ok := state.Investor(testAlice)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), state.Escrow.Balance(escrow.Central(), testFunds))
	assert.Equal(
		t,
		uint64(1_000*testPrice),
		state.Escrow.Balance(escrow.Party(string(testAlice)), testFunds),
	)
	assert.Equal(t, uint64(1_000*testPrice), state.Dao.Reclaimed)
}

func TestLockRebaselinesEntitlement(t *testing.T) {
	state := newTestDao(t, 0)
	state = invest(t, state, testAlice, 100_000)
	state = drainRevenue(t, state, testStart, 5_000_000)
	require.Equal(t, uint64(200_000), claimable(t, state, testAlice))
	// Locking more resets the claimed total to the new entitlement, so the
	// unclaimed 200,000 is forfeited
	state = invest(t, state, testAlice, 100_000)
	inv, _ := state.Investor(testAlice)
	assert.Equal(t, uint64(400_000), inv.ClaimedBaseline)
	assert.Equal(t, inv.ClaimedBaseline, inv.ClaimedTotal)
	assert.Equal(t, uint64(0), claimable(t, state, testAlice))
	state = drainRevenue(t, state, testStart, 5_000_000)
	assert.Equal(t, uint64(400_000), claimable(t, state, testAlice))
}

func TestInvestGuards(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.Invest{Shares: 1, Payment: testPrice}),
		ledger.ErrNotOptedIn,
	)
	state = mustApply(t, state, group(testAlice, testStart, ledger.OptIn{}))
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.OptIn{}),
		ledger.ErrAlreadyOptedIn,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.Invest{Shares: 10, Payment: 99}),
		ledger.ErrPaymentMismatch,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.Invest{}),
		ledger.ErrInvalidAmount,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testEnd, ledger.Invest{Shares: 1, Payment: testPrice}),
		ledger.ErrRaiseClosed,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.Invest{
			Shares:  testSupply + 1,
			Payment: (testSupply + 1) * testPrice,
		}),
		ledger.ErrInsufficientShares,
	)
	state = mustApply(t, state, group(testAlice, testStart, ledger.Invest{Shares: 10, Payment: 100}))
	assert.Equal(t, uint64(100), state.Dao.Raised)
	assert.Equal(t, uint64(10), state.Dao.LockedShares)
	assert.Equal(t, uint64(testSupply-10), state.Escrow.Balance(escrow.Holding(), testShares))
	assert.Equal(t, uint64(100), state.Escrow.Balance(escrow.Central(), testFunds))
}

func TestWithdraw(t *testing.T) {
	state := newTestDao(t, 0)
	state = invest(t, state, testAlice, 100_000)
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testStart, ledger.Withdraw{Amount: 1}),
		ledger.ErrRaiseStillOpen,
	)
	err := requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testAfterEnd, ledger.Withdraw{Amount: 1}),
		ledger.ErrUnauthorized,
	)
	testutil.RequireRejection(t, err, ledger.ErrUnauthorized, ledger.KindAuthorization)
	assert.False(t, ledger.IsRecoverable(err))
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testAfterEnd, ledger.Withdraw{Amount: 1_000_001}),
		ledger.ErrInsufficientFunds,
	)
	state = mustApply(t, state, group(testOwner, testAfterEnd, ledger.Withdraw{Amount: 400_000}))
	assert.Equal(t, uint64(1_000_000), state.Dao.Raised)
	assert.Equal(t, uint64(600_000), state.Escrow.Balance(escrow.Central(), testFunds))
	assert.Equal(
		t,
		uint64(400_000),
		state.Escrow.Balance(escrow.Party(string(testOwner)), testFunds),
	)
}

func TestReclaimAfterFailedRaise(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = invest(t, state, testAlice, 30_000)
	state = invest(t, state, testBob, 20_000)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.Reclaim{}),
		ledger.ErrRaiseStillOpen,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testAfterEnd, ledger.Withdraw{Amount: 1}),
		ledger.ErrRaiseNotSucceeded,
	)
	state = mustApply(t, state, group(testAlice, testAfterEnd, ledger.Reclaim{}))
	_, ok := state.Investor(testAlice)
	assert.False(t, ok)
	assert.Equal(t, uint64(20_000), state.Dao.LockedShares)
	assert.Equal(t, uint64(300_000), state.Dao.Reclaimed)
	assert.Equal(t, uint64(500_000), state.Dao.Raised)
	assert.Equal(
		t,
		uint64(300_000),
		state.Escrow.Balance(escrow.Party(string(testAlice)), testFunds),
	)
	assert.Equal(t, uint64(testSupply-20_000), state.Escrow.Balance(escrow.Holding(), testShares))
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testAfterEnd, ledger.Reclaim{}),
		ledger.ErrNotOptedIn,
	)
}

func TestReclaimRejectedAfterSuccessfulRaise(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = invest(t, state, testAlice, 100_000)
	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testAfterEnd, ledger.Reclaim{}),
		ledger.ErrRaiseNotFailed,
	)
}

func TestCreateAndSetup(t *testing.T) {
	requireNilRejected := func(g ledger.Group, target error) {
		t.Helper()
		next, err := ledger.Apply(nil, g)
		require.ErrorIs(t, err, target)
		require.Nil(t, next)
	}
	requireNilRejected(group(testOwner, testStart, ledger.OptIn{}), ledger.ErrNotFound)
	requireNilRejected(group("", testStart, ledger.CreateDao{ID: testDaoID}), ledger.ErrInvalidParameter)
	requireNilRejected(
		group(testOwner, testStart, ledger.CreateDao{ID: testDaoID, PlatformFeeBP: 1_000_001}),
		ledger.ErrInvalidParameter,
	)

	state := mustApply(t, nil, group(testOwner, testStart, ledger.CreateDao{ID: testDaoID}))
	assert.Equal(t, testOwner, state.Dao.Owner)
	assert.Len(t, state.Slots, ledger.DefaultWithdrawalSlots)
	assert.Equal(t, uint64(1), state.Seq)
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testStart, ledger.CreateDao{ID: testDaoID}),
		ledger.ErrAlreadyExists,
	)
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testStart, ledger.PayRevenue{Amount: 1}),
		ledger.ErrNotSetup,
	)
	requireRejectedUnchanged(t, state, group(testAlice, testStart, setupOp()), ledger.ErrUnauthorized)

	bad := setupOp()
	bad.VoteThreshold = testSupply + 1
	requireRejectedUnchanged(t, state, group(testOwner, testStart, bad), ledger.ErrInvalidParameter)
	bad = setupOp()
	bad.TargetEndDate = testStart
	requireRejectedUnchanged(t, state, group(testOwner, testStart, bad), ledger.ErrInvalidParameter)
	bad = setupOp()
	bad.Target = testSupply*testPrice + 1
	requireRejectedUnchanged(t, state, group(testOwner, testStart, bad), ledger.ErrInvalidParameter)
	bad = setupOp()
	bad.FundsAssetID = testShares
	requireRejectedUnchanged(t, state, group(testOwner, testStart, bad), ledger.ErrInvalidParameter)

	state = mustApply(t, state, group(testOwner, testStart, setupOp()))
	assert.True(t, state.Dao.IsSetup())
	assert.Equal(t, uint64(testSupply), state.Escrow.Balance(escrow.Holding(), testShares))
	requireRejectedUnchanged(t, state, group(testOwner, testStart, setupOp()), ledger.ErrAlreadySetup)
}

func TestUpdateData(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	name := "Capi Coffee"
	urls := []string{"https://example.com"}
	state = mustApply(t, state, group(testOwner, testStart, ledger.UpdateData{
		Name: &name,
		URLs: &urls,
	}))
	assert.Equal(t, name, state.Dao.Name)
	assert.Equal(t, urls, state.Dao.URLs)
	assert.Empty(t, state.Dao.Description)

	requireRejectedUnchanged(
		t,
		state,
		group(testAlice, testStart, ledger.UpdateData{Name: &name}),
		ledger.ErrUnauthorized,
	)
	empty := ledger.Address("")
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testStart, ledger.UpdateData{Owner: &empty}),
		ledger.ErrInvalidParameter,
	)
	newOwner := testBob
	state = mustApply(t, state, group(testOwner, testStart, ledger.UpdateData{Owner: &newOwner}))
	assert.Equal(t, testBob, state.Dao.Owner)
	requireRejectedUnchanged(
		t,
		state,
		group(testOwner, testStart, ledger.UpdateData{Name: &name}),
		ledger.ErrUnauthorized,
	)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	before := mustEncode(t, state)
	next := invest(t, state, testAlice, 1_000)
	assert.Equal(t, before, mustEncode(t, state))
	assert.NotEqual(t, before, mustEncode(t, next))
	assert.Equal(t, state.Seq+2, next.Seq)
}

func TestArithmeticFaultIsFatal(t *testing.T) {
	state := newTestDao(t, 0)
	state = invest(t, state, testAlice, 100_000)
	// Corrupt the account so its claimed total exceeds its entitlement
	corrupt := state.Clone()
	inv := corrupt.Investors[testAlice]
	inv.ClaimedTotal = 1
	corrupt.Investors[testAlice] = inv
	_, err := ledger.Apply(corrupt, group(testAlice, testStart, ledger.Claim{Amount: 1}))
	testutil.RequireRejection(t, err, ledger.ErrNegativeEntitlement, ledger.KindArithmetic)
	assert.True(t, ledger.IsFatal(err))

	dao := state.Dao
	dao.ShareSupply = 0
	_, err = ledger.Entitlement(1, &dao)
	testutil.RequireRejection(t, err, ledger.ErrDivisionByZero, ledger.KindArithmetic)
}

func TestUnknownOperation(t *testing.T) {
	state := newTestDao(t, 0)
	requireRejectedUnchanged(t, state, ledger.Group{Sender: testAlice}, ledger.ErrUnknownOperation)
	kind, err := ledger.ParseOperationKind("ExecuteWithdrawal")
	require.NoError(t, err)
	assert.Equal(t, ledger.OpExecuteWithdrawal, kind)
	_, err = ledger.ParseOperationKind("mint")
	require.ErrorIs(t, err, ledger.ErrUnknownOperation)
}
