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
	"github.com/capidao/capiledger/ledger"
	"github.com/stretchr/testify/require"
)

const (
	testDaoID  = "dao-test"
	testOwner  = ledger.Address("owner")
	testAlice  = ledger.Address("alice")
	testBob    = ledger.Address("bob")
	testCarol  = ledger.Address("carol")
	testShares = escrow.AssetID(1001)
	testFunds  = escrow.AssetID(31566704)

	testStart     int64 = 1_700_000_000
	testEnd             = testStart + 86_400
	testAfterEnd        = testEnd + 1
	testPrice           = 10
	testSupply          = 1_000_000
	testTarget          = 1_000_000
	testShareBP         = 400_000
	testThreshold       = 500_000
	testFeeBP           = 30_000
)

func group(sender ledger.Address, at int64, op ledger.Operation) ledger.Group {
	return ledger.Group{Sender: sender, Time: at, Op: op}
}

func mustApply(t *testing.T, state *ledger.LedgerState, g ledger.Group) *ledger.LedgerState {
	t.Helper()
	next, err := ledger.Apply(state, g)
	require.NoError(t, err, "applying %s", g.Op.Kind())
	require.NotNil(t, next)
	return next
}

func mustEncode(t *testing.T, state *ledger.LedgerState) []byte {
	t.Helper()
	data, err := ledger.EncodeState(state)
	require.NoError(t, err)
	return data
}

// requireRejectedUnchanged applies g and asserts it is rejected with target
// while leaving state byte-for-byte identical
func requireRejectedUnchanged(
	t *testing.T,
	state *ledger.LedgerState,
	g ledger.Group,
	target error,
) error {
	t.Helper()
	before := mustEncode(t, state)
	next, err := ledger.Apply(state, g)
	require.ErrorIs(t, err, target)
	require.Nil(t, next)
	require.Equal(t, before, mustEncode(t, state))
	return err
}

func setupOp() ledger.SetupDao {
	return ledger.SetupDao{
		SharesAssetID:    testShares,
		FundsAssetID:     testFunds,
		SharePrice:       testPrice,
		InvestorsShareBP: testShareBP,
		ShareSupply:      testSupply,
		Target:           testTarget,
		TargetEndDate:    testEnd,
		VoteThreshold:    testThreshold,
	}
}

// newTestDao returns a created and set up DAO with the given platform fee
func newTestDao(t *testing.T, feeBP uint64) *ledger.LedgerState {
	t.Helper()
	state := mustApply(t, nil, group(testOwner, testStart, ledger.CreateDao{
		ID:            testDaoID,
		PlatformFeeBP: feeBP,
	}))
	return mustApply(t, state, group(testOwner, testStart, setupOp()))
}

// invest opts addr in and buys shares during the raise
func invest(
	t *testing.T,
	state *ledger.LedgerState,
	addr ledger.Address,
	shares uint64,
) *ledger.LedgerState {
	t.Helper()
	if _, ok := state.Investor(addr); !ok {
		state = mustApply(t, state, group(addr, testStart, ledger.OptIn{}))
	}
	return mustApply(t, state, group(addr, testStart, ledger.Invest{
		Shares:  shares,
		Payment: shares * testPrice,
	}))
}

// drainRevenue pays amount into the customer escrow and drains it
func drainRevenue(
	t *testing.T,
	state *ledger.LedgerState,
	at int64,
	amount uint64,
) *ledger.LedgerState {
	t.Helper()
	state = mustApply(t, state, group(testCarol, at, ledger.PayRevenue{Amount: amount}))
	return mustApply(t, state, group(testCarol, at, ledger.Drain{}))
}

func claimable(t *testing.T, state *ledger.LedgerState, addr ledger.Address) uint64 {
	t.Helper()
	view, err := ledger.InvestorViewOf(state, addr)
	require.NoError(t, err)
	return view.Claimable
}
