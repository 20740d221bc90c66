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

package escrow_test

import (
	"math"
	"testing"

	"github.com/capidao/capiledger/escrow"
	"github.com/capidao/capiledger/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFunds  escrow.AssetID = 31566704
	testShares escrow.AssetID = 1001
)

func TestTransfer(t *testing.T) {
	r := escrow.New()
	require.NoError(t, r.Deposit(escrow.Customer(), testFunds, 1_000))
	require.NoError(
		t,
		r.Transfer(escrow.Customer(), escrow.Central(), testFunds, 970),
	)
	require.NoError(
		t,
		r.Transfer(escrow.Customer(), escrow.PlatformFee(), testFunds, 30),
	)
	assert.Equal(t, uint64(0), r.Balance(escrow.Customer(), testFunds))
	assert.Equal(t, uint64(970), r.Balance(escrow.Central(), testFunds))
	assert.Equal(t, uint64(30), r.Balance(escrow.PlatformFee(), testFunds))
	total, err := r.Total(testFunds)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), total)
	// Zero balances are dropped
	assert.Len(t, r.Entries(), 2)
}

func TestTransferInsufficientBalance(t *testing.T) {
	r := escrow.New()
	require.NoError(t, r.Deposit(escrow.Holding(), testShares, 10))
	err := r.Transfer(escrow.Holding(), escrow.Locked(), testShares, 11)
	require.ErrorIs(t, err, escrow.ErrInsufficientBalance)
	assert.Equal(t, uint64(10), r.Balance(escrow.Holding(), testShares))
	assert.Equal(t, uint64(0), r.Balance(escrow.Locked(), testShares))
}

func TestDepositOverflow(t *testing.T) {
	r := escrow.New()
	require.NoError(t, r.Deposit(escrow.Central(), testFunds, math.MaxUint64))
	err := r.Deposit(escrow.Central(), testFunds, 1)
	require.ErrorIs(t, err, fixedpoint.ErrOverflow)
}

func TestInvalidAccount(t *testing.T) {
	r := escrow.New()
	require.ErrorIs(
		t,
		r.Deposit(escrow.Party(""), testFunds, 1),
		escrow.ErrInvalidAccount,
	)
	require.ErrorIs(
		t,
		r.Deposit(escrow.Account{Role: escrow.RoleCentral, Key: "x"}, testFunds, 1),
		escrow.ErrInvalidAccount,
	)
}

func TestCloneIsIndependent(t *testing.T) {
	r := escrow.New()
	require.NoError(t, r.Deposit(escrow.Party("alice"), testShares, 5))
	c := r.Clone()
	require.NoError(
		t,
		c.Transfer(escrow.Party("alice"), escrow.Locked(), testShares, 5),
	)
	assert.Equal(t, uint64(5), r.Balance(escrow.Party("alice"), testShares))
	assert.Equal(t, uint64(0), c.Balance(escrow.Party("alice"), testShares))
}

func TestEntriesRoundTrip(t *testing.T) {
	r := escrow.New()
	require.NoError(t, r.Deposit(escrow.Party("bob"), testFunds, 3))
	require.NoError(t, r.Deposit(escrow.Central(), testFunds, 2))
	require.NoError(t, r.Deposit(escrow.Party("alice"), testFunds, 1))
	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, escrow.Central(), entries[0].Account)
	assert.Equal(t, escrow.Party("alice"), entries[1].Account)
	assert.Equal(t, escrow.Party("bob"), entries[2].Account)
	r2, err := escrow.FromEntries(entries)
	require.NoError(t, err)
	assert.Equal(t, entries, r2.Entries())
}
