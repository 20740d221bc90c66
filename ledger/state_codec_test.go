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

	"github.com/capidao/capiledger/ledger"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRecordRoundTrip(t *testing.T) {
	state := newTestDao(t, testFeeBP)
	state = invest(t, state, testAlice, 300_000)
	state = invest(t, state, testBob, 250_000)
	state = drainRevenue(t, state, testStart, 1_234_567)
	state = mustApply(t, state, group(testOwner, testAfterEnd, ledger.InitRequest{Slot: 2, Amount: 5}))
	state = mustApply(t, state, group(testBob, testAfterEnd, ledger.Vote{Slot: 2}))

	data := mustEncode(t, state)
	decoded, err := ledger.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, data, mustEncode(t, decoded))
	assert.Equal(t, state.Dao, decoded.Dao)
	assert.Equal(t, state.Investors, decoded.Investors)
	assert.Equal(t, state.Escrow.Entries(), decoded.Escrow.Entries())
	vote, ok := decoded.Slots[2].ValidVote(testBob)
	require.True(t, ok)
	assert.Equal(t, uint64(250_000), vote.Shares)
	// Decoded state keeps working with Apply
	_, err = ledger.Apply(decoded, group(testAlice, testAfterEnd, ledger.Vote{Slot: 2}))
	require.NoError(t, err)
}

func TestStateRecordEncodingIsDeterministic(t *testing.T) {
	build := func() *ledger.LedgerState {
		state := newTestDao(t, testFeeBP)
		state = invest(t, state, testBob, 1_000)
		return invest(t, state, testAlice, 2_000)
	}
	assert.Equal(t, mustEncode(t, build()), mustEncode(t, build()))
}

func TestStateRecordAdditiveFieldsDefaultToZero(t *testing.T) {
	// A record written with only the leading fields of the layout
	old := map[int]any{
		1: 1,
		2: "old-dao",
		3: 7,
		4: map[int]any{5: 1_000, 11: "owner"},
		6: []any{map[int]any{}},
	}
	data, err := cbor.Marshal(old)
	require.NoError(t, err)
	state, err := ledger.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, "old-dao", state.ID)
	assert.Equal(t, uint64(7), state.Seq)
	assert.Equal(t, uint64(1_000), state.Dao.ShareSupply)
	assert.Equal(t, ledger.Address("owner"), state.Dao.Owner)
	assert.Zero(t, state.Dao.Reclaimed)
	assert.Zero(t, state.Dao.PlatformFeeBP)
	assert.Len(t, state.Slots, 1)
	assert.Empty(t, state.Investors)
}

func TestStateRecordRejectsUnknownVersion(t *testing.T) {
	data, err := cbor.Marshal(map[int]any{1: ledger.StateRecordVersion + 1})
	require.NoError(t, err)
	_, err = ledger.DecodeState(data)
	require.ErrorIs(t, err, ledger.ErrUnsupportedVersion)
	_, err = ledger.DecodeState([]byte{0xff})
	require.Error(t, err)
}
