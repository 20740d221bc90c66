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


package sqlite_test

import (
	"fmt"
	"testing"

	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/database/plugin/metadata/sqlite"
	"github.com/capidao/capiledger/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTxn struct{}

func (fakeTxn) Commit() error   { return nil }
func (fakeTxn) Rollback() error { return nil }

func newTestStore(t *testing.T) *sqlite.MetadataStoreSqlite {
	t.Helper()
	store, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInMemoryStoresAreIsolated(t *testing.T) {
	a := newTestStore(t)
	b := newTestStore(t)

	require.NoError(t, a.SetDao(&models.Dao{DaoID: "dao-a", Seq: 1}, nil))

	daos, err := b.GetDaos(nil)
	require.NoError(t, err)
	assert.Empty(t, daos)
}

func TestSetDaoUpsert(t *testing.T) {
	store := newTestStore(t)

	dao, err := store.GetDao("dao-1", nil)
	require.NoError(t, err)
	assert.Nil(t, dao)

	require.NoError(t, store.SetDao(&models.Dao{
		DaoID:       "dao-1",
		Owner:       "owner",
		Seq:         1,
		ShareSupply: 1_000_000,
	}, nil))
	require.NoError(t, store.SetDao(&models.Dao{
		DaoID:       "dao-1",
		Owner:       "owner",
		Seq:         2,
		ShareSupply: 1_000_000,
		// Above the signed 64-bit range
		CentralTotal: types.Uint64(1 << 63),
	}, nil))
	require.NoError(t, store.SetDao(&models.Dao{DaoID: "dao-0", Seq: 1}, nil))

	dao, err = store.GetDao("dao-1", nil)
	require.NoError(t, err)
	require.NotNil(t, dao)
	assert.Equal(t, uint64(2), dao.Seq)
	assert.Equal(t, types.Uint64(1<<63), dao.CentralTotal)

	daos, err := store.GetDaos(nil)
	require.NoError(t, err)
	require.Len(t, daos, 2)
	assert.Equal(t, "dao-0", daos[0].DaoID)
	assert.Equal(t, "dao-1", daos[1].DaoID)
}

func TestSetInvestorsReplaces(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetInvestors("dao-1", []models.Investor{
		{Address: "bob", Shares: 10, Seq: 1},
		{Address: "alice", Shares: 20, Seq: 1},
	}, nil))
	require.NoError(t, store.SetInvestors("dao-2", []models.Investor{
		{Address: "alice", Shares: 5, Seq: 1},
	}, nil))
	require.NoError(t, store.SetInvestors("dao-1", []models.Investor{
		{Address: "alice", Shares: 30, ClaimedTotal: 7, Seq: 2},
	}, nil))

	investors, err := store.GetInvestors("dao-1", nil)
	require.NoError(t, err)
	require.Len(t, investors, 1)
	assert.Equal(t, "alice", investors[0].Address)
	assert.Equal(t, types.Uint64(30), investors[0].Shares)
	assert.Equal(t, types.Uint64(7), investors[0].ClaimedTotal)

	inv, err := store.GetInvestor("dao-2", "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, types.Uint64(5), inv.Shares)

	inv, err = store.GetInvestor("dao-1", "bob", nil)
	require.NoError(t, err)
	assert.Nil(t, inv)

	require.NoError(t, store.SetInvestors("dao-1", nil, nil))
	investors, err = store.GetInvestors("dao-1", nil)
	require.NoError(t, err)
	assert.Empty(t, investors)
}

func TestJournalPaging(t *testing.T) {
	store := newTestStore(t)

	for i := range 5 {
		require.NoError(t, store.AddJournalEntry(&models.JournalEntry{
			DaoID:   "dao-1",
			Seq:     uint64(i),
			Kind:    "claim",
			Sender:  fmt.Sprintf("sender-%d", i),
			Outcome: models.JournalOutcomeApplied,
			Amount:  types.Uint64(i * 10),
		}, nil))
	}
	require.NoError(t, store.AddJournalEntry(&models.JournalEntry{
		DaoID:   "dao-2",
		Kind:    "create-dao",
		Outcome: models.JournalOutcomeApplied,
	}, nil))

	count, err := store.CountJournalEntries("dao-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	page, err := store.GetJournalEntries("dao-1", 2, 1, false, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].Seq)
	assert.Equal(t, uint64(2), page[1].Seq)

	page, err = store.GetJournalEntries("dao-1", 2, 0, true, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(4), page[0].Seq)

	all, err := store.GetJournalEntries("dao-1", 0, 0, false, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStore(t)

	txn := store.Transaction()
	require.NoError(t, store.SetDao(&models.Dao{DaoID: "dao-1", Seq: 1}, txn))
	require.NoError(t, txn.Rollback())

	// Finished transactions are rejected
	require.Error(t, store.SetDao(&models.Dao{DaoID: "dao-1"}, txn))

	dao, err := store.GetDao("dao-1", nil)
	require.NoError(t, err)
	assert.Nil(t, dao)

	txn = store.Transaction()
	require.NoError(t, store.SetDao(&models.Dao{DaoID: "dao-1", Seq: 1}, txn))
	require.NoError(t, txn.Commit())
	dao, err = store.GetDao("dao-1", nil)
	require.NoError(t, err)
	require.NotNil(t, dao)
}

func TestWrongTxnType(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetDao("dao-1", fakeTxn{})
	require.ErrorIs(t, err, types.ErrTxnWrongType)
}

func TestCommitTimestamp(t *testing.T) {
	store := newTestStore(t)

	ts, err := store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, store.SetCommitTimestamp(100, nil))
	require.NoError(t, store.SetCommitTimestamp(200, nil))
	ts, err = store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(200), ts)
}

func TestPersistentStore(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	store, err := sqlite.New(dir, nil, reg)
	require.NoError(t, err)
	require.NoError(t, store.SetDao(&models.Dao{DaoID: "dao-1", Seq: 3}, nil))
	require.NoError(t, store.Close())
	// Closing twice is harmless
	require.NoError(t, store.Close())

	store, err = sqlite.New(dir, nil, nil)
	require.NoError(t, err)
	defer store.Close()
	dao, err := store.GetDao("dao-1", nil)
	require.NoError(t, err)
	require.NotNil(t, dao)
	assert.Equal(t, uint64(3), dao.Seq)
}
