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
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/capidao/capiledger/database"
	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/escrow"
	"github.com/capidao/capiledger/event"
	"github.com/capidao/capiledger/internal/test/testutil"
	"github.com/capidao/capiledger/ledger"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEngine struct {
	engine *ledger.Engine
	db     *database.Database
	bus    *event.EventBus
	reg    *prometheus.Registry
	now    *atomic.Int64
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(bus.Stop)
	reg := prometheus.NewRegistry()
	now := &atomic.Int64{}
	now.Store(testStart)
	engine, err := ledger.NewEngine(ledger.EngineConfig{
		Database:      db,
		EventBus:      bus,
		PromRegistry:  reg,
		PlatformFeeBP: testFeeBP,
		Clock: ledger.ClockFunc(func() time.Time {
			return time.Unix(now.Load(), 0)
		}),
	})
	require.NoError(t, err)
	return &testEngine{engine: engine, db: db, bus: bus, reg: reg, now: now}
}

// setTime moves the engine clock
func (te *testEngine) setTime(at int64) {
	te.now.Store(at)
}

func (te *testEngine) trySubmit(
	sender ledger.Address,
	op ledger.Operation,
) (*ledger.LedgerState, error) {
	return te.engine.Submit(
		context.Background(),
		testDaoID,
		ledger.Group{Sender: sender, Op: op},
	)
}

func (te *testEngine) submit(
	t *testing.T,
	sender ledger.Address,
	op ledger.Operation,
) *ledger.LedgerState {
	t.Helper()
	state, err := te.trySubmit(sender, op)
	require.NoError(t, err, "submitting %s", op.Kind())
	return state
}

// setup creates and sets up the test DAO through the engine
func (te *testEngine) setup(t *testing.T) {
	t.Helper()
	te.submit(t, testOwner, ledger.CreateDao{})
	te.submit(t, testOwner, setupOp())
}

func TestNewEngineRequiresDatabase(t *testing.T) {
	_, err := ledger.NewEngine(ledger.EngineConfig{})
	require.Error(t, err)
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	_, err = ledger.NewEngine(ledger.EngineConfig{
		Database:      db,
		PlatformFeeBP: 2_000_000,
	})
	require.Error(t, err)
	_, err = ledger.NewEngine(ledger.EngineConfig{
		Database:        db,
		WithdrawalSlots: ledger.MaxWithdrawalSlots + 1,
	})
	require.Error(t, err)
}

func TestEngineCreateDaoUsesHostParameters(t *testing.T) {
	te := newTestEngine(t)
	state, err := te.engine.Submit(
		context.Background(),
		testDaoID,
		ledger.Group{
			Sender: testOwner,
			Op: ledger.CreateDao{
				ID:            "spoofed",
				PlatformFeeBP: 0,
				Slots:         1,
			},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, testDaoID, state.ID)
	assert.Equal(t, uint64(testFeeBP), state.Dao.PlatformFeeBP)
	assert.Len(t, state.Slots, ledger.DefaultWithdrawalSlots)
	// Time is stamped from the clock
	assert.Equal(t, testStart, state.Dao.CreatedAt)
	assert.Equal(t, uint64(1), state.Seq)

	stored, err := te.engine.State(testDaoID)
	require.NoError(t, err)
	assert.Equal(t, mustEncode(t, state), mustEncode(t, stored))

	daos, err := te.engine.ListDaos()
	require.NoError(t, err)
	require.Len(t, daos, 1)
	assert.Equal(t, testDaoID, daos[0].DaoID)
	assert.Equal(t, string(testOwner), daos[0].Owner)
}

func TestEngineDividendFlow(t *testing.T) {
	te := newTestEngine(t)
	te.setup(t)
	te.submit(t, testAlice, ledger.OptIn{})
	te.submit(t, testAlice, ledger.Invest{
		Shares:  100_000,
		Payment: 100_000 * testPrice,
	})
	te.setTime(testStart + 10)
	te.submit(t, testCarol, ledger.PayRevenue{Amount: 5_154_639})
	state := te.submit(t, testCarol, ledger.Drain{})
	assert.Equal(t, testStart+10, state.UpdatedAt)
	assert.Equal(t, uint64(5_000_000), state.Dao.CentralReceivedTotal)

	entitlement, err := te.engine.Entitlement(testDaoID, testAlice)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), entitlement)
	claimable, err := te.engine.Claimable(testDaoID, testAlice)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), claimable)

	te.setTime(testStart + 20)
	te.submit(t, testAlice, ledger.Claim{Amount: 150_000})
	view, err := te.engine.Investor(testDaoID, testAlice)
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000), view.Account.ClaimedTotal)
	assert.Equal(t, uint64(50_000), view.Claimable)

	balance, err := te.engine.Balance(
		testDaoID,
		escrow.Party(string(testAlice)),
		testFunds,
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000), balance)

	investors, err := te.engine.Investors(testDaoID)
	require.NoError(t, err)
	require.Len(t, investors, 1)
	assert.Equal(t, string(testAlice), investors[0].Address)
	assert.Equal(t, uint64(100_000), uint64(investors[0].Shares))
	assert.Equal(t, uint64(150_000), uint64(investors[0].ClaimedTotal))

	dao, err := te.db.GetDao(testDaoID, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), uint64(dao.LockedShares))
	assert.Equal(t, uint64(5_000_000), uint64(dao.CentralTotal))
	assert.Equal(t, 1, dao.InvestorsCount)

	require.NoError(t, te.engine.Verify(context.Background()))
}

func TestEngineRejectionIsJournaled(t *testing.T) {
	te := newTestEngine(t)
	te.setup(t)
	before, err := te.engine.State(testDaoID)
	require.NoError(t, err)

	rejected := make(chan event.Event, 1)
	te.bus.SubscribeFunc(
		ledger.OperationRejectedEventType,
		func(evt event.Event) { rejected <- evt },
	)

	_, err = te.trySubmit(testAlice, ledger.Claim{Amount: 1})
	require.ErrorIs(t, err, ledger.ErrNotOptedIn)
	assert.True(t, ledger.IsRecoverable(err))

	after, err := te.engine.State(testDaoID)
	require.NoError(t, err)
	assert.Equal(t, mustEncode(t, before), mustEncode(t, after))

	select {
	case evt := <-rejected:
		data, ok := evt.Data.(ledger.OperationRejectedEvent)
		require.True(t, ok)
		assert.Equal(t, "NotOptedIn", data.Reason)
		assert.Equal(t, "claim", data.Kind)
		assert.Equal(t, before.Seq, data.Seq)
		assert.False(t, data.Fatal)
	case <-time.After(2 * time.Second):
		t.Fatal("no rejection event")
	}

	entries, total, err := te.engine.Journal(testDaoID, 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, entries, 3)
	assert.Equal(t, "create-dao", entries[0].Kind)
	assert.Equal(t, models.JournalOutcomeApplied, entries[1].Outcome)
	assert.Equal(t, models.JournalOutcomeRejected, entries[2].Outcome)
	assert.Equal(t, "validation", entries[2].RejectionKind)
	assert.Equal(t, before.Seq, entries[2].Seq)

	entries, total, err = te.engine.Journal(testDaoID, 1, 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, entries, 1)
	assert.Equal(t, models.JournalOutcomeRejected, entries[0].Outcome)

	count, err := promtestutil.GatherAndCount(
		te.reg,
		"capiledger_operations_rejected_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngineUnknownDao(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.engine.State("missing")
	require.ErrorIs(t, err, database.ErrDaoNotFound)

	// Anything but CreateDao against a missing DAO is rejected
	_, err = te.engine.Submit(
		context.Background(),
		"missing",
		ledger.Group{Sender: testAlice, Op: ledger.OptIn{}},
	)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = te.engine.Submit(
		context.Background(),
		"",
		ledger.Group{Sender: testAlice, Op: ledger.CreateDao{}},
	)
	require.Error(t, err)
}

func TestEngineUnknownDaoIsNotJournaled(t *testing.T) {
	te := newTestEngine(t)
	for _, id := range []string{"missing-0", "missing-1", "missing-2"} {
		_, err := te.engine.Submit(
			context.Background(),
			id,
			ledger.Group{Sender: testAlice, Op: ledger.Claim{Amount: 1}},
		)
		require.ErrorIs(t, err, ledger.ErrNotFound)
		entries, total, err := te.engine.Journal(id, 0, 0, false)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, entries)
	}
	daos, err := te.engine.ListDaos()
	require.NoError(t, err)
	assert.Empty(t, daos)
	count, err := promtestutil.GatherAndCount(
		te.reg,
		"capiledger_operations_rejected_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngineStampsTimeFromClock(t *testing.T) {
	te := newTestEngine(t)
	te.setup(t)
	te.submit(t, testAlice, ledger.OptIn{})
	te.submit(t, testAlice, ledger.Invest{
		Shares:  100_000,
		Payment: 100_000 * testPrice,
	})
	before, err := te.engine.State(testDaoID)
	require.NoError(t, err)

	// A caller cannot move the group past the end of the raise
	_, err = te.engine.Submit(
		context.Background(),
		testDaoID,
		group(testOwner, testAfterEnd, ledger.Withdraw{Amount: 1_000_000}),
	)
	testutil.RequireRejection(t, err, ledger.ErrInvalidParameter, ledger.KindValidation)
	_, err = te.trySubmit(testOwner, ledger.Withdraw{Amount: 1_000_000})
	testutil.RequireRejection(t, err, ledger.ErrRaiseStillOpen, ledger.KindValidation)
	_, err = te.trySubmit(testAlice, ledger.Reclaim{})
	testutil.RequireRejection(t, err, ledger.ErrRaiseStillOpen, ledger.KindValidation)

	after, err := te.engine.State(testDaoID)
	require.NoError(t, err)
	assert.Equal(t, mustEncode(t, before), mustEncode(t, after))
	assert.Equal(
		t,
		uint64(1_000_000),
		after.Escrow.Balance(escrow.Central(), testFunds),
	)

	// Once the clock passes the end the same withdrawal goes through
	te.setTime(testAfterEnd)
	state := te.submit(t, testOwner, ledger.Withdraw{Amount: 1_000_000})
	assert.Equal(t, testAfterEnd, state.UpdatedAt)
	assert.Equal(t, uint64(0), state.Escrow.Balance(escrow.Central(), testFunds))
}

func TestEngineRejectsClockGoingBackwards(t *testing.T) {
	te := newTestEngine(t)
	te.setTime(testStart + 100)
	te.setup(t)
	te.setTime(testStart)
	_, err := te.trySubmit(testAlice, ledger.OptIn{})
	testutil.RequireRejection(t, err, ledger.ErrInvalidParameter, ledger.KindValidation)

	entries, total, err := te.engine.Journal(testDaoID, 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	assert.Equal(t, models.JournalOutcomeRejected, entries[2].Outcome)

	te.setTime(testStart + 100)
	state := te.submit(t, testAlice, ledger.OptIn{})
	assert.Equal(t, testStart+100, state.UpdatedAt)
}

func TestEngineUnlockKeepsRefund(t *testing.T) {
	te := newTestEngine(t)
	te.setup(t)
	te.submit(t, testAlice, ledger.OptIn{})
	te.submit(t, testAlice, ledger.Invest{
		Shares:  1_000,
		Payment: 1_000 * testPrice,
	})
	te.setTime(testAfterEnd)
	_, err := te.trySubmit(testAlice, ledger.Unlock{})
	testutil.RequireRejection(t, err, ledger.ErrRefundPending, ledger.KindValidation)

	state := te.submit(t, testAlice, ledger.Reclaim{})
	assert.Equal(t, uint64(0), state.Escrow.Balance(escrow.Central(), testFunds))
	balance, err := te.engine.Balance(
		testDaoID,
		escrow.Party(string(testAlice)),
		testFunds,
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000*testPrice), balance)
}

func TestEngineAppliedEvent(t *testing.T) {
	te := newTestEngine(t)
	subID, evtCh := te.bus.Subscribe(ledger.OperationAppliedEventType)
	defer te.bus.Unsubscribe(ledger.OperationAppliedEventType, subID)

	te.submit(t, testOwner, ledger.CreateDao{})
	select {
	case evt := <-evtCh:
		data, ok := evt.Data.(ledger.OperationAppliedEvent)
		require.True(t, ok)
		assert.Equal(t, testDaoID, data.DaoID)
		assert.Equal(t, "create-dao", data.Kind)
		assert.Equal(t, uint64(1), data.Seq)
		assert.Equal(t, testStart, data.Time)
	case <-time.After(2 * time.Second):
		t.Fatal("no applied event")
	}
}

func TestEngineVoteStatus(t *testing.T) {
	te := newTestEngine(t)
	te.setup(t)
	te.submit(t, testAlice, ledger.OptIn{})
	te.submit(t, testAlice, ledger.Invest{
		Shares:  testSupply,
		Payment: testSupply * testPrice,
	})
	te.setTime(testAfterEnd)
	te.submit(t, testOwner, ledger.InitRequest{
		Slot:   0,
		Amount: 1_000,
	})
	te.submit(t, testAlice, ledger.Vote{Slot: 0})

	status, err := te.engine.VoteStatus(testDaoID, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.SlotRequested, status.State)
	assert.Equal(t, uint64(1_000), status.Amount)
	assert.Equal(t, uint64(testSupply), status.Votes)
	assert.True(t, status.Passed())

	_, err = te.engine.VoteStatus(testDaoID, 99)
	require.ErrorIs(t, err, ledger.ErrSlotOutOfRange)
}

func TestEngineConcurrentSubmissions(t *testing.T) {
	te := newTestEngine(t)
	te.setup(t)
	addrs := []ledger.Address{"inv-0", "inv-1", "inv-2", "inv-3", "inv-4"}
	var wg sync.WaitGroup
	errs := make(chan error, len(addrs)*2)
	for _, addr := range addrs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, op := range []ledger.Operation{
				ledger.OptIn{},
				ledger.Invest{Shares: 1_000, Payment: 1_000 * testPrice},
			} {
				_, err := te.trySubmit(addr, op)
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	state, err := te.engine.State(testDaoID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2+2*len(addrs)), state.Seq)
	assert.Equal(t, uint64(5_000), state.Dao.LockedShares)
	require.NoError(t, ledger.CheckInvariants(state))
}
