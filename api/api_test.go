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


package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/capidao/capiledger/api"
	"github.com/capidao/capiledger/database"
	"github.com/capidao/capiledger/event"
	"github.com/capidao/capiledger/ledger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	testDaoID       = "dao-1"
	testStart int64 = 1_700_000_000
	testEnd         = testStart + 86_400
)

type testServer struct {
	api    *api.API
	engine *ledger.Engine
	bus    *event.EventBus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(bus.Stop)
	engine, err := ledger.NewEngine(ledger.EngineConfig{
		Database:      db,
		EventBus:      bus,
		PlatformFeeBP: 30_000,
		Clock: ledger.ClockFunc(func() time.Time {
			return time.Unix(testStart, 0)
		}),
	})
	require.NoError(t, err)
	return &testServer{
		api:    api.New(api.Config{}, engine, bus, nil),
		engine: engine,
		bus:    bus,
	}
}

func (ts *testServer) do(
	t *testing.T,
	method string,
	path string,
	body string,
) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.api.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) submit(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(
		t,
		http.MethodPost,
		"/api/v1/daos/"+testDaoID+"/operations",
		body,
	)
}

func (ts *testServer) mustSubmit(t *testing.T, body string) {
	t.Helper()
	rec := ts.submit(t, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// setup creates a DAO with one investor holding 100000 shares
func (ts *testServer) setup(t *testing.T) {
	t.Helper()
	ts.mustSubmit(t, `{"sender":"owner","kind":"create-dao"}`)
	ts.mustSubmit(t, fmt.Sprintf(`
sender: owner
kind: setup-dao
sharesAssetId: 1001
fundsAssetId: 2002
sharePrice: 10
investorsShareBp: 400000
shareSupply: 1000000
target: 1000000
targetEndDate: %d
voteThreshold: 50000
`, testEnd))
	ts.mustSubmit(t, `{"sender":"alice","kind":"opt-in"}`)
	ts.mustSubmit(t, `{"sender":"alice","kind":"invest","shares":100000,"payment":1000000}`)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret), rec.Body.String())
	return ret
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[api.HealthResponse](t, rec).IsHealthy)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestSubmitAndQuery(t *testing.T) {
	ts := newTestServer(t)
	ts.setup(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/daos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	daos := decode[[]api.DaoSummaryResponse](t, rec)
	require.Len(t, daos, 1)
	assert.Equal(t, testDaoID, daos[0].ID)
	assert.Equal(t, uint64(100_000), daos[0].LockedShares)
	assert.Equal(t, 1, daos[0].InvestorsCount)

	rec = ts.do(t, http.MethodGet, "/api/v1/daos/"+testDaoID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[api.StateResponse](t, rec)
	assert.Equal(t, uint64(4), state.Seq)
	assert.Equal(t, uint64(30_000), state.Dao.PlatformFeeBP)
	assert.Len(t, state.Slots, ledger.DefaultWithdrawalSlots)
	assert.Contains(t, state.Investors, ledger.Address("alice"))
	assert.Contains(t, state.Balances, api.BalanceResponse{
		Account: "central",
		Asset:   2002,
		Amount:  1_000_000,
	})

	ts.mustSubmit(t, `{"sender":"carol","kind":"pay-revenue","amount":1000}`)
	ts.mustSubmit(t, `{"sender":"carol","kind":"drain"}`)

	rec = ts.do(t, http.MethodGet, "/api/v1/daos/"+testDaoID+"/investors/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[ledger.InvestorView](t, rec)
	assert.Equal(t, uint64(100_000), view.Account.Shares)
	// 970 drained, 40% to investors, alice holds 10% of supply
	assert.Equal(t, uint64(38), view.Entitlement)
	assert.Equal(t, uint64(38), view.Claimable)

	rec = ts.do(t, http.MethodGet, "/api/v1/daos/"+testDaoID+"/slots/0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	slot := decode[api.SlotResponse](t, rec)
	assert.Equal(t, ledger.SlotFree, slot.State)
	assert.Contains(t, rec.Body.String(), `"state":"free"`)
}

func TestSubmitStatusCodes(t *testing.T) {
	ts := newTestServer(t)
	ts.setup(t)

	for _, tc := range []struct {
		name   string
		body   string
		status int
		reason string
	}{
		{
			name:   "validation rejection",
			body:   `{"sender":"alice","kind":"claim","amount":1}`,
			status: http.StatusConflict,
			reason: "InsufficientEntitlement",
		},
		{
			name:   "authorization rejection",
			body:   `{"sender":"mallory","kind":"update-data","name":"x"}`,
			status: http.StatusForbidden,
			reason: "Unauthorized",
		},
		{
			name:   "unknown field",
			body:   `{"sender":"alice","kind":"claim","bogus":1}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown kind",
			body:   `{"sender":"alice","kind":"mint"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "caller supplied time",
			body:   `{"sender":"owner","kind":"withdraw","amount":1,"time":1800000000}`,
			status: http.StatusBadRequest,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.submit(t, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			resp := decode[api.ErrorResponse](t, rec)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.reason, resp.Reason)
		})
	}

	rec := ts.do(
		t,
		http.MethodPost,
		"/api/v1/daos/missing/operations",
		`{"sender":"alice","kind":"opt-in"}`,
	)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.setup(t)
	for _, path := range []string{
		"/api/v1/daos/missing",
		"/api/v1/daos/missing/journal",
		"/api/v1/daos/" + testDaoID + "/investors/nobody",
		"/api/v1/daos/" + testDaoID + "/slots/42",
		"/api/v1/nothing",
	} {
		rec := ts.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestJournalPagination(t *testing.T) {
	ts := newTestServer(t)
	ts.setup(t)
	rec := ts.submit(t, `{"sender":"alice","kind":"claim","amount":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(
		t,
		http.MethodGet,
		"/api/v1/daos/"+testDaoID+"/journal?count=2&page=2",
		"",
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-Pagination-Count-Total"))
	assert.Equal(t, "3", rec.Header().Get("X-Pagination-Page-Total"))
	entries := decode[[]api.JournalEntryResponse](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "opt-in", entries[0].Kind)
	assert.Equal(t, "invest", entries[1].Kind)

	rec = ts.do(
		t,
		http.MethodGet,
		"/api/v1/daos/"+testDaoID+"/journal?count=1&order=desc",
		"",
	)
	require.Equal(t, http.StatusOK, rec.Code)
	entries = decode[[]api.JournalEntryResponse](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "rejected", entries[0].Outcome)
	assert.Equal(t, "validation", entries[0].RejectionKind)

	rec = ts.do(
		t,
		http.MethodGet,
		"/api/v1/daos/"+testDaoID+"/journal?order=sideways",
		"",
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDrainSplit(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/drain-split?balance=1000&fee_bp=30000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	split := decode[api.DrainSplitResponse](t, rec)
	assert.Equal(t, uint64(30), split.Platform)
	assert.Equal(t, uint64(970), split.Central)

	for _, query := range []string{
		"balance=abc&fee_bp=1",
		"balance=1",
		"balance=1&fee_bp=1000001",
	} {
		rec = ts.do(t, http.MethodGet, "/api/v1/drain-split?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.api.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") +
		"/api/v1/events?dao=" + testDaoID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Events for other DAOs are filtered out
	_, err = ts.engine.Submit(
		context.Background(),
		"other",
		ledger.Group{Sender: "owner", Op: ledger.CreateDao{}},
	)
	require.NoError(t, err)
	ts.mustSubmit(t, `{"sender":"owner","kind":"create-dao"}`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type event.EventType              `json:"type"`
		Data ledger.OperationAppliedEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ledger.OperationAppliedEventType, msg.Type)
	assert.Equal(t, testDaoID, msg.Data.DaoID)
	assert.Equal(t, "create-dao", msg.Data.Kind)
}

type nopLedger struct {
	api.Ledger
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a := api.New(api.Config{ListenAddress: "127.0.0.1:0"}, nopLedger{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	require.ErrorContains(t, a.Start(ctx), "already started")

	client := &http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
		Timeout:   5 * time.Second,
	}
	resp, err := client.Get("http://" + a.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx))
	assert.Empty(t, a.Addr())
	require.NoError(t, a.Stop(stopCtx))
}
