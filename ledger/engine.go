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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/capidao/capiledger/database"
	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/escrow"
	"github.com/capidao/capiledger/event"
	"github.com/capidao/capiledger/fixedpoint"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPlatformFeeBP = 30_000 // 3%
	tracerName           = "github.com/capidao/capiledger/ledger"
)

type EngineConfig struct {
	Database        *database.Database
	EventBus        *event.EventBus
	Logger          *slog.Logger
	PromRegistry    prometheus.Registerer
	Clock           Clock
	PlatformFeeBP   uint64
	WithdrawalSlots uint32
}

// Engine is the host side of the ledger. It serializes submissions per DAO,
// applies them with Apply and persists the results.
type Engine struct {
	config  EngineConfig
	db      *database.Database
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics engineMetrics
	locksMu sync.Mutex
	locks   map[string]*daoLock
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Database == nil {
		return nil, errors.New("engine requires a database")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.PlatformFeeBP > fixedpoint.Scale {
		return nil, fmt.Errorf(
			"platform fee %d exceeds %d",
			cfg.PlatformFeeBP,
			fixedpoint.Scale,
		)
	}
	if cfg.WithdrawalSlots == 0 {
		cfg.WithdrawalSlots = DefaultWithdrawalSlots
	}
	if cfg.WithdrawalSlots > MaxWithdrawalSlots {
		return nil, fmt.Errorf(
			"withdrawal slots %d exceeds %d",
			cfg.WithdrawalSlots,
			MaxWithdrawalSlots,
		)
	}
	e := &Engine{
		config: cfg,
		db:     cfg.Database,
		logger: cfg.Logger.With("component", "ledger"),
		tracer: otel.Tracer(tracerName),
		locks:  make(map[string]*daoLock),
	}
	e.metrics.init(cfg.PromRegistry)
	daos, err := e.db.GetDaos(nil)
	if err != nil {
		return nil, fmt.Errorf("load dao summaries: %w", err)
	}
	e.metrics.daos.Set(float64(len(daos)))
	for _, dao := range daos {
		e.metrics.lockedShares.WithLabelValues(dao.DaoID).
			Set(float64(dao.LockedShares))
		e.metrics.centralTotal.WithLabelValues(dao.DaoID).
			Set(float64(dao.CentralTotal))
	}
	return e, nil
}

type daoLock struct {
	sync.Mutex
	refs int
}

// lockDao serializes work on one DAO. Entries are dropped once nobody holds
// or waits for them, so ids that never become a DAO leave nothing behind.
func (e *Engine) lockDao(daoID string) func() {
	e.locksMu.Lock()
	l, ok := e.locks[daoID]
	if !ok {
		l = &daoLock{}
		e.locks[daoID] = l
	}
	l.refs++
	e.locksMu.Unlock()
	l.Lock()
	return func() {
		l.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, daoID)
		}
		e.locksMu.Unlock()
	}
}

// Submit validates and applies one group to a DAO and persists the result.
// Groups for the same DAO are applied one at a time in arrival order.
// Rejections are journaled and returned unchanged; the stored state is not
// touched. Group time always comes from the configured clock and must not
// precede the time of the last applied group.
func (e *Engine) Submit(
	ctx context.Context,
	daoID string,
	group Group,
) (*LedgerState, error) {
	kind := "none"
	if group.Op != nil {
		kind = group.Op.Kind().String()
	}
	ctx, span := e.tracer.Start(
		ctx,
		"ledger.Submit",
		trace.WithAttributes(
			attribute.String("dao.id", daoID),
			attribute.String("operation.kind", kind),
		),
	)
	defer span.End()
	if daoID == "" {
		err := errors.New("empty dao id")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	unlock := e.lockDao(daoID)
	defer unlock()
	start := time.Now()

	callerTime := group.Time
	group.Time = e.config.Clock.Now().Unix()
	if op, ok := group.Op.(CreateDao); ok {
		// Identity and platform parameters belong to the host
		op.ID = daoID
		op.PlatformFeeBP = e.config.PlatformFeeBP
		op.Slots = e.config.WithdrawalSlots
		group.Op = op
	}

	state, err := e.loadState(daoID, nil)
	if err != nil && !errors.Is(err, database.ErrDaoNotFound) {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	var next *LedgerState
	applyErr := checkGroupTime(state, callerTime, group.Time)
	if applyErr == nil {
		next, applyErr = Apply(state, group)
	}
	if applyErr != nil {
		e.recordRejection(ctx, daoID, state, group, applyErr)
		span.SetStatus(codes.Error, applyErr.Error())
		return nil, applyErr
	}
	if err := e.persist(next, group); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("persist dao %q: %w", daoID, err)
	}
	e.metrics.applied.WithLabelValues(kind).Inc()
	e.metrics.applyLatency.Observe(time.Since(start).Seconds())
	e.metrics.lockedShares.WithLabelValues(daoID).
		Set(float64(next.Dao.LockedShares))
	e.metrics.centralTotal.WithLabelValues(daoID).
		Set(float64(next.Dao.CentralReceivedTotal))
	if state == nil {
		e.metrics.daos.Inc()
	}
	span.SetAttributes(attribute.Int64("ledger.seq", int64(next.Seq))) //nolint:gosec
	e.logger.Debug(
		"applied operation",
		"dao", daoID,
		"kind", kind,
		"sender", group.Sender,
		"seq", next.Seq,
	)
	e.publish(
		OperationAppliedEventType,
		OperationAppliedEvent{
			DaoID:  daoID,
			Kind:   kind,
			Sender: group.Sender,
			Seq:    next.Seq,
			Amount: journalAmount(group),
			Time:   group.Time,
		},
	)
	return next, nil
}

func checkGroupTime(state *LedgerState, callerTime, now int64) error {
	if callerTime != 0 {
		return reject(
			ErrInvalidParameter,
			"group time %d is assigned by the host",
			callerTime,
		)
	}
	if state != nil && now < state.UpdatedAt {
		return reject(
			ErrInvalidParameter,
			"clock time %d precedes last applied group at %d",
			now,
			state.UpdatedAt,
		)
	}
	return nil
}

func journalAmount(group Group) uint64 {
	if group.Op == nil {
		return 0
	}
	return Amount(group.Op)
}

func (e *Engine) persist(next *LedgerState, group Group) error {
	data, err := EncodeState(next)
	if err != nil {
		return err
	}
	txn := e.db.Transaction(true)
	return txn.Do(func(txn *database.Txn) error {
		if err := e.db.SetDaoState(next.ID, data, txn); err != nil {
			return err
		}
		if err := e.db.SetDao(daoSummary(next), txn); err != nil {
			return err
		}
		if err := e.db.SetInvestors(next.ID, investorRows(next), txn); err != nil {
			return err
		}
		return e.db.AddJournalEntry(
			journalEntry(next.ID, next.Seq, group, nil),
			txn,
		)
	})
}

func (e *Engine) recordRejection(
	ctx context.Context,
	daoID string,
	state *LedgerState,
	group Group,
	rejectErr error,
) {
	var seq uint64
	if state != nil {
		seq = state.Seq
	}
	kind := "none"
	if group.Op != nil {
		kind = group.Op.Kind().String()
	}
	reason := "unknown"
	detail := ""
	var rejErr *RejectionError
	if errors.As(rejectErr, &rejErr) {
		reason = string(rejErr.Reason)
		detail = rejErr.Detail
	}
	e.metrics.rejected.WithLabelValues(kind, reason).Inc()
	if IsFatal(rejectErr) {
		e.logger.ErrorContext(
			ctx,
			"arithmetic fault while applying operation",
			"dao", daoID,
			"kind", kind,
			"sender", group.Sender,
			"seq", seq,
			"error", rejectErr,
		)
	} else {
		e.logger.Debug(
			"rejected operation",
			"dao", daoID,
			"kind", kind,
			"sender", group.Sender,
			"reason", reason,
		)
	}
	if _, create := group.Op.(CreateDao); state == nil && !create {
		// No journal for a DAO that does not exist
		return
	}
	txn := database.NewMetadataOnlyTxn(e.db, true)
	err := txn.Do(func(txn *database.Txn) error {
		return e.db.AddJournalEntry(
			journalEntry(daoID, seq, group, rejectErr),
			txn,
		)
	})
	if err != nil {
		e.logger.Warn(
			"failed to journal rejected operation",
			"dao", daoID,
			"error", err,
		)
	}
	e.publish(
		OperationRejectedEventType,
		OperationRejectedEvent{
			DaoID:         daoID,
			Kind:          kind,
			Sender:        group.Sender,
			Reason:        reason,
			RejectionKind: KindOf(rejectErr).String(),
			Detail:        detail,
			Seq:           seq,
			Amount:        journalAmount(group),
			Time:          group.Time,
			Fatal:         IsFatal(rejectErr),
		},
	)
}

func (e *Engine) publish(eventType event.EventType, data any) {
	if e.config.EventBus == nil {
		return
	}
	// Subscribers run outside the per-DAO lock
	e.config.EventBus.PublishAsync(event.NewEvent(eventType, data))
}

func (e *Engine) loadState(daoID string, txn *database.Txn) (*LedgerState, error) {
	data, err := e.db.GetDaoState(daoID, txn)
	if err != nil {
		return nil, err
	}
	state, err := DecodeState(data)
	if err != nil {
		return nil, fmt.Errorf("decode state for dao %q: %w", daoID, err)
	}
	return state, nil
}

// State returns the latest persisted state of a DAO
func (e *Engine) State(daoID string) (*LedgerState, error) {
	return e.loadState(daoID, nil)
}

// ListDaos returns the summaries of all known DAOs ordered by id
func (e *Engine) ListDaos() ([]models.Dao, error) {
	return e.db.GetDaos(nil)
}

// Investor returns an investor account with its entitlement and claimable
// amount
func (e *Engine) Investor(daoID string, addr Address) (InvestorView, error) {
	state, err := e.loadState(daoID, nil)
	if err != nil {
		return InvestorView{}, err
	}
	return InvestorViewOf(state, addr)
}

// Investors returns the investor read model of a DAO
func (e *Engine) Investors(daoID string) ([]models.Investor, error) {
	return e.db.GetInvestors(daoID, nil)
}

func (e *Engine) Entitlement(daoID string, addr Address) (uint64, error) {
	view, err := e.Investor(daoID, addr)
	if err != nil {
		return 0, err
	}
	return view.Entitlement, nil
}

func (e *Engine) Claimable(daoID string, addr Address) (uint64, error) {
	view, err := e.Investor(daoID, addr)
	if err != nil {
		return 0, err
	}
	return view.Claimable, nil
}

func (e *Engine) VoteStatus(daoID string, slot uint32) (VoteStatus, error) {
	state, err := e.loadState(daoID, nil)
	if err != nil {
		return VoteStatus{}, err
	}
	return VoteStatusOf(state, slot)
}

// Balance returns the balance of an escrow account in the given asset
func (e *Engine) Balance(
	daoID string,
	account escrow.Account,
	asset escrow.AssetID,
) (uint64, error) {
	state, err := e.loadState(daoID, nil)
	if err != nil {
		return 0, err
	}
	return state.Escrow.Balance(account, asset), nil
}

// Journal returns a page of the operation journal of a DAO and the total
// number of entries
func (e *Engine) Journal(
	daoID string,
	limit int,
	offset int,
	descending bool,
) ([]models.JournalEntry, int64, error) {
	return e.db.GetJournal(
		database.JournalQuery{
			DaoID:      daoID,
			Limit:      limit,
			Offset:     offset,
			Descending: descending,
		},
		nil,
	)
}

// Verify decodes every stored state record and checks its invariants
func (e *Engine) Verify(ctx context.Context) error {
	_, span := e.tracer.Start(ctx, "ledger.Verify")
	defer span.End()
	count := 0
	err := e.db.IterateDaoStates(nil, func(daoID string, data []byte) error {
		state, err := DecodeState(data)
		if err != nil {
			return fmt.Errorf("decode state for dao %q: %w", daoID, err)
		}
		if state.ID != daoID {
			return fmt.Errorf("state record for dao %q carries id %q", daoID, state.ID)
		}
		if err := CheckInvariants(state); err != nil {
			return fmt.Errorf("dao %q: %w", daoID, err)
		}
		count++
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	e.logger.Info(
		fmt.Sprintf("verified %d dao state records", count),
	)
	return nil
}
