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


package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/capidao/capiledger/database"
	"github.com/capidao/capiledger/internal/config"
	"github.com/capidao/capiledger/ledger"
	"gopkg.in/yaml.v3"
)

// openLedger opens the configured database and a ledger engine on top of it.
// The returned function closes the database.
func openLedger(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*ledger.Engine, *database.Database, func(), error) {
	db, err := database.New(&database.Config{
		DataDir:        cfg.DatabasePath,
		Logger:         logger,
		BlobPlugin:     cfg.BlobPlugin,
		MetadataPlugin: cfg.MetadataPlugin,
	})
	if db == nil {
		if err == nil {
			err = errors.New("empty database returned")
		}
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	needsRecovery := false
	if err != nil {
		var dbErr database.CommitTimestampError
		if !errors.As(err, &dbErr) {
			closeFn()
			return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Warn(
			"database initialization error, needs recovery",
			"error",
			err,
		)
		needsRecovery = true
	}
	engine, err := ledger.NewEngine(ledger.EngineConfig{
		Database:        db,
		Logger:          logger,
		PlatformFeeBP:   cfg.PlatformFeeBP,
		WithdrawalSlots: cfg.WithdrawalSlots,
	})
	if err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("failed to load ledger engine: %w", err)
	}
	if needsRecovery {
		if err := engine.RebuildReadModels(ctx); err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("failed to recover database: %w", err)
		}
	}
	return engine, db, closeFn, nil
}

// writeYAML writes v as YAML, using the JSON field names of its types
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	// Keep integers exact
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

type slotView struct {
	Index uint32 `json:"index"`
	ledger.VoteStatus
}

type balanceView struct {
	Account string `json:"account"`
	Asset   uint64 `json:"asset"`
	Amount  uint64 `json:"amount"`
}

type stateView struct {
	ID        string                `json:"id"`
	Seq       uint64                `json:"seq"`
	Dao       ledger.DaoAccount     `json:"dao"`
	Investors []ledger.InvestorView `json:"investors"`
	Slots     []slotView            `json:"slots"`
	Balances  []balanceView         `json:"balances"`
}

func newStateView(state *ledger.LedgerState) (stateView, error) {
	ret := stateView{
		ID:  state.ID,
		Seq: state.Seq,
		Dao: state.Dao,
	}
	for _, addr := range state.InvestorAddresses() {
		view, err := ledger.InvestorViewOf(state, addr)
		if err != nil {
			return stateView{}, err
		}
		ret.Investors = append(ret.Investors, view)
	}
	for i := range state.Slots {
		ret.Slots = append(ret.Slots, slotView{
			Index:      uint32(i), // #nosec G115
			VoteStatus: ledger.SlotVoteStatus(&state.Slots[i]),
		})
	}
	if state.Escrow != nil {
		for _, entry := range state.Escrow.Entries() {
			ret.Balances = append(ret.Balances, balanceView{
				Account: entry.Account.String(),
				Asset:   uint64(entry.Asset),
				Amount:  entry.Amount,
			})
		}
	}
	return ret, nil
}
