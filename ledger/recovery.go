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
	"fmt"

	"github.com/capidao/capiledger/database"
	"go.opentelemetry.io/otel/codes"
)

// RebuildReadModels rewrites the DAO summaries and investor rows from the
// authoritative state records. It is used to recover from a commit that
// reached the blob store but not the metadata store. Journal rows of such a
// commit are not recovered.
func (e *Engine) RebuildReadModels(ctx context.Context) error {
	_, span := e.tracer.Start(ctx, "ledger.RebuildReadModels")
	defer span.End()
	states := make(map[string]*LedgerState)
	var order []string
	err := e.db.IterateDaoStates(nil, func(daoID string, data []byte) error {
		state, err := DecodeState(data)
		if err != nil {
			return fmt.Errorf("decode state for dao %q: %w", daoID, err)
		}
		states[daoID] = state
		order = append(order, daoID)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	// A coordinated write refreshes the commit timestamp in both stores
	txn := e.db.Transaction(true)
	err = txn.Do(func(txn *database.Txn) error {
		for _, daoID := range order {
			state := states[daoID]
			data, err := EncodeState(state)
			if err != nil {
				return err
			}
			if err := e.db.SetDaoState(daoID, data, txn); err != nil {
				return err
			}
			if err := e.db.SetDao(daoSummary(state), txn); err != nil {
				return err
			}
			if err := e.db.SetInvestors(daoID, investorRows(state), txn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("rebuild read models: %w", err)
	}
	e.metrics.daos.Set(float64(len(order)))
	e.logger.Info(
		fmt.Sprintf("rebuilt read models for %d daos", len(order)),
	)
	return nil
}
