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


package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/capidao/capiledger/database"
)

// RecordExtension is appended to the escaped DAO id to name a record
const RecordExtension = ".cbor"

type Result struct {
	Records int
	Bytes   int
}

// RecordName returns the object name used for the state record of a DAO
func RecordName(daoID string) string {
	return url.PathEscape(daoID) + RecordExtension
}

// Export writes every stored DAO state record to target
func Export(
	ctx context.Context,
	db *database.Database,
	target Target,
	logger *slog.Logger,
) (Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "snapshot")
	var ret Result
	err := db.IterateDaoStates(nil, func(daoID string, data []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := RecordName(daoID)
		if err := target.Write(ctx, name, data); err != nil {
			return fmt.Errorf("export dao %q: %w", daoID, err)
		}
		logger.Debug(
			"exported state record",
			"dao", daoID,
			"name", name,
			"bytes", len(data),
		)
		ret.Records++
		ret.Bytes += len(data)
		return nil
	})
	if err != nil {
		return ret, err
	}
	logger.Info(
		fmt.Sprintf(
			"exported %d state records (%d bytes) to %s",
			ret.Records,
			ret.Bytes,
			target,
		),
	)
	return ret, nil
}
