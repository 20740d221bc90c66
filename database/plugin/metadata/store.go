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


package metadata

import (
	"fmt"
	"log/slog"

	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/database/plugin"
	"github.com/capidao/capiledger/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type MetadataStore interface {
	plugin.Plugin

	// Database
	Close() error
	DB() *gorm.DB
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(int64, types.Txn) error
	Transaction() types.Txn

	// DAO summaries
	SetDao(*models.Dao, types.Txn) error
	GetDao(
		string, // daoID
		types.Txn,
	) (*models.Dao, error)
	GetDaos(types.Txn) ([]models.Dao, error)

	// Investor read model
	SetInvestors(
		string, // daoID
		[]models.Investor,
		types.Txn,
	) error
	GetInvestor(
		string, // daoID
		string, // address
		types.Txn,
	) (*models.Investor, error)
	GetInvestors(
		string, // daoID
		types.Txn,
	) ([]models.Investor, error)

	// Operation journal
	AddJournalEntry(*models.JournalEntry, types.Txn) error
	GetJournalEntries(
		string, // daoID
		int, // limit
		int, // offset
		bool, // descending
		types.Txn,
	) ([]models.JournalEntry, error)
	CountJournalEntries(
		string, // daoID
		types.Txn,
	) (int64, error)
}

// New returns the started metadata plugin selected by name
func New(
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	p, err := plugin.StartPlugin(
		plugin.PluginTypeMetadata,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
