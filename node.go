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


package capiledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/capidao/capiledger/api"
	"github.com/capidao/capiledger/database"
	"github.com/capidao/capiledger/event"
	"github.com/capidao/capiledger/ledger"
)

type Node struct {
	config        Config
	eventBus      *event.EventBus
	db            *database.Database
	engine        *ledger.Engine
	api           *api.API
	apiCancel     context.CancelFunc
	shutdownFuncs []func(context.Context) error
	ready         chan struct{}
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	return n, nil
}

// Ready is closed once Run has opened the database and started the API
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Engine returns the ledger engine. It is only valid after Ready is closed.
func (n *Node) Engine() *ledger.Engine {
	return n.engine
}

// APIAddr returns the address of the HTTP API, or an empty string if it is
// disabled. It is only valid after Ready is closed.
func (n *Node) APIAddr() string {
	if n.api == nil {
		return ""
	}
	return n.api.Addr()
}

// Run opens the database, starts the ledger engine and the HTTP API, and
// blocks until Stop is called
func (n *Node) Run() error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	dbNeedsRecovery := false
	db, err := database.New(&database.Config{
		DataDir:        n.config.dataDir,
		BlobPlugin:     n.config.blobPlugin,
		MetadataPlugin: n.config.metadataPlugin,
		Logger:         n.config.logger,
		PromRegistry:   n.config.promRegistry,
	})
	if db == nil {
		if err == nil {
			err = errors.New("empty database returned")
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	if err != nil {
		var dbErr database.CommitTimestampError
		if !errors.As(err, &dbErr) {
			return fmt.Errorf("failed to open database: %w", err)
		}
		n.config.logger.Warn(
			"database initialization error, needs recovery",
			"error",
			err,
		)
		dbNeedsRecovery = true
	}
	// Load ledger engine
	engine, err := ledger.NewEngine(ledger.EngineConfig{
		Database:        n.db,
		EventBus:        n.eventBus,
		Logger:          n.config.logger,
		PromRegistry:    n.config.promRegistry,
		Clock:           n.config.clock,
		PlatformFeeBP:   n.config.platformFeeBP,
		WithdrawalSlots: n.config.withdrawalSlots,
	})
	if err != nil {
		return fmt.Errorf("failed to load ledger engine: %w", err)
	}
	n.engine = engine
	// Run DB recovery if needed
	if dbNeedsRecovery {
		if err := n.engine.RebuildReadModels(context.Background()); err != nil {
			return fmt.Errorf("failed to recover database: %w", err)
		}
	}
	// Start API
	if n.config.apiListenAddress != "" {
		n.api = api.New(
			api.Config{ListenAddress: n.config.apiListenAddress},
			n.engine,
			n.eventBus,
			n.config.logger,
		)
		apiCtx, apiCancel := context.WithCancel(context.Background())
		n.apiCancel = apiCancel
		if err := n.api.Start(apiCtx); err != nil {
			return err
		}
	}
	close(n.ready)

	// Wait for shutdown signal
	<-n.done
	return nil
}

// Stop shuts the node down and makes Run return. Call it once Ready is closed
// or Run has returned an error.
func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}
	if n.apiCancel != nil {
		n.apiCancel()
	}

	// Phase 2: Close subscribers so open event streams finish
	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	// Phase 3: Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	// Phase 4: Close database
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
