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


package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/capidao/capiledger/event"
	"github.com/gorilla/mux"
)

const DefaultListenAddress = ":8080"

type Config struct {
	ListenAddress string
}

// API is the HTTP front end of the ledger engine
type API struct {
	config     Config
	logger     *slog.Logger
	ledger     Ledger
	eventBus   *event.EventBus
	router     *mux.Router
	httpServer *http.Server
	mu         sync.Mutex
}

func New(
	cfg Config,
	ledger Ledger,
	eventBus *event.EventBus,
	logger *slog.Logger,
) *API {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	a := &API{
		config:   cfg,
		logger:   logger.With("component", "api"),
		ledger:   ledger,
		eventBus: eventBus,
	}
	a.router = a.newRouter()
	return a
}

func (a *API) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/daos", a.handleListDaos).Methods(http.MethodGet)
	v1.HandleFunc("/daos/{id}", a.handleGetDao).Methods(http.MethodGet)
	v1.HandleFunc(
		"/daos/{id}/operations",
		a.handleSubmit,
	).Methods(http.MethodPost)
	v1.HandleFunc(
		"/daos/{id}/investors/{addr}",
		a.handleGetInvestor,
	).Methods(http.MethodGet)
	v1.HandleFunc(
		"/daos/{id}/slots/{slot:[0-9]+}",
		a.handleGetSlot,
	).Methods(http.MethodGet)
	v1.HandleFunc(
		"/daos/{id}/journal",
		a.handleGetJournal,
	).Methods(http.MethodGet)
	v1.HandleFunc("/drain-split", a.handleDrainSplit).Methods(http.MethodGet)
	if a.eventBus != nil {
		v1.HandleFunc("/events", a.handleEvents).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found", "no such endpoint")
	})
	return r
}

// Handler returns the HTTP handler serving the API
func (a *API) Handler() http.Handler {
	return a.router
}

// Addr returns the address the server is listening on, or an empty string
// if it is not running
func (a *API) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.httpServer == nil {
		return ""
	}
	return a.httpServer.Addr
}

// Start starts the HTTP server in a background goroutine. The server is
// shut down when ctx is cancelled.
func (a *API) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", a.config.ListenAddress)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           a.router,
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("API server error", "error", err)
		}
	}()
	a.logger.Info("API listener started on " + server.Addr)

	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			30*time.Second,
		)
		defer cancel()
		//nolint:contextcheck
		if err := a.Stop(shutdownCtx); err != nil {
			a.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (a *API) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	a.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}
