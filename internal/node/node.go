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


package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/capidao/capiledger"
	"github.com/capidao/capiledger/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run starts the ledger node and blocks until SIGINT or SIGTERM is received
func Run(cfg *config.Config, logger *slog.Logger) error {
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()
	return RunContext(
		signalCtx,
		cfg,
		logger,
		prometheus.DefaultRegisterer,
		prometheus.DefaultGatherer,
	)
}

// RunContext starts the ledger node with metrics registered on reg and
// served from gatherer, and blocks until ctx is cancelled or the node fails
func RunContext(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	if err := cfg.Validate(); err != nil {
		return err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}

	n, err := capiledger.New(
		capiledger.NewConfig(
			capiledger.WithLogger(logger),
			capiledger.WithDatabasePath(cfg.DatabasePath),
			capiledger.WithBlobPlugin(cfg.BlobPlugin),
			capiledger.WithMetadataPlugin(cfg.MetadataPlugin),
			capiledger.WithAPIListenAddress(cfg.APIListenAddress()),
			capiledger.WithPlatformFeeBP(cfg.PlatformFeeBP),
			capiledger.WithWithdrawalSlots(cfg.WithdrawalSlots),
			capiledger.WithTracing(cfg.Tracing),
			capiledger.WithTracingStdout(cfg.TracingStdout),
			capiledger.WithShutdownTimeout(shutdownTimeout),
			capiledger.WithPrometheusRegistry(reg),
		),
	)
	if err != nil {
		return err
	}

	// Metrics listener
	var metricsServer *http.Server
	if addr := cfg.MetricsListenAddress(); addr != "" {
		metricsServer, err = startMetricsServer(addr, gatherer, logger)
		if err != nil {
			return err
		}
	}
	stopMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	defer stopMetrics()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- n.Run()
	}()

	// Wait for startup to finish so Stop never races with it
	select {
	case <-n.Ready():
		logger.Info("ledger node started", "component", "node")
	case err := <-errChan:
		logger.Error("node error", "error", err)
		if stopErr := n.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		if err := n.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		// Wait for Run to return
		if err := <-errChan; err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errChan:
		if err != nil {
			logger.Error("node error", "error", err)
		}
		if stopErr := n.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
			err = errors.Join(err, stopErr)
		}
		return err
	}
}

func startMetricsServer(
	addr string,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	logger.Info(
		"serving prometheus metrics on "+server.Addr,
		"component",
		"node",
	)
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error(
				fmt.Sprintf("metrics listener failed: %s", err),
				"component", "node",
			)
		}
	}()
	return server, nil
}
