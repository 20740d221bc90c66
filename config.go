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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/capidao/capiledger/fixedpoint"
	"github.com/capidao/capiledger/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	clock            ledger.Clock
	dataDir          string
	blobPlugin       string
	metadataPlugin   string
	apiListenAddress string
	platformFeeBP    uint64
	withdrawalSlots  uint32
	tracing          bool
	tracingStdout    bool
	shutdownTimeout  time.Duration
}

func (c *Config) validate() error {
	if c.platformFeeBP > fixedpoint.Scale {
		return fmt.Errorf(
			"platform fee %d exceeds %d",
			c.platformFeeBP,
			fixedpoint.Scale,
		)
	}
	if c.withdrawalSlots == 0 {
		return errors.New("at least one withdrawal slot is required")
	}
	if c.withdrawalSlots > ledger.MaxWithdrawalSlots {
		return fmt.Errorf(
			"withdrawal slots %d exceeds %d",
			c.withdrawalSlots,
			ledger.MaxWithdrawalSlots,
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new node config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:          slog.New(slog.DiscardHandler),
		platformFeeBP:   ledger.DefaultPlatformFeeBP,
		withdrawalSlots: ledger.DefaultWithdrawalSlots,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithLogger specifies the logger to use. The default is to discard all logs
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. By default, no metrics are
// collected
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithAPIListenAddress specifies the listen address of the HTTP API. An empty value disables it
func WithAPIListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithPlatformFeeBP specifies the platform fee applied to newly created DAOs, expressed over fixedpoint.Scale
func WithPlatformFeeBP(feeBP uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.platformFeeBP = feeBP
	}
}

// WithWithdrawalSlots specifies the number of withdrawal slots of newly created DAOs
func WithWithdrawalSlots(slots uint32) ConfigOptionFunc {
	return func(c *Config) {
		c.withdrawalSlots = slots
	}
}

// WithClock specifies the clock used to stamp operations submitted without a time
func WithClock(clock ledger.Clock) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies how long a graceful shutdown may take
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
