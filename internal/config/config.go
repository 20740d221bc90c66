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


package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/capidao/capiledger/database/plugin"
	"github.com/capidao/capiledger/fixedpoint"
	"github.com/capidao/capiledger/ledger"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "capiledger.config"

const (
	DefaultBlobPlugin      = "badger"
	DefaultMetadataPlugin  = "sqlite"
	DefaultDatabasePath    = ".capiledger"
	DefaultShutdownTimeout = "30s"
	DefaultAPIPort         = 8080
	DefaultMetricsPort     = 12799

	envPrefix = "capiledger"
)

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	DatabasePath    string `yaml:"databasePath"    split_words:"true"`
	BlobPlugin      string `yaml:"blobPlugin"      envconfig:"CAPILEDGER_DATABASE_BLOB_PLUGIN"`
	MetadataPlugin  string `yaml:"metadataPlugin"  envconfig:"CAPILEDGER_DATABASE_METADATA_PLUGIN"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
	// A zero port disables the listener
	APIPort         uint   `yaml:"apiPort"         split_words:"true"`
	MetricsPort     uint   `yaml:"metricsPort"     split_words:"true"`
	PlatformFeeBP   uint64 `yaml:"platformFeeBp"   envconfig:"PLATFORM_FEE_BP"`
	WithdrawalSlots uint32 `yaml:"withdrawalSlots" split_words:"true"`
	Tracing         bool   `yaml:"tracing"`
	TracingStdout   bool   `yaml:"tracingStdout"   split_words:"true"`

	// Credentials used by snapshot exports
	SnapshotGcsCredentialsFile string `yaml:"snapshotGcsCredentialsFile" split_words:"true"`
	SnapshotS3Region           string `yaml:"snapshotS3Region"           split_words:"true"`
}

// DefaultConfig returns a config populated with default values
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    DefaultDatabasePath,
		BlobPlugin:      DefaultBlobPlugin,
		MetadataPlugin:  DefaultMetadataPlugin,
		BindAddr:        "0.0.0.0",
		ShutdownTimeout: DefaultShutdownTimeout,
		APIPort:         DefaultAPIPort,
		MetricsPort:     DefaultMetricsPort,
		PlatformFeeBP:   ledger.DefaultPlatformFeeBP,
		WithdrawalSlots: ledger.DefaultWithdrawalSlots,
	}
}

// Validate checks the config for values the node cannot run with
func (c *Config) Validate() error {
	if c.PlatformFeeBP > fixedpoint.Scale {
		return fmt.Errorf(
			"invalid platformFeeBp: %d (must not exceed %d)",
			c.PlatformFeeBP,
			fixedpoint.Scale,
		)
	}
	if c.WithdrawalSlots == 0 ||
		c.WithdrawalSlots > ledger.MaxWithdrawalSlots {
		return fmt.Errorf(
			"invalid withdrawalSlots: %d (must be between 1 and %d)",
			c.WithdrawalSlots,
			ledger.MaxWithdrawalSlots,
		)
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// ShutdownTimeoutDuration parses the configured shutdown timeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	timeout, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid shutdownTimeout %q: %w",
			c.ShutdownTimeout,
			err,
		)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf(
			"invalid shutdownTimeout %q: must be positive",
			c.ShutdownTimeout,
		)
	}
	return timeout, nil
}

// APIListenAddress returns the listen address of the HTTP API, or an empty
// string when it is disabled
func (c *Config) APIListenAddress() string {
	return listenAddress(c.BindAddr, c.APIPort)
}

// MetricsListenAddress returns the listen address of the metrics server, or
// an empty string when it is disabled
func (c *Config) MetricsListenAddress() string {
	return listenAddress(c.BindAddr, c.MetricsPort)
}

func listenAddress(host string, port uint) string {
	if port == 0 {
		return ""
	}
	return net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
}

// LoadConfig builds the config from defaults, the config file (if any) and
// the environment, in that order of precedence
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loadConfigFile(cfg, configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	// Process plugin environment variables
	if err := plugin.ProcessEnvVars(); err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for ~/.capiledger/capiledger.yaml, then
// /etc/capiledger/capiledger.yaml
func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".capiledger", "capiledger.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/capiledger/capiledger.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

func loadConfigFile(cfg *Config, configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if tempCfg.Config != nil {
		// Overlay config section values onto existing defaults
		configBytes, err := yaml.Marshal(tempCfg.Config)
		if err != nil {
			return fmt.Errorf("error re-marshalling config: %w", err)
		}
		if err := yaml.Unmarshal(configBytes, cfg); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else if err := yaml.Unmarshal(buf, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	if tempCfg.Metadata != nil {
		pluginConfig["metadata"] = tempCfg.Metadata
	}
	if tempCfg.Database != nil {
		mergePluginSection(
			pluginConfig,
			"blob",
			tempCfg.Database.Blob,
			&cfg.BlobPlugin,
		)
		mergePluginSection(
			pluginConfig,
			"metadata",
			tempCfg.Database.Metadata,
			&cfg.MetadataPlugin,
		)
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf("error processing plugin config: %w", err)
		}
	}
	return nil
}

// mergePluginSection folds a database.<type> section into the plugin config.
// The section's "plugin" key selects the plugin, every other key holds the
// options of the plugin it names.
func mergePluginSection(
	pluginConfig map[string]map[string]map[string]any,
	pluginType string,
	section map[string]any,
	pluginName *string,
) {
	if section == nil {
		return
	}
	if name, ok := section["plugin"].(string); ok {
		*pluginName = name
	}
	typeConfig := make(map[string]map[string]any)
	for k, v := range section {
		if k == "plugin" {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			typeConfig[k] = val
		case map[any]any:
			stringAnyMap := make(map[string]any, len(val))
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			typeConfig[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				pluginType,
				k,
				v,
			)
		}
	}
	if pluginConfig[pluginType] == nil {
		pluginConfig[pluginType] = typeConfig
		return
	}
	maps.Copy(pluginConfig[pluginType], typeConfig)
}

// ListPlugins prints the registered plugins of the requested type when name
// is "list" and returns ErrPluginListRequested
func ListPlugins(pluginType plugin.PluginType, name string) error {
	if name != "list" {
		return nil
	}
	fmt.Printf("Available %s plugins:\n", plugin.PluginTypeName(pluginType))
	for _, p := range plugin.GetPlugins(pluginType) {
		fmt.Printf("  %s: %s\n", p.Name, p.Description)
	}
	return ErrPluginListRequested
}
