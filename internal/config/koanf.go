// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/meshcast/config.yaml",
	"/etc/meshcast/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			Host:              "0.0.0.0",
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			Environment:       "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Broker: BrokerConfig{
			RetryInterval:  5 * time.Second,
			ConnectTimeout: 10 * time.Second,
			Topics:         []string{"msh/#"},
		},
		Cache: CacheConfig{
			PrimaryCapacity: 10000,
			PrimaryTTL:      10 * time.Minute,
			HistoryCapacity: 500,
			HistoryTTL:      30 * time.Second,
			JanitorInterval: time.Minute,
			WarmUpNodes:     500,
		},
		Coalesce: CoalesceConfig{
			FlushInterval: 50 * time.Millisecond,
			CommandQueue:  8192,
		},
		Broadcast: BroadcastConfig{
			CompressionThreshold:  1024,
			CompressionMinBenefit: 0.10,
			CompressionLevel:      6,
			HeartbeatInterval:     30 * time.Second,
			QueueSize:             256,
		},
		Store: StoreConfig{
			Backend: StoreBackendBadger,
			Badger: BadgerConfig{
				Path:        "/data/meshcast",
				Compression: true,
				Retention:   30 * 24 * time.Hour,
				GCInterval:  10 * time.Minute,
				GCRatio:     0.5,
			},
			Postgres: PostgresConfig{
				MaxConns:         10,
				MinConns:         1,
				MaxConnLifetime:  time.Hour,
				StatementTimeout: 5 * time.Second,
			},
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Decrypt: DecryptConfig{
			Enabled:     true,
			ChannelKeys: map[string]string{},
		},
		Pipeline: PipelineConfig{
			QueueSize:     4096,
			Workers:       4,
			WriteTimeout:  5 * time.Second,
			DedupWindow:   10 * time.Minute,
			DedupCapacity: 50000,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// HTTP_PORT -> server.port, FLUSH_INTERVAL -> coalesce.flush_interval
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processMapFields(k); err != nil {
		return nil, fmt.Errorf("failed to process map fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
	"broker.topics",
}

// mapConfigPaths defines which config paths are parsed from comma-separated key=value pairs
var mapConfigPaths = []string{
	"decrypt.channel_keys",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := splitList(strVal)
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// processMapFields converts "a=1,b=2" strings to maps for known map fields.
// Values may themselves contain "=" (base64 padding); only the first one splits.
func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		result := make(map[string]any)
		for _, item := range splitList(strVal) {
			key, value, found := strings.Cut(item, "=")
			key = strings.TrimSpace(key)
			if !found || key == "" {
				return fmt.Errorf("%s: entry %q is not key=value", path, item)
			}
			result[key] = strings.TrimSpace(value)
		}
		// Delete first so the string value does not shadow the map.
		k.Delete(path)
		if len(result) == 0 {
			continue
		}
		if err := k.Set(path, result); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server mappings
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_read_timeout":     "server.read_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",
	"environment":           "server.environment",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Broker mappings
	"broker_url":             "broker.url",
	"broker_topics":          "broker.topics",
	"broker_username":        "broker.username",
	"broker_password":        "broker.password",
	"broker_client_id":       "broker.client_id",
	"broker_retry_interval":  "broker.retry_interval",
	"broker_connect_timeout": "broker.connect_timeout",

	// Cache mappings
	"cache_primary_capacity": "cache.primary_capacity",
	"cache_primary_ttl":      "cache.primary_ttl",
	"cache_history_capacity": "cache.history_capacity",
	"cache_history_ttl":      "cache.history_ttl",
	"cache_janitor_interval": "cache.janitor_interval",
	"cache_warm_up_nodes":    "cache.warm_up_nodes",

	// Coalesce mappings
	"flush_interval":         "coalesce.flush_interval",
	"coalesce_command_queue": "coalesce.command_queue",

	// Broadcast mappings
	"compression_threshold":   "broadcast.compression_threshold",
	"compression_min_benefit": "broadcast.compression_min_benefit",
	"compression_level":       "broadcast.compression_level",
	"heartbeat_interval":      "broadcast.heartbeat_interval",
	"client_queue_size":       "broadcast.queue_size",

	// Store mappings
	"store_backend":              "store.backend",
	"badger_path":                "store.badger.path",
	"badger_in_memory":           "store.badger.in_memory",
	"badger_sync_writes":         "store.badger.sync_writes",
	"badger_compression":         "store.badger.compression",
	"badger_retention":           "store.badger.retention",
	"badger_gc_interval":         "store.badger.gc_interval",
	"postgres_url":               "store.postgres.url",
	"database_url":               "store.postgres.url",
	"postgres_max_conns":         "store.postgres.max_conns",
	"postgres_min_conns":         "store.postgres.min_conns",
	"postgres_statement_timeout": "store.postgres.statement_timeout",

	// Circuit breaker mappings
	"breaker_enabled":           "breaker.enabled",
	"breaker_max_requests":      "breaker.max_requests",
	"breaker_interval":          "breaker.interval",
	"breaker_timeout":           "breaker.timeout",
	"breaker_failure_threshold": "breaker.failure_threshold",

	// Decryption mappings
	"decrypt_enabled":      "decrypt.enabled",
	"decrypt_channel_keys": "decrypt.channel_keys",

	// Pipeline mappings
	"persist_queue_size":    "pipeline.queue_size",
	"persist_workers":       "pipeline.workers",
	"persist_write_timeout": "pipeline.write_timeout",
	"dedup_window":          "pipeline.dedup_window",
	"dedup_capacity":        "pipeline.dedup_capacity",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - LOG_LEVEL -> logging.level
//   - FLUSH_INTERVAL -> coalesce.flush_interval
//   - STORE_BACKEND -> store.backend
//
// Unmapped variables return "" and are skipped, so unrelated environment
// variables never pollute the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
