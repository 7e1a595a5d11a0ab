// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package config

import (
	"time"

	"github.com/tomtom215/meshcast/internal/broadcast"
	"github.com/tomtom215/meshcast/internal/broker"
	"github.com/tomtom215/meshcast/internal/cache"
	"github.com/tomtom215/meshcast/internal/coalesce"
	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/pipeline"
	"github.com/tomtom215/meshcast/internal/store"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every setting
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any mapped setting
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
//	mgr := broker.NewManager(cfg.Broker.ManagerConfig(), p.Ingest)
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Broker    BrokerConfig    `koanf:"broker"`
	Cache     CacheConfig     `koanf:"cache"`
	Coalesce  CoalesceConfig  `koanf:"coalesce"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	Store     StoreConfig     `koanf:"store"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Decrypt   DecryptConfig   `koanf:"decrypt"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// Environment mode: "development" or "production". Production rejects
	// a wildcard CORS origin.
	Environment string `koanf:"environment"`
}

// LoggingConfig holds logging configuration.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// LoggingOptions converts to the logging package config.
func (c LoggingConfig) LoggingOptions() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, Caller: c.Caller}
}

// BrokerConfig holds the connection manager settings and the connections
// opened at startup.
//
// A single connection can be configured from the environment with
// BROKER_URL, BROKER_TOPICS, BROKER_USERNAME, BROKER_PASSWORD and
// BROKER_CLIENT_ID. More connections are listed under broker.connections
// in the YAML file.
type BrokerConfig struct {
	RetryInterval  time.Duration `koanf:"retry_interval"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	URL      string   `koanf:"url"`
	Topics   []string `koanf:"topics"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	ClientID string   `koanf:"client_id"`

	Connections []broker.ConnectionSpec `koanf:"connections"`
}

// ManagerConfig converts to the broker manager config.
func (c BrokerConfig) ManagerConfig() broker.ManagerConfig {
	return broker.ManagerConfig{RetryInterval: c.RetryInterval, ConnectTimeout: c.ConnectTimeout}
}

// InitialConnections returns every connection to open at startup: the
// environment connection (when BROKER_URL is set) followed by the listed ones.
func (c BrokerConfig) InitialConnections() []broker.ConnectionSpec {
	specs := make([]broker.ConnectionSpec, 0, len(c.Connections)+1)
	if c.URL != "" {
		specs = append(specs, broker.ConnectionSpec{
			ID:       "default",
			Name:     "default",
			URL:      c.URL,
			Username: c.Username,
			Password: c.Password,
			ClientID: c.ClientID,
			Topics:   c.Topics,
		})
	}
	return append(specs, c.Connections...)
}

// CacheConfig sizes the hot-state cache tiers.
type CacheConfig struct {
	PrimaryCapacity int           `koanf:"primary_capacity"`
	PrimaryTTL      time.Duration `koanf:"primary_ttl"`
	HistoryCapacity int           `koanf:"history_capacity"`
	HistoryTTL      time.Duration `koanf:"history_ttl"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
	WarmUpNodes     int           `koanf:"warm_up_nodes"`
}

// HotConfig converts to the cache package config.
func (c CacheConfig) HotConfig() cache.HotConfig {
	return cache.HotConfig{
		PrimaryCapacity: c.PrimaryCapacity,
		PrimaryTTL:      c.PrimaryTTL,
		HistoryCapacity: c.HistoryCapacity,
		HistoryTTL:      c.HistoryTTL,
		JanitorInterval: c.JanitorInterval,
		WarmUpNodes:     c.WarmUpNodes,
	}
}

// CoalesceConfig tunes the coalescing update buffer.
type CoalesceConfig struct {
	FlushInterval time.Duration `koanf:"flush_interval"`
	CommandQueue  int           `koanf:"command_queue"`
}

// BufferConfig converts to the coalesce package config.
func (c CoalesceConfig) BufferConfig() coalesce.Config {
	return coalesce.Config{FlushInterval: c.FlushInterval, CommandQueue: c.CommandQueue}
}

// BroadcastConfig tunes the live client hub.
type BroadcastConfig struct {
	CompressionThreshold  int           `koanf:"compression_threshold"`
	CompressionMinBenefit float64       `koanf:"compression_min_benefit"`
	CompressionLevel      int           `koanf:"compression_level"`
	HeartbeatInterval     time.Duration `koanf:"heartbeat_interval"`
	QueueSize             int           `koanf:"queue_size"`
}

// HubConfig converts to the broadcast package config.
func (c BroadcastConfig) HubConfig() broadcast.Config {
	return broadcast.Config{
		CompressionThreshold:  c.CompressionThreshold,
		CompressionMinBenefit: c.CompressionMinBenefit,
		CompressionLevel:      c.CompressionLevel,
		HeartbeatInterval:     c.HeartbeatInterval,
		QueueSize:             c.QueueSize,
	}
}

// Store backends.
const (
	StoreBackendBadger   = "badger"
	StoreBackendPostgres = "postgres"
)

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend  string         `koanf:"backend"`
	Badger   BadgerConfig   `koanf:"badger"`
	Postgres PostgresConfig `koanf:"postgres"`
}

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	Path        string        `koanf:"path"`
	InMemory    bool          `koanf:"in_memory"`
	SyncWrites  bool          `koanf:"sync_writes"`
	Compression bool          `koanf:"compression"`
	Retention   time.Duration `koanf:"retention"`
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCRatio     float64       `koanf:"gc_ratio"`
}

// StoreConfig converts to the store package config.
func (c BadgerConfig) StoreConfig() store.BadgerConfig {
	return store.BadgerConfig{
		Path:        c.Path,
		InMemory:    c.InMemory,
		SyncWrites:  c.SyncWrites,
		Compression: c.Compression,
		Retention:   c.Retention,
		GCInterval:  c.GCInterval,
		GCRatio:     c.GCRatio,
	}
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	URL              string        `koanf:"url"`
	MaxConns         int32         `koanf:"max_conns"`
	MinConns         int32         `koanf:"min_conns"`
	MaxConnLifetime  time.Duration `koanf:"max_conn_lifetime"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

// StoreConfig converts to the store package config.
func (c PostgresConfig) StoreConfig() store.PostgresConfig {
	return store.PostgresConfig{
		URL:              c.URL,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		StatementTimeout: c.StatementTimeout,
	}
}

// BreakerConfig configures the circuit breaker in front of the store.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// StoreBreaker converts to the store package config.
func (c BreakerConfig) StoreBreaker() store.BreakerConfig {
	return store.BreakerConfig{
		Name:             "store",
		MaxRequests:      c.MaxRequests,
		Interval:         c.Interval,
		Timeout:          c.Timeout,
		FailureThreshold: c.FailureThreshold,
	}
}

// DecryptConfig configures decryption of the encrypted topic tree.
//
// DECRYPT_CHANNEL_KEYS takes comma separated channel=base64psk pairs, e.g.
// "LongFast=AQ==,Ops=1PG7OiApB1nwvP+rz05pAQ==".
type DecryptConfig struct {
	Enabled     bool              `koanf:"enabled"`
	ChannelKeys map[string]string `koanf:"channel_keys"`
}

// PipelineConfig sizes the persistence worker pool. A zero DedupWindow
// disables packet deduplication across gateways.
type PipelineConfig struct {
	QueueSize    int           `koanf:"queue_size"`
	Workers      int           `koanf:"workers"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	DedupWindow   time.Duration `koanf:"dedup_window"`
	DedupCapacity int           `koanf:"dedup_capacity"`
}

// WorkerConfig converts to the pipeline package config.
func (c PipelineConfig) WorkerConfig() pipeline.Config {
	return pipeline.Config{QueueSize: c.QueueSize, Workers: c.Workers, WriteTimeout: c.WriteTimeout}
}

// Deduper builds the cross-gateway packet deduper, nil when disabled.
func (c PipelineConfig) Deduper() *cache.Deduper {
	if c.DedupWindow <= 0 {
		return nil
	}
	return cache.NewDeduper(c.DedupCapacity, c.DedupWindow)
}

// Load reads configuration from defaults, the config file and the
// environment. See LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
