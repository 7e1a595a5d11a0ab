// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/meshcast/internal/classifier"
	"github.com/tomtom215/meshcast/internal/validation"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "console": true,
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateBroker,
		c.validateCache,
		c.validateCoalesce,
		c.validateBroadcast,
		c.validateStore,
		c.validateBreaker,
		c.validateDecrypt,
		c.validatePipeline,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateServer validates HTTP server settings
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return invalid("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.Server.RateLimitWindow < time.Second {
			return invalid("RATE_LIMIT_WINDOW must be at least 1s")
		}
	}
	return c.validateCORS()
}

// validateCORS rejects a wildcard origin in production.
func (c *Config) validateCORS() error {
	if c.Server.Environment != "production" {
		return nil
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			return invalid("CORS_ORIGINS must list explicit origins when ENVIRONMENT=production")
		}
	}
	return nil
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return invalid("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return invalid("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateBroker validates the manager settings and every startup
// connection. Connection specs are checked with their validate tags.
func (c *Config) validateBroker() error {
	if c.Broker.RetryInterval < 100*time.Millisecond {
		return invalid("BROKER_RETRY_INTERVAL must be at least 100ms")
	}
	if c.Broker.ConnectTimeout <= 0 {
		return invalid("BROKER_CONNECT_TIMEOUT must be positive")
	}

	seen := make(map[string]bool)
	for i, spec := range c.Broker.InitialConnections() {
		if err := validation.ValidateStruct(spec); err != nil {
			return invalid("broker connection %d: %v", i, err)
		}
		if err := validateBrokerURL(spec.URL); err != nil {
			return invalid("broker connection %d: %v", i, err)
		}
		if spec.ID != "" {
			if seen[spec.ID] {
				return invalid("broker connection id %q is used twice", spec.ID)
			}
			seen[spec.ID] = true
		}
	}
	return nil
}

// validateCache validates the hot-state cache sizes
func (c *Config) validateCache() error {
	if c.Cache.PrimaryCapacity < 1 || c.Cache.HistoryCapacity < 1 {
		return invalid("cache capacities must be at least 1")
	}
	if c.Cache.PrimaryTTL <= 0 || c.Cache.HistoryTTL <= 0 {
		return invalid("cache TTLs must be positive")
	}
	if c.Cache.JanitorInterval < time.Second {
		return invalid("CACHE_JANITOR_INTERVAL must be at least 1s")
	}
	return nil
}

// validateCoalesce validates the coalescing buffer settings
func (c *Config) validateCoalesce() error {
	if c.Coalesce.FlushInterval < time.Millisecond || c.Coalesce.FlushInterval > 10*time.Second {
		return invalid("FLUSH_INTERVAL must be between 1ms and 10s")
	}
	if c.Coalesce.CommandQueue < 1 {
		return invalid("COALESCE_COMMAND_QUEUE must be at least 1")
	}
	return nil
}

// validateBroadcast validates the live client hub settings
func (c *Config) validateBroadcast() error {
	b := c.Broadcast
	if b.CompressionThreshold < 0 {
		return invalid("COMPRESSION_THRESHOLD must not be negative")
	}
	if b.CompressionMinBenefit <= 0 || b.CompressionMinBenefit >= 1 {
		return invalid("COMPRESSION_MIN_BENEFIT must be between 0 and 1 (exclusive)")
	}
	if b.CompressionLevel < -2 || b.CompressionLevel > 9 {
		return invalid("COMPRESSION_LEVEL must be between -2 and 9")
	}
	if b.HeartbeatInterval < time.Second {
		return invalid("HEARTBEAT_INTERVAL must be at least 1s")
	}
	if b.QueueSize < 1 {
		return invalid("CLIENT_QUEUE_SIZE must be at least 1")
	}
	return nil
}

// validateStore validates the selected persistence backend
func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendBadger:
		if !c.Store.Badger.InMemory && c.Store.Badger.Path == "" {
			return invalid("BADGER_PATH is required unless BADGER_IN_MEMORY=true")
		}
		if c.Store.Badger.Retention < 0 {
			return invalid("BADGER_RETENTION must not be negative")
		}
	case StoreBackendPostgres:
		if c.Store.Postgres.URL == "" {
			return invalid("POSTGRES_URL is required when STORE_BACKEND=postgres")
		}
		if err := validatePostgresURL(c.Store.Postgres.URL); err != nil {
			return invalid("POSTGRES_URL is invalid: %v", err)
		}
		if c.Store.Postgres.MaxConns < 1 || c.Store.Postgres.MinConns < 0 || c.Store.Postgres.MinConns > c.Store.Postgres.MaxConns {
			return invalid("POSTGRES_MIN_CONNS must be between 0 and POSTGRES_MAX_CONNS (at least 1)")
		}
	default:
		return invalid("STORE_BACKEND must be one of: %s, %s", StoreBackendBadger, StoreBackendPostgres)
	}
	return nil
}

// validateBreaker validates circuit breaker settings (only if enabled)
func (c *Config) validateBreaker() error {
	if !c.Breaker.Enabled {
		return nil
	}
	if c.Breaker.FailureThreshold < 1 {
		return invalid("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Breaker.MaxRequests < 1 {
		return invalid("BREAKER_MAX_REQUESTS must be at least 1")
	}
	if c.Breaker.Timeout <= 0 {
		return invalid("BREAKER_TIMEOUT must be positive")
	}
	return nil
}

// validateDecrypt checks that every channel key is a usable PSK.
func (c *Config) validateDecrypt() error {
	if !c.Decrypt.Enabled {
		return nil
	}
	for channel, psk := range c.Decrypt.ChannelKeys {
		if strings.TrimSpace(channel) == "" {
			return invalid("DECRYPT_CHANNEL_KEYS has an empty channel name")
		}
		if _, err := classifier.ExpandPSK(psk); err != nil {
			return invalid("channel key for %q: %v", channel, err)
		}
	}
	return nil
}

// validatePipeline validates the persistence worker pool
func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 64 {
		return invalid("PERSIST_WORKERS must be between 1 and 64")
	}
	if c.Pipeline.QueueSize < 1 {
		return invalid("PERSIST_QUEUE_SIZE must be at least 1")
	}
	if c.Pipeline.WriteTimeout <= 0 {
		return invalid("PERSIST_WRITE_TIMEOUT must be positive")
	}
	if c.Pipeline.DedupWindow < 0 {
		return invalid("DEDUP_WINDOW must not be negative")
	}
	if c.Pipeline.DedupWindow > 0 && c.Pipeline.DedupCapacity < 1 {
		return invalid("DEDUP_CAPACITY must be at least 1 when DEDUP_WINDOW is set")
	}
	return nil
}
