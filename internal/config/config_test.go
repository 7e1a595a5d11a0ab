// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/meshcast/internal/broker"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"wildcard cors in production", func(c *Config) { c.Server.Environment = "production" }, true},
		{"explicit cors in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Server.CORSOrigins = []string{"https://mesh.example"}
		}, false},
		{"rate limit window ignored when disabled", func(c *Config) {
			c.Server.RateLimitDisabled = true
			c.Server.RateLimitWindow = 0
		}, false},
		{"flush interval too long", func(c *Config) { c.Coalesce.FlushInterval = time.Minute }, true},
		{"min benefit of one", func(c *Config) { c.Broadcast.CompressionMinBenefit = 1 }, true},
		{"zero client queue", func(c *Config) { c.Broadcast.QueueSize = 0 }, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, true},
		{"badger without path", func(c *Config) { c.Store.Badger.Path = "" }, true},
		{"in-memory badger without path", func(c *Config) {
			c.Store.Badger.Path = ""
			c.Store.Badger.InMemory = true
		}, false},
		{"postgres without url", func(c *Config) { c.Store.Backend = StoreBackendPostgres }, true},
		{"postgres with mysql url", func(c *Config) {
			c.Store.Backend = StoreBackendPostgres
			c.Store.Postgres.URL = "mysql://db/meshcast"
		}, true},
		{"postgres dsn", func(c *Config) {
			c.Store.Backend = StoreBackendPostgres
			c.Store.Postgres.URL = "host=db user=meshcast dbname=meshcast"
		}, false},
		{"breaker threshold zero", func(c *Config) { c.Breaker.FailureThreshold = 0 }, true},
		{"breaker disabled skips checks", func(c *Config) {
			c.Breaker.Enabled = false
			c.Breaker.FailureThreshold = 0
		}, false},
		{"bad channel key", func(c *Config) { c.Decrypt.ChannelKeys = map[string]string{"LongFast": "not base64!"} }, true},
		{"good channel key", func(c *Config) { c.Decrypt.ChannelKeys = map[string]string{"LongFast": "AQ=="} }, false},
		{"too many workers", func(c *Config) { c.Pipeline.Workers = 100 }, true},
		{"dedup disabled", func(c *Config) { c.Pipeline.DedupWindow = 0; c.Pipeline.DedupCapacity = 0 }, false},
		{"dedup without capacity", func(c *Config) { c.Pipeline.DedupCapacity = 0 }, true},
		{"negative dedup window", func(c *Config) { c.Pipeline.DedupWindow = -time.Second }, true},
		{"retry interval too short", func(c *Config) { c.Broker.RetryInterval = time.Millisecond }, true},
		{"env broker with unsupported scheme", func(c *Config) { c.Broker.URL = "http://mqtt.example.org" }, true},
		{"env broker without topics", func(c *Config) {
			c.Broker.URL = "tcp://mqtt.example.org:1883"
			c.Broker.Topics = nil
		}, true},
		{"listed broker", func(c *Config) {
			c.Broker.Connections = []broker.ConnectionSpec{{ID: "a", URL: "nats://127.0.0.1:4222", Topics: []string{"msh/#"}}}
		}, false},
		{"listed broker client id too long", func(c *Config) {
			c.Broker.Connections = []broker.ConnectionSpec{{
				URL: "tcp://mqtt.example.org:1883", Topics: []string{"msh/#"}, ClientID: "meshcast-client-id-that-is-too-long",
			}}
		}, true},
		{"listed broker with bad topic filter", func(c *Config) {
			c.Broker.Connections = []broker.ConnectionSpec{{ID: "a", URL: "tcp://mqtt.example.org:1883", Topics: []string{"msh/#/e"}}}
		}, true},
		{"duplicate broker ids", func(c *Config) {
			spec := broker.ConnectionSpec{ID: "a", URL: "tcp://mqtt.example.org:1883", Topics: []string{"msh/#"}}
			c.Broker.Connections = []broker.ConnectionSpec{spec, spec}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := defaultConfig()

	if mc := cfg.Broker.ManagerConfig(); mc.RetryInterval != 5*time.Second || mc.ConnectTimeout != 10*time.Second {
		t.Errorf("ManagerConfig() = %+v", mc)
	}
	if hc := cfg.Broadcast.HubConfig(); hc.CompressionThreshold != 1024 || hc.HeartbeatInterval != 30*time.Second {
		t.Errorf("HubConfig() = %+v", hc)
	}
	if sb := cfg.Breaker.StoreBreaker(); sb.Name != "store" || sb.FailureThreshold != 5 {
		t.Errorf("StoreBreaker() = %+v", sb)
	}
	if bc := cfg.Store.Badger.StoreConfig(); bc.Path != "/data/meshcast" || !bc.Compression {
		t.Errorf("Badger StoreConfig() = %+v", bc)
	}
	if cfg.Pipeline.Deduper() == nil {
		t.Error("deduper should be enabled by default")
	}
	if wc := cfg.Pipeline.WorkerConfig(); wc.Workers != 4 || wc.QueueSize != 4096 {
		t.Errorf("WorkerConfig() = %+v", wc)
	}
	if lc := cfg.Logging.LoggingOptions(); lc.Level != "info" || lc.Format != "json" {
		t.Errorf("LoggingOptions() = %+v", lc)
	}
}
