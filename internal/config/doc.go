// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package config provides centralized configuration management for Meshcast.

# Configuration Sources

Configuration is layered with Koanf v2, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, ./config.yaml or /etc/meshcast/config.yaml
 3. Environment variables, mapped explicitly by envTransformFunc

Unmapped environment variables are ignored.

# Configuration Structure

  - ServerConfig: HTTP listener, CORS origins and rate limiting
  - LoggingConfig: zerolog level, format and caller
  - BrokerConfig: reconnect pacing and the connections opened at startup
  - CacheConfig: hot-state cache capacities and TTLs
  - CoalesceConfig: coalescing buffer flush interval
  - BroadcastConfig: compression and heartbeat settings of the live hub
  - StoreConfig: badger (default) or postgres persistence
  - BreakerConfig: circuit breaker in front of the store
  - DecryptConfig: per-channel PSKs for the encrypted topic tree
  - PipelineConfig: persistence worker pool

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT (default: 0.0.0.0:8080)
  - HTTP_READ_TIMEOUT, HTTP_IDLE_TIMEOUT, HTTP_SHUTDOWN_TIMEOUT
  - CORS_ORIGINS: comma separated (default: *)
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT
  - ENVIRONMENT: development or production

Broker:
  - BROKER_URL: e.g. tcp://mqtt.meshtastic.org:1883 or nats://localhost:4222
  - BROKER_TOPICS: comma separated MQTT topic filters (default: msh/#)
  - BROKER_USERNAME, BROKER_PASSWORD, BROKER_CLIENT_ID
  - BROKER_RETRY_INTERVAL (default: 5s), BROKER_CONNECT_TIMEOUT (default: 10s)

Pipeline:
  - FLUSH_INTERVAL (default: 50ms)
  - COMPRESSION_THRESHOLD (default: 1024), COMPRESSION_MIN_BENEFIT (default: 0.10)
  - HEARTBEAT_INTERVAL (default: 30s), CLIENT_QUEUE_SIZE (default: 256)
  - PERSIST_WORKERS, PERSIST_QUEUE_SIZE, PERSIST_WRITE_TIMEOUT

Storage:
  - STORE_BACKEND: badger or postgres
  - BADGER_PATH, BADGER_IN_MEMORY, BADGER_RETENTION
  - POSTGRES_URL (or DATABASE_URL), POSTGRES_MAX_CONNS, POSTGRES_MIN_CONNS
  - BREAKER_ENABLED, BREAKER_FAILURE_THRESHOLD, BREAKER_TIMEOUT

Decryption:
  - DECRYPT_ENABLED (default: true)
  - DECRYPT_CHANNEL_KEYS: channel=base64psk pairs, comma separated

# Example YAML

	broker:
	  connections:
	    - id: public
	      url: tcp://mqtt.meshtastic.org:1883
	      username: meshdev
	      password: large4cats
	      topics: ["msh/US/#"]
	    - id: local
	      url: nats://127.0.0.1:4222
	      topics: ["msh/#"]
	store:
	  backend: postgres
	  postgres:
	    url: postgres://meshcast:secret@db:5432/meshcast

Validation errors wrap ErrInvalidConfig.
*/
package config
