// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package main is the entry point for the Meshcast server.

Meshcast subscribes to Meshtastic MQTT or NATS brokers, classifies every
packet, persists nodes, positions, telemetry and text messages, and streams
coalesced updates to browsers over Server-Sent Events and WebSocket.

# Application Architecture

	broker.Manager ──► pipeline.Ingest ──► classifier
	                        │
	                        ├──► persistence workers ──► store (Badger | PostgreSQL)
	                        │                             └──► hot cache invalidation
	                        ├──► coalesce.Buffer ──flush──► broadcast.Hub ──► SSE / WS
	                        └──► raw packets ─────────────► broadcast.Hub

Component initialization order:

 1. Configuration: koanf v2 with defaults, YAML file and environment
 2. Logging: zerolog, JSON or console output
 3. Store: Badger (default) or PostgreSQL, optionally behind a circuit breaker
 4. Hot cache: two-tier LRU, warmed from the most recently heard nodes
 5. Broadcaster, coalescing buffer and persistence pipeline
 6. Broker manager with the configured initial connections
 7. Supervisor tree and HTTP server

# Configuration

	Priority: Environment variables > Config file (CONFIG_PATH) > Defaults

	HTTP_PORT=8080
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	BROKER_URL=tcp://mqtt.meshtastic.org:1883
	BROKER_TOPICS=msh/US/#
	BROKER_USERNAME=meshdev
	BROKER_PASSWORD=large4cats

	STORE_BACKEND=badger         # badger or postgres
	BADGER_PATH=/data/meshcast
	POSTGRES_URL=postgres://meshcast:secret@db:5432/meshcast

	DECRYPT_ENABLED=true
	DECRYPT_CHANNEL_KEYS=LongFast=AQ==

	FLUSH_INTERVAL=100ms
	DEDUP_WINDOW=10m             # 0 disables relay deduplication
	CORS_ORIGINS=https://map.example.org

# Signal Handling

On SIGINT or SIGTERM the supervisor tree is canceled:

 1. The HTTP server stops accepting connections
 2. Broker connections are closed
 3. The coalescing buffer flushes once more and streaming clients are closed
 4. Persistence workers drain the queue
 5. The store is closed and unstopped services are reported
*/
package main
