// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

// Package pipeline connects the broker manager to the rest of the system.
//
// Ingest is the broker.Handler. For every message it classifies the
// payload, publishes the classified packet as a raw event, queues each
// structured record on the coalescing buffer and hands it to a bounded
// pool of persistence workers. Workers write through store.Writer and
// invalidate the hot-state cache after a successful write. Duplicate and
// foreign-key conflicts are logged at debug level and counted, never
// treated as failures.
package pipeline
