// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

// Package coalesce batches entity updates between fan-out ticks.
//
// A busy mesh reports the same node many times per second. The Buffer keeps
// only the latest update per (kind, key) and hands the survivors to a sink
// every FlushInterval, so live clients receive at most one update per
// entity per tick.
package coalesce
