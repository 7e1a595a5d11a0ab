// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package broadcast fans live mesh updates out to connected clients.

The Hub is the connection registry. Clients attach through a Transport: an
SSE response (ServeSSE) or a gorilla/websocket connection (ServeWebSocket).
Both queue frames in a bounded per-client outbox; a full or closed outbox
fails the send and the hub removes exactly that client. Slow consumers
never stall the broadcaster.

# Frames

Every frame is a JSON envelope:

	{"type":"position-update","timestamp":"2026-03-01T12:00:00Z","data":[...]}

Frames above CompressionThreshold are gzip-compressed when that saves at
least CompressionMinBenefit. SSE sends compressed frames as

	event: gzip
	data: <base64>

and WebSocket sends them as binary messages.

# Delivery paths

DeliverBatch takes a coalesced batch and sends each client one event per
kind containing only entities its Filter accepts. PublishRaw forwards
individual classified packets; only node and channel filters apply, and
packets with no known node are delivered to everyone. Run sends heartbeats
to idle clients.
*/
package broadcast
