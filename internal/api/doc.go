// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package api provides the HTTP control surface of Meshcast.

Routes are served by a chi router with RequestID, RealIP, Recoverer,
go-chi/cors and Prometheus middleware on every route and go-chi/httprate
limits per route group:

	GET    /api/v1/health/live           liveness probe
	GET    /api/v1/health/ready          readiness probe (store ping)
	GET    /api/v1/stats                 broker, client, cache and pipeline counters
	GET    /api/v1/clients               connected live clients
	GET    /api/v1/connections           broker connections
	POST   /api/v1/connections           add a broker connection
	GET    /api/v1/connections/{id}      one broker connection
	DELETE /api/v1/connections/{id}      remove a broker connection
	GET    /api/v1/nodes/{id}            latest node identity
	GET    /api/v1/nodes/{id}/position   latest position
	GET    /api/v1/nodes/{id}/positions  position history (?limit=1..1000)
	GET    /api/v1/stream                SSE live stream
	GET    /api/v1/ws                    WebSocket live stream
	GET    /metrics                      Prometheus

JSON responses use the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}, "meta": {...}}

Both live streams accept the filter query parameters node, channel and type
(comma-separated or repeated) and min_snr:

	GET /api/v1/stream?node=!a1b2c3d4,!0000beef&type=position&min_snr=-5

Node ids in paths and filters may be given with or without the leading "!".
*/
package api
