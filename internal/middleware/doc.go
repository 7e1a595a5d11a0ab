// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package middleware provides HTTP middleware for the control surface.

All middleware has the chi signature func(http.Handler) http.Handler and is
mounted with r.Use in internal/api.

Key Components:

  - RequestID: reuses or generates X-Request-ID and stores it for logging
  - PrometheusMetrics: request count, latency and in-flight gauge, labelled
    by chi route pattern
  - Compression: gzip (klauspost/compress) for JSON responses

The metrics wrapper forwards Flush and Hijack so it can sit in front of the
SSE and WebSocket endpoints. Compression can not and is only mounted on the
JSON route groups.

Usage Example:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Group(func(r chi.Router) {
	    r.Use(middleware.Compression)
	    r.Get("/api/v1/stats", h.Stats)
	})
*/
package middleware
