// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/meshcast/internal/broadcast"
	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/validation"
)

// Stream serves the SSE live stream. Query parameters node, channel and type
// take comma-separated lists; min_snr takes a number.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.streamFilter(w, r)
	if !ok {
		return
	}

	err := broadcast.ServeSSE(r.Context(), h.deps.Hub, w, "", filter)
	switch {
	case err == nil:
	case errors.Is(err, broadcast.ErrStreamingUnsupported):
		NewResponseWriter(w, r).InternalError("streaming is not supported by this connection")
	default:
		// Headers are already out once registration succeeded.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("SSE stream ended with error")
	}
}

// WebSocket upgrades the connection and serves the live stream. The initial
// filter comes from the same query parameters as Stream; clients may replace
// it later with a filter message.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.streamFilter(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if err := broadcast.ServeWebSocket(r.Context(), h.deps.Hub, conn, "", filter); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket stream ended with error")
	}
}

// Clients lists the connected live clients.
func (h *Handler) Clients(w http.ResponseWriter, r *http.Request) {
	clients := h.deps.Hub.Clients()
	NewResponseWriter(w, r).SuccessList(clients, len(clients))
}

func (h *Handler) streamFilter(w http.ResponseWriter, r *http.Request) (*broadcast.Filter, bool) {
	req, err := parseStreamRequest(r)
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return nil, false
	}
	if err := validation.ValidateStruct(req); err != nil {
		NewResponseWriter(w, r).ValidationError("invalid stream filter", validation.Details(err))
		return nil, false
	}
	return req.Filter(), true
}
