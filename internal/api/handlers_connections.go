// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/meshcast/internal/broker"
	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/validation"
)

// ListConnections returns every broker connection with its status.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	infos := h.deps.Connections.ListConnections()
	NewResponseWriter(w, r).SuccessList(infos, len(infos))
}

// GetConnection returns one broker connection.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	info, ok := h.deps.Connections.Connection(chi.URLParam(r, "id"))
	if !ok {
		rw.NotFound("connection not found")
		return
	}
	rw.Success(info)
}

// CreateConnection adds a broker connection at runtime. The body is a
// broker.ConnectionSpec; the id is generated when omitted.
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var spec broker.ConnectionSpec
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if err := validation.ValidateStruct(spec); err != nil {
		rw.ValidationError("invalid connection spec", validation.Details(err))
		return
	}

	id, err := h.deps.Connections.AddConnection(spec)
	switch {
	case err == nil:
	case errors.Is(err, broker.ErrDuplicateConnection):
		rw.Conflict(err.Error())
		return
	case errors.Is(err, broker.ErrInvalidSpec),
		errors.Is(err, broker.ErrUnsupportedScheme),
		errors.Is(err, broker.ErrInvalidTopic):
		rw.BadRequest(err.Error())
		return
	case errors.Is(err, broker.ErrManagerClosed):
		rw.ServiceUnavailable("broker manager is shutting down")
		return
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to add broker connection")
		rw.InternalError("failed to add connection")
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("connection_id", id).
		Str("scheme", spec.Scheme()).
		Strs("topics", spec.Topics).
		Msg("Broker connection added via API")

	info, ok := h.deps.Connections.Connection(id)
	if !ok {
		// Removed concurrently between add and lookup.
		rw.NotFound("connection not found")
		return
	}
	rw.Created(info)
}

// DeleteConnection stops and removes a broker connection.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	if err := h.deps.Connections.RemoveConnection(id); err != nil {
		if errors.Is(err, broker.ErrUnknownConnection) {
			rw.NotFound("connection not found")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("connection_id", id).Msg("Failed to remove broker connection")
		rw.InternalError("failed to remove connection")
		return
	}

	logging.Ctx(r.Context()).Info().Str("connection_id", id).Msg("Broker connection removed via API")
	rw.NoContent()
}
