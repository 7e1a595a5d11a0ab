// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/meshcast/internal/store"
	"github.com/tomtom215/meshcast/internal/validation"
)

// nodeIDParam reads and canonicalizes the {id} path parameter. It writes a
// 400 and returns false for ids that are not node numbers.
func nodeIDParam(rw *ResponseWriter, r *http.Request) (string, bool) {
	id, ok := normalizeNodeID(chi.URLParam(r, "id"))
	if !ok {
		rw.BadRequest("node id must be a hex node number such as !a1b2c3d4")
		return "", false
	}
	return id, true
}

// GetNode returns the latest identity of a node.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := nodeIDParam(rw, r)
	if !ok {
		return
	}
	node, err := h.deps.Nodes.GetNode(r.Context(), id)
	if err != nil {
		writeStoreError(rw, err, "node")
		return
	}
	rw.Success(node)
}

// GetLatestPosition returns the most recent position of a node.
func (h *Handler) GetLatestPosition(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := nodeIDParam(rw, r)
	if !ok {
		return
	}
	pos, err := h.deps.Nodes.GetLatestPosition(r.Context(), id)
	if err != nil {
		writeStoreError(rw, err, "position")
		return
	}
	rw.Success(pos)
}

// GetPositionHistory returns up to ?limit= positions, most recent first.
func (h *Handler) GetPositionHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := nodeIDParam(rw, r)
	if !ok {
		return
	}

	req := PositionsRequest{Limit: getIntParam(r, "limit", store.DefaultHistoryLimit)}
	if err := validation.ValidateStruct(req); err != nil {
		rw.ValidationError("invalid query parameters", validation.Details(err))
		return
	}

	positions, err := h.deps.Nodes.GetPositionHistory(r.Context(), id, req.Limit)
	if err != nil {
		writeStoreError(rw, err, "position history")
		return
	}
	rw.SuccessList(positions, len(positions))
}
