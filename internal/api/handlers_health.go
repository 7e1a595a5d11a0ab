// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/meshcast/internal/broadcast"
	"github.com/tomtom215/meshcast/internal/broker"
	"github.com/tomtom215/meshcast/internal/cache"
	"github.com/tomtom215/meshcast/internal/coalesce"
	"github.com/tomtom215/meshcast/internal/pipeline"
)

// readyTimeout bounds the store ping of the readiness probe.
const readyTimeout = 2 * time.Second

// HealthStatus is the body of the readiness probe.
type HealthStatus struct {
	Status           string  `json:"status"` // "healthy", "degraded" or "unavailable"
	Version          string  `json:"version,omitempty"`
	StoreConnected   bool    `json:"store_connected"`
	Breaker          string  `json:"breaker,omitempty"`
	BrokerConnected  int     `json:"broker_connected"`
	BrokerConfigured int     `json:"broker_configured"`
	LiveClients      int     `json:"live_clients"`
	Uptime           float64 `json:"uptime"`
}

// StatsResponse aggregates the counters of every pipeline stage.
type StatsResponse struct {
	Uptime   float64         `json:"uptime"`
	Broker   broker.Stats    `json:"broker"`
	Clients  broadcast.Stats `json:"clients"`
	Cache    cache.HotStats  `json:"cache"`
	Pipeline *pipeline.Stats `json:"pipeline,omitempty"`
	Buffer   *coalesce.Stats `json:"buffer,omitempty"`
	Breaker  string          `json:"breaker,omitempty"`
}

// HealthLive handles liveness probe requests.
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests.
//
// The service is ready when the store answers a ping. Broker connections
// reconnect on their own and only degrade the status: cached reads and
// live streams keep working while a broker is down.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := HealthStatus{
		Status:  "healthy",
		Version: h.deps.Version,
		Uptime:  time.Since(h.startTime).Seconds(),
	}

	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		status.StoreConnected = h.deps.Store.Ping(ctx) == nil
		cancel()
		if bs, ok := h.deps.Store.(breakerStater); ok {
			status.Breaker = bs.State()
		}
	}
	if h.deps.Connections != nil {
		bs := h.deps.Connections.Stats()
		status.BrokerConnected = bs.Connected
		status.BrokerConfigured = bs.Connections
	}
	if h.deps.Hub != nil {
		status.LiveClients = h.deps.Hub.Stats().Clients
	}

	switch {
	case !status.StoreConnected:
		status.Status = "unavailable"
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "store is not reachable", status)
		return
	case status.BrokerConfigured > 0 && status.BrokerConnected == 0:
		status.Status = "degraded"
	}
	rw.Success(status)
}

// Stats returns broker, broadcaster, cache and pipeline counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Uptime: time.Since(h.startTime).Seconds()}
	if h.deps.Connections != nil {
		resp.Broker = h.deps.Connections.Stats()
	}
	if h.deps.Hub != nil {
		resp.Clients = h.deps.Hub.Stats()
	}
	if h.deps.Nodes != nil {
		resp.Cache = h.deps.Nodes.Stats()
	}
	if h.deps.Pipeline != nil {
		ps := h.deps.Pipeline.Stats()
		resp.Pipeline = &ps
	}
	if h.deps.Buffer != nil {
		bs := h.deps.Buffer.Stats()
		resp.Buffer = &bs
	}
	if bs, ok := h.deps.Store.(breakerStater); ok {
		resp.Breaker = bs.State()
	}
	NewResponseWriter(w, r).Success(resp)
}
