// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/meshcast/internal/broadcast"
	"github.com/tomtom215/meshcast/internal/broker"
	"github.com/tomtom215/meshcast/internal/cache"
	"github.com/tomtom215/meshcast/internal/coalesce"
	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/models"
	"github.com/tomtom215/meshcast/internal/pipeline"
)

// ConnectionManager is the broker manager surface the API drives.
type ConnectionManager interface {
	AddConnection(spec broker.ConnectionSpec) (string, error)
	RemoveConnection(id string) error
	ListConnections() []broker.ConnectionInfo
	Connection(id string) (broker.ConnectionInfo, bool)
	Stats() broker.Stats
}

// NodeCache serves node and position reads.
type NodeCache interface {
	GetNode(ctx context.Context, id string) (*models.Node, error)
	GetLatestPosition(ctx context.Context, nodeID string) (*models.Position, error)
	GetPositionHistory(ctx context.Context, nodeID string, limit int) ([]*models.Position, error)
	Stats() cache.HotStats
}

// StoreHealth is the liveness check of the persistence backend.
type StoreHealth interface {
	Ping(ctx context.Context) error
}

// breakerStater is implemented by store.Guarded.
type breakerStater interface {
	State() string
}

// PipelineStats exposes ingestion counters.
type PipelineStats interface {
	Stats() pipeline.Stats
}

// BufferStats exposes coalescing counters.
type BufferStats interface {
	Stats() coalesce.Stats
}

// Dependencies groups the services behind the HTTP handlers. Pipeline and
// Buffer are optional.
type Dependencies struct {
	Connections ConnectionManager
	Nodes       NodeCache
	Hub         *broadcast.Hub
	Store       StoreHealth
	Pipeline    PipelineStats
	Buffer      BufferStats
	Version     string

	// AllowedOrigins gates WebSocket upgrades; "*" allows any origin.
	AllowedOrigins []string
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_health.go: liveness, readiness and stats
//   - handlers_connections.go: broker connection management
//   - handlers_nodes.go: hot-state reads
//   - handlers_stream.go: SSE and WebSocket live streams
type Handler struct {
	deps      Dependencies
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		deps:      deps,
		startTime: time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
	return h
}

// checkWebSocketOrigin validates WebSocket connection origins. Browsers
// always send Origin; requests without one come from non-browser clients
// and are allowed only when every origin is.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	for _, allowed := range h.deps.AllowedOrigins {
		if allowed == "*" || (origin != "" && allowed == origin) {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected: origin not allowed")
	return false
}
