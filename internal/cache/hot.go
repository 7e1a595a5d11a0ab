// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/models"
	"github.com/tomtom215/meshcast/internal/store"
)

// Cache tiers, also used as metric labels.
const (
	TierPrimary = "primary"
	TierHistory = "history"
)

// HotConfig sizes the two cache tiers.
type HotConfig struct {
	PrimaryCapacity int
	PrimaryTTL      time.Duration
	HistoryCapacity int
	HistoryTTL      time.Duration
	JanitorInterval time.Duration
	WarmUpNodes     int
}

// DefaultHotConfig returns production defaults: a large long-lived tier for
// nodes and latest positions, a small short-lived tier for history sets.
func DefaultHotConfig() HotConfig {
	return HotConfig{
		PrimaryCapacity: 10000,
		PrimaryTTL:      10 * time.Minute,
		HistoryCapacity: 500,
		HistoryTTL:      30 * time.Second,
		JanitorInterval: time.Minute,
		WarmUpNodes:     500,
	}
}

// primaryEntry holds either a node or a latest position.
type primaryEntry struct {
	node *models.Node
	pos  *models.Position
}

// HotCache is a read-through cache in front of a store.Reader. Values are
// only inserted after a successful store read; writers must call the
// Invalidate methods after persisting.
type HotCache struct {
	reader  store.Reader
	cfg     HotConfig
	primary *LRU[primaryEntry]
	history *LRU[[]*models.Position]

	// generation is bumped by every invalidation. A read-through that
	// overlapped an invalidation does not populate, so a stale read can not
	// shadow the newer write.
	generation atomic.Uint64
}

// NewHotCache creates a HotCache over r.
func NewHotCache(r store.Reader, cfg HotConfig) *HotCache {
	def := DefaultHotConfig()
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = def.JanitorInterval
	}
	return &HotCache{
		reader:  r,
		cfg:     cfg,
		primary: NewLRU[primaryEntry](cfg.PrimaryCapacity, cfg.PrimaryTTL),
		history: NewLRU[[]*models.Position](cfg.HistoryCapacity, cfg.HistoryTTL),
	}
}

func nodeKey(id string) string { return "node:" + id }
func posKey(id string) string  { return "pos:" + id }

func historyKey(id string, limit int) string {
	return id + "|" + strconv.Itoa(limit)
}

// GetNode returns the node with the given id.
func (h *HotCache) GetNode(ctx context.Context, id string) (*models.Node, error) {
	if e, ok := h.primary.Get(nodeKey(id)); ok && e.node != nil {
		metrics.RecordCacheLookup(TierPrimary, true)
		n := *e.node
		return &n, nil
	}
	metrics.RecordCacheLookup(TierPrimary, false)

	gen := h.generation.Load()
	n, err := h.reader.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.generation.Load() == gen {
		cp := *n
		h.primary.Add(nodeKey(id), primaryEntry{node: &cp})
	}
	return n, nil
}

// GetLatestPosition returns the most recent position of a node.
func (h *HotCache) GetLatestPosition(ctx context.Context, nodeID string) (*models.Position, error) {
	if e, ok := h.primary.Get(posKey(nodeID)); ok && e.pos != nil {
		metrics.RecordCacheLookup(TierPrimary, true)
		p := *e.pos
		return &p, nil
	}
	metrics.RecordCacheLookup(TierPrimary, false)

	gen := h.generation.Load()
	p, err := h.reader.GetLatestPosition(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if h.generation.Load() == gen {
		cp := *p
		h.primary.Add(posKey(nodeID), primaryEntry{pos: &cp})
	}
	return p, nil
}

// GetPositionHistory returns up to limit positions, most recent first.
func (h *HotCache) GetPositionHistory(ctx context.Context, nodeID string, limit int) ([]*models.Position, error) {
	limit = store.ClampLimit(limit)
	key := historyKey(nodeID, limit)
	if ps, ok := h.history.Get(key); ok {
		metrics.RecordCacheLookup(TierHistory, true)
		return clonePositions(ps), nil
	}
	metrics.RecordCacheLookup(TierHistory, false)

	gen := h.generation.Load()
	ps, err := h.reader.GetPositionHistory(ctx, nodeID, limit)
	if err != nil {
		return nil, err
	}
	if h.generation.Load() == gen {
		h.history.Add(key, clonePositions(ps))
	}
	return ps, nil
}

// InvalidateNode drops the cached node.
func (h *HotCache) InvalidateNode(id string) {
	h.generation.Add(1)
	h.primary.Remove(nodeKey(id))
	metrics.CacheInvalidations.WithLabelValues(TierPrimary).Inc()
}

// InvalidatePosition drops the cached latest position and every cached
// history set of the node.
func (h *HotCache) InvalidatePosition(nodeID string) {
	h.generation.Add(1)
	h.primary.Remove(posKey(nodeID))
	prefix := nodeID + "|"
	h.history.RemoveIf(func(key string) bool { return strings.HasPrefix(key, prefix) })
	metrics.CacheInvalidations.WithLabelValues(TierPrimary).Inc()
	metrics.CacheInvalidations.WithLabelValues(TierHistory).Inc()
}

// WarmUp loads the most recently heard nodes and their latest positions.
// It returns the number of nodes read. Like the read-through paths, it
// skips entries whose read overlapped an invalidation.
func (h *HotCache) WarmUp(ctx context.Context) (int, error) {
	limit := h.cfg.WarmUpNodes
	if limit <= 0 {
		return 0, nil
	}
	gen := h.generation.Load()
	nodes, err := h.reader.ListRecentNodes(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, n := range nodes {
		if h.generation.Load() == gen {
			cp := *n
			h.primary.Add(nodeKey(n.ID), primaryEntry{node: &cp})
		}

		posGen := h.generation.Load()
		p, err := h.reader.GetLatestPosition(ctx, n.ID)
		switch {
		case err == nil:
			if h.generation.Load() == posGen {
				cp := *p
				h.primary.Add(posKey(n.ID), primaryEntry{pos: &cp})
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			return len(nodes), err
		}
	}
	h.publishSizes()
	return len(nodes), nil
}

// Run evicts expired entries every JanitorInterval until ctx is done.
func (h *HotCache) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed := h.primary.CleanupExpired() + h.history.CleanupExpired()
			if removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Hot cache janitor evicted expired entries")
			}
			h.publishSizes()
		}
	}
}

// HotStats is a snapshot of both tiers.
type HotStats struct {
	Primary LRUStats `json:"primary"`
	History LRUStats `json:"history"`
}

// Stats returns per-tier statistics.
func (h *HotCache) Stats() HotStats {
	return HotStats{Primary: h.primary.Stats(), History: h.history.Stats()}
}

func (h *HotCache) publishSizes() {
	metrics.CacheEntries.WithLabelValues(TierPrimary).Set(float64(h.primary.Len()))
	metrics.CacheEntries.WithLabelValues(TierHistory).Set(float64(h.history.Len()))
}

func clonePositions(ps []*models.Position) []*models.Position {
	out := make([]*models.Position, len(ps))
	for i, p := range ps {
		cp := *p
		out[i] = &cp
	}
	return out
}
