// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package cache

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Deduper remembers recently seen mesh packets. A packet heard by several
// gateways reaches the broker once per gateway; only the first copy should
// produce records.
//
// Matching is exact: a key is a duplicate only if the same key was recorded
// within the window, so there are no false positives. Memory is bounded by
// capacity with least-recently-seen eviction.
type Deduper struct {
	mu         sync.Mutex
	seen       *LRU[struct{}]
	duplicates atomic.Int64
}

// NewDeduper creates a deduper tracking up to capacity packets for window.
func NewDeduper(capacity int, window time.Duration) *Deduper {
	return &Deduper{seen: NewLRU[struct{}](capacity, window)}
}

// PacketKey identifies a packet by sender and packet id. Packet ids are
// only unique per sender.
func PacketKey(nodeNum, packetID uint32) string {
	return strconv.FormatUint(uint64(nodeNum), 16) + ":" + strconv.FormatUint(uint64(packetID), 16)
}

// Seen records key and reports whether it was already recorded within the
// window. Concurrent callers with the same key see exactly one false.
func (d *Deduper) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen.Get(key); ok {
		d.duplicates.Add(1)
		return true
	}
	d.seen.Add(key, struct{}{})
	return false
}

// CleanupExpired drops keys older than the window.
func (d *Deduper) CleanupExpired() int {
	return d.seen.CleanupExpired()
}

// DedupStats reports deduper activity.
type DedupStats struct {
	Tracked    int   `json:"tracked"`
	Duplicates int64 `json:"duplicates"`
}

// Stats returns a snapshot.
func (d *Deduper) Stats() DedupStats {
	return DedupStats{Tracked: d.seen.Len(), Duplicates: d.duplicates.Load()}
}
