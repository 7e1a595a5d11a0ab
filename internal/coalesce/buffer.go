// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package coalesce

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/models"
)

// Kind groups pending updates. At most one update per (Kind, key) is held.
type Kind string

// Update kinds produced by the ingestion pipeline.
const (
	KindNode      Kind = "node"
	KindPosition  Kind = "position"
	KindTelemetry Kind = "telemetry"
	KindMessage   Kind = "message"
)

// Kinds lists every kind in delivery order.
var Kinds = []Kind{KindNode, KindPosition, KindTelemetry, KindMessage}

// Entry is one pending update.
type Entry struct {
	Kind  Kind
	Key   string
	Value models.Entity
}

// Batch is the result of one flush: one entry list per kind, each in the
// order its keys were first queued.
type Batch struct {
	Entries   map[Kind][]Entry
	FlushedAt time.Time
}

// Len returns the number of entries across all kinds.
func (b Batch) Len() int {
	n := 0
	for _, es := range b.Entries {
		n += len(es)
	}
	return n
}

// Empty reports whether the batch carries no entries.
func (b Batch) Empty() bool {
	return b.Len() == 0
}

// Sink receives every non-empty batch produced by the flush ticker. It runs
// on the buffer goroutine.
type Sink func(ctx context.Context, b Batch)

// Config tunes the buffer.
type Config struct {
	// FlushInterval is the ticker period. Defaults to 50ms.
	FlushInterval time.Duration
	// CommandQueue bounds queued commands not yet applied. Queue drops
	// updates when it is full.
	CommandQueue int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 50 * time.Millisecond,
		CommandQueue:  8192,
	}
}

type command struct {
	entry Entry
	flush chan Batch
}

// pendingSet keeps one slot per key in first-queued order.
type pendingSet struct {
	index   map[string]int
	entries []Entry
}

// Buffer coalesces updates between flushes. All state is owned by the
// goroutine running Run; callers interact with it over a single command
// channel so queue and flush requests are applied in arrival order.
type Buffer struct {
	cfg  Config
	sink Sink
	cmds chan command

	// owned by the Run goroutine
	pending map[Kind]*pendingSet

	queued     atomic.Int64
	flushes    atomic.Uint64
	overwrites atomic.Uint64
	dropped    atomic.Uint64
}

// New creates a buffer that hands ticker flushes to sink.
func New(cfg Config, sink Sink) *Buffer {
	def := DefaultConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.CommandQueue <= 0 {
		cfg.CommandQueue = def.CommandQueue
	}
	if sink == nil {
		sink = func(context.Context, Batch) {}
	}
	return &Buffer{
		cfg:     cfg,
		sink:    sink,
		cmds:    make(chan command, cfg.CommandQueue),
		pending: make(map[Kind]*pendingSet),
	}
}

// Queue records value for (kind, key), replacing any unflushed value. It
// never blocks and reports false when the update was dropped.
func (b *Buffer) Queue(kind Kind, key string, value models.Entity) bool {
	select {
	case b.cmds <- command{entry: Entry{Kind: kind, Key: key, Value: value}}:
		return true
	default:
		b.dropped.Add(1)
		metrics.CoalesceDropped.Inc()
		return false
	}
}

// Flush drains all pending entries into one batch and returns it to the
// caller instead of the sink. It returns an empty batch when ctx ends first.
func (b *Buffer) Flush(ctx context.Context) Batch {
	reply := make(chan Batch, 1)
	select {
	case b.cmds <- command{flush: reply}:
	case <-ctx.Done():
		return Batch{}
	}
	select {
	case batch := <-reply:
		return batch
	case <-ctx.Done():
		return Batch{}
	}
}

// Run applies commands and flushes on every tick until ctx is done. Pending
// entries are handed to the sink one last time on shutdown.
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	logging.Debug().Dur("interval", b.cfg.FlushInterval).Msg("Coalescing buffer started")
	for {
		select {
		case <-ctx.Done():
			b.drainCommands()
			if batch := b.drain(); !batch.Empty() {
				b.sink(context.WithoutCancel(ctx), batch)
			}
			return ctx.Err()
		case cmd := <-b.cmds:
			b.apply(cmd)
		case <-ticker.C:
			if batch := b.drain(); !batch.Empty() {
				b.sink(ctx, batch)
			}
		}
	}
}

// drainCommands applies whatever is already queued without waiting.
func (b *Buffer) drainCommands() {
	for {
		select {
		case cmd := <-b.cmds:
			b.apply(cmd)
		default:
			return
		}
	}
}

func (b *Buffer) apply(cmd command) {
	if cmd.flush != nil {
		cmd.flush <- b.drain()
		return
	}

	e := cmd.entry
	set, ok := b.pending[e.Kind]
	if !ok {
		set = &pendingSet{index: make(map[string]int)}
		b.pending[e.Kind] = set
	}
	if i, exists := set.index[e.Key]; exists {
		set.entries[i] = e
		b.overwrites.Add(1)
		metrics.CoalesceOverwrites.Inc()
		return
	}
	set.index[e.Key] = len(set.entries)
	set.entries = append(set.entries, e)
	b.queued.Add(1)
}

// drain swaps the pending sets for fresh ones and returns the old contents.
func (b *Buffer) drain() Batch {
	batch := Batch{Entries: make(map[Kind][]Entry, len(b.pending)), FlushedAt: time.Now().UTC()}
	for kind, set := range b.pending {
		if len(set.entries) > 0 {
			batch.Entries[kind] = set.entries
		}
	}
	b.pending = make(map[Kind]*pendingSet)
	b.queued.Store(0)

	if n := batch.Len(); n > 0 {
		b.flushes.Add(1)
		metrics.RecordFlush(n)
	}
	return batch
}

// Stats is a snapshot of buffer counters.
type Stats struct {
	Pending    int64  `json:"pending"`
	Flushes    uint64 `json:"flushes"`
	Overwrites uint64 `json:"overwrites"`
	Dropped    uint64 `json:"dropped"`
}

// Stats returns the current counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Pending:    b.queued.Load(),
		Flushes:    b.flushes.Load(),
		Overwrites: b.overwrites.Load(),
		Dropped:    b.dropped.Load(),
	}
}
