// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/meshcast/internal/broadcast"
	"github.com/tomtom215/meshcast/internal/cache"
	"github.com/tomtom215/meshcast/internal/classifier"
	"github.com/tomtom215/meshcast/internal/coalesce"
	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/models"
	"github.com/tomtom215/meshcast/internal/store"
)

// Config sizes the persistence worker pool.
type Config struct {
	// QueueSize bounds the records waiting for a worker. Ingest drops
	// records when the queue is full.
	QueueSize int
	// Workers is the number of persistence goroutines.
	Workers int
	// WriteTimeout bounds one store write.
	WriteTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:    4096,
		Workers:      4,
		WriteTimeout: 5 * time.Second,
	}
}

// Invalidator is the write-side view of the hot-state cache.
type Invalidator interface {
	InvalidateNode(id string)
	InvalidatePosition(nodeID string)
}

// Queuer accepts coalesced updates.
type Queuer interface {
	Queue(kind coalesce.Kind, key string, value models.Entity) bool
}

// Deduplicator reports whether a packet key was already processed.
type Deduplicator interface {
	Seen(key string) bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDeduplicator skips records of packets relayed by more than one
// gateway. Raw passthrough still sees every copy.
func WithDeduplicator(d Deduplicator) Option {
	return func(p *Pipeline) { p.dedup = d }
}

// RawPublisher forwards classified packets without coalescing.
type RawPublisher interface {
	PublishRaw(p broadcast.RawPacket) int
}

// Stats holds pipeline counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Records    uint64 `json:"records"`
	Persisted  uint64 `json:"persisted"`
	Conflicts  uint64 `json:"conflicts"`
	Failed     uint64 `json:"failed"`
	Rejected   uint64 `json:"rejected"`
	Dropped    uint64 `json:"dropped"`
	Duplicates uint64 `json:"duplicates"`
	QueueDepth int    `json:"queue_depth"`
}

// Pipeline routes each broker message through the classifier and on to
// persistence, cache invalidation, the coalescing buffer and raw passthrough.
// Ingest never blocks: persistence runs on a bounded worker queue.
type Pipeline struct {
	cfg        Config
	classifier *classifier.Classifier
	writer     store.Writer
	cache      Invalidator
	buffer     Queuer
	raw        RawPublisher
	dedup      Deduplicator

	jobs chan persistJob

	received  atomic.Uint64
	records   atomic.Uint64
	persisted atomic.Uint64
	conflicts atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64
	dupes     atomic.Uint64
}

// New creates a pipeline. cache and raw may be nil.
func New(cfg Config, c *classifier.Classifier, w store.Writer, cache Invalidator, buffer Queuer, raw RawPublisher, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if c == nil {
		c = classifier.New()
	}
	p := &Pipeline{
		cfg:        cfg,
		classifier: c,
		writer:     w,
		cache:      cache,
		buffer:     buffer,
		raw:        raw,
		jobs:       make(chan persistJob, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest handles one broker message. It matches broker.Handler.
func (p *Pipeline) Ingest(connectionID, topic string, payload []byte) {
	p.received.Add(1)
	msg := p.classifier.Classify(topic, payload)

	metrics.PacketsClassified.WithLabelValues(string(msg.Kind)).Inc()
	if msg.Kind == classifier.KindParseError {
		logging.Debug().
			Err(msg.Err).
			Str("connection", connectionID).
			Str("topic", topic).
			Msg("Unparseable packet")
	} else if structuredKind(msg.Kind) && !msg.HasPayload() {
		metrics.PacketsIncomplete.WithLabelValues(string(msg.Kind)).Inc()
	}

	if p.raw != nil {
		p.raw.PublishRaw(rawPacket(connectionID, msg))
	}

	if p.duplicate(&msg) {
		return
	}

	recs := recordsFor(&msg)
	if len(recs) == 0 {
		return
	}
	touch := touchNode(&msg)
	for _, r := range recs {
		p.records.Add(1)
		p.enqueue(persistJob{record: r, touch: touch})
		p.buffer.Queue(r.kind, r.key, r.value)
	}
}

// duplicate reports whether msg is a copy of an already processed packet.
// Packets without sender or id can not be matched and always pass.
func (p *Pipeline) duplicate(msg *classifier.Message) bool {
	if p.dedup == nil || msg.NodeNum == 0 || msg.PacketID == 0 || !msg.HasPayload() {
		return false
	}
	if !p.dedup.Seen(cache.PacketKey(msg.NodeNum, msg.PacketID)) {
		return false
	}
	p.dupes.Add(1)
	metrics.PacketsDuplicate.Inc()
	return true
}

func (p *Pipeline) enqueue(j persistJob) {
	select {
	case p.jobs <- j:
		metrics.PersistQueueDepth.Set(float64(len(p.jobs)))
	default:
		p.dropped.Add(1)
		metrics.PersistQueueDropped.Inc()
		logging.Warn().
			Str("record", string(j.record.kind)).
			Str("key", j.record.key).
			Msg("Persistence queue full, dropping record")
	}
}

// Run starts the persistence workers and blocks until ctx is done. Records
// still queued at shutdown are written before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	done := make(chan struct{})
	for i := 0; i < p.cfg.Workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			p.worker(ctx)
		}()
	}
	for i := 0; i < p.cfg.Workers; i++ {
		<-done
	}

	drained := p.drain(context.WithoutCancel(ctx))
	logging.Info().
		Str("component", "pipeline").
		Int("drained", drained).
		Msg("Persistence workers stopped")
	return ctx.Err()
}

func (p *Pipeline) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			metrics.PersistQueueDepth.Set(float64(len(p.jobs)))
			p.persist(ctx, j)
		}
	}
}

func (p *Pipeline) drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case j := <-p.jobs:
			p.persist(ctx, j)
			n++
		default:
			metrics.PersistQueueDepth.Set(0)
			return n
		}
	}
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:   p.received.Load(),
		Records:    p.records.Load(),
		Persisted:  p.persisted.Load(),
		Conflicts:  p.conflicts.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
		Dropped:    p.dropped.Load(),
		Duplicates: p.dupes.Load(),
		QueueDepth: len(p.jobs),
	}
}

func structuredKind(k classifier.Kind) bool {
	switch k {
	case classifier.KindNodeInfo, classifier.KindPosition, classifier.KindTelemetry,
		classifier.KindText, classifier.KindMapReport:
		return true
	}
	return false
}

func rawPacket(connectionID string, msg classifier.Message) broadcast.RawPacket {
	rp := broadcast.RawPacket{
		ConnectionID: connectionID,
		Topic:        msg.Topic,
		Kind:         string(msg.Kind),
		NodeID:       msg.NodeID,
		Channel:      msg.Channel,
		GatewayID:    msg.GatewayID,
		PacketID:     msg.PacketID,
		SNR:          msg.SNR,
		RSSI:         msg.RSSI,
		HopLimit:     msg.HopLimit,
		Payload:      rawPayload(msg.Payload),
	}
	if msg.Err != nil {
		rp.Error = msg.Err.Error()
	}
	return rp
}

// rawPayload unwraps the structured payloads so raw events carry the record
// itself rather than its wrapper.
func rawPayload(p classifier.Payload) any {
	switch v := p.(type) {
	case nil:
		return nil
	case classifier.NodeInfo:
		return v.Node
	case classifier.PositionReport:
		return v.Position
	case classifier.TelemetryReport:
		return v.Telemetry
	case classifier.TextMessage:
		return v.Message
	case classifier.MapReport:
		return map[string]any{"nodes": v.Nodes, "positions": v.Positions}
	default:
		return v
	}
}
