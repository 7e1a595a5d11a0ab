// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/meshcast/internal/coalesce"
	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/models"
)

var (
	// ErrDuplicateClient is returned by Register when the id is in use.
	ErrDuplicateClient = errors.New("client already registered")

	// ErrUnknownClient is returned for ids that are not registered.
	ErrUnknownClient = errors.New("unknown client")

	// ErrClientDead is returned by Send when the transport rejected the
	// frame. The client has been removed.
	ErrClientDead = errors.New("client removed after failed send")
)

// Removal reasons, also used as metric labels.
const (
	reasonWriteFailed  = "write_failed"
	reasonUnregistered = "unregistered"
	reasonShutdown     = "shutdown"
)

// Config tunes the hub.
type Config struct {
	// CompressionThreshold is the frame size above which compression is tried.
	CompressionThreshold int
	// CompressionMinBenefit is the minimum size reduction (fraction) for a
	// compressed frame to be used.
	CompressionMinBenefit float64
	// CompressionLevel is the gzip level.
	CompressionLevel int
	// HeartbeatInterval is the idle time after which a heartbeat is sent.
	HeartbeatInterval time.Duration
	// QueueSize is the per-client frame queue of the socket transports.
	QueueSize int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CompressionThreshold:  1024,
		CompressionMinBenefit: 0.10,
		CompressionLevel:      6,
		HeartbeatInterval:     30 * time.Second,
		QueueSize:             DefaultQueueSize,
	}
}

// Client is one live connection.
type Client struct {
	id        string
	transport Transport
	created   time.Time

	filter   atomic.Pointer[matcher]
	messages atomic.Uint64
	bytes    atomic.Uint64
	lastSent atomic.Int64 // unix nanos
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// Transport returns the transport kind.
func (c *Client) Transport() string { return c.transport.Kind() }

// ClientInfo is a snapshot of one client.
type ClientInfo struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	Filtered  bool      `json:"filtered"`
	Messages  uint64    `json:"messages"`
	Bytes     uint64    `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Client) info() ClientInfo {
	return ClientInfo{
		ID:        c.id,
		Transport: c.transport.Kind(),
		Filtered:  c.filter.Load() != nil,
		Messages:  c.messages.Load(),
		Bytes:     c.bytes.Load(),
		CreatedAt: c.created,
	}
}

// BroadcastOptions tunes Broadcast.
type BroadcastOptions struct {
	// ExcludeID skips one client, typically the originator.
	ExcludeID string
}

// Hub is the registry of live clients and the fan-out point for coalesced
// batches and raw packets. Sends are fire-and-forget: a transport that
// rejects a frame is removed and nothing else is affected.
type Hub struct {
	cfg     Config
	encoder *Encoder

	mu      sync.RWMutex
	clients map[string]*Client

	sent    atomic.Uint64
	bytes   atomic.Uint64
	removed atomic.Uint64
}

// NewHub creates a hub. A nil compressor selects gzip at cfg.CompressionLevel.
func NewHub(cfg Config, compressor Compressor) *Hub {
	def := DefaultConfig()
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = def.CompressionThreshold
	}
	if cfg.CompressionMinBenefit <= 0 || cfg.CompressionMinBenefit >= 1 {
		cfg.CompressionMinBenefit = def.CompressionMinBenefit
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if compressor == nil {
		compressor = NewGzipCompressor(cfg.CompressionLevel)
	}
	return &Hub{
		cfg:     cfg,
		encoder: NewEncoder(cfg.CompressionThreshold, cfg.CompressionMinBenefit, compressor),
		clients: make(map[string]*Client),
	}
}

// QueueSize returns the per-client queue length transports should use.
func (h *Hub) QueueSize() int { return h.cfg.QueueSize }

// Register adds a client with filter f (nil matches everything) and sends
// it the connected event. An empty id is replaced by a generated one. The
// filter is in place before the client becomes visible to DeliverBatch and
// PublishRaw.
func (h *Hub) Register(id string, t Transport, f *Filter) (*Client, error) {
	if id == "" {
		id = uuid.NewString()
	}
	c := &Client{id: id, transport: t, created: time.Now().UTC()}
	c.lastSent.Store(c.created.UnixNano())
	c.filter.Store(f.compile())

	h.mu.Lock()
	if _, exists := h.clients[id]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClient, id)
	}
	h.clients[id] = c
	total := len(h.clients)
	h.mu.Unlock()

	metrics.LiveClients.WithLabelValues(t.Kind()).Inc()
	logging.Debug().
		Str("client", id).
		Str("transport", t.Kind()).
		Int("total_clients", total).
		Msg("Live client registered")

	if err := h.Send(id, NewEvent(EventConnected, ConnectedData{ClientID: id, Transport: t.Kind()})); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateFilter replaces the client's filter. A nil or empty filter matches
// everything.
func (h *Hub) UpdateFilter(id string, f *Filter) error {
	c, ok := h.client(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	c.filter.Store(f.compile())
	return nil
}

// Send delivers ev to one client.
func (h *Hub) Send(id string, ev Event) error {
	c, ok := h.client(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	frame, err := h.encoder.Encode(ev)
	if err != nil {
		return err
	}
	if !h.deliver(c, frame) {
		return fmt.Errorf("%w: %s", ErrClientDead, id)
	}
	return nil
}

// Broadcast sends ev to every client except opts.ExcludeID, ignoring
// filters. It returns the number of clients that accepted the frame.
func (h *Hub) Broadcast(ev Event, opts BroadcastOptions) int {
	frame, err := h.encoder.Encode(ev)
	if err != nil {
		logging.Error().Err(err).Str("type", ev.Type).Msg("Failed to encode broadcast event")
		return 0
	}
	delivered := 0
	for _, c := range h.snapshot() {
		if c.id == opts.ExcludeID {
			continue
		}
		if h.deliver(c, frame) {
			delivered++
		}
	}
	return delivered
}

// Unregister removes a client. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	if c, ok := h.client(id); ok {
		h.remove(c, reasonUnregistered)
	}
}

// DeliverBatch fans a coalesced batch out to every client. Each client gets
// at most one event per kind holding only the entities its filter accepts;
// kinds with no matching entity are skipped. It returns the number of frames
// sent.
func (h *Hub) DeliverBatch(batch coalesce.Batch) int {
	if batch.Empty() {
		return 0
	}
	clients := h.snapshot()
	if len(clients) == 0 {
		return 0
	}
	ts := batch.FlushedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	// Frames for unfiltered clients are encoded once per kind.
	shared := make(map[coalesce.Kind]Frame)
	sharedFrame := func(kind coalesce.Kind) (Frame, error) {
		if f, ok := shared[kind]; ok {
			return f, nil
		}
		f, err := h.encoder.Encode(Event{
			Type:      EventTypeForKind(kind),
			Timestamp: ts,
			Data:      entities(batch.Entries[kind], nil, ""),
		})
		if err == nil {
			shared[kind] = f
		}
		return f, err
	}

	sent := 0
	for _, c := range clients {
		m := c.filter.Load()
		for _, kind := range coalesce.Kinds {
			entries := batch.Entries[kind]
			if len(entries) == 0 {
				continue
			}
			eventType := EventTypeForKind(kind)

			var (
				frame Frame
				err   error
			)
			if m == nil {
				frame, err = sharedFrame(kind)
			} else {
				if !m.allowsType(eventType) {
					continue
				}
				matching := entities(entries, m, eventType)
				if len(matching) == 0 {
					continue
				}
				frame, err = h.encoder.Encode(Event{Type: eventType, Timestamp: ts, Data: matching})
			}
			if err != nil {
				logging.Error().Err(err).Str("type", eventType).Msg("Failed to encode batch event")
				continue
			}
			if !h.deliver(c, frame) {
				break
			}
			sent++
		}
	}
	return sent
}

func entities(entries []coalesce.Entry, m *matcher, eventType string) []models.Entity {
	out := make([]models.Entity, 0, len(entries))
	for _, e := range entries {
		if e.Value == nil {
			continue
		}
		if m != nil && !m.matches(eventType, e.Value) {
			continue
		}
		out = append(out, e.Value)
	}
	return out
}

// PublishRaw forwards a raw packet to every client whose node and channel
// filters accept it. Kind filters do not apply to raw packets.
func (h *Hub) PublishRaw(p RawPacket) int {
	clients := h.snapshot()
	if len(clients) == 0 {
		return 0
	}
	frame, err := h.encoder.Encode(NewEvent(EventRawPacket, p))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to encode raw packet")
		return 0
	}
	delivered := 0
	for _, c := range clients {
		if !c.filter.Load().matchesRaw(p.NodeID, p.Channel) {
			continue
		}
		if h.deliver(c, frame) {
			delivered++
		}
	}
	return delivered
}

// Run sends heartbeats to idle clients until ctx is done, then closes every
// client.
func (h *Hub) Run(ctx context.Context) error {
	tick := h.cfg.HeartbeatInterval / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n := h.closeAll()
			logging.Info().
				Str("component", "broadcast-hub").
				Int("clients_closed", n).
				Msg("Broadcast hub stopped")
			return ctx.Err()
		case now := <-ticker.C:
			h.heartbeat(now)
		}
	}
}

func (h *Hub) heartbeat(now time.Time) {
	idleSince := now.Add(-h.cfg.HeartbeatInterval).UnixNano()
	var frame *Frame
	for _, c := range h.snapshot() {
		if c.lastSent.Load() > idleSince {
			continue
		}
		if frame == nil {
			f, err := h.encoder.Encode(Event{Type: EventHeartbeat, Timestamp: now.UTC()})
			if err != nil {
				return
			}
			frame = &f
		}
		h.deliver(c, *frame)
	}
}

// Stats summarizes the registry.
type Stats struct {
	Clients        int            `json:"clients"`
	ByTransport    map[string]int `json:"by_transport"`
	FramesSent     uint64         `json:"frames_sent"`
	BytesSent      uint64         `json:"bytes_sent"`
	ClientsRemoved uint64         `json:"clients_removed"`
}

// Stats returns registry counters.
func (h *Hub) Stats() Stats {
	s := Stats{ByTransport: make(map[string]int)}
	for _, c := range h.snapshot() {
		s.Clients++
		s.ByTransport[c.transport.Kind()]++
	}
	s.FramesSent = h.sent.Load()
	s.BytesSent = h.bytes.Load()
	s.ClientsRemoved = h.removed.Load()
	return s
}

// Clients returns a snapshot of every client ordered by creation.
func (h *Hub) Clients() []ClientInfo {
	clients := h.snapshot()
	out := make([]ClientInfo, len(clients))
	for i, c := range clients {
		out[i] = c.info()
	}
	return out
}

func (h *Hub) client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// snapshot copies the registry so fan-out runs without holding the lock.
// Clients are ordered by creation time, then id.
func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		if clients[i].created.Equal(clients[j].created) {
			return clients[i].id < clients[j].id
		}
		return clients[i].created.Before(clients[j].created)
	})
	return clients
}

// deliver hands frame to the client's transport and removes the client when
// the transport refuses it.
func (h *Hub) deliver(c *Client, frame Frame) bool {
	if err := c.transport.Send(frame); err != nil {
		logging.Debug().Err(err).Str("client", c.id).Msg("Live client send failed, removing")
		h.remove(c, reasonWriteFailed)
		return false
	}
	size := uint64(frame.Size())
	c.messages.Add(1)
	c.bytes.Add(size)
	c.lastSent.Store(time.Now().UnixNano())
	h.sent.Add(1)
	h.bytes.Add(size)
	metrics.RecordFrame(frame.Type, frame.Size(), frame.Encoding == EncodingGzip)
	return true
}

// remove deletes c if it is still the registered client for its id.
func (h *Hub) remove(c *Client, reason string) {
	h.mu.Lock()
	current, ok := h.clients[c.id]
	if ok && current == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	if !ok || current != c {
		return
	}

	c.transport.Close()
	h.removed.Add(1)
	metrics.LiveClients.WithLabelValues(c.transport.Kind()).Dec()
	metrics.ClientsRemoved.WithLabelValues(reason).Inc()
	logging.Debug().
		Str("client", c.id).
		Str("reason", reason).
		Uint64("messages", c.messages.Load()).
		Msg("Live client removed")
}

func (h *Hub) closeAll() int {
	clients := h.snapshot()
	for _, c := range clients {
		h.remove(c, reasonShutdown)
	}
	return len(clients)
}
