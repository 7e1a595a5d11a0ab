// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/validation"
)

// ManagerConfig controls connection pacing.
type ManagerConfig struct {
	// RetryInterval is the fixed delay between connection attempts.
	RetryInterval time.Duration
	// ConnectTimeout bounds a single dial.
	ConnectTimeout time.Duration
}

// DefaultManagerConfig returns the production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RetryInterval:  5 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer registers d for a URL scheme, replacing any default.
func WithDialer(scheme string, d Dialer) Option {
	return func(m *Manager) {
		m.dialers[scheme] = d
	}
}

// connection is the manager-owned state of one broker session.
type connection struct {
	spec    ConnectionSpec
	created time.Time
	limiter *rate.Limiter
	cancel  context.CancelFunc
	done    chan struct{}

	// removed is set before the session is torn down so deliveries racing
	// the removal are dropped.
	removed  atomic.Bool
	received atomic.Uint64

	mu            sync.Mutex
	status        Status
	lastErr       string
	lastConnected time.Time
}

func (c *connection) info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionInfo{
		ID:               c.spec.ID,
		Name:             c.spec.Name,
		URL:              c.spec.URL,
		Topics:           append([]string(nil), c.spec.Topics...),
		Status:           c.status,
		MessagesReceived: c.received.Load(),
		LastError:        c.lastErr,
		LastConnected:    c.lastConnected,
		CreatedAt:        c.created,
	}
}

// Manager owns the set of broker connections. Every connection runs its own
// goroutine that dials, subscribes and reconnects until removed.
type Manager struct {
	cfg     ManagerConfig
	handler Handler
	dialers map[string]Dialer

	mu     sync.RWMutex
	conns  map[string]*connection
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager delivering inbound messages to handler.
// MQTT (tcp, mqtt, ssl, tls, ws, wss) and NATS (nats) dialers are
// registered by default.
func NewManager(cfg ManagerConfig, handler Handler, opts ...Option) *Manager {
	def := DefaultManagerConfig()
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}

	if handler == nil {
		handler = func(string, string, []byte) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     cfg,
		handler: handler,
		dialers: make(map[string]Dialer),
		conns:   make(map[string]*connection),
		ctx:     ctx,
		cancel:  cancel,
	}

	mqttDialer := NewMQTTDialer()
	for _, scheme := range []string{"tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss"} {
		m.dialers[scheme] = mqttDialer
	}
	m.dialers["nats"] = NewNATSDialer()

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddConnection validates spec and starts connecting in the background. It
// returns the connection id, generating one when spec.ID is empty.
func (m *Manager) AddConnection(spec ConnectionSpec) (string, error) {
	if err := validation.ValidateStruct(spec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	dialer, ok := m.dialers[spec.Scheme()]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, spec.Scheme())
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	spec.Topics = append([]string(nil), spec.Topics...)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	if _, exists := m.conns[spec.ID]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateConnection, spec.ID)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	c := &connection{
		spec:    spec,
		created: time.Now().UTC(),
		limiter: rate.NewLimiter(rate.Every(m.cfg.RetryInterval), 1),
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  StatusDisconnected,
	}
	m.conns[spec.ID] = c
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.BrokerConnectionStatus.WithLabelValues(spec.ID).Set(StatusDisconnected.gaugeValue())
	logging.Info().
		Str("connection", spec.ID).
		Str("url", spec.URL).
		Strs("topics", spec.Topics).
		Msg("Broker connection added")

	go m.run(ctx, c, dialer)
	return spec.ID, nil
}

// RemoveConnection closes the session and stops delivery. Messages that
// arrive after this call returns are dropped.
func (m *Manager) RemoveConnection(id string) error {
	m.mu.Lock()
	c, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}

	m.stop(c)
	metrics.BrokerConnectionStatus.DeleteLabelValues(id)
	logging.Info().Str("connection", id).Msg("Broker connection removed")
	return nil
}

func (m *Manager) stop(c *connection) {
	c.removed.Store(true)
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(m.cfg.ConnectTimeout):
		logging.Warn().Str("connection", c.spec.ID).Msg("Broker session did not close in time")
	}
}

// ListConnections returns a snapshot of all connections ordered by creation.
func (m *Manager) ListConnections() []ConnectionInfo {
	m.mu.RLock()
	out := make([]ConnectionInfo, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c.info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Connection returns the snapshot of one connection.
func (m *Manager) Connection(id string) (ConnectionInfo, bool) {
	m.mu.RLock()
	c, ok := m.conns[id]
	m.mu.RUnlock()
	if !ok {
		return ConnectionInfo{}, false
	}
	return c.info(), true
}

// Stats summarizes all connections.
type Stats struct {
	Connections      int    `json:"connections"`
	Connected        int    `json:"connected"`
	MessagesReceived uint64 `json:"messages_received"`
}

// Stats returns aggregate counters.
func (m *Manager) Stats() Stats {
	var s Stats
	for _, info := range m.ListConnections() {
		s.Connections++
		if info.Status == StatusConnected {
			s.Connected++
		}
		s.MessagesReceived += info.MessagesReceived
	}
	return s
}

// Run blocks until ctx is done, then closes every connection.
func (m *Manager) Run(ctx context.Context) error {
	<-ctx.Done()
	m.Close()
	return ctx.Err()
}

// Close removes all connections and rejects further additions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := make([]*connection, 0, len(m.conns))
	for id, c := range m.conns {
		conns = append(conns, c)
		delete(m.conns, id)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.removed.Store(true)
	}
	m.cancel()
	m.wg.Wait()
	logging.Info().Int("connections", len(conns)).Msg("Broker manager stopped")
}

// run is the connection loop: dial, subscribe, wait for loss, retry.
func (m *Manager) run(ctx context.Context, c *connection, d Dialer) {
	defer m.wg.Done()
	defer close(c.done)

	log := logging.With().Str("connection", c.spec.ID).Logger()
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			break
		}
		if attempt > 0 {
			metrics.BrokerReconnects.WithLabelValues(c.spec.ID).Inc()
		}

		m.setStatus(c, StatusConnecting, nil)
		err := m.session(ctx, c, d)
		if ctx.Err() != nil {
			break
		}
		m.setStatus(c, StatusError, err)
		log.Warn().Err(err).Dur("retry_in", m.cfg.RetryInterval).Msg("Broker connection failed")
	}
	m.setStatus(c, StatusDisconnected, nil)
}

func (m *Manager) session(ctx context.Context, c *connection, d Dialer) error {
	lost := make(chan error, 1)
	onLost := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	client, err := d.Dial(dialCtx, c.spec, onLost)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.spec.URL, err)
	}
	defer client.Close()

	deliver := func(topic string, payload []byte) {
		m.deliver(c, topic, payload)
	}
	subscribed := 0
	for _, topic := range c.spec.Topics {
		if err := client.Subscribe(topic, deliver); err != nil {
			logging.Warn().Err(err).
				Str("connection", c.spec.ID).
				Str("topic", topic).
				Msg("Broker subscription failed")
			continue
		}
		subscribed++
	}

	m.setStatus(c, StatusConnected, nil)
	logging.Info().
		Str("connection", c.spec.ID).
		Int("subscriptions", subscribed).
		Msg("Broker connected")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-lost:
		if err == nil {
			err = errors.New("connection lost")
		}
		return err
	}
}

func (m *Manager) deliver(c *connection, topic string, payload []byte) {
	if c.removed.Load() {
		metrics.BrokerMessagesDropped.Inc()
		return
	}
	c.received.Add(1)
	metrics.BrokerMessagesReceived.WithLabelValues(c.spec.ID).Inc()
	m.handler(c.spec.ID, topic, payload)
}

func (m *Manager) setStatus(c *connection, s Status, err error) {
	c.mu.Lock()
	c.status = s
	if err != nil {
		c.lastErr = err.Error()
	}
	if s == StatusConnected {
		c.lastConnected = time.Now().UTC()
	}
	c.mu.Unlock()

	if !c.removed.Load() {
		metrics.BrokerConnectionStatus.WithLabelValues(c.spec.ID).Set(s.gaugeValue())
	}
}
