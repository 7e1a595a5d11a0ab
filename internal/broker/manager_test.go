// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/meshcast/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type fakeClient struct {
	mu         sync.Mutex
	subs       map[string]MessageFunc
	failTopics map[string]bool
	onLost     func(error)
	closed     bool
}

func (c *fakeClient) Subscribe(topic string, fn MessageFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failTopics[topic] {
		return errors.New("not authorized")
	}
	c.subs[topic] = fn
	return nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) subscription(topic string) MessageFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[topic]
}

func (c *fakeClient) subscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	failFirst  int
	failTopics map[string]bool
	clients    []*fakeClient
}

func (d *fakeDialer) Dial(_ context.Context, _ ConnectionSpec, onLost func(error)) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failFirst {
		return nil, errors.New("connection refused")
	}
	c := &fakeClient{subs: make(map[string]MessageFunc), failTopics: d.failTopics, onLost: onLost}
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastClient() *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

type delivery struct {
	connID, topic string
	payload       []byte
}

type recorder struct {
	mu   sync.Mutex
	msgs []delivery
}

func (r *recorder) handle(connID, topic string, payload []byte) {
	r.mu.Lock()
	r.msgs = append(r.msgs, delivery{connID, topic, payload})
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(t *testing.T, d *fakeDialer, h Handler) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{RetryInterval: 10 * time.Millisecond, ConnectTimeout: time.Second}, h,
		WithDialer("fake", d))
	t.Cleanup(m.Close)
	return m
}

func statusOf(m *Manager, id string) Status {
	info, ok := m.Connection(id)
	if !ok {
		return ""
	}
	return info.Status
}

func fakeSpec(id string, topics ...string) ConnectionSpec {
	if len(topics) == 0 {
		topics = []string{"msh/#"}
	}
	return ConnectionSpec{ID: id, Name: id, URL: "fake://broker:1883", Topics: topics}
}

func TestManager_ConnectsSubscribesAndDelivers(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	m := newTestManager(t, d, rec.handle)

	id, err := m.AddConnection(fakeSpec("c1", "msh/US/#", "msh/EU/#"))
	if err != nil || id != "c1" {
		t.Fatalf("AddConnection = %q, %v", id, err)
	}
	waitFor(t, "connected", func() bool { return statusOf(m, "c1") == StatusConnected })

	client := d.lastClient()
	if n := client.subscriptionCount(); n != 2 {
		t.Fatalf("subscriptions = %d, want 2", n)
	}
	client.subscription("msh/US/#")("msh/US/2/e/LongFast/!abcd", []byte{1, 2})

	if rec.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", rec.count())
	}
	got := rec.msgs[0]
	if got.connID != "c1" || got.topic != "msh/US/2/e/LongFast/!abcd" {
		t.Errorf("delivery = %+v", got)
	}
	info, _ := m.Connection("c1")
	if info.MessagesReceived != 1 || info.LastConnected.IsZero() {
		t.Errorf("info = %+v", info)
	}
}

func TestManager_DuplicateAddFailsWithoutMutation(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	if _, err := m.AddConnection(fakeSpec("c1", "a/#")); err != nil {
		t.Fatal(err)
	}
	dup := fakeSpec("c1", "b/#")
	dup.Name = "other"
	if _, err := m.AddConnection(dup); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("err = %v, want ErrDuplicateConnection", err)
	}

	conns := m.ListConnections()
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1", len(conns))
	}
	if conns[0].Name != "c1" || conns[0].Topics[0] != "a/#" {
		t.Errorf("existing connection mutated: %+v", conns[0])
	}
	waitFor(t, "connected", func() bool { return statusOf(m, "c1") == StatusConnected })
	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", d.dialCount())
	}
}

func TestManager_RemoveStopsDelivery(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	m := newTestManager(t, d, rec.handle)

	m.AddConnection(fakeSpec("c1"))
	waitFor(t, "connected", func() bool { return statusOf(m, "c1") == StatusConnected })
	client := d.lastClient()
	deliver := client.subscription("msh/#")

	if err := m.RemoveConnection("c1"); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	if !client.isClosed() {
		t.Error("session not closed on removal")
	}

	// A message racing the removal must be dropped.
	deliver("msh/late", []byte("x"))
	if rec.count() != 0 {
		t.Errorf("deliveries after removal = %d", rec.count())
	}
	if len(m.ListConnections()) != 0 {
		t.Error("connection still listed")
	}
	if err := m.RemoveConnection("c1"); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("second remove err = %v, want ErrUnknownConnection", err)
	}
}

func TestManager_RetriesFailedDials(t *testing.T) {
	d := &fakeDialer{failFirst: 2}
	m := newTestManager(t, d, nil)

	m.AddConnection(fakeSpec("c1"))
	waitFor(t, "connected", func() bool { return statusOf(m, "c1") == StatusConnected })

	if d.dialCount() != 3 {
		t.Errorf("dials = %d, want 3", d.dialCount())
	}
	info, _ := m.Connection("c1")
	if info.LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestManager_ReconnectsAfterLoss(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	m.AddConnection(fakeSpec("c1"))
	waitFor(t, "connected", func() bool { return statusOf(m, "c1") == StatusConnected })
	first := d.lastClient()

	first.onLost(errors.New("EOF"))
	waitFor(t, "second dial", func() bool { return d.dialCount() == 2 })
	waitFor(t, "reconnected", func() bool { return statusOf(m, "c1") == StatusConnected })

	if !first.isClosed() {
		t.Error("lost session not closed")
	}
	if d.lastClient() == first {
		t.Error("expected a new session")
	}
}

func TestManager_SubscriptionFailureDoesNotAbort(t *testing.T) {
	d := &fakeDialer{failTopics: map[string]bool{"private/#": true}}
	m := newTestManager(t, d, nil)

	m.AddConnection(fakeSpec("c1", "private/#", "msh/#"))
	waitFor(t, "connected", func() bool { return statusOf(m, "c1") == StatusConnected })
	if n := d.lastClient().subscriptionCount(); n != 1 {
		t.Errorf("subscriptions = %d, want 1", n)
	}
}

func TestManager_RejectsInvalidSpecs(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, nil)

	tests := []struct {
		name string
		spec ConnectionSpec
		want error
	}{
		{"missing url", ConnectionSpec{Topics: []string{"a"}}, ErrInvalidSpec},
		{"no topics", ConnectionSpec{URL: "fake://h"}, ErrInvalidSpec},
		{"empty topic", ConnectionSpec{URL: "fake://h", Topics: []string{""}}, ErrInvalidSpec},
		{"wildcard mid topic", ConnectionSpec{URL: "fake://h", Topics: []string{"msh/#/e"}}, ErrInvalidSpec},
		{"id with slash", ConnectionSpec{ID: "a/b", URL: "fake://h", Topics: []string{"a"}}, ErrInvalidSpec},
		{"unknown scheme", ConnectionSpec{URL: "gopher://h", Topics: []string{"a"}}, ErrUnsupportedScheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.AddConnection(tt.spec); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(m.ListConnections()) != 0 {
		t.Error("invalid spec was registered")
	}
}

func TestManager_GeneratesIDAndStats(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	id, err := m.AddConnection(ConnectionSpec{URL: "fake://h", Topics: []string{"msh/#"}})
	if err != nil || id == "" {
		t.Fatalf("AddConnection = %q, %v", id, err)
	}
	waitFor(t, "connected", func() bool { return statusOf(m, id) == StatusConnected })

	s := m.Stats()
	if s.Connections != 1 || s.Connected != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestManager_RunClosesOnCancel(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)
	m.AddConnection(fakeSpec("c1"))
	waitFor(t, "connected", func() bool { return statusOf(m, "c1") == StatusConnected })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if !d.lastClient().isClosed() {
		t.Error("session left open")
	}
	if _, err := m.AddConnection(fakeSpec("c2")); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("add after close err = %v", err)
	}
}
