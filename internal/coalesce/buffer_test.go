// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package coalesce

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type sinkRecorder struct {
	mu      sync.Mutex
	batches []Batch
}

func (s *sinkRecorder) sink(_ context.Context, b Batch) {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func startBuffer(t *testing.T, cfg Config, sink Sink) *Buffer {
	t.Helper()
	b := New(cfg, sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return b
}

func pos(id string, lat float64) *models.Position {
	return &models.Position{NodeID: id, Latitude: lat, Longitude: 1}
}

func TestBuffer_QueueOverwritesSameKey(t *testing.T) {
	b := startBuffer(t, Config{FlushInterval: time.Hour}, nil)

	b.Queue(KindPosition, "!a", pos("!a", 1))
	b.Queue(KindPosition, "!a", pos("!a", 2))

	batch := b.Flush(context.Background())
	entries := batch.Entries[KindPosition]
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := entries[0].Value.(*models.Position).Latitude; got != 2 {
		t.Errorf("latitude = %v, want the later value 2", got)
	}
	if s := b.Stats(); s.Overwrites != 1 {
		t.Errorf("Overwrites = %d, want 1", s.Overwrites)
	}
}

func TestBuffer_FlushGroupsByKindInFirstQueuedOrder(t *testing.T) {
	b := startBuffer(t, Config{FlushInterval: time.Hour}, nil)

	b.Queue(KindPosition, "!b", pos("!b", 1))
	b.Queue(KindPosition, "!a", pos("!a", 1))
	b.Queue(KindNode, "!a", &models.Node{ID: "!a"})
	b.Queue(KindPosition, "!b", pos("!b", 9))

	batch := b.Flush(context.Background())
	if batch.Len() != 3 {
		t.Fatalf("Len = %d, want 3", batch.Len())
	}
	ps := batch.Entries[KindPosition]
	if ps[0].Key != "!b" || ps[1].Key != "!a" {
		t.Errorf("order = %s, %s", ps[0].Key, ps[1].Key)
	}
	if ps[0].Value.(*models.Position).Latitude != 9 {
		t.Error("overwrite did not keep the slot of the first queue")
	}
	if len(batch.Entries[KindNode]) != 1 {
		t.Errorf("node entries = %d", len(batch.Entries[KindNode]))
	}
}

func TestBuffer_FlushClearsPending(t *testing.T) {
	b := startBuffer(t, Config{FlushInterval: time.Hour}, nil)
	b.Queue(KindMessage, "1", &models.Message{ID: 1})

	if first := b.Flush(context.Background()); first.Len() != 1 {
		t.Fatalf("first flush Len = %d", first.Len())
	}
	if second := b.Flush(context.Background()); !second.Empty() {
		t.Errorf("second flush Len = %d, want 0", second.Len())
	}
}

func TestBuffer_EmptyTicksNeverReachSink(t *testing.T) {
	rec := &sinkRecorder{}
	b := startBuffer(t, Config{FlushInterval: 5 * time.Millisecond}, rec.sink)

	time.Sleep(40 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Fatalf("sink called %d times for empty flushes", n)
	}

	b.Queue(KindNode, "!a", &models.Node{ID: "!a"})
	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)

	if n := rec.count(); n != 1 {
		t.Fatalf("sink calls = %d, want 1", n)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.batches[0].Len() != 1 {
		t.Errorf("batch Len = %d", rec.batches[0].Len())
	}
}

func TestBuffer_QueueDropsWhenFull(t *testing.T) {
	b := New(Config{FlushInterval: time.Hour, CommandQueue: 1}, nil)

	if !b.Queue(KindNode, "!a", &models.Node{ID: "!a"}) {
		t.Fatal("first queue dropped")
	}
	if b.Queue(KindNode, "!b", &models.Node{ID: "!b"}) {
		t.Error("queue past capacity should drop")
	}
	if s := b.Stats(); s.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped)
	}
}

func TestBuffer_FlushHonoursContext(t *testing.T) {
	b := New(Config{FlushInterval: time.Hour, CommandQueue: 1}, nil)
	b.Queue(KindNode, "!a", &models.Node{ID: "!a"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if batch := b.Flush(ctx); !batch.Empty() {
		t.Error("expected empty batch when nothing runs the buffer")
	}
}

func TestBuffer_ShutdownFlushesToSink(t *testing.T) {
	rec := &sinkRecorder{}
	b := New(Config{FlushInterval: time.Hour}, rec.sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Queue(KindTelemetry, "!a", &models.Telemetry{NodeID: "!a"})
	b.Flush(context.Background()) // barrier: the queue above has been applied
	b.Queue(KindTelemetry, "!a", &models.Telemetry{NodeID: "!a"})
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("sink calls on shutdown = %d, want 1", rec.count())
	}
}
