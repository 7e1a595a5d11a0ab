// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/models"
)

// failingStore returns err from every write.
type failingStore struct {
	Store
	err   error
	calls int
}

func (f *failingStore) UpsertNode(context.Context, *models.Node) error {
	f.calls++
	return f.err
}

func TestGuarded_ConflictsDoNotTrip(t *testing.T) {
	inner := &failingStore{err: ErrDuplicate}
	g := NewGuarded(inner, BreakerConfig{Name: "test-conflict", FailureThreshold: 2, Timeout: time.Minute})

	for i := 0; i < 10; i++ {
		if err := g.UpsertNode(context.Background(), &models.Node{ID: "!1"}); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if g.State() != "closed" {
		t.Errorf("state = %s, want closed", g.State())
	}
	if inner.calls != 10 {
		t.Errorf("calls = %d, want 10", inner.calls)
	}
}

func TestGuarded_TripsOnBackendFailures(t *testing.T) {
	inner := &failingStore{err: errors.New("connection refused")}
	g := NewGuarded(inner, BreakerConfig{Name: "test-trip", FailureThreshold: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		g.UpsertNode(context.Background(), &models.Node{ID: "!1"})
	}
	if g.State() != "open" {
		t.Fatalf("state = %s, want open", g.State())
	}

	err := g.UpsertNode(context.Background(), &models.Node{ID: "!1"})
	if !IsUnavailable(err) {
		t.Errorf("err = %v, want breaker rejection", err)
	}
	if inner.calls != 3 {
		t.Errorf("backend called %d times, want 3", inner.calls)
	}
	if v := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-trip")); v != 2 {
		t.Errorf("breaker gauge = %v, want 2", v)
	}
}

func TestGuarded_PassesThroughReads(t *testing.T) {
	s := newTestBadger(t)
	g := NewGuarded(s, DefaultBreakerConfig())
	ctx := context.Background()

	mustUpsert(t, g, &models.Node{ID: "!00000001", Num: 1, LongName: "Alpha", LastHeard: baseTime})
	n, err := g.GetNode(ctx, "!00000001")
	if err != nil || n.LongName != "Alpha" {
		t.Fatalf("GetNode = %v, %v", n, err)
	}
	if _, err := g.GetNode(ctx, "!00000002"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := g.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
