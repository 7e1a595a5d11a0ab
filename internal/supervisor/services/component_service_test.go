// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockRunner blocks until ctx is done unless err is set.
type mockRunner struct {
	err     error
	runs    atomic.Int32
	started chan struct{}
}

func newMockRunner() *mockRunner {
	return &mockRunner{started: make(chan struct{}, 8)}
}

func (m *mockRunner) Run(ctx context.Context) error {
	m.runs.Add(1)
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestComponentService_Interface(t *testing.T) {
	var _ suture.Service = (*ComponentService)(nil)
}

func TestComponentService_Names(t *testing.T) {
	r := newMockRunner()
	tests := []struct {
		svc  *ComponentService
		want string
	}{
		{NewPipelineService(r), NamePipeline},
		{NewCacheJanitorService(r), NameCacheJanitor},
		{NewStoreGCService(r), NameStoreGC},
		{NewCoalescerService(r), NameCoalescer},
		{NewBroadcasterService(r), NameBroadcaster},
		{NewBrokerManagerService(r), NameBrokerManager},
		{NewComponentService("custom", r), "custom"},
	}
	for _, tt := range tests {
		if got := tt.svc.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestComponentService_Serve(t *testing.T) {
	t.Run("returns context error on shutdown", func(t *testing.T) {
		r := newMockRunner()
		svc := NewPipelineService(r)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		<-r.started
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after cancellation")
		}
	})

	t.Run("wraps runner failure with name", func(t *testing.T) {
		boom := errors.New("disk full")
		r := newMockRunner()
		r.err = boom
		svc := NewStoreGCService(r)

		err := svc.Serve(context.Background())
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped runner error, got %v", err)
		}
		if !strings.Contains(err.Error(), NameStoreGC) {
			t.Errorf("error %q does not name the service", err)
		}
	})

	t.Run("early nil return is a failure", func(t *testing.T) {
		svc := NewComponentService("quitter", runnerFunc(func(context.Context) error { return nil }))
		err := svc.Serve(context.Background())
		if err == nil || !strings.Contains(err.Error(), "stopped unexpectedly") {
			t.Errorf("expected unexpected stop error, got %v", err)
		}
	})
}

func TestComponentService_RestartedBySupervisor(t *testing.T) {
	r := newMockRunner()
	r.err = errors.New("transient")
	svc := NewBroadcasterService(r)

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 100,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for r.runs.Load() < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("expected restart, got %d runs", r.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-errCh
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }
