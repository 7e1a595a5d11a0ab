// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUpsert(t *testing.T, s Store, n *models.Node) {
	t.Helper()
	if err := s.UpsertNode(context.Background(), n); err != nil {
		t.Fatalf("UpsertNode(%s): %v", n.ID, err)
	}
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	if _, err := OpenBadger(BadgerConfig{}); err == nil {
		t.Fatal("expected error without path")
	}
}

func TestBadger_UpsertNodeMerges(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()

	mustUpsert(t, s, &models.Node{ID: "!00000001", Num: 1, LongName: "Alpha", HWModel: "TBEAM", LastHeard: baseTime})
	mustUpsert(t, s, &models.Node{ID: "!00000001", Num: 1, SNR: models.Float64(5.5), LastHeard: baseTime.Add(-time.Hour)})

	n, err := s.GetNode(ctx, "!00000001")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if n.LongName != "Alpha" || n.HWModel != "TBEAM" {
		t.Errorf("identity lost on merge: %+v", n)
	}
	if n.SNR == nil || *n.SNR != 5.5 {
		t.Errorf("SNR = %v, want 5.5", n.SNR)
	}
	if !n.LastHeard.Equal(baseTime) {
		t.Errorf("LastHeard moved backwards to %v", n.LastHeard)
	}
}

func TestBadger_GetNodeNotFound(t *testing.T) {
	s := newTestBadger(t)
	if _, err := s.GetNode(context.Background(), "!deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetLatestPosition(context.Background(), "!deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Errorf("latest position err = %v, want ErrNotFound", err)
	}
}

func TestBadger_ChildRecordsRequireNode(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()

	err := s.InsertPosition(ctx, &models.Position{NodeID: "!00000009", Latitude: 1, Longitude: 1, Time: baseTime})
	if !errors.Is(err, ErrForeignKey) {
		t.Errorf("position err = %v, want ErrForeignKey", err)
	}
	err = s.InsertTelemetry(ctx, &models.Telemetry{NodeID: "!00000009", Time: baseTime})
	if !errors.Is(err, ErrForeignKey) {
		t.Errorf("telemetry err = %v, want ErrForeignKey", err)
	}
	err = s.InsertMessage(ctx, &models.Message{ID: 7, From: "!00000009", Text: "hi", RxTime: baseTime})
	if !errors.Is(err, ErrForeignKey) {
		t.Errorf("message err = %v, want ErrForeignKey", err)
	}
	if !IsConflict(err) {
		t.Error("IsConflict should report foreign key violations")
	}
}

func TestBadger_DuplicatesRejected(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()
	mustUpsert(t, s, &models.Node{ID: "!00000001", Num: 1, LastHeard: baseTime})

	p := &models.Position{NodeID: "!00000001", Latitude: 12, Longitude: 34, Time: baseTime}
	if err := s.InsertPosition(ctx, p); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := s.InsertPosition(ctx, p); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second position insert err = %v, want ErrDuplicate", err)
	}

	m := &models.Message{ID: 42, From: "!00000001", To: "!ffffffff", Text: "hello", RxTime: baseTime}
	if err := s.InsertMessage(ctx, m); err != nil {
		t.Fatalf("first message: %v", err)
	}
	if err := s.InsertMessage(ctx, m); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second message err = %v, want ErrDuplicate", err)
	}
	mustUpsert(t, s, &models.Node{ID: "!00000002", Num: 2, LastHeard: baseTime})
	other := &models.Message{ID: 42, From: "!00000002", To: "!ffffffff", Text: "hi", RxTime: baseTime}
	if err := s.InsertMessage(ctx, other); err != nil {
		t.Errorf("same packet id from another sender: %v", err)
	}

	tel := &models.Telemetry{NodeID: "!00000001", Time: baseTime, Device: &models.DeviceMetrics{Voltage: models.Float64(3.7)}}
	if err := s.InsertTelemetry(ctx, tel); err != nil {
		t.Fatalf("first telemetry: %v", err)
	}
	if err := s.InsertTelemetry(ctx, tel); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second telemetry err = %v, want ErrDuplicate", err)
	}
}

func TestBadger_ExhaustedRetriesAreConflicts(t *testing.T) {
	s := newTestBadger(t)
	attempts := 0
	err := s.update(context.Background(), func(*badger.Txn) error {
		attempts++
		return badger.ErrConflict
	})

	if attempts != maxTxnRetries {
		t.Errorf("attempts = %d, want %d", attempts, maxTxnRetries)
	}
	if !errors.Is(err, ErrTxnConflict) || !IsConflict(err) {
		t.Errorf("err = %v, want ErrTxnConflict reported by IsConflict", err)
	}
}

func TestBadger_PositionHistoryNewestFirst(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()
	mustUpsert(t, s, &models.Node{ID: "!00000001", Num: 1, LastHeard: baseTime})
	mustUpsert(t, s, &models.Node{ID: "!00000002", Num: 2, LastHeard: baseTime})

	for i := 0; i < 5; i++ {
		p := &models.Position{NodeID: "!00000001", Latitude: float64(i + 1), Longitude: 1, Time: baseTime.Add(time.Duration(i) * time.Minute)}
		if err := s.InsertPosition(ctx, p); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := s.InsertPosition(ctx, &models.Position{NodeID: "!00000002", Latitude: 99, Longitude: 1, Time: baseTime.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	ps, err := s.GetPositionHistory(ctx, "!00000001", 3)
	if err != nil {
		t.Fatalf("GetPositionHistory: %v", err)
	}
	if len(ps) != 3 {
		t.Fatalf("len = %d, want 3", len(ps))
	}
	for i, want := range []float64{5, 4, 3} {
		if ps[i].Latitude != want {
			t.Errorf("ps[%d].Latitude = %v, want %v", i, ps[i].Latitude, want)
		}
	}

	latest, err := s.GetLatestPosition(ctx, "!00000001")
	if err != nil || latest.Latitude != 5 {
		t.Errorf("latest = %v, %v", latest, err)
	}
}

func TestBadger_ListRecentNodes(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()

	mustUpsert(t, s, &models.Node{ID: "!00000001", Num: 1, LastHeard: baseTime})
	mustUpsert(t, s, &models.Node{ID: "!00000002", Num: 2, LastHeard: baseTime.Add(time.Minute)})
	mustUpsert(t, s, &models.Node{ID: "!00000003", Num: 3, LastHeard: baseTime.Add(2 * time.Minute)})
	// Hearing node 1 again moves it to the front.
	mustUpsert(t, s, &models.Node{ID: "!00000001", Num: 1, LastHeard: baseTime.Add(3 * time.Minute)})

	nodes, err := s.ListRecentNodes(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentNodes: %v", err)
	}
	var ids []string
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	want := []string{"!00000001", "!00000003", "!00000002"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}

	top, _ := s.ListRecentNodes(ctx, 1)
	if len(top) != 1 || top[0].ID != "!00000001" {
		t.Errorf("limit 1 = %v", top)
	}
}

func TestBadger_ClosedStore(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after close = %v, want ErrClosed", err)
	}
}

func TestBadger_RunStopsOnCancel(t *testing.T) {
	s := newTestBadger(t)
	s.cfg.GCInterval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultHistoryLimit},
		{-5, DefaultHistoryLimit},
		{10, 10},
		{MaxHistoryLimit + 1, MaxHistoryLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
