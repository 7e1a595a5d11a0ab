// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/meshcast/internal/models"
	"github.com/tomtom215/meshcast/internal/testinfra"
)

func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	testinfra.CleanupContainer(t, pg)

	s, err := OpenPostgres(ctx, PostgresConfig{URL: pg.URL, MaxConns: 4})
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgres_Integration(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	t.Run("upsert merges", func(t *testing.T) {
		mustUpsert(t, s, &models.Node{ID: "!00000001", Num: 1, LongName: "Alpha", LastHeard: baseTime})
		mustUpsert(t, s, &models.Node{ID: "!00000001", Num: 1, HopsAway: models.Uint32(2), LastHeard: baseTime.Add(-time.Hour)})

		n, err := s.GetNode(ctx, "!00000001")
		if err != nil {
			t.Fatalf("GetNode: %v", err)
		}
		if n.LongName != "Alpha" || n.HopsAway == nil || *n.HopsAway != 2 {
			t.Errorf("merged node = %+v", n)
		}
		if !n.LastHeard.Equal(baseTime) {
			t.Errorf("LastHeard = %v, want %v", n.LastHeard, baseTime)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := s.GetNode(ctx, "!0000dead"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("foreign key", func(t *testing.T) {
		err := s.InsertPosition(ctx, &models.Position{NodeID: "!0000beef", Latitude: 1, Longitude: 1, Time: baseTime, ReceivedAt: baseTime})
		if !errors.Is(err, ErrForeignKey) {
			t.Errorf("err = %v, want ErrForeignKey", err)
		}
	})

	t.Run("duplicates and history order", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			p := &models.Position{
				NodeID: "!00000001", Latitude: float64(10 + i), Longitude: 34,
				Time: baseTime.Add(time.Duration(i) * time.Minute), ReceivedAt: baseTime,
			}
			if err := s.InsertPosition(ctx, p); err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
		}
		dup := &models.Position{NodeID: "!00000001", Latitude: 10, Longitude: 34, Time: baseTime, ReceivedAt: baseTime}
		if err := s.InsertPosition(ctx, dup); !errors.Is(err, ErrDuplicate) {
			t.Errorf("duplicate err = %v", err)
		}

		ps, err := s.GetPositionHistory(ctx, "!00000001", 2)
		if err != nil || len(ps) != 2 {
			t.Fatalf("history = %v, %v", ps, err)
		}
		if ps[0].Latitude != 12 || ps[1].Latitude != 11 {
			t.Errorf("order = %v, %v", ps[0].Latitude, ps[1].Latitude)
		}
	})

	t.Run("telemetry and messages", func(t *testing.T) {
		tel := &models.Telemetry{NodeID: "!00000001", Time: baseTime, ReceivedAt: baseTime,
			Device: &models.DeviceMetrics{BatteryLevel: models.Uint32(80)}}
		if err := s.InsertTelemetry(ctx, tel); err != nil {
			t.Fatalf("InsertTelemetry: %v", err)
		}
		m := &models.Message{ID: 99, From: "!00000001", To: "!ffffffff", Text: "hello", RxTime: baseTime}
		if err := s.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
		if err := s.InsertMessage(ctx, m); !errors.Is(err, ErrDuplicate) {
			t.Errorf("duplicate message err = %v", err)
		}
		if err := s.UpsertNode(ctx, &models.Node{ID: "!00000002", Num: 2, LastHeard: baseTime}); err != nil {
			t.Fatalf("UpsertNode: %v", err)
		}
		other := &models.Message{ID: 99, From: "!00000002", To: "!ffffffff", Text: "hi", RxTime: baseTime}
		if err := s.InsertMessage(ctx, other); err != nil {
			t.Errorf("same packet id from another sender: %v", err)
		}
	})
}
