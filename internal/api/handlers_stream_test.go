// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/meshcast/internal/broadcast"
)

func waitForClients(t *testing.T, h *broadcast.Hub, n int) []broadcast.ClientInfo {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if clients := h.Clients(); len(clients) == n {
			return clients
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("clients = %d, want %d", len(h.Clients()), n)
	return nil
}

func TestStream_SSEWithFilter(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream?node=00000001&type=position&min_snr=-5", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if resp.Header.Get("Content-Encoding") != "" {
		t.Error("stream must not be wrapped by response compression")
	}

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if ev.Type != broadcast.EventConnected {
		t.Errorf("first event = %q, want connected", ev.Type)
	}

	clients := waitForClients(t, env.hub, 1)
	if clients[0].Transport != broadcast.TransportSSE || !clients[0].Filtered {
		t.Errorf("client = %+v", clients[0])
	}

	cancel()
	waitForClients(t, env.hub, 0)
}

func TestStream_RejectsBadFilter(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"min_snr not a number", "min_snr=loud"},
		{"min_snr out of range", "min_snr=120"},
		{"unknown type", "type=weather"},
		{"malformed node", "node=!not-a-node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rec, resp := env.do(t, http.MethodGet, "/api/v1/stream?"+tt.query, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if resp.Error == nil {
				t.Error("expected error envelope")
			}
			if len(env.hub.Clients()) != 0 {
				t.Error("rejected stream must not register a client")
			}
		})
	}
}

func TestWebSocket_ConnectsAndLists(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?channel=LongFast"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"connected"`) {
		t.Errorf("first message = %s", data)
	}

	waitForClients(t, env.hub, 1)
	rec, resp := env.do(t, http.MethodGet, "/api/v1/clients", "")
	if rec.Code != http.StatusOK || resp.Meta.Count == nil || *resp.Meta.Count != 1 {
		t.Errorf("clients status = %d meta = %+v", rec.Code, resp.Meta)
	}

	conn.Close()
	waitForClients(t, env.hub, 0)
}

func TestWebSocket_OriginCheck(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) { d.AllowedOrigins = []string{"https://map.example"} })
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake to fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %+v, want 403", resp)
	}

	header.Set("Origin", "https://map.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}
