// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broadcast

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Stats().Clients != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Stats().Clients, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriteSSEFrame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	if err := writeSSEFrame(w, Frame{Encoding: EncodingIdentity, Payload: []byte(`{"type":"pong"}`)}); err != nil {
		t.Fatal(err)
	}
	if err := writeSSEFrame(w, Frame{Encoding: EncodingGzip, Payload: []byte{0x1f, 0x8b, 0x08}}); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	want := "data: {\"type\":\"pong\"}\n\n" +
		"event: gzip\ndata: " + base64.StdEncoding.EncodeToString([]byte{0x1f, 0x8b, 0x08}) + "\n\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

// readSSEData returns the next data payload of a plain event.
func readSSEData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSuffix(strings.TrimPrefix(line, "data: "), "\n")
		}
	}
}

func TestServeSSE(t *testing.T) {
	h := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = ServeSSE(r.Context(), h, w, "", &Filter{NodeIDs: []string{"!a"}})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	r := bufio.NewReader(resp.Body)

	var connected struct {
		Type string        `json:"type"`
		Data ConnectedData `json:"data"`
	}
	if err := json.Unmarshal([]byte(readSSEData(t, r)), &connected); err != nil {
		t.Fatal(err)
	}
	if connected.Type != EventConnected || connected.Data.Transport != TransportSSE || connected.Data.ClientID == "" {
		t.Fatalf("connected event = %+v", connected)
	}

	waitForClients(t, h, 1)
	h.DeliverBatch(positionBatch("!b"))
	h.DeliverBatch(positionBatch("!a"))

	var ev decodedEvent
	if err := json.Unmarshal([]byte(readSSEData(t, r)), &ev); err != nil {
		t.Fatal(err)
	}
	if ids := ev.nodeIDs(t); ev.Type != EventPositionUpdate || len(ids) != 1 || ids[0] != "!a" {
		t.Errorf("event %s with nodes %v", ev.Type, ids)
	}

	cancel()
	waitForClients(t, h, 0)
}

func TestServeSSE_RejectsDuplicateID(t *testing.T) {
	h := newTestHub()
	register(t, h, "taken")

	rec := httptest.NewRecorder()
	if err := ServeSSE(context.Background(), h, rec, "taken", nil); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestServeWebSocket(t *testing.T) {
	h := newTestHub()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = ServeWebSocket(r.Context(), h, conn, "ws-1", nil)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	readEvent := func() decodedEvent {
		t.Helper()
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if mt != websocket.TextMessage {
			t.Fatalf("message type = %d, want text", mt)
		}
		var ev decodedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatal(err)
		}
		return ev
	}

	if ev := readEvent(); ev.Type != EventConnected {
		t.Fatalf("first event = %s", ev.Type)
	}

	// Filter then ping: the pong proves the filter was applied.
	if err := conn.WriteJSON(map[string]any{"type": "filter", "data": map[string]any{"node_ids": []string{"!a"}}}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(); ev.Type != EventPong {
		t.Fatalf("expected pong, got %s", ev.Type)
	}

	h.DeliverBatch(positionBatch("!b"))
	h.DeliverBatch(positionBatch("!a"))
	ev := readEvent()
	if ids := ev.nodeIDs(t); ev.Type != EventPositionUpdate || len(ids) != 1 || ids[0] != "!a" {
		t.Errorf("event %s with nodes %v", ev.Type, ids)
	}

	if err := conn.WriteJSON(map[string]string{"type": "subscribe"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(); ev.Type != EventError {
		t.Errorf("unknown message answered with %s", ev.Type)
	}

	clients := h.Clients()
	if len(clients) != 1 || clients[0].ID != "ws-1" || !clients[0].Filtered || clients[0].Transport != TransportWebSocket {
		t.Errorf("clients = %+v", clients)
	}

	conn.Close()
	waitForClients(t, h, 0)
}

func TestServeWebSocket_LargeFramesAreBinary(t *testing.T) {
	h := newTestHub()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = ServeWebSocket(r.Context(), h, conn, "", nil)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if _, _, err := conn.ReadMessage(); err != nil { // connected
		t.Fatal(err)
	}
	h.PublishRaw(RawPacket{Topic: "msh/test", Payload: strings.Repeat("repeat ", 500)})

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if mt != websocket.BinaryMessage || len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		t.Errorf("message type %d, first bytes %x", mt, data[:2])
	}
}
