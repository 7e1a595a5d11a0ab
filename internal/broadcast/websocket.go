// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broadcast

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/meshcast/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client-to-server message types on the WebSocket.
const (
	ClientMessageFilter = "filter"
	ClientMessagePing   = "ping"
)

// ClientMessage is a request sent by a WebSocket client.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketTransport writes frames to a gorilla/websocket connection. JSON
// frames go out as text messages and gzip frames as binary messages.
type WebSocketTransport struct {
	*outbox
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an upgraded connection.
func NewWebSocketTransport(conn *websocket.Conn, queueSize int) *WebSocketTransport {
	return &WebSocketTransport{outbox: newOutbox(queueSize), conn: conn}
}

// Kind implements Transport.
func (t *WebSocketTransport) Kind() string { return TransportWebSocket }

// writePump drains the outbox to the socket and pings the peer.
func (t *WebSocketTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = t.conn.Close()
	}()

	for {
		select {
		case <-t.done:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-t.frames:
			if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				t.Close()
				return
			}
			messageType := websocket.TextMessage
			if frame.Encoding == EncodingGzip {
				messageType = websocket.BinaryMessage
			}
			if err := t.conn.WriteMessage(messageType, frame.Payload); err != nil {
				logging.Debug().Err(err).Msg("WebSocket write failed")
				t.Close()
				return
			}

		case <-ticker.C:
			if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				t.Close()
				return
			}
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.Close()
				return
			}
		}
	}
}

// ServeWebSocket registers conn with the hub and serves it until the peer
// disconnects, the hub removes the client, or ctx ends. Clients may send
// filter and ping messages.
func ServeWebSocket(ctx context.Context, hub *Hub, conn *websocket.Conn, id string, filter *Filter) error {
	t := NewWebSocketTransport(conn, hub.QueueSize())
	go t.writePump()

	client, err := hub.Register(id, t, filter)
	if err != nil {
		t.Close()
		return err
	}
	id = client.ID()
	defer hub.Unregister(id)

	// Unblock the read loop on shutdown or removal.
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-t.done:
		}
		_ = conn.SetReadDeadline(time.Now())
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Str("client", id).Msg("Unexpected WebSocket close")
			}
			return nil
		}
		handleClientMessage(hub, id, data)
	}
}

func handleClientMessage(hub *Hub, id string, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = hub.Send(id, NewEvent(EventError, map[string]string{"error": "invalid message"}))
		return
	}

	switch msg.Type {
	case ClientMessagePing:
		_ = hub.Send(id, NewEvent(EventPong, nil))
	case ClientMessageFilter:
		var f Filter
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &f); err != nil {
				_ = hub.Send(id, NewEvent(EventError, map[string]string{"error": "invalid filter"}))
				return
			}
		}
		_ = hub.UpdateFilter(id, &f)
	default:
		_ = hub.Send(id, NewEvent(EventError, map[string]string{"error": "unknown message type " + msg.Type}))
	}
}
