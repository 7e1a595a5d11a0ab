// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broadcast

import (
	"time"

	"github.com/tomtom215/meshcast/internal/coalesce"
)

// Event types sent to live clients.
const (
	EventConnected       = "connected"
	EventHeartbeat       = "heartbeat"
	EventNodeUpdate      = "node-update"
	EventPositionUpdate  = "position-update"
	EventMessageNew      = "message-new"
	EventTelemetryUpdate = "telemetry-update"
	EventRawPacket       = "raw-packet"
	EventPong            = "pong"
	EventError           = "error"
)

// Event is the envelope of every frame.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
}

// EventTypeForKind maps a coalesced update kind to its event type.
func EventTypeForKind(k coalesce.Kind) string {
	switch k {
	case coalesce.KindNode:
		return EventNodeUpdate
	case coalesce.KindPosition:
		return EventPositionUpdate
	case coalesce.KindTelemetry:
		return EventTelemetryUpdate
	case coalesce.KindMessage:
		return EventMessageNew
	default:
		return string(k)
	}
}

// RawPacket is a classified packet forwarded without coalescing.
type RawPacket struct {
	ConnectionID string   `json:"connection_id"`
	Topic        string   `json:"topic"`
	Kind         string   `json:"kind"`
	NodeID       string   `json:"node_id,omitempty"`
	Channel      string   `json:"channel,omitempty"`
	GatewayID    string   `json:"gateway_id,omitempty"`
	PacketID     uint32   `json:"packet_id,omitempty"`
	SNR          *float64 `json:"snr,omitempty"`
	RSSI         *int32   `json:"rssi,omitempty"`
	HopLimit     uint32   `json:"hop_limit,omitempty"`
	Payload      any      `json:"payload,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// ConnectedData is the payload of the connected event.
type ConnectedData struct {
	ClientID  string `json:"client_id"`
	Transport string `json:"transport"`
}
