// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package classifier

import (
	"time"

	"github.com/tomtom215/meshcast/internal/models"
)

// Kind tags a classified message.
type Kind string

// Packet kinds.
const (
	KindNodeInfo     Kind = "node-info"
	KindPosition     Kind = "position"
	KindTelemetry    Kind = "telemetry"
	KindText         Kind = "text"
	KindEncrypted    Kind = "encrypted"
	KindMapReport    Kind = "map-report"
	KindNeighborInfo Kind = "neighbor-info"
	KindTraceroute   Kind = "traceroute"
	KindRouting      Kind = "routing"
	KindDetection    Kind = "detection"
	KindRangeTest    Kind = "range-test"
	KindPaxCounter   Kind = "pax-counter"
	KindUnknown      Kind = "unknown"
	KindParseError   Kind = "parse-error"
)

// Payload is the normalized content of a classified message. The set of
// implementations is closed; switch on the concrete type.
type Payload interface {
	payloadKind() Kind
}

// NodeInfo carries a node identity update.
type NodeInfo struct {
	Node *models.Node
}

// PositionReport carries a single position fix.
type PositionReport struct {
	Position *models.Position
}

// TelemetryReport carries device or environment metrics.
type TelemetryReport struct {
	Telemetry *models.Telemetry
}

// TextMessage carries a channel or direct text message.
type TextMessage struct {
	Message *models.Message
}

// Neighbor is one entry of a neighbor-info report.
type Neighbor struct {
	NodeID string  `json:"node_id"`
	SNR    float64 `json:"snr"`
}

// NeighborInfo lists the direct neighbors a node can hear.
type NeighborInfo struct {
	NodeID             string     `json:"node_id"`
	LastSentByID       string     `json:"last_sent_by_id,omitempty"`
	BroadcastIntervalS uint32     `json:"broadcast_interval_secs,omitempty"`
	Neighbors          []Neighbor `json:"neighbors"`
}

// Traceroute is a route discovery result.
type Traceroute struct {
	Route      []string  `json:"route"`
	SNRTowards []float64 `json:"snr_towards,omitempty"`
	RouteBack  []string  `json:"route_back,omitempty"`
	SNRBack    []float64 `json:"snr_back,omitempty"`
}

// Routing is an ack/nak from the routing layer.
type Routing struct {
	ErrorReason string `json:"error_reason"`
	RequestID   uint32 `json:"request_id,omitempty"`
}

// Detection is a detection-sensor trigger, a short text.
type Detection struct {
	Text string `json:"text"`
}

// RangeTest is a range-test probe, a short text sequence number.
type RangeTest struct {
	Text string `json:"text"`
}

// PaxCounter is a people counter report.
type PaxCounter struct {
	WiFi   uint32 `json:"wifi"`
	BLE    uint32 `json:"ble"`
	Uptime uint32 `json:"uptime"`
}

// MapReport is a batch of node identities and positions published on the
// map topic.
type MapReport struct {
	Nodes     []*models.Node
	Positions []*models.Position
}

func (NodeInfo) payloadKind() Kind        { return KindNodeInfo }
func (PositionReport) payloadKind() Kind  { return KindPosition }
func (TelemetryReport) payloadKind() Kind { return KindTelemetry }
func (TextMessage) payloadKind() Kind     { return KindText }
func (NeighborInfo) payloadKind() Kind    { return KindNeighborInfo }
func (Traceroute) payloadKind() Kind      { return KindTraceroute }
func (Routing) payloadKind() Kind         { return KindRouting }
func (Detection) payloadKind() Kind       { return KindDetection }
func (RangeTest) payloadKind() Kind       { return KindRangeTest }
func (PaxCounter) payloadKind() Kind      { return KindPaxCounter }
func (MapReport) payloadKind() Kind       { return KindMapReport }

// Message is the result of classifying one broker message.
type Message struct {
	Topic   string
	Kind    Kind
	Payload Payload

	// NodeID is the canonical "!xxxxxxxx" id of the sender, empty when unknown.
	NodeID    string
	NodeNum   uint32
	PacketID  uint32
	Channel   string
	GatewayID string

	SNR      *float64
	RSSI     *int32
	HopLimit uint32

	Encrypted  bool
	ReceivedAt time.Time

	// Err describes why the message is KindParseError or has no payload.
	Err error
}

// HasPayload reports whether a structured payload was produced.
func (m *Message) HasPayload() bool { return m.Payload != nil }
