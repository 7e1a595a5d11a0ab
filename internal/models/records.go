// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package models

import (
	"strconv"
	"time"
)

// Position is one reported location of a node.
type Position struct {
	NodeID        string    `json:"node_id"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Altitude      *int32    `json:"altitude,omitempty"`
	PrecisionBits uint32    `json:"precision_bits,omitempty"`
	SatsInView    uint32    `json:"sats_in_view,omitempty"`
	GroundSpeed   *uint32   `json:"ground_speed,omitempty"`
	GroundTrack   *uint32   `json:"ground_track,omitempty"`
	Time          time.Time `json:"time"`
	Channel       string    `json:"channel,omitempty"`
	SNR           *float64  `json:"snr,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// EntityNodeID implements Entity.
func (p *Position) EntityNodeID() string { return p.NodeID }

// EntityChannel implements Entity.
func (p *Position) EntityChannel() string { return p.Channel }

// EntitySNR implements Entity.
func (p *Position) EntitySNR() (float64, bool) { return optionalSNR(p.SNR) }

// Valid reports whether the coordinates are inside the WGS84 range and not
// the (0,0) placeholder radios emit before they have a fix.
func (p *Position) Valid() bool {
	if p.Latitude == 0 && p.Longitude == 0 {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// DeviceMetrics is the device section of a telemetry report.
type DeviceMetrics struct {
	BatteryLevel       *uint32  `json:"battery_level,omitempty"`
	Voltage            *float64 `json:"voltage,omitempty"`
	ChannelUtilization *float64 `json:"channel_utilization,omitempty"`
	AirUtilTx          *float64 `json:"air_util_tx,omitempty"`
	UptimeSeconds      *uint32  `json:"uptime_seconds,omitempty"`
}

// EnvironmentMetrics is the environment sensor section of a telemetry report.
type EnvironmentMetrics struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	RelativeHumidity   *float64 `json:"relative_humidity,omitempty"`
	BarometricPressure *float64 `json:"barometric_pressure,omitempty"`
	GasResistance      *float64 `json:"gas_resistance,omitempty"`
}

// Telemetry is one metrics report of a node.
type Telemetry struct {
	NodeID      string              `json:"node_id"`
	Time        time.Time           `json:"time"`
	Device      *DeviceMetrics      `json:"device,omitempty"`
	Environment *EnvironmentMetrics `json:"environment,omitempty"`
	Channel     string              `json:"channel,omitempty"`
	SNR         *float64            `json:"snr,omitempty"`
	ReceivedAt  time.Time           `json:"received_at"`
}

// EntityNodeID implements Entity.
func (t *Telemetry) EntityNodeID() string { return t.NodeID }

// EntityChannel implements Entity.
func (t *Telemetry) EntityChannel() string { return t.Channel }

// EntitySNR implements Entity.
func (t *Telemetry) EntitySNR() (float64, bool) { return optionalSNR(t.SNR) }

// Message is one text message seen on a channel.
type Message struct {
	ID        uint32    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Channel   string    `json:"channel,omitempty"`
	Text      string    `json:"text"`
	GatewayID string    `json:"gateway_id,omitempty"`
	HopLimit  uint32    `json:"hop_limit,omitempty"`
	SNR       *float64  `json:"snr,omitempty"`
	RSSI      *int32    `json:"rssi,omitempty"`
	RxTime    time.Time `json:"rx_time"`
}

// Key returns the coalescing/persistence key of the message. Packet ids are
// only unique per sender, so the key is "<from>:<id>".
func (m *Message) Key() string {
	return m.From + ":" + strconv.FormatUint(uint64(m.ID), 10)
}

// EntityNodeID implements Entity.
func (m *Message) EntityNodeID() string { return m.From }

// EntityChannel implements Entity.
func (m *Message) EntityChannel() string { return m.Channel }

// EntitySNR implements Entity.
func (m *Message) EntitySNR() (float64, bool) { return optionalSNR(m.SNR) }

func optionalSNR(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Float64 returns a pointer to v. Handy for optional fields.
func Float64(v float64) *float64 { return &v }

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }

// Uint32 returns a pointer to v.
func Uint32(v uint32) *uint32 { return &v }
