// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/meshcast/internal/models"
)

// jsonUplink is a packet published on the json topic tree by gateways with
// JSON output enabled.
type jsonUplink struct {
	ID        uint32          `json:"id"`
	From      uint32          `json:"from"`
	To        uint32          `json:"to"`
	Sender    string          `json:"sender"`
	Channel   uint32          `json:"channel"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	SNR       *float64        `json:"snr"`
	RSSI      *int32          `json:"rssi"`
	HopStart  uint32          `json:"hop_start"`
	HopsAway  *uint32         `json:"hops_away"`
	Payload   json.RawMessage `json:"payload"`
}

type jsonPosition struct {
	LatitudeI     *int32   `json:"latitude_i"`
	LongitudeI    *int32   `json:"longitude_i"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Altitude      *int32   `json:"altitude"`
	Time          int64    `json:"time"`
	PrecisionBits uint32   `json:"precision_bits"`
	SatsInView    uint32   `json:"sats_in_view"`
	GroundSpeed   *uint32  `json:"ground_speed"`
	GroundTrack   *uint32  `json:"ground_track"`
}

func (jp *jsonPosition) coords() (lat, lon float64, ok bool) {
	switch {
	case jp.LatitudeI != nil && jp.LongitudeI != nil:
		return float64(*jp.LatitudeI) * coordScale, float64(*jp.LongitudeI) * coordScale, true
	case jp.Latitude != nil && jp.Longitude != nil:
		return *jp.Latitude, *jp.Longitude, true
	}
	return 0, 0, false
}

type jsonNodeInfo struct {
	ID        string       `json:"id"`
	LongName  string       `json:"longname"`
	ShortName string       `json:"shortname"`
	Hardware  flexibleEnum `json:"hardware"`
	Role      flexibleEnum `json:"role"`
}

type jsonTelemetry struct {
	BatteryLevel       *uint32  `json:"battery_level"`
	Voltage            *float64 `json:"voltage"`
	ChannelUtilization *float64 `json:"channel_utilization"`
	AirUtilTx          *float64 `json:"air_util_tx"`
	UptimeSeconds      *uint32  `json:"uptime_seconds"`
	Temperature        *float64 `json:"temperature"`
	RelativeHumidity   *float64 `json:"relative_humidity"`
	BarometricPressure *float64 `json:"barometric_pressure"`
	GasResistance      *float64 `json:"gas_resistance"`
}

type jsonText struct {
	Text string `json:"text"`
}

// flexibleEnum accepts an enum as either its number or its name.
type flexibleEnum struct {
	num   *uint64
	name  string
	valid bool
}

func (e *flexibleEnum) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		e.name, e.valid = s, s != ""
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("enum: %w", err)
	}
	e.num, e.valid = &n, true
	return nil
}

func (e flexibleEnum) resolve(names func(uint64) string) string {
	if !e.valid {
		return ""
	}
	if e.num != nil {
		return names(*e.num)
	}
	return e.name
}

// classifyJSON handles the json topic tree.
func classifyJSON(msg *Message, payload []byte, topic topicInfo) {
	var up jsonUplink
	if err := json.Unmarshal(payload, &up); err != nil {
		msg.Kind = KindParseError
		msg.Err = fmt.Errorf("json uplink: %w", err)
		return
	}

	msg.NodeNum = up.From
	if up.From != 0 {
		msg.NodeID = models.NodeIDFromNum(up.From)
	}
	msg.PacketID = up.ID
	msg.Channel = topic.channel
	msg.GatewayID = topic.gateway
	if up.Sender != "" {
		msg.GatewayID = up.Sender
	}
	msg.SNR = up.SNR
	msg.RSSI = up.RSSI

	rx := msg.ReceivedAt
	if up.Timestamp > 0 {
		rx = time.Unix(up.Timestamp, 0).UTC()
	}

	var err error
	switch up.Type {
	case "position":
		msg.Kind = KindPosition
		msg.Payload, err = jsonPositionPayload(msg, up.Payload, rx)
	case "nodeinfo":
		msg.Kind = KindNodeInfo
		msg.Payload, err = jsonNodeInfoPayload(msg, &up, rx)
	case "telemetry":
		msg.Kind = KindTelemetry
		msg.Payload, err = jsonTelemetryPayload(msg, up.Payload, rx)
	case "text", "sendtext":
		msg.Kind = KindText
		msg.Payload, err = jsonTextPayload(msg, &up, rx)
	default:
		msg.Kind = KindUnknown
		return
	}
	if err != nil {
		msg.Payload = nil
		msg.Err = err
		if !errors.Is(err, ErrMissingSender) && !errors.Is(err, ErrMissingPacketID) && !errors.Is(err, ErrInvalidPosition) {
			msg.Kind = KindParseError
		}
	}
}

func jsonPositionPayload(msg *Message, raw json.RawMessage, rx time.Time) (Payload, error) {
	if msg.NodeID == "" {
		return nil, ErrMissingSender
	}
	var jp jsonPosition
	if err := json.Unmarshal(raw, &jp); err != nil {
		return nil, fmt.Errorf("position payload: %w", err)
	}
	lat, lon, ok := jp.coords()
	if !ok {
		return nil, ErrInvalidPosition
	}
	p := &models.Position{
		NodeID:        msg.NodeID,
		Latitude:      lat,
		Longitude:     lon,
		Altitude:      jp.Altitude,
		PrecisionBits: jp.PrecisionBits,
		SatsInView:    jp.SatsInView,
		GroundSpeed:   jp.GroundSpeed,
		GroundTrack:   jp.GroundTrack,
		Time:          rx,
		Channel:       msg.Channel,
		SNR:           msg.SNR,
		ReceivedAt:    msg.ReceivedAt,
	}
	if jp.Time > 0 {
		p.Time = time.Unix(jp.Time, 0).UTC()
	}
	if !p.Valid() {
		return nil, ErrInvalidPosition
	}
	return PositionReport{Position: p}, nil
}

func jsonNodeInfoPayload(msg *Message, up *jsonUplink, rx time.Time) (Payload, error) {
	var ji jsonNodeInfo
	if err := json.Unmarshal(up.Payload, &ji); err != nil {
		return nil, fmt.Errorf("nodeinfo payload: %w", err)
	}
	if msg.NodeNum == 0 {
		if n, ok := models.NodeNumFromID(ji.ID); ok {
			msg.NodeNum = n
			msg.NodeID = models.NodeIDFromNum(n)
		}
	}
	if msg.NodeID == "" {
		return nil, ErrMissingSender
	}
	n := &models.Node{
		ID:        msg.NodeID,
		Num:       msg.NodeNum,
		LongName:  ji.LongName,
		ShortName: ji.ShortName,
		HWModel:   ji.Hardware.resolve(hwModelName),
		Role:      ji.Role.resolve(roleName),
		Channel:   msg.Channel,
		SNR:       msg.SNR,
		RSSI:      msg.RSSI,
		HopsAway:  up.HopsAway,
		LastHeard: rx,
	}
	return NodeInfo{Node: n}, nil
}

func jsonTelemetryPayload(msg *Message, raw json.RawMessage, rx time.Time) (Payload, error) {
	if msg.NodeID == "" {
		return nil, ErrMissingSender
	}
	var jt jsonTelemetry
	if err := json.Unmarshal(raw, &jt); err != nil {
		return nil, fmt.Errorf("telemetry payload: %w", err)
	}
	t := &models.Telemetry{NodeID: msg.NodeID, Time: rx, Channel: msg.Channel, SNR: msg.SNR, ReceivedAt: msg.ReceivedAt}
	if jt.BatteryLevel != nil || jt.Voltage != nil || jt.ChannelUtilization != nil || jt.AirUtilTx != nil || jt.UptimeSeconds != nil {
		t.Device = &models.DeviceMetrics{
			BatteryLevel:       jt.BatteryLevel,
			Voltage:            jt.Voltage,
			ChannelUtilization: jt.ChannelUtilization,
			AirUtilTx:          jt.AirUtilTx,
			UptimeSeconds:      jt.UptimeSeconds,
		}
	}
	if jt.Temperature != nil || jt.RelativeHumidity != nil || jt.BarometricPressure != nil || jt.GasResistance != nil {
		t.Environment = &models.EnvironmentMetrics{
			Temperature:        jt.Temperature,
			RelativeHumidity:   jt.RelativeHumidity,
			BarometricPressure: jt.BarometricPressure,
			GasResistance:      jt.GasResistance,
		}
	}
	return TelemetryReport{Telemetry: t}, nil
}

func jsonTextPayload(msg *Message, up *jsonUplink, rx time.Time) (Payload, error) {
	if msg.NodeID == "" {
		return nil, ErrMissingSender
	}
	if up.ID == 0 {
		return nil, ErrMissingPacketID
	}
	var jt jsonText
	if err := json.Unmarshal(up.Payload, &jt); err != nil {
		// Some firmware publishes the text as a bare JSON string.
		var s string
		if err2 := json.Unmarshal(up.Payload, &s); err2 != nil {
			return nil, fmt.Errorf("text payload: %w", err)
		}
		jt.Text = s
	}
	return TextMessage{Message: &models.Message{
		ID:        up.ID,
		From:      msg.NodeID,
		To:        models.NodeIDFromNum(up.To),
		Channel:   msg.Channel,
		Text:      jt.Text,
		GatewayID: msg.GatewayID,
		SNR:       msg.SNR,
		RSSI:      msg.RSSI,
		RxTime:    rx,
	}}, nil
}

// jsonMapNode is one entry of a JSON map report.
type jsonMapNode struct {
	ID              string       `json:"id"`
	From            uint32       `json:"from"`
	LongName        string       `json:"long_name"`
	ShortName       string       `json:"short_name"`
	HWModel         flexibleEnum `json:"hw_model"`
	Role            flexibleEnum `json:"role"`
	FirmwareVersion string       `json:"firmware_version"`
	Region          flexibleEnum `json:"region"`
	ModemPreset     flexibleEnum `json:"modem_preset"`
	LastHeard       int64        `json:"last_heard"`
	jsonPosition
}

func (jn *jsonMapNode) nodeNum() (uint32, bool) {
	if jn.From != 0 {
		return jn.From, true
	}
	return models.NodeNumFromID(jn.ID)
}

// decodeMapReportJSON parses a JSON map report: one object or an array of
// them. Entries without a node id are skipped.
func decodeMapReportJSON(msg *Message, payload []byte) (MapReport, error) {
	var entries []jsonMapNode
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return MapReport{}, fmt.Errorf("map report: %w", err)
		}
	} else {
		var one jsonMapNode
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return MapReport{}, fmt.Errorf("map report: %w", err)
		}
		entries = []jsonMapNode{one}
	}

	report := MapReport{}
	for i := range entries {
		e := &entries[i]
		num, ok := e.nodeNum()
		if !ok || num == 0 {
			continue
		}
		id := models.NodeIDFromNum(num)
		heard := msg.ReceivedAt
		if e.LastHeard > 0 {
			heard = time.Unix(e.LastHeard, 0).UTC()
		}
		report.Nodes = append(report.Nodes, &models.Node{
			ID:              id,
			Num:             num,
			LongName:        e.LongName,
			ShortName:       e.ShortName,
			HWModel:         e.HWModel.resolve(hwModelName),
			Role:            e.Role.resolve(roleName),
			FirmwareVersion: e.FirmwareVersion,
			Region:          e.Region.resolve(regionName),
			ModemPreset:     e.ModemPreset.resolve(modemPresetName),
			Channel:         msg.Channel,
			LastHeard:       heard,
		})
		if lat, lon, ok := e.coords(); ok {
			p := &models.Position{
				NodeID:        id,
				Latitude:      lat,
				Longitude:     lon,
				Altitude:      e.Altitude,
				PrecisionBits: e.PrecisionBits,
				Time:          heard,
				Channel:       msg.Channel,
				ReceivedAt:    msg.ReceivedAt,
			}
			if p.Valid() {
				report.Positions = append(report.Positions, p)
			}
		}
	}
	return report, nil
}
