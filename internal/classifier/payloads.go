// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package classifier

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/tomtom215/meshcast/internal/models"
)

const coordScale = 1e-7

var (
	// ErrMissingSender is set on messages whose packet has no sender node number.
	ErrMissingSender = errors.New("packet has no sender")

	// ErrMissingPacketID is set on text messages without a packet id.
	ErrMissingPacketID = errors.New("packet has no id")

	// ErrInvalidPosition is set on position reports with out-of-range coordinates.
	ErrInvalidPosition = errors.New("position out of range")
)

// packetContext is the per-packet metadata shared by every payload decoder.
type packetContext struct {
	pkt      *MeshPacket
	data     *Data
	nodeID   string
	channel  string
	gateway  string
	snr      *float64
	rssi     *int32
	received time.Time
}

func (pc *packetContext) rxTime() time.Time {
	if pc.pkt.RxTime != 0 {
		return time.Unix(int64(pc.pkt.RxTime), 0).UTC()
	}
	return pc.received
}

// decodeApp fills msg.Kind and msg.Payload from a decoded Data message.
// Decode errors downgrade the message to parse-error; missing correlating
// fields keep the kind and leave the payload nil.
func decodeApp(msg *Message, pc *packetContext) {
	d := pc.data
	var (
		p   Payload
		err error
	)
	switch d.PortNum {
	case PortNodeInfo:
		msg.Kind = KindNodeInfo
		p, err = decodeUser(pc)
	case PortPosition:
		msg.Kind = KindPosition
		p, err = decodePosition(pc)
	case PortTelemetry:
		msg.Kind = KindTelemetry
		p, err = decodeTelemetry(pc)
	case PortTextMessage:
		msg.Kind = KindText
		p, err = decodeText(pc)
	case PortNeighborInfo:
		msg.Kind = KindNeighborInfo
		p, err = decodeNeighborInfo(pc)
	case PortTraceroute:
		msg.Kind = KindTraceroute
		p, err = decodeTraceroute(pc)
	case PortRouting:
		msg.Kind = KindRouting
		p, err = decodeRouting(pc)
	case PortDetectionSensor:
		msg.Kind = KindDetection
		p = Detection{Text: string(d.Payload)}
	case PortRangeTest:
		msg.Kind = KindRangeTest
		p = RangeTest{Text: string(d.Payload)}
	case PortPaxCounter:
		msg.Kind = KindPaxCounter
		p, err = decodePaxCounter(d.Payload)
	case PortMapReport:
		msg.Kind = KindMapReport
		p, err = decodeMapReportPacket(pc)
	default:
		msg.Kind = KindUnknown
		return
	}

	switch {
	case err == nil:
		msg.Payload = p
		if ni, ok := p.(NodeInfo); ok && msg.NodeID == "" {
			msg.NodeID, msg.NodeNum = ni.Node.ID, ni.Node.Num
		}
	case errors.Is(err, ErrMissingSender), errors.Is(err, ErrMissingPacketID), errors.Is(err, ErrInvalidPosition):
		msg.Err = err
	default:
		msg.Kind = KindParseError
		msg.Err = fmt.Errorf("%s payload: %w", d.PortNum, err)
	}
}

func decodeUser(pc *packetContext) (Payload, error) {
	n := &models.Node{}
	var userID string
	err := walkFields(pc.data.Payload, func(f field) {
		switch f.num {
		case 1:
			userID = string(f.bytes)
		case 2:
			n.LongName = string(f.bytes)
		case 3:
			n.ShortName = string(f.bytes)
		case 5:
			n.HWModel = hwModelName(f.varint)
		case 7:
			n.Role = roleName(f.varint)
		}
	})
	if err != nil {
		return nil, err
	}

	num := pc.pkt.From
	if num == 0 {
		if parsed, ok := models.NodeNumFromID(userID); ok {
			num = parsed
		}
	}
	if num == 0 {
		return nil, ErrMissingSender
	}
	n.Num = num
	n.ID = models.NodeIDFromNum(num)
	n.Channel = pc.channel
	n.SNR = pc.snr
	n.RSSI = pc.rssi
	if pc.pkt.HopStart >= pc.pkt.HopLimit && pc.pkt.HopStart > 0 {
		hops := pc.pkt.HopStart - pc.pkt.HopLimit
		n.HopsAway = &hops
	}
	n.LastHeard = pc.rxTime()
	return NodeInfo{Node: n}, nil
}

func decodePosition(pc *packetContext) (Payload, error) {
	if pc.nodeID == "" {
		return nil, ErrMissingSender
	}
	p := &models.Position{NodeID: pc.nodeID, Channel: pc.channel, SNR: pc.snr, ReceivedAt: pc.received}
	var fixTime, timestamp uint32
	var hasLat, hasLon bool
	err := walkFields(pc.data.Payload, func(f field) {
		switch f.num {
		case 1:
			p.Latitude = float64(f.sfixed32()) * coordScale
			hasLat = true
		case 2:
			p.Longitude = float64(f.sfixed32()) * coordScale
			hasLon = true
		case 3:
			alt := f.int32()
			p.Altitude = &alt
		case 4:
			fixTime = f.fixed32
		case 7:
			timestamp = f.fixed32
		case 15:
			v := uint32(f.varint)
			p.GroundSpeed = &v
		case 16:
			v := uint32(f.varint)
			p.GroundTrack = &v
		case 19:
			p.SatsInView = uint32(f.varint)
		case 23:
			p.PrecisionBits = uint32(f.varint)
		}
	})
	if err != nil {
		return nil, err
	}
	if !hasLat || !hasLon || !p.Valid() {
		return nil, ErrInvalidPosition
	}
	switch {
	case fixTime != 0:
		p.Time = time.Unix(int64(fixTime), 0).UTC()
	case timestamp != 0:
		p.Time = time.Unix(int64(timestamp), 0).UTC()
	default:
		p.Time = pc.rxTime()
	}
	return PositionReport{Position: p}, nil
}

func decodeTelemetry(pc *packetContext) (Payload, error) {
	if pc.nodeID == "" {
		return nil, ErrMissingSender
	}
	t := &models.Telemetry{NodeID: pc.nodeID, Channel: pc.channel, SNR: pc.snr, ReceivedAt: pc.received}
	var reported uint32
	var subErr error
	err := walkFields(pc.data.Payload, func(f field) {
		switch f.num {
		case 1:
			reported = f.fixed32
		case 2:
			t.Device, subErr = decodeDeviceMetrics(f.bytes)
		case 3:
			t.Environment, subErr = decodeEnvironmentMetrics(f.bytes)
		}
	})
	if err != nil {
		return nil, err
	}
	if subErr != nil {
		return nil, subErr
	}
	if reported != 0 {
		t.Time = time.Unix(int64(reported), 0).UTC()
	} else {
		t.Time = pc.rxTime()
	}
	return TelemetryReport{Telemetry: t}, nil
}

func decodeDeviceMetrics(b []byte) (*models.DeviceMetrics, error) {
	m := &models.DeviceMetrics{}
	err := walkFields(b, func(f field) {
		switch f.num {
		case 1:
			m.BatteryLevel = models.Uint32(uint32(f.varint))
		case 2:
			m.Voltage = roundedFloat(f.float32())
		case 3:
			m.ChannelUtilization = roundedFloat(f.float32())
		case 4:
			m.AirUtilTx = roundedFloat(f.float32())
		case 5:
			m.UptimeSeconds = models.Uint32(uint32(f.varint))
		}
	})
	return m, err
}

func decodeEnvironmentMetrics(b []byte) (*models.EnvironmentMetrics, error) {
	m := &models.EnvironmentMetrics{}
	err := walkFields(b, func(f field) {
		switch f.num {
		case 1:
			m.Temperature = roundedFloat(f.float32())
		case 2:
			m.RelativeHumidity = roundedFloat(f.float32())
		case 3:
			m.BarometricPressure = roundedFloat(f.float32())
		case 4:
			m.GasResistance = roundedFloat(f.float32())
		}
	})
	return m, err
}

// roundedFloat widens a float32 reading, rounded to four decimals.
func roundedFloat(v float32) *float64 {
	f := math.Round(float64(v)*1e4) / 1e4
	return &f
}

func decodeText(pc *packetContext) (Payload, error) {
	if pc.nodeID == "" {
		return nil, ErrMissingSender
	}
	if pc.pkt.ID == 0 {
		return nil, ErrMissingPacketID
	}
	text := pc.data.Payload
	if !utf8.Valid(text) {
		return nil, errors.New("text is not valid UTF-8")
	}
	return TextMessage{Message: &models.Message{
		ID:        pc.pkt.ID,
		From:      pc.nodeID,
		To:        models.NodeIDFromNum(pc.pkt.To),
		Channel:   pc.channel,
		Text:      string(text),
		GatewayID: pc.gateway,
		HopLimit:  pc.pkt.HopLimit,
		SNR:       pc.snr,
		RSSI:      pc.rssi,
		RxTime:    pc.rxTime(),
	}}, nil
}

func decodeNeighborInfo(pc *packetContext) (Payload, error) {
	ni := NeighborInfo{}
	var nbErr error
	err := walkFields(pc.data.Payload, func(f field) {
		switch f.num {
		case 1:
			ni.NodeID = models.NodeIDFromNum(uint32(f.varint))
		case 2:
			ni.LastSentByID = models.NodeIDFromNum(uint32(f.varint))
		case 3:
			ni.BroadcastIntervalS = uint32(f.varint)
		case 4:
			var nb Neighbor
			if e := walkFields(f.bytes, func(g field) {
				switch g.num {
				case 1:
					nb.NodeID = models.NodeIDFromNum(uint32(g.varint))
				case 2:
					nb.SNR = float64(g.float32())
				}
			}); e != nil {
				nbErr = e
				return
			}
			ni.Neighbors = append(ni.Neighbors, nb)
		}
	})
	if err != nil {
		return nil, err
	}
	if nbErr != nil {
		return nil, nbErr
	}
	if ni.NodeID == "" {
		ni.NodeID = pc.nodeID
	}
	if ni.NodeID == "" {
		return nil, ErrMissingSender
	}
	return ni, nil
}

func decodeTraceroute(pc *packetContext) (Payload, error) {
	tr := Traceroute{}
	err := walkFields(pc.data.Payload, func(f field) {
		switch f.num {
		case 1:
			tr.Route = append(tr.Route, nodeIDs(packedFixed32(f))...)
		case 2:
			tr.SNRTowards = append(tr.SNRTowards, quarterDB(packedVarint(f))...)
		case 3:
			tr.RouteBack = append(tr.RouteBack, nodeIDs(packedFixed32(f))...)
		case 4:
			tr.SNRBack = append(tr.SNRBack, quarterDB(packedVarint(f))...)
		}
	})
	if err != nil {
		return nil, err
	}
	if tr.Route == nil {
		tr.Route = []string{}
	}
	return tr, nil
}

func nodeIDs(nums []uint32) []string {
	out := make([]string, len(nums))
	for i, n := range nums {
		out[i] = models.NodeIDFromNum(n)
	}
	return out
}

// quarterDB converts route SNR samples, encoded as int32 in units of 0.25 dB.
func quarterDB(raw []uint64) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(int32(v)) / 4
	}
	return out
}

func decodeRouting(pc *packetContext) (Payload, error) {
	r := Routing{ErrorReason: routingErrorName(0), RequestID: pc.data.RequestID}
	err := walkFields(pc.data.Payload, func(f field) {
		if f.num == 3 {
			r.ErrorReason = routingErrorName(f.varint)
		}
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func decodePaxCounter(b []byte) (Payload, error) {
	pc := PaxCounter{}
	err := walkFields(b, func(f field) {
		switch f.num {
		case 1:
			pc.WiFi = uint32(f.varint)
		case 2:
			pc.BLE = uint32(f.varint)
		case 3:
			pc.Uptime = uint32(f.varint)
		}
	})
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// decodeMapReportPacket handles a MAP_REPORT_APP packet: one node describing
// itself, optionally with a position.
func decodeMapReportPacket(pc *packetContext) (Payload, error) {
	if pc.nodeID == "" {
		return nil, ErrMissingSender
	}
	n := &models.Node{
		ID:        pc.nodeID,
		Num:       pc.pkt.From,
		Channel:   pc.channel,
		SNR:       pc.snr,
		RSSI:      pc.rssi,
		LastHeard: pc.rxTime(),
	}
	pos := &models.Position{NodeID: pc.nodeID, Channel: pc.channel, SNR: pc.snr, Time: pc.rxTime(), ReceivedAt: pc.received}
	var hasLat, hasLon bool
	err := walkFields(pc.data.Payload, func(f field) {
		switch f.num {
		case 1:
			n.LongName = string(f.bytes)
		case 2:
			n.ShortName = string(f.bytes)
		case 3:
			n.Role = roleName(f.varint)
		case 4:
			n.HWModel = hwModelName(f.varint)
		case 5:
			n.FirmwareVersion = string(f.bytes)
		case 6:
			n.Region = regionName(f.varint)
		case 7:
			n.ModemPreset = modemPresetName(f.varint)
		case 9:
			pos.Latitude = float64(f.sfixed32()) * coordScale
			hasLat = true
		case 10:
			pos.Longitude = float64(f.sfixed32()) * coordScale
			hasLon = true
		case 11:
			alt := f.int32()
			pos.Altitude = &alt
		case 12:
			pos.PrecisionBits = uint32(f.varint)
		}
	})
	if err != nil {
		return nil, err
	}
	report := MapReport{Nodes: []*models.Node{n}}
	if hasLat && hasLon && pos.Valid() {
		report.Positions = []*models.Position{pos}
	}
	return report, nil
}

// String implements fmt.Stringer.
func (p PortNum) String() string {
	switch p {
	case PortTextMessage:
		return "TEXT_MESSAGE_APP"
	case PortPosition:
		return "POSITION_APP"
	case PortNodeInfo:
		return "NODEINFO_APP"
	case PortRouting:
		return "ROUTING_APP"
	case PortTextCompressed:
		return "TEXT_MESSAGE_COMPRESSED_APP"
	case PortWaypoint:
		return "WAYPOINT_APP"
	case PortDetectionSensor:
		return "DETECTION_SENSOR_APP"
	case PortPaxCounter:
		return "PAXCOUNTER_APP"
	case PortRangeTest:
		return "RANGE_TEST_APP"
	case PortTelemetry:
		return "TELEMETRY_APP"
	case PortTraceroute:
		return "TRACEROUTE_APP"
	case PortNeighborInfo:
		return "NEIGHBORINFO_APP"
	case PortMapReport:
		return "MAP_REPORT_APP"
	}
	return fmt.Sprintf("PORT_%d", uint32(p))
}
