// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package classifier

import (
	"errors"
	"fmt"
)

// PortNum identifies the application payload carried by a mesh packet.
type PortNum uint32

// Application ports recognised by the classifier.
const (
	PortUnknown         PortNum = 0
	PortTextMessage     PortNum = 1
	PortPosition        PortNum = 3
	PortNodeInfo        PortNum = 4
	PortRouting         PortNum = 5
	PortTextCompressed  PortNum = 7
	PortWaypoint        PortNum = 8
	PortDetectionSensor PortNum = 10
	PortPaxCounter      PortNum = 34
	PortRangeTest       PortNum = 66
	PortTelemetry       PortNum = 67
	PortTraceroute      PortNum = 70
	PortNeighborInfo    PortNum = 71
	PortMapReport       PortNum = 73
)

// maxPortNum bounds plausible port numbers; used to reject garbage after a
// decryption attempt with the wrong key.
const maxPortNum = 511

var (
	// ErrNoPacket is returned when an envelope carries no mesh packet.
	ErrNoPacket = errors.New("envelope has no packet")

	// ErrNoDecodedPayload is returned when a packet has neither decoded nor encrypted data.
	ErrNoDecodedPayload = errors.New("packet has no payload")
)

// Envelope is the broker-level wrapper around a mesh packet (ServiceEnvelope).
type Envelope struct {
	Packet    *MeshPacket
	ChannelID string
	GatewayID string
}

// MeshPacket is the radio packet as relayed by a gateway.
type MeshPacket struct {
	From      uint32
	To        uint32
	Channel   uint32
	ID        uint32
	RxTime    uint32
	RxSNR     float32
	HasSNR    bool
	HopLimit  uint32
	HopStart  uint32
	RxRSSI    int32
	ViaMQTT   bool
	Decoded   *Data
	Encrypted []byte
}

// Data is the decoded application payload of a packet.
type Data struct {
	PortNum      PortNum
	Payload      []byte
	WantResponse bool
	Dest         uint32
	Source       uint32
	RequestID    uint32
	ReplyID      uint32
	Emoji        uint32
}

// DecodeEnvelope parses a ServiceEnvelope.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	env := &Envelope{}
	var packetErr error
	err := walkFields(b, func(f field) {
		switch f.num {
		case 1:
			env.Packet, packetErr = decodeMeshPacket(f.bytes)
		case 2:
			env.ChannelID = string(f.bytes)
		case 3:
			env.GatewayID = string(f.bytes)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if packetErr != nil {
		return nil, fmt.Errorf("decode packet: %w", packetErr)
	}
	if env.Packet == nil {
		return nil, ErrNoPacket
	}
	return env, nil
}

func decodeMeshPacket(b []byte) (*MeshPacket, error) {
	p := &MeshPacket{}
	var dataErr error
	err := walkFields(b, func(f field) {
		switch f.num {
		case 1:
			p.From = f.fixed32
		case 2:
			p.To = f.fixed32
		case 3:
			p.Channel = uint32(f.varint)
		case 4:
			p.Decoded, dataErr = DecodeData(f.bytes)
		case 5:
			p.Encrypted = f.bytes
		case 6:
			p.ID = f.fixed32
		case 7:
			p.RxTime = f.fixed32
		case 8:
			p.RxSNR = f.float32()
			p.HasSNR = true
		case 9:
			p.HopLimit = uint32(f.varint)
		case 12:
			p.RxRSSI = f.int32()
		case 14:
			p.ViaMQTT = f.bool()
		case 15:
			p.HopStart = uint32(f.varint)
		}
	})
	if err != nil {
		return nil, err
	}
	if dataErr != nil {
		return nil, dataErr
	}
	return p, nil
}

// DecodeData parses the Data message of a decoded (or decrypted) packet.
func DecodeData(b []byte) (*Data, error) {
	d := &Data{}
	err := walkFields(b, func(f field) {
		switch f.num {
		case 1:
			d.PortNum = PortNum(f.varint)
		case 2:
			d.Payload = f.bytes
		case 3:
			d.WantResponse = f.bool()
		case 4:
			d.Dest = f.fixed32
		case 5:
			d.Source = f.fixed32
		case 6:
			d.RequestID = f.fixed32
		case 7:
			d.ReplyID = f.fixed32
		case 8:
			d.Emoji = f.fixed32
		}
	})
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return d, nil
}
