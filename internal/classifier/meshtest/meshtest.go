// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

// Package meshtest builds Meshtastic wire messages for tests.
package meshtest

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Port numbers used by the builders.
const (
	PortText         = 1
	PortPosition     = 3
	PortNodeInfo     = 4
	PortRouting      = 5
	PortTelemetry    = 67
	PortTraceroute   = 70
	PortNeighborInfo = 71
	PortMapReport    = 73
)

// Packet describes a MeshPacket.
type Packet struct {
	From     uint32
	To       uint32
	ID       uint32
	RxTime   uint32
	SNR      *float32
	RSSI     int32
	HopLimit uint32
	HopStart uint32

	// Exactly one of Data or Encrypted is emitted.
	Data      []byte
	Encrypted []byte
}

// Envelope encodes a ServiceEnvelope around p.
func Envelope(p Packet, channelID, gatewayID string) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, encodePacket(p))
	if channelID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, channelID)
	}
	if gatewayID != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, gatewayID)
	}
	return b
}

func encodePacket(p Packet) []byte {
	var b []byte
	b = appendFixed32(b, 1, p.From)
	b = appendFixed32(b, 2, p.To)
	if p.Data != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Data)
	} else if p.Encrypted != nil {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Encrypted)
	}
	b = appendFixed32(b, 6, p.ID)
	if p.RxTime != 0 {
		b = appendFixed32(b, 7, p.RxTime)
	}
	if p.SNR != nil {
		b = appendFixed32(b, 8, math.Float32bits(*p.SNR))
	}
	if p.HopLimit != 0 {
		b = appendVarint(b, 9, uint64(p.HopLimit))
	}
	if p.RSSI != 0 {
		b = appendVarint(b, 12, uint64(int64(p.RSSI)))
	}
	if p.HopStart != 0 {
		b = appendVarint(b, 15, uint64(p.HopStart))
	}
	return b
}

// Data encodes a Data message.
func Data(port uint32, payload []byte) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(port))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, payload)
	return b
}

// Position encodes a Position with degrees converted to 1e-7 integer units.
func Position(lat, lon float64, alt int32, fixTime uint32) []byte {
	var b []byte
	b = appendFixed32(b, 1, uint32(int32(math.Round(lat*1e7))))
	b = appendFixed32(b, 2, uint32(int32(math.Round(lon*1e7))))
	if alt != 0 {
		b = appendVarint(b, 3, uint64(int64(alt)))
	}
	if fixTime != 0 {
		b = appendFixed32(b, 4, fixTime)
	}
	return b
}

// User encodes a User (node info).
func User(id, longName, shortName string, hwModel, role uint64) []byte {
	var b []byte
	b = appendString(b, 1, id)
	b = appendString(b, 2, longName)
	b = appendString(b, 3, shortName)
	b = appendVarint(b, 5, hwModel)
	b = appendVarint(b, 7, role)
	return b
}

// DeviceTelemetry encodes a Telemetry with device metrics.
func DeviceTelemetry(reported uint32, battery uint32, voltage float32) []byte {
	var dm []byte
	dm = appendVarint(dm, 1, uint64(battery))
	dm = appendFixed32(dm, 2, math.Float32bits(voltage))

	var b []byte
	if reported != 0 {
		b = appendFixed32(b, 1, reported)
	}
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, dm)
	return b
}

// RouteDiscovery encodes a packed traceroute with SNRs in 0.25 dB units.
func RouteDiscovery(route []uint32, snrTowards []int32) []byte {
	var packed []byte
	for _, r := range route {
		packed = protowire.AppendFixed32(packed, r)
	}
	var snrs []byte
	for _, s := range snrTowards {
		snrs = protowire.AppendVarint(snrs, uint64(int64(s)))
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, snrs)
	return b
}

// MapReport encodes a MapReport.
func MapReport(longName, shortName, firmware string, lat, lon float64) []byte {
	var b []byte
	b = appendString(b, 1, longName)
	b = appendString(b, 2, shortName)
	b = appendString(b, 5, firmware)
	b = appendFixed32(b, 9, uint32(int32(math.Round(lat*1e7))))
	b = appendFixed32(b, 10, uint32(int32(math.Round(lon*1e7))))
	return b
}

// Encrypt runs Meshtastic AES-CTR over plain for the given packet id and sender.
func Encrypt(key []byte, id, from uint32, plain []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	nonce := make([]byte, aes.BlockSize)
	binary.LittleEndian.PutUint64(nonce[0:8], uint64(id))
	binary.LittleEndian.PutUint32(nonce[8:12], from)
	out := make([]byte, len(plain))
	cipher.NewCTR(block, nonce).XORKeyStream(out, plain)
	return out
}

// F32 returns a pointer to v.
func F32(v float32) *float32 { return &v }

func appendFixed32(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
