// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package classifier

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded protobuf field. Only the member matching typ is set.
type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	fixed64 uint64
	bytes   []byte
}

func (f field) float32() float32 { return math.Float32frombits(f.fixed32) }
func (f field) sfixed32() int32  { return int32(f.fixed32) }
func (f field) int32() int32     { return int32(f.varint) }
func (f field) sint32() int32    { return int32(protowire.DecodeZigZag(f.varint)) }
func (f field) bool() bool       { return f.varint != 0 }

// walkFields iterates the top-level fields of a protobuf message. Groups are
// skipped. A truncated or malformed buffer yields an error; fields seen
// before the error have already been passed to fn.
func walkFields(b []byte, fn func(f field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		fn(f)
	}
	return nil
}

// packedFixed32 decodes a packed repeated fixed32 field, also accepting the
// unpacked single-value encoding.
func packedFixed32(f field) []uint32 {
	if f.typ == protowire.Fixed32Type {
		return []uint32{f.fixed32}
	}
	if f.typ != protowire.BytesType {
		return nil
	}
	b := f.bytes
	out := make([]uint32, 0, len(b)/4)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			break
		}
		out = append(out, v)
		b = b[n:]
	}
	return out
}

// packedVarint decodes a packed repeated varint field, also accepting the
// unpacked single-value encoding.
func packedVarint(f field) []uint64 {
	if f.typ == protowire.VarintType {
		return []uint64{f.varint}
	}
	if f.typ != protowire.BytesType {
		return nil
	}
	b := f.bytes
	var out []uint64
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			break
		}
		out = append(out, v)
		b = b[n:]
	}
	return out
}
