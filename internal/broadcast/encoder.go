// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broadcast

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// Encoding of a frame payload.
type Encoding string

// Frame encodings.
const (
	EncodingIdentity Encoding = "identity"
	EncodingGzip     Encoding = "gzip"
)

// Frame is a serialized event ready for a transport.
type Frame struct {
	Type     string
	Encoding Encoding
	Payload  []byte
}

// Size returns the payload length.
func (f Frame) Size() int { return len(f.Payload) }

// Compressor compresses frame payloads.
type Compressor interface {
	Compress(p []byte) ([]byte, error)
}

// GzipCompressor compresses with klauspost gzip, reusing writers.
type GzipCompressor struct {
	level int
	pool  sync.Pool
}

// NewGzipCompressor returns a compressor at the given level.
func NewGzipCompressor(level int) *GzipCompressor {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &GzipCompressor{level: level}
}

// Compress implements Compressor.
func (g *GzipCompressor) Compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(p) / 2)

	zw, ok := g.pool.Get().(*gzip.Writer)
	if ok {
		zw.Reset(&buf)
	} else {
		var err error
		zw, err = gzip.NewWriterLevel(&buf, g.level)
		if err != nil {
			return nil, err
		}
	}
	defer g.pool.Put(zw)

	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encoder serializes events and compresses large frames when it pays off.
type Encoder struct {
	threshold  int
	minBenefit float64
	compressor Compressor
}

// NewEncoder creates an encoder. Frames larger than threshold bytes are
// compressed and kept compressed only when they shrink by at least
// minBenefit (a fraction, 0.1 = 10%). A nil compressor disables compression.
func NewEncoder(threshold int, minBenefit float64, c Compressor) *Encoder {
	return &Encoder{threshold: threshold, minBenefit: minBenefit, compressor: c}
}

// Encode serializes ev into a frame.
func (e *Encoder) Encode(ev Event) (Frame, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return e.frame(ev.Type, data), nil
}

func (e *Encoder) frame(eventType string, data []byte) Frame {
	f := Frame{Type: eventType, Encoding: EncodingIdentity, Payload: data}
	if e.compressor == nil || len(data) <= e.threshold {
		return f
	}
	compressed, err := e.compressor.Compress(data)
	if err != nil {
		return f
	}
	if float64(len(compressed)) > float64(len(data))*(1-e.minBenefit) {
		return f
	}
	f.Encoding = EncodingGzip
	f.Payload = compressed
	return f
}
