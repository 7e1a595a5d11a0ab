// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broadcast

import (
	"errors"
	"sync"
)

// Transport kinds, also used as metric labels.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

var (
	// ErrQueueFull is returned by Send when the client is not keeping up.
	ErrQueueFull = errors.New("client send queue full")

	// ErrTransportClosed is returned by Send after Close.
	ErrTransportClosed = errors.New("transport closed")
)

// Transport delivers frames to one client. Send must not block: a slow
// client fails the send instead of stalling the broadcaster.
type Transport interface {
	Kind() string
	Send(f Frame) error
	Close()
}

// DefaultQueueSize is the per-client frame queue length.
const DefaultQueueSize = 256

// outbox is the bounded per-client queue shared by the socket transports.
// frames is never closed; done signals shutdown to the writer.
type outbox struct {
	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &outbox{
		frames: make(chan Frame, size),
		done:   make(chan struct{}),
	}
}

func (o *outbox) Send(f Frame) error {
	select {
	case <-o.done:
		return ErrTransportClosed
	default:
	}
	select {
	case o.frames <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

func (o *outbox) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}
