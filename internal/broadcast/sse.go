// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broadcast

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
)

// ErrStreamingUnsupported is returned when the ResponseWriter can not flush.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// SSETransport queues frames for a Server-Sent Events response.
type SSETransport struct {
	*outbox
}

// NewSSETransport returns a transport with the given queue length.
func NewSSETransport(queueSize int) *SSETransport {
	return &SSETransport{outbox: newOutbox(queueSize)}
}

// Kind implements Transport.
func (t *SSETransport) Kind() string { return TransportSSE }

// writeSSEFrame writes one event. JSON frames are plain data lines; gzip
// frames are sent as a gzip event with base64 data.
func writeSSEFrame(w *bufio.Writer, f Frame) error {
	if f.Encoding == EncodingGzip {
		if _, err := w.WriteString("event: gzip\ndata: "); err != nil {
			return err
		}
		enc := base64.NewEncoder(base64.StdEncoding, w)
		if _, err := enc.Write(f.Payload); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		_, err := w.WriteString("\n\n")
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(f.Payload); err != nil {
		return err
	}
	_, err := w.WriteString("\n\n")
	return err
}

// ServeSSE streams hub events to w until the client disconnects, the hub
// removes the client, or ctx ends.
func ServeSSE(ctx context.Context, hub *Hub, w http.ResponseWriter, id string, filter *Filter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	t := NewSSETransport(hub.QueueSize())
	client, err := hub.Register(id, t, filter)
	if err != nil {
		return err
	}
	id = client.ID()
	defer hub.Unregister(id)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	bw := bufio.NewWriter(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.done:
			return nil
		case f := <-t.frames:
			if err := writeSSEFrame(bw, f); err != nil {
				return err
			}
			// Drain whatever else is queued before flushing.
			for drained := false; !drained; {
				select {
				case f := <-t.frames:
					if err := writeSSEFrame(bw, f); err != nil {
						return err
					}
				default:
					drained = true
				}
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
