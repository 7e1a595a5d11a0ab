// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// MinCompressSize is the smallest response body that gets gzipped. Health
// probes and single-node lookups stay below it and are sent as is.
const MinCompressSize = 512

var gzipPool = sync.Pool{
	New: func() any {
		gz, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return gz
	},
}

// Compression gzips JSON responses of at least MinCompressSize bytes for
// clients that accept gzip. WebSocket upgrades pass through untouched, and
// so do responses that already carry a Content-Encoding or are event
// streams; live frames carry their own compression.
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptsGzip(r.Header.Get("Accept-Encoding")) ||
			strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Accept-Encoding")
		gw := &gzipWriter{ResponseWriter: w}
		defer gw.finish()
		next.ServeHTTP(gw, r)
	})
}

// acceptsGzip parses an Accept-Encoding header; "gzip;q=0" is a refusal.
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}

// gzipWriter holds the body back until it is large enough to compress.
// Exactly one of gz or plain is set once the header has been committed.
type gzipWriter struct {
	http.ResponseWriter
	status int
	buf    []byte
	gz     *gzip.Writer
	plain  bool
}

func (w *gzipWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *gzipWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	switch {
	case w.gz != nil:
		return w.gz.Write(b)
	case w.plain:
		return w.ResponseWriter.Write(b)
	case len(w.buf) == 0 && !compressible(w.Header()):
		w.commitPlain()
		return w.ResponseWriter.Write(b)
	}

	w.buf = append(w.buf, b...)
	if len(w.buf) >= MinCompressSize {
		if err := w.commitGzip(); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// Flush commits whatever is buffered and flushes the underlying writer.
func (w *gzipWriter) Flush() {
	switch {
	case w.gz != nil:
		_ = w.gz.Flush()
	case !w.plain:
		if w.status == 0 {
			w.status = http.StatusOK
		}
		w.commitPlain()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *gzipWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func compressible(h http.Header) bool {
	return h.Get("Content-Encoding") == "" &&
		!strings.HasPrefix(h.Get("Content-Type"), "text/event-stream")
}

func (w *gzipWriter) commitGzip() error {
	h := w.Header()
	h.Set("Content-Encoding", "gzip")
	h.Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)

	w.gz = gzipPool.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	_, err := w.gz.Write(w.buf)
	w.buf = nil
	return err
}

func (w *gzipWriter) commitPlain() {
	w.plain = true
	w.ResponseWriter.WriteHeader(w.status)
	if len(w.buf) > 0 {
		_, _ = w.ResponseWriter.Write(w.buf)
		w.buf = nil
	}
}

// finish sends a body that never reached MinCompressSize uncompressed and
// returns the gzip writer to the pool.
func (w *gzipWriter) finish() {
	switch {
	case w.gz != nil:
		_ = w.gz.Close()
		gzipPool.Put(w.gz)
		w.gz = nil
	case w.plain:
	case w.status != 0:
		w.commitPlain()
	}
}
