// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func jsonBody(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	})
}

func serveWith(h http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	Compression(h).ServeHTTP(rec, req)
	return rec
}

func gunzip(t *testing.T, r io.Reader) string {
	t.Helper()
	zr, err := gzip.NewReader(r)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer zr.Close()
	b, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	return string(b)
}

func TestCompression_LargeJSON(t *testing.T) {
	body := strings.Repeat(`{"node_id":"!00000001","snr":7.5},`, 60)
	rec := serveWith(jsonBody(body), map[string]string{"Accept-Encoding": "deflate, gzip, br"})

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	if got := rec.Header().Get("Vary"); got != "Accept-Encoding" {
		t.Errorf("Vary = %q", got)
	}
	if got := gunzip(t, rec.Body); got != body {
		t.Error("decompressed body differs")
	}
}

func TestCompression_LargeBodyInSmallWrites(t *testing.T) {
	chunk := `{"id":"!0000000a"},`
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			_, _ = io.WriteString(w, chunk)
		}
	})
	rec := serveWith(h, map[string]string{"Accept-Encoding": "gzip"})

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("expected gzip once the buffered body passed the threshold")
	}
	if got := gunzip(t, rec.Body); got != strings.Repeat(chunk, 100) {
		t.Error("decompressed body differs")
	}
}

func TestCompression_PassThrough(t *testing.T) {
	large := strings.Repeat("x", 2*MinCompressSize)
	tests := []struct {
		name    string
		handler http.Handler
		headers map[string]string
		want    string
	}{
		{"no accept-encoding", jsonBody(large), nil, large},
		{"other encodings only", jsonBody(large), map[string]string{"Accept-Encoding": "br, deflate"}, large},
		{"gzip refused", jsonBody(large), map[string]string{"Accept-Encoding": "gzip;q=0, br"}, large},
		{"websocket upgrade", jsonBody(large), map[string]string{"Accept-Encoding": "gzip", "Upgrade": "websocket"}, large},
		{"below threshold", jsonBody(`{"status":"ok"}`), map[string]string{"Accept-Encoding": "gzip"}, `{"status":"ok"}`},
		{"event stream", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, large)
		}), map[string]string{"Accept-Encoding": "gzip"}, large},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveWith(tt.handler, tt.headers)
			if got := rec.Header().Get("Content-Encoding"); got != "" {
				t.Errorf("Content-Encoding = %q, want none", got)
			}
			if rec.Body.String() != tt.want {
				t.Errorf("body = %.40q...", rec.Body.String())
			}
		})
	}
}

func TestCompression_StatusOnly(t *testing.T) {
	rec := serveWith(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), map[string]string{"Accept-Encoding": "gzip"})

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestCompression_KeepsErrorStatus(t *testing.T) {
	rec := serveWith(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success":false}`)
	}), map[string]string{"Accept-Encoding": "gzip"})

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec.Body.String() != `{"success":false}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := map[string]bool{
		"":                  false,
		"gzip":              true,
		"GZIP":              true,
		"br, gzip;q=0.8":    true,
		"gzip;q=0":          false,
		"gzip; q=0.000, br": false,
		"x-gzip":            false,
	}
	for header, want := range tests {
		if got := acceptsGzip(header); got != want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", header, got, want)
		}
	}
}

func BenchmarkCompression(b *testing.B) {
	handler := Compression(jsonBody(strings.Repeat(`{"node_id":"!00000001"},`, 100)))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
