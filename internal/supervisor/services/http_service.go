// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
)

// NameHTTPServer labels the control surface in supervisor log events.
const NameHTTPServer = "http-server"

// DefaultShutdownTimeout bounds Shutdown when no timeout is configured.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServer is the lifecycle subset of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the control-surface server under the api layer.
//
// Long-lived SSE and WebSocket responses do not hold up Shutdown: the hub
// closes every stream when the messaging layer stops.
type HTTPServerService struct {
	server  HTTPServer
	timeout time.Duration
}

// NewHTTPServerService wraps server. A non-positive shutdownTimeout uses
// DefaultShutdownTimeout.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &HTTPServerService{server: server, timeout: shutdownTimeout}
}

// Serve implements suture.Service.
//
// A listen failure such as a bound port is returned so suture backs off and
// retries. A server closed from outside cannot be reopened and returns
// suture.ErrDoNotRestart.
func (s *HTTPServerService) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.server.ListenAndServe() }()

	select {
	case err := <-done:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s closed outside the supervisor: %w", NameHTTPServer, suture.ErrDoNotRestart)
		}
		return fmt.Errorf("%s failed: %w", NameHTTPServer, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	<-done
	if err != nil {
		return fmt.Errorf("%s shutdown: %w", NameHTTPServer, err)
	}
	return ctx.Err()
}

func (s *HTTPServerService) String() string { return NameHTTPServer }
