// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package services

import (
	"context"
	"errors"
	"fmt"
)

// Runner is a component with a blocking Run loop that returns once ctx is
// done. The pipeline, hot cache, coalescing buffer, broadcaster, broker
// manager and Badger store all satisfy it.
type Runner interface {
	Run(ctx context.Context) error
}

// Service names as they appear in supervisor log events.
const (
	NamePipeline      = "persistence-pipeline"
	NameCacheJanitor  = "hot-cache-janitor"
	NameStoreGC       = "badger-gc"
	NameCoalescer     = "coalescing-buffer"
	NameBroadcaster   = "broadcast-hub"
	NameBrokerManager = "broker-manager"
)

// ComponentService wraps a Runner as a supervised service.
//
// Run already follows the context-aware pattern suture expects, so the
// wrapper only labels the service and normalizes the return value: a
// shutdown is reported as the context error, anything else is wrapped with
// the service name so the restart event says which component failed.
type ComponentService struct {
	runner Runner
	name   string
}

// NewComponentService creates a wrapper with an explicit name.
func NewComponentService(name string, r Runner) *ComponentService {
	return &ComponentService{runner: r, name: name}
}

// NewPipelineService supervises the persistence workers.
func NewPipelineService(r Runner) *ComponentService {
	return NewComponentService(NamePipeline, r)
}

// NewCacheJanitorService supervises the hot cache expiry sweep.
func NewCacheJanitorService(r Runner) *ComponentService {
	return NewComponentService(NameCacheJanitor, r)
}

// NewStoreGCService supervises Badger value log garbage collection.
func NewStoreGCService(r Runner) *ComponentService {
	return NewComponentService(NameStoreGC, r)
}

// NewCoalescerService supervises the coalescing buffer flush loop.
func NewCoalescerService(r Runner) *ComponentService {
	return NewComponentService(NameCoalescer, r)
}

// NewBroadcasterService supervises the broadcast hub heartbeat loop.
func NewBroadcasterService(r Runner) *ComponentService {
	return NewComponentService(NameBroadcaster, r)
}

// NewBrokerManagerService supervises the broker connection manager.
func NewBrokerManagerService(r Runner) *ComponentService {
	return NewComponentService(NameBrokerManager, r)
}

// Serve implements suture.Service.
func (s *ComponentService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s stopped unexpectedly", s.name)
	}
	return fmt.Errorf("%s failed: %w", s.name, err)
}

// String implements fmt.Stringer for logging.
func (s *ComponentService) String() string {
	return s.name
}
