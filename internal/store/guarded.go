// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package store

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/models"
)

// BreakerConfig configures the circuit breaker in front of a backend.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the defaults used by the server.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "store",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// IsUnavailable reports whether err was produced by an open breaker rather
// than by the backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Guarded wraps a Store with a circuit breaker. Conflicts and not-found
// results are answers from a healthy backend and never count as failures.
type Guarded struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
}

// NewGuarded wraps s.
func NewGuarded(s Store, cfg BreakerConfig) *Guarded {
	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsConflict(err) || errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String(), breakerStateValue(to))
			ev := logging.Info()
			if to == gobreaker.StateOpen {
				ev = logging.Warn()
			}
			ev.Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Store circuit breaker state changed")
		},
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	return &Guarded{inner: s, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// breakerStateValue maps states onto the gauge: 0 closed, 1 half-open, 2 open.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State returns the breaker state name.
func (g *Guarded) State() string {
	return g.cb.State().String()
}

func (g *Guarded) exec(fn func() error) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func guardedValue[T any](g *Guarded, fn func() (T, error)) (T, error) {
	var out T
	err := g.exec(func() error {
		v, err := fn()
		out = v
		return err
	})
	return out, err
}

// UpsertNode implements Writer.
func (g *Guarded) UpsertNode(ctx context.Context, n *models.Node) error {
	return g.exec(func() error { return g.inner.UpsertNode(ctx, n) })
}

// InsertPosition implements Writer.
func (g *Guarded) InsertPosition(ctx context.Context, p *models.Position) error {
	return g.exec(func() error { return g.inner.InsertPosition(ctx, p) })
}

// InsertTelemetry implements Writer.
func (g *Guarded) InsertTelemetry(ctx context.Context, t *models.Telemetry) error {
	return g.exec(func() error { return g.inner.InsertTelemetry(ctx, t) })
}

// InsertMessage implements Writer.
func (g *Guarded) InsertMessage(ctx context.Context, m *models.Message) error {
	return g.exec(func() error { return g.inner.InsertMessage(ctx, m) })
}

// GetNode implements Reader.
func (g *Guarded) GetNode(ctx context.Context, id string) (*models.Node, error) {
	return guardedValue(g, func() (*models.Node, error) { return g.inner.GetNode(ctx, id) })
}

// GetLatestPosition implements Reader.
func (g *Guarded) GetLatestPosition(ctx context.Context, nodeID string) (*models.Position, error) {
	return guardedValue(g, func() (*models.Position, error) { return g.inner.GetLatestPosition(ctx, nodeID) })
}

// GetPositionHistory implements Reader.
func (g *Guarded) GetPositionHistory(ctx context.Context, nodeID string, limit int) ([]*models.Position, error) {
	return guardedValue(g, func() ([]*models.Position, error) {
		return g.inner.GetPositionHistory(ctx, nodeID, limit)
	})
}

// ListRecentNodes implements Reader.
func (g *Guarded) ListRecentNodes(ctx context.Context, limit int) ([]*models.Node, error) {
	return guardedValue(g, func() ([]*models.Node, error) { return g.inner.ListRecentNodes(ctx, limit) })
}

// Ping bypasses the breaker so health checks report the backend itself.
func (g *Guarded) Ping(ctx context.Context) error {
	return g.inner.Ping(ctx)
}

// Close implements Store.
func (g *Guarded) Close() error {
	return g.inner.Close()
}
