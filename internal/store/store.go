// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

// Package store persists mesh node state: node identities, positions,
// telemetry and text messages.
//
// Two backends implement Store: an embedded BadgerDB store (the default) and
// a PostgreSQL store on pgx. Both report uniqueness and referential
// violations through ErrDuplicate and ErrForeignKey so the ingestion
// pipeline can treat them as benign.
package store

import (
	"context"
	"errors"

	"github.com/tomtom215/meshcast/internal/models"
)

var (
	// ErrNotFound is returned by reads for unknown nodes.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("duplicate key")

	// ErrForeignKey is returned when a child record references an unknown node.
	ErrForeignKey = errors.New("foreign key violation")

	// ErrTxnConflict is returned when concurrent writers kept invalidating a
	// transaction until the retry budget ran out.
	ErrTxnConflict = errors.New("transaction conflict")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

// IsConflict reports whether err is a duplicate-key, foreign-key or
// write-write conflict. None of them means the store is unhealthy.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrForeignKey) || errors.Is(err, ErrTxnConflict)
}

// DefaultHistoryLimit bounds position history reads when the caller passes
// a non-positive limit.
const DefaultHistoryLimit = 100

// MaxHistoryLimit is the largest history read served.
const MaxHistoryLimit = 1000

// ClampLimit normalizes a history limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// Reader is the read side used by the hot-state cache and the API.
type Reader interface {
	GetNode(ctx context.Context, id string) (*models.Node, error)
	GetLatestPosition(ctx context.Context, nodeID string) (*models.Position, error)
	// GetPositionHistory returns up to limit positions, most recent first.
	GetPositionHistory(ctx context.Context, nodeID string, limit int) ([]*models.Position, error)
	// ListRecentNodes returns up to limit nodes ordered by LastHeard descending.
	ListRecentNodes(ctx context.Context, limit int) ([]*models.Node, error)
}

// Writer is the write side used by the ingestion pipeline.
type Writer interface {
	// UpsertNode merges n into the stored node, creating it when absent.
	UpsertNode(ctx context.Context, n *models.Node) error
	InsertPosition(ctx context.Context, p *models.Position) error
	InsertTelemetry(ctx context.Context, t *models.Telemetry) error
	// InsertMessage fails with ErrDuplicate when the message id exists.
	InsertMessage(ctx context.Context, m *models.Message) error
}

// Store is a complete persistence backend.
type Store interface {
	Reader
	Writer
	Ping(ctx context.Context) error
	Close() error
}
