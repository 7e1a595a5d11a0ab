// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	nodeKeyPrefix      = "node:"
	heardKeyPrefix     = "heard:"
	positionKeyPrefix  = "pos:"
	telemetryKeyPrefix = "tel:"
	messageKeyPrefix   = "msg:"
)

// maxTxnRetries bounds retries of a transaction that hit badger.ErrConflict.
const maxTxnRetries = 5

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path        string
	InMemory    bool
	SyncWrites  bool
	Compression bool

	// Retention expires positions, telemetry and messages; zero keeps them forever.
	Retention time.Duration

	GCInterval time.Duration
	GCRatio    float64
}

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	cfg BadgerConfig

	closeOnce sync.Once
}

// OpenBadger opens (or creates) the store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger store: path is required")
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = 0.5
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.Compression {
		opts.Compression = options.Snappy
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Dur("retention", cfg.Retention).
		Msg("Badger store opened")
	return &BadgerStore{db: db, cfg: cfg}, nil
}

// invertedTime renders t so that lexical key order is newest first.
func invertedTime(t time.Time) string {
	var nanos int64
	if !t.IsZero() {
		nanos = t.UnixNano()
	}
	return fmt.Sprintf("%020d", math.MaxInt64-nanos)
}

func heardKey(n *models.Node) []byte {
	return []byte(heardKeyPrefix + invertedTime(n.LastHeard) + ":" + n.ID)
}

func positionKey(p *models.Position) []byte {
	return []byte(positionKeyPrefix + p.NodeID + ":" + invertedTime(p.Time))
}

func telemetryKey(t *models.Telemetry) []byte {
	return []byte(telemetryKeyPrefix + t.NodeID + ":" + invertedTime(t.Time))
}

func messageKey(m *models.Message) []byte {
	return []byte(messageKeyPrefix + m.Key())
}

// update runs fn in a read-write transaction, retrying optimistic conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	switch {
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w after %d attempts: %w", ErrTxnConflict, maxTxnRetries, err)
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	}
	return err
}

func (s *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	err := s.db.View(fn)
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

func (s *BadgerStore) entry(key, val []byte, expires bool) *badger.Entry {
	e := badger.NewEntry(key, val)
	if expires && s.cfg.Retention > 0 {
		e = e.WithTTL(s.cfg.Retention)
	}
	return e
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func requireNode(txn *badger.Txn, id string) error {
	_, err := txn.Get([]byte(nodeKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("node %s: %w", id, ErrForeignKey)
	}
	return err
}

func requireAbsent(txn *badger.Txn, key []byte) error {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return fmt.Errorf("%s: %w", key, ErrDuplicate)
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil
	}
	return err
}

// UpsertNode implements Writer.
func (s *BadgerStore) UpsertNode(ctx context.Context, n *models.Node) error {
	if n == nil || n.ID == "" {
		return errors.New("upsert node: missing id")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		merged := *n
		var existing models.Node
		err := getJSON(txn, []byte(nodeKeyPrefix+n.ID), &existing)
		switch {
		case err == nil:
			if err := txn.Delete(heardKey(&existing)); err != nil {
				return fmt.Errorf("delete heard index: %w", err)
			}
			existing.Merge(n)
			merged = existing
		case errors.Is(err, ErrNotFound):
		default:
			return fmt.Errorf("get node: %w", err)
		}

		data, err := json.Marshal(&merged)
		if err != nil {
			return fmt.Errorf("marshal node: %w", err)
		}
		if err := txn.Set([]byte(nodeKeyPrefix+merged.ID), data); err != nil {
			return fmt.Errorf("set node: %w", err)
		}
		if err := txn.Set(heardKey(&merged), []byte(merged.ID)); err != nil {
			return fmt.Errorf("set heard index: %w", err)
		}
		return nil
	})
}

// InsertPosition implements Writer. A second position for the same node and
// fix time is a duplicate.
func (s *BadgerStore) InsertPosition(ctx context.Context, p *models.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	key := positionKey(p)
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := requireNode(txn, p.NodeID); err != nil {
			return err
		}
		if err := requireAbsent(txn, key); err != nil {
			return err
		}
		return txn.SetEntry(s.entry(key, data, true))
	})
}

// InsertTelemetry implements Writer.
func (s *BadgerStore) InsertTelemetry(ctx context.Context, t *models.Telemetry) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	key := telemetryKey(t)
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := requireNode(txn, t.NodeID); err != nil {
			return err
		}
		if err := requireAbsent(txn, key); err != nil {
			return err
		}
		return txn.SetEntry(s.entry(key, data, true))
	})
}

// InsertMessage implements Writer.
func (s *BadgerStore) InsertMessage(ctx context.Context, m *models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := messageKey(m)
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := requireNode(txn, m.From); err != nil {
			return err
		}
		if err := requireAbsent(txn, key); err != nil {
			return err
		}
		return txn.SetEntry(s.entry(key, data, true))
	})
}

// GetNode implements Reader.
func (s *BadgerStore) GetNode(_ context.Context, id string) (*models.Node, error) {
	var n models.Node
	err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(nodeKeyPrefix+id), &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetLatestPosition implements Reader.
func (s *BadgerStore) GetLatestPosition(ctx context.Context, nodeID string) (*models.Position, error) {
	ps, err := s.GetPositionHistory(ctx, nodeID, 1)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, ErrNotFound
	}
	return ps[0], nil
}

// GetPositionHistory implements Reader.
func (s *BadgerStore) GetPositionHistory(_ context.Context, nodeID string, limit int) ([]*models.Position, error) {
	limit = ClampLimit(limit)
	prefix := []byte(positionKeyPrefix + nodeID + ":")
	out := make([]*models.Position, 0, min(limit, 16))
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = min(limit, 100)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var p models.Position
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return fmt.Errorf("decode position: %w", err)
			}
			out = append(out, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecentNodes implements Reader.
func (s *BadgerStore) ListRecentNodes(_ context.Context, limit int) ([]*models.Node, error) {
	limit = ClampLimit(limit)
	prefix := []byte(heardKeyPrefix)
	var out []*models.Node
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			key := it.Item().Key()
			id := key[bytes.LastIndexByte(key, ':')+1:]
			var n models.Node
			if err := getJSON(txn, append([]byte(nodeKeyPrefix), id...), &n); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			out = append(out, &n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ping implements Store.
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// RunGC runs value log garbage collection until nothing is left to rewrite.
func (s *BadgerStore) RunGC() error {
	if s.cfg.InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Run performs periodic garbage collection until ctx is done.
func (s *BadgerStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("Badger value log GC failed")
			}
		}
	}
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
