// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/models"
)

// SQLSTATE codes mapped to store sentinels.
const (
	sqlstateUniqueViolation     = "23505"
	sqlstateForeignKeyViolation = "23503"
)

// PostgresConfig configures the SQL store.
type PostgresConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	StatementTimeout time.Duration
}

// PostgresStore implements Store on PostgreSQL via a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id               TEXT PRIMARY KEY,
	num              BIGINT NOT NULL,
	long_name        TEXT NOT NULL DEFAULT '',
	short_name       TEXT NOT NULL DEFAULT '',
	hw_model         TEXT NOT NULL DEFAULT '',
	role             TEXT NOT NULL DEFAULT '',
	firmware_version TEXT NOT NULL DEFAULT '',
	region           TEXT NOT NULL DEFAULT '',
	modem_preset     TEXT NOT NULL DEFAULT '',
	channel          TEXT NOT NULL DEFAULT '',
	snr              DOUBLE PRECISION,
	rssi             INTEGER,
	hops_away        INTEGER,
	last_heard       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS nodes_last_heard_idx ON nodes (last_heard DESC);

CREATE TABLE IF NOT EXISTS positions (
	node_id        TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	time           TIMESTAMPTZ NOT NULL,
	latitude       DOUBLE PRECISION NOT NULL,
	longitude      DOUBLE PRECISION NOT NULL,
	altitude       INTEGER,
	precision_bits INTEGER NOT NULL DEFAULT 0,
	sats_in_view   INTEGER NOT NULL DEFAULT 0,
	ground_speed   INTEGER,
	ground_track   INTEGER,
	channel        TEXT NOT NULL DEFAULT '',
	snr            DOUBLE PRECISION,
	received_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (node_id, time)
);

CREATE TABLE IF NOT EXISTS telemetry (
	node_id     TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	time        TIMESTAMPTZ NOT NULL,
	device      JSONB,
	environment JSONB,
	channel     TEXT NOT NULL DEFAULT '',
	snr         DOUBLE PRECISION,
	received_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (node_id, time)
);

CREATE TABLE IF NOT EXISTS messages (
	id         BIGINT NOT NULL,
	from_node  TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	to_node    TEXT NOT NULL,
	channel    TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL,
	gateway_id TEXT NOT NULL DEFAULT '',
	hop_limit  INTEGER NOT NULL DEFAULT 0,
	snr        DOUBLE PRECISION,
	rssi       INTEGER,
	rx_time    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (from_node, id)
);
`

// OpenPostgres connects to PostgreSQL and creates the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres store: url is required")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.StatementTimeout > 0 {
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to initialize pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	logging.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("Postgres store connected")
	return &PostgresStore{pool: pool}, nil
}

// mapPgError translates constraint violations into store sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrDuplicate)
		case sqlstateForeignKeyViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrForeignKey)
		}
	}
	return err
}

func nullableJSON(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

// UpsertNode implements Writer. Empty strings and NULLs never overwrite
// stored values and last_heard only moves forward.
func (s *PostgresStore) UpsertNode(ctx context.Context, n *models.Node) error {
	if n == nil || n.ID == "" {
		return errors.New("upsert node: missing id")
	}
	const q = `
INSERT INTO nodes (id, num, long_name, short_name, hw_model, role, firmware_version,
	region, modem_preset, channel, snr, rssi, hops_away, last_heard)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
	long_name        = COALESCE(NULLIF(EXCLUDED.long_name, ''), nodes.long_name),
	short_name       = COALESCE(NULLIF(EXCLUDED.short_name, ''), nodes.short_name),
	hw_model         = COALESCE(NULLIF(EXCLUDED.hw_model, ''), nodes.hw_model),
	role             = COALESCE(NULLIF(EXCLUDED.role, ''), nodes.role),
	firmware_version = COALESCE(NULLIF(EXCLUDED.firmware_version, ''), nodes.firmware_version),
	region           = COALESCE(NULLIF(EXCLUDED.region, ''), nodes.region),
	modem_preset     = COALESCE(NULLIF(EXCLUDED.modem_preset, ''), nodes.modem_preset),
	channel          = COALESCE(NULLIF(EXCLUDED.channel, ''), nodes.channel),
	snr              = COALESCE(EXCLUDED.snr, nodes.snr),
	rssi             = COALESCE(EXCLUDED.rssi, nodes.rssi),
	hops_away        = COALESCE(EXCLUDED.hops_away, nodes.hops_away),
	last_heard       = GREATEST(nodes.last_heard, EXCLUDED.last_heard)`

	_, err := s.pool.Exec(ctx, q,
		n.ID, int64(n.Num), n.LongName, n.ShortName, n.HWModel, n.Role, n.FirmwareVersion,
		n.Region, n.ModemPreset, n.Channel, n.SNR, n.RSSI, hopsAway(n.HopsAway), n.LastHeard)
	return mapPgError(err)
}

func hopsAway(v *uint32) *int32 {
	if v == nil {
		return nil
	}
	h := int32(*v)
	return &h
}

func optUint(v *uint32) *int64 {
	if v == nil {
		return nil
	}
	u := int64(*v)
	return &u
}

// InsertPosition implements Writer.
func (s *PostgresStore) InsertPosition(ctx context.Context, p *models.Position) error {
	const q = `
INSERT INTO positions (node_id, time, latitude, longitude, altitude, precision_bits,
	sats_in_view, ground_speed, ground_track, channel, snr, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.pool.Exec(ctx, q,
		p.NodeID, p.Time, p.Latitude, p.Longitude, p.Altitude, int64(p.PrecisionBits),
		int64(p.SatsInView), optUint(p.GroundSpeed), optUint(p.GroundTrack), p.Channel, p.SNR, p.ReceivedAt)
	return mapPgError(err)
}

// InsertTelemetry implements Writer.
func (s *PostgresStore) InsertTelemetry(ctx context.Context, t *models.Telemetry) error {
	device, err := nullableJSON(t.Device, t.Device == nil)
	if err != nil {
		return fmt.Errorf("marshal device metrics: %w", err)
	}
	env, err := nullableJSON(t.Environment, t.Environment == nil)
	if err != nil {
		return fmt.Errorf("marshal environment metrics: %w", err)
	}
	const q = `
INSERT INTO telemetry (node_id, time, device, environment, channel, snr, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(ctx, q, t.NodeID, t.Time, device, env, t.Channel, t.SNR, t.ReceivedAt)
	return mapPgError(err)
}

// InsertMessage implements Writer.
func (s *PostgresStore) InsertMessage(ctx context.Context, m *models.Message) error {
	const q = `
INSERT INTO messages (id, from_node, to_node, channel, text, gateway_id, hop_limit, snr, rssi, rx_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, q,
		int64(m.ID), m.From, m.To, m.Channel, m.Text, m.GatewayID, int64(m.HopLimit), m.SNR, m.RSSI, m.RxTime)
	return mapPgError(err)
}

const nodeColumns = `id, num, long_name, short_name, hw_model, role, firmware_version,
	region, modem_preset, channel, snr, rssi, hops_away, last_heard`

func scanNode(row pgx.Row) (*models.Node, error) {
	var (
		n    models.Node
		num  int64
		hops *int32
	)
	err := row.Scan(&n.ID, &num, &n.LongName, &n.ShortName, &n.HWModel, &n.Role, &n.FirmwareVersion,
		&n.Region, &n.ModemPreset, &n.Channel, &n.SNR, &n.RSSI, &hops, &n.LastHeard)
	if err != nil {
		return nil, mapPgError(err)
	}
	n.Num = uint32(num)
	if hops != nil {
		h := uint32(*hops)
		n.HopsAway = &h
	}
	n.LastHeard = n.LastHeard.UTC()
	return &n, nil
}

// GetNode implements Reader.
func (s *PostgresStore) GetNode(ctx context.Context, id string) (*models.Node, error) {
	return scanNode(s.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1`, id))
}

// ListRecentNodes implements Reader.
func (s *PostgresStore) ListRecentNodes(ctx context.Context, limit int) ([]*models.Node, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes ORDER BY last_heard DESC LIMIT $1`, ClampLimit(limit))
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []*models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, mapPgError(rows.Err())
}

// GetLatestPosition implements Reader.
func (s *PostgresStore) GetLatestPosition(ctx context.Context, nodeID string) (*models.Position, error) {
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
func (s *PostgresStore) GetPositionHistory(ctx context.Context, nodeID string, limit int) ([]*models.Position, error) {
	const q = `
SELECT node_id, time, latitude, longitude, altitude, precision_bits, sats_in_view,
	ground_speed, ground_track, channel, snr, received_at
FROM positions WHERE node_id = $1 ORDER BY time DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, nodeID, ClampLimit(limit))
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		var (
			p                  models.Position
			precision, sats    int32
			groundSpeed, track *int32
		)
		if err := rows.Scan(&p.NodeID, &p.Time, &p.Latitude, &p.Longitude, &p.Altitude, &precision, &sats,
			&groundSpeed, &track, &p.Channel, &p.SNR, &p.ReceivedAt); err != nil {
			return nil, mapPgError(err)
		}
		p.PrecisionBits = uint32(precision)
		p.SatsInView = uint32(sats)
		if groundSpeed != nil {
			p.GroundSpeed = models.Uint32(uint32(*groundSpeed))
		}
		if track != nil {
			p.GroundTrack = models.Uint32(uint32(*track))
		}
		p.Time = p.Time.UTC()
		p.ReceivedAt = p.ReceivedAt.UTC()
		out = append(out, &p)
	}
	return out, mapPgError(rows.Err())
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
