// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/meshcast/internal/classifier"
	"github.com/tomtom215/meshcast/internal/coalesce"
	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/models"
	"github.com/tomtom215/meshcast/internal/store"
)

// Persistence outcomes, used as metric labels.
const (
	resultOK       = "ok"
	resultConflict = "conflict"
	resultError    = "error"
	resultRejected = "rejected"
)

// record is one structured entity derived from a classified message.
type record struct {
	kind  coalesce.Kind
	key   string
	value models.Entity
}

// persistJob is one record plus the sender stub to upsert before it, so
// child rows never reference an unknown node.
type persistJob struct {
	record record
	touch  *models.Node
}

// recordsFor extracts the structured records of msg. Messages without a
// payload yield none.
func recordsFor(msg *classifier.Message) []record {
	switch p := msg.Payload.(type) {
	case classifier.NodeInfo:
		if p.Node == nil || p.Node.ID == "" {
			return nil
		}
		return []record{{kind: coalesce.KindNode, key: p.Node.ID, value: p.Node}}
	case classifier.PositionReport:
		if p.Position == nil || p.Position.NodeID == "" {
			return nil
		}
		return []record{{kind: coalesce.KindPosition, key: p.Position.NodeID, value: p.Position}}
	case classifier.TelemetryReport:
		if p.Telemetry == nil || p.Telemetry.NodeID == "" {
			return nil
		}
		return []record{{kind: coalesce.KindTelemetry, key: p.Telemetry.NodeID, value: p.Telemetry}}
	case classifier.TextMessage:
		if p.Message == nil || p.Message.From == "" {
			return nil
		}
		return []record{{kind: coalesce.KindMessage, key: p.Message.Key(), value: p.Message}}
	case classifier.MapReport:
		recs := make([]record, 0, len(p.Nodes)+len(p.Positions))
		for _, n := range p.Nodes {
			if n != nil && n.ID != "" {
				recs = append(recs, record{kind: coalesce.KindNode, key: n.ID, value: n})
			}
		}
		for _, pos := range p.Positions {
			if pos != nil && pos.NodeID != "" {
				recs = append(recs, record{kind: coalesce.KindPosition, key: pos.NodeID, value: pos})
			}
		}
		return recs
	}
	return nil
}

// touchNode returns a minimal node carrying the radio metadata of the
// packet, or nil when the sender is unknown.
func touchNode(msg *classifier.Message) *models.Node {
	if msg.NodeID == "" {
		return nil
	}
	return &models.Node{
		ID:        msg.NodeID,
		Num:       msg.NodeNum,
		Channel:   msg.Channel,
		SNR:       msg.SNR,
		RSSI:      msg.RSSI,
		LastHeard: msg.ReceivedAt,
	}
}

func (p *Pipeline) persist(ctx context.Context, j persistJob) {
	// Node records carry their own identity; only child rows need the stub.
	if j.touch != nil && j.record.kind != coalesce.KindNode {
		if p.write(ctx, "node", j.touch.ID, func(ctx context.Context) error {
			return p.writer.UpsertNode(ctx, j.touch)
		}) == resultOK && p.cache != nil {
			p.cache.InvalidateNode(j.touch.ID)
		}
	}

	r := j.record
	var result string
	switch v := r.value.(type) {
	case *models.Node:
		result = p.write(ctx, string(r.kind), r.key, func(ctx context.Context) error {
			return p.writer.UpsertNode(ctx, v)
		})
		if result == resultOK && p.cache != nil {
			p.cache.InvalidateNode(v.ID)
		}
	case *models.Position:
		result = p.write(ctx, string(r.kind), r.key, func(ctx context.Context) error {
			return p.writer.InsertPosition(ctx, v)
		})
		if result == resultOK && p.cache != nil {
			p.cache.InvalidatePosition(v.NodeID)
		}
	case *models.Telemetry:
		p.write(ctx, string(r.kind), r.key, func(ctx context.Context) error {
			return p.writer.InsertTelemetry(ctx, v)
		})
	case *models.Message:
		p.write(ctx, string(r.kind), r.key, func(ctx context.Context) error {
			return p.writer.InsertMessage(ctx, v)
		})
	default:
		logging.Error().
			Str("record", string(r.kind)).
			Str("type", fmt.Sprintf("%T", r.value)).
			Msg("No persistence for record type")
	}
}

// write runs one store call and classifies its outcome. Conflicts are
// expected under concurrent upserts and only logged at debug level.
func (p *Pipeline) write(ctx context.Context, recordType, key string, fn func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	var result string
	switch {
	case err == nil:
		result = resultOK
		p.persisted.Add(1)
	case store.IsConflict(err):
		result = resultConflict
		p.conflicts.Add(1)
		logging.Debug().Err(err).Str("record", recordType).Str("key", key).Msg("Persistence conflict")
	case store.IsUnavailable(err):
		result = resultRejected
		p.rejected.Add(1)
		logging.Debug().Err(err).Str("record", recordType).Msg("Store unavailable, record not persisted")
	default:
		result = resultError
		p.failed.Add(1)
		logging.Warn().Err(err).Str("record", recordType).Str("key", key).Msg("Persistence failed")
	}
	metrics.RecordPersist(recordType, result, elapsed)
	return result
}
