// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broadcast

import (
	"strings"

	"github.com/tomtom215/meshcast/internal/models"
)

// Filter narrows what a client receives. Empty fields match everything.
type Filter struct {
	NodeIDs  []string `json:"node_ids,omitempty"`
	Channels []string `json:"channels,omitempty"`
	// Types holds event types ("position-update") or their short kind
	// names ("position").
	Types  []string `json:"types,omitempty"`
	MinSNR *float64 `json:"min_snr,omitempty"`
}

var typeAliases = map[string]string{
	"node":      EventNodeUpdate,
	"position":  EventPositionUpdate,
	"telemetry": EventTelemetryUpdate,
	"message":   EventMessageNew,
	"text":      EventMessageNew,
	"raw":       EventRawPacket,
}

// matcher is the compiled, immutable form of a Filter.
type matcher struct {
	nodes    map[string]struct{}
	channels map[string]struct{}
	types    map[string]struct{}
	minSNR   *float64
}

func toSet(values []string, normalize func(string) string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if normalize != nil {
			v = normalize(v)
		}
		set[v] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func normalizeType(t string) string {
	t = strings.ToLower(t)
	if alias, ok := typeAliases[t]; ok {
		return alias
	}
	return t
}

// compile returns nil for a filter that matches everything.
func (f *Filter) compile() *matcher {
	if f == nil {
		return nil
	}
	m := &matcher{
		nodes:    toSet(f.NodeIDs, nil),
		channels: toSet(f.Channels, nil),
		types:    toSet(f.Types, normalizeType),
		minSNR:   f.MinSNR,
	}
	if m.nodes == nil && m.channels == nil && m.types == nil && m.minSNR == nil {
		return nil
	}
	return m
}

func contains(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}

func (m *matcher) allowsType(eventType string) bool {
	return m == nil || m.types == nil || contains(m.types, eventType)
}

// matches reports whether a structured entity passes every criterion.
// Entities without a known SNR never pass a minimum SNR filter.
func (m *matcher) matches(eventType string, e models.Entity) bool {
	if m == nil {
		return true
	}
	if !m.allowsType(eventType) {
		return false
	}
	if m.nodes != nil && !contains(m.nodes, e.EntityNodeID()) {
		return false
	}
	if m.channels != nil && !contains(m.channels, e.EntityChannel()) {
		return false
	}
	if m.minSNR != nil {
		snr, ok := e.EntitySNR()
		if !ok || snr < *m.minSNR {
			return false
		}
	}
	return true
}

// matchesRaw applies only the node and channel criteria. Raw packets whose
// node or channel is unknown are delivered.
func (m *matcher) matchesRaw(nodeID, channel string) bool {
	if m == nil {
		return true
	}
	if m.nodes != nil && nodeID != "" && !contains(m.nodes, nodeID) {
		return false
	}
	if m.channels != nil && channel != "" && !contains(m.channels, channel) {
		return false
	}
	return true
}
