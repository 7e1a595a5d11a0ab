// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/meshcast/internal/broadcast"
	"github.com/tomtom215/meshcast/internal/models"
	"github.com/tomtom215/meshcast/internal/store"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 << 10

// PositionsRequest holds the validated query of the position history endpoint.
type PositionsRequest struct {
	Limit int `validate:"min=1,max=1000"`
}

// StreamRequest holds the validated live stream filter query.
type StreamRequest struct {
	Nodes    []string `validate:"max=256,dive,meshnode"`
	Channels []string `validate:"max=64,dive,required,max=64"`
	Types    []string `validate:"max=16,dive,oneof=node position telemetry message text raw node-update position-update telemetry-update message-new raw-packet"`
	MinSNR   *float64 `validate:"omitempty,min=-50,max=50"`
}

// Filter converts the request to a hub filter; nil when nothing is set.
func (s StreamRequest) Filter() *broadcast.Filter {
	if len(s.Nodes) == 0 && len(s.Channels) == 0 && len(s.Types) == 0 && s.MinSNR == nil {
		return nil
	}
	nodes := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		// Validated as meshnode, so normalization cannot fail.
		id, _ := normalizeNodeID(n)
		nodes = append(nodes, id)
	}
	return &broadcast.Filter{NodeIDs: nodes, Channels: s.Channels, Types: s.Types, MinSNR: s.MinSNR}
}

// normalizeNodeID accepts "!0000abcd", "0000abcd" or "abcd" and returns the
// canonical form.
func normalizeNodeID(raw string) (string, bool) {
	num, ok := models.NodeNumFromID(raw)
	if !ok {
		return "", false
	}
	return models.NodeIDFromNum(num), true
}

// getIntParam extracts an integer query parameter with a default value.
// Malformed values are returned as -1 so validation rejects them.
func getIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// getListParam merges repeated and comma-separated values: ?node=a,b&node=c.
func getListParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseStreamRequest reads the filter query shared by SSE and WebSocket.
func parseStreamRequest(r *http.Request) (StreamRequest, error) {
	req := StreamRequest{
		Nodes:    getListParam(r, "node"),
		Channels: getListParam(r, "channel"),
		Types:    getListParam(r, "type"),
	}
	if v := r.URL.Query().Get("min_snr"); v != "" {
		snr, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errors.New("min_snr must be a number")
		}
		req.MinSNR = &snr
	}
	return req, nil
}

// writeStoreError maps store errors onto HTTP responses.
func writeStoreError(rw *ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		rw.NotFound(what + " not found")
	case store.IsUnavailable(err):
		rw.ServiceUnavailable("storage temporarily unavailable")
	default:
		rw.StoreError(err)
	}
}
