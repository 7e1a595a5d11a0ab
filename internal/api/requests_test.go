// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package api

import (
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestNormalizeNodeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"!a1b2c3d4", "!a1b2c3d4", true},
		{"a1b2c3d4", "!a1b2c3d4", true},
		{"beef", "!0000beef", true},
		{"!", "", false},
		{"base-camp", "", false},
		{"123456789", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeNodeID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("normalizeNodeID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseStreamRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/stream?node=beef,!00000001&node=2&channel=LongFast&type=position,raw&min_snr=-7.5", nil)
	req, err := parseStreamRequest(r)
	if err != nil {
		t.Fatal(err)
	}

	f := req.Filter()
	if f == nil {
		t.Fatal("expected a filter")
	}
	if want := []string{"!0000beef", "!00000001", "!00000002"}; !reflect.DeepEqual(f.NodeIDs, want) {
		t.Errorf("NodeIDs = %v, want %v", f.NodeIDs, want)
	}
	if !reflect.DeepEqual(f.Channels, []string{"LongFast"}) || !reflect.DeepEqual(f.Types, []string{"position", "raw"}) {
		t.Errorf("filter = %+v", f)
	}
	if f.MinSNR == nil || *f.MinSNR != -7.5 {
		t.Errorf("MinSNR = %v", f.MinSNR)
	}
}

func TestParseStreamRequest_Empty(t *testing.T) {
	req, err := parseStreamRequest(httptest.NewRequest("GET", "/api/v1/stream", nil))
	if err != nil {
		t.Fatal(err)
	}
	if req.Filter() != nil {
		t.Error("empty query should produce no filter")
	}
}
