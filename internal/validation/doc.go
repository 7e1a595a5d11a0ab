// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

// Package validation provides the shared go-playground/validator instance.
//
// The singleton caches struct metadata across requests and registers two
// mesh-specific tags:
//
//	meshnode     node ids: "!0000abcd", "0000abcd" or "abcd"
//	topicfilter  MQTT topic filters with "+" and "#" wildcards
//
// ValidateStruct turns validator errors into a RequestValidationError whose
// Fields are rendered in the VALIDATION_FAILED response envelope:
//
//	type StreamRequest struct {
//	    Nodes []string `validate:"max=256,dive,meshnode"`
//	}
//
//	if err := validation.ValidateStruct(req); err != nil {
//	    rw.ValidationError("invalid stream filter", validation.Details(err))
//	}
package validation
