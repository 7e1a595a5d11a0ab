// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// brokerSchemes are the URL schemes the broker manager can dial.
var brokerSchemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true,
	"ws": true, "wss": true, "nats": true,
}

// validateBrokerURL validates that a broker URL is properly formatted.
// Supports: MQTT (tcp, mqtt, ssl, tls, mqtts, ws, wss) and nats schemes
// with IP addresses/hostnames and optional ports.
func validateBrokerURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	if !brokerSchemes[strings.ToLower(parsedURL.Scheme)] {
		return fmt.Errorf("scheme must be one of tcp, mqtt, ssl, tls, mqtts, ws, wss or nats, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:1883, mqtt.meshtastic.org)")
	}

	return nil
}

// validatePostgresURL validates a PostgreSQL connection URL.
// Key=value DSNs are accepted as-is and left to pgx to parse.
func validatePostgresURL(rawURL string) error {
	if !strings.Contains(rawURL, "://") {
		if !strings.Contains(rawURL, "=") {
			return fmt.Errorf("expected postgres:// URL or key=value DSN")
		}
		return nil
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
		return fmt.Errorf("scheme must be postgres or postgresql, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
