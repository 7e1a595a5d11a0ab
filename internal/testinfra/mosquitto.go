// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultMosquittoImage is the MQTT broker image used by broker tests.
const DefaultMosquittoImage = "eclipse-mosquitto:2"

const mosquittoPort = "1883/tcp"

// mosquittoConfig allows anonymous clients on the plain listener.
const mosquittoConfig = "listener 1883\nallow_anonymous true\n"

// MosquittoContainer is a running MQTT broker.
type MosquittoContainer struct {
	testcontainers.Container
	// URL is a tcp:// broker address.
	URL string
}

// NewMosquittoContainer starts an anonymous Mosquitto broker.
func NewMosquittoContainer(ctx context.Context) (*MosquittoContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultMosquittoImage,
		ExposedPorts: []string{mosquittoPort},
		Files: []testcontainers.ContainerFile{{
			Reader:            strings.NewReader(mosquittoConfig),
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
		WaitingFor: wait.ForListeningPort(mosquittoPort).WithStartupTimeout(60 * time.Second),
	}

	c, addr, err := start(ctx, "mosquitto", req, mosquittoPort)
	if err != nil {
		return nil, err
	}
	return &MosquittoContainer{Container: c, URL: "tcp://" + addr}, nil
}
