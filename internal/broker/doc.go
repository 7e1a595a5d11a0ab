// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package broker manages the publish/subscribe sessions mesh telemetry arrives on.

A Manager owns any number of connections. Each connection runs in its own
goroutine:

	disconnected -> connecting -> connected
	                    ^             |
	                    +---- error <-+

Dial failures and lost sessions move the connection to error; the next
attempt is paced by a token bucket so retries happen at a fixed interval and
never give up. Removing a connection closes its session and drops any message
still in flight.

# Transports

MQTT 3.1.1 sessions use eclipse/paho.mqtt.golang (tcp, mqtt, ssl, tls, mqtts,
ws, wss schemes). NATS sessions use nats.go (nats scheme); MQTT style topic
filters are translated to subjects and back:

	msh/US/2/e/#        <->  msh.US.2.e.>
	msh/+/2/map/        ->   rejected (empty level)

# Usage

	mgr := broker.NewManager(broker.DefaultManagerConfig(), pipeline.Ingest)
	id, err := mgr.AddConnection(broker.ConnectionSpec{
	    Name:   "public",
	    URL:    "tcp://mqtt.meshtastic.org:1883",
	    Topics: []string{"msh/US/#"},
	})
*/
package broker
