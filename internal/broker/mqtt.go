// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	mqttKeepAlive         = 30 * time.Second
	mqttSubscribeTimeout  = 10 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
)

// MQTTDialer opens MQTT 3.1.1 sessions with paho. Automatic reconnection is
// disabled; the Manager owns retries.
type MQTTDialer struct {
	keepAlive time.Duration
}

// NewMQTTDialer returns a dialer with default keepalive.
func NewMQTTDialer() *MQTTDialer {
	return &MQTTDialer{keepAlive: mqttKeepAlive}
}

// Dial implements Dialer.
func (d *MQTTDialer) Dial(ctx context.Context, spec ConnectionSpec, onLost func(error)) (Client, error) {
	clientID := spec.ClientID
	if clientID == "" {
		clientID = "meshcast-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions().
		AddBroker(spec.URL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(d.keepAlive).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onLost(err)
		})
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetConnectTimeout(time.Until(deadline))
	}
	if spec.Username != "" {
		opts.SetUsername(spec.Username)
		opts.SetPassword(spec.Password)
	}

	c := mqtt.NewClient(opts)
	if err := waitToken(ctx, c.Connect()); err != nil {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &mqttClient{client: c}, nil
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mqttClient struct {
	client    mqtt.Client
	closeOnce sync.Once
}

// Subscribe subscribes at QoS 0; mesh gateways publish at most once.
func (c *mqttClient) Subscribe(topic string, fn MessageFunc) error {
	tok := c.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		fn(msg.Topic(), msg.Payload())
	})
	if !tok.WaitTimeout(mqttSubscribeTimeout) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *mqttClient) Close() {
	c.closeOnce.Do(func() {
		c.client.Disconnect(mqttDisconnectQuiesce)
	})
}
