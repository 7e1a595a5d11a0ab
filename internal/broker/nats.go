// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSDialer opens core NATS sessions. Topic filters are given in MQTT
// syntax and translated to subjects; inbound subjects are translated back
// so the classifier sees one topic convention.
type NATSDialer struct{}

// NewNATSDialer returns a NATS dialer.
func NewNATSDialer() *NATSDialer {
	return &NATSDialer{}
}

// Dial implements Dialer.
func (d *NATSDialer) Dial(ctx context.Context, spec ConnectionSpec, onLost func(error)) (Client, error) {
	opts := []nats.Option{
		nats.Name("meshcast-" + spec.ID),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			onLost(err)
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	if spec.Username != "" {
		opts = append(opts, nats.UserInfo(spec.Username, spec.Password))
	}

	nc, err := nats.Connect(spec.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &natsClient{conn: nc}, nil
}

type natsClient struct {
	conn      *nats.Conn
	closeOnce sync.Once
}

func (c *natsClient) Subscribe(topic string, fn MessageFunc) error {
	subject, err := TopicToSubject(topic)
	if err != nil {
		return err
	}
	_, err = c.conn.Subscribe(subject, func(msg *nats.Msg) {
		fn(SubjectToTopic(msg.Subject), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	// Round-trip so the interest is registered before we report connected.
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("flush subscription %s: %w", subject, err)
	}
	return nil
}

func (c *natsClient) Close() {
	c.closeOnce.Do(c.conn.Close)
}

// TopicToSubject translates an MQTT topic filter into a NATS subject:
// levels become tokens, "+" becomes "*" and a trailing "#" becomes ">".
func TopicToSubject(topic string) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		switch {
		case level == "+":
			levels[i] = "*"
		case level == "#":
			if i != len(levels)-1 {
				return "", fmt.Errorf("%w: %q has # before the last level", ErrInvalidTopic, topic)
			}
			levels[i] = ">"
		case level == "":
			return "", fmt.Errorf("%w: %q has an empty level", ErrInvalidTopic, topic)
		case strings.ContainsAny(level, ". *>\t"):
			return "", fmt.Errorf("%w: level %q is not a valid subject token", ErrInvalidTopic, level)
		}
	}
	return strings.Join(levels, "."), nil
}

// SubjectToTopic translates a NATS subject into a "/" separated topic.
func SubjectToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
