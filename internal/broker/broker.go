// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broker

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrDuplicateConnection is returned by AddConnection when the id is in use.
	ErrDuplicateConnection = errors.New("connection already exists")

	// ErrUnknownConnection is returned by RemoveConnection for unknown ids.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrUnsupportedScheme is returned when no dialer handles the URL scheme.
	ErrUnsupportedScheme = errors.New("unsupported broker url scheme")

	// ErrInvalidSpec wraps validation failures of a ConnectionSpec.
	ErrInvalidSpec = errors.New("invalid connection spec")

	// ErrInvalidTopic is returned for topic filters that can not be
	// expressed on the target broker.
	ErrInvalidTopic = errors.New("invalid topic filter")

	// ErrManagerClosed is returned after the manager stopped.
	ErrManagerClosed = errors.New("broker manager closed")
)

// Status is the lifecycle state of a broker connection.
type Status string

// Connection states. A connection moves disconnected -> connecting ->
// connected, drops to error on failure and retries through connecting.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// gaugeValue maps the status onto the connection status gauge.
func (s Status) gaugeValue() float64 {
	switch s {
	case StatusConnecting:
		return 1
	case StatusConnected:
		return 2
	case StatusError:
		return 3
	default:
		return 0
	}
}

// ConnectionSpec describes a broker connection to open.
type ConnectionSpec struct {
	// ID is generated when empty.
	ID       string   `json:"id,omitempty" koanf:"id" validate:"omitempty,max=64,excludesall=/?#"`
	Name     string   `json:"name" koanf:"name" validate:"max=128"`
	URL      string   `json:"url" koanf:"url" validate:"required,url"`
	Username string   `json:"username,omitempty" koanf:"username" validate:"max=256"`
	Password string   `json:"password,omitempty" koanf:"password" validate:"max=256"`
	ClientID string   `json:"client_id,omitempty" koanf:"client_id" validate:"max=23"`
	Topics   []string `json:"topics" koanf:"topics" validate:"required,min=1,dive,required,max=512,topicfilter"`
}

// Scheme returns the lower-cased URL scheme.
func (s ConnectionSpec) Scheme() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// ConnectionInfo is a point-in-time snapshot of a connection.
type ConnectionInfo struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	Topics           []string  `json:"topics"`
	Status           Status    `json:"status"`
	MessagesReceived uint64    `json:"messages_received"`
	LastError        string    `json:"last_error,omitempty"`
	LastConnected    time.Time `json:"last_connected,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Handler receives every inbound message with the id of the connection it
// arrived on. It runs on the broker client's delivery goroutine and must not
// block.
type Handler func(connectionID, topic string, payload []byte)

// MessageFunc is the per-subscription callback of a Client.
type MessageFunc func(topic string, payload []byte)

// Client is an established broker session.
type Client interface {
	// Subscribe registers fn for a topic filter in MQTT syntax.
	Subscribe(topic string, fn MessageFunc) error
	// Close ends the session. It is safe to call more than once.
	Close()
}

// Dialer opens sessions for one family of URL schemes. onLost is invoked at
// most once when an established session drops unexpectedly.
type Dialer interface {
	Dial(ctx context.Context, spec ConnectionSpec, onLost func(error)) (Client, error)
}
