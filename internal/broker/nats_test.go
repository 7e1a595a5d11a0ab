// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package broker

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startEmbeddedNATS runs an in-process NATS server on a random port.
func startEmbeddedNATS(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		ServerName: "meshcast-test",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready within timeout")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestTopicToSubject(t *testing.T) {
	tests := []struct {
		topic   string
		want    string
		wantErr bool
	}{
		{"msh/#", "msh.>", false},
		{"msh/US/2/e/+/!abcd1234", "msh.US.2.e.*.!abcd1234", false},
		{"msh/US/2/json/LongFast/#", "msh.US.2.json.LongFast.>", false},
		{"", "", true},
		{"msh/#/e", "", true},
		{"msh//e", "", true},
		{"/msh", "", true},
		{"msh/a.b", "", true},
	}
	for _, tt := range tests {
		got, err := TopicToSubject(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("TopicToSubject(%q) err = %v, wantErr %v", tt.topic, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("TopicToSubject(%q) err = %v, want ErrInvalidTopic", tt.topic, err)
		}
		if got != tt.want {
			t.Errorf("TopicToSubject(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestSubjectToTopic(t *testing.T) {
	if got := SubjectToTopic("msh.US.2.e.LongFast.!abcd1234"); got != "msh/US/2/e/LongFast/!abcd1234" {
		t.Errorf("SubjectToTopic = %q", got)
	}
}

func TestManager_NATSEndToEnd(t *testing.T) {
	ns := startEmbeddedNATS(t)
	rec := &recorder{}
	m := NewManager(ManagerConfig{RetryInterval: 20 * time.Millisecond, ConnectTimeout: 2 * time.Second}, rec.handle)
	t.Cleanup(m.Close)

	id, err := m.AddConnection(ConnectionSpec{
		ID:     "nats-1",
		URL:    ns.ClientURL(),
		Topics: []string{"msh/US/#"},
	})
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	waitFor(t, "connected", func() bool { return statusOf(m, id) == StatusConnected })

	pub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	defer pub.Close()

	if err := pub.Publish("msh.US.2.e.LongFast.!abcd1234", []byte{0x0a, 0x00}); err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish("msh.EU.2.e.LongFast.!abcd1234", []byte{0x0a}); err != nil {
		t.Fatal(err)
	}
	pub.Flush()

	waitFor(t, "delivery", func() bool { return rec.count() == 1 })
	rec.mu.Lock()
	got := rec.msgs[0]
	rec.mu.Unlock()
	if got.connID != "nats-1" || got.topic != "msh/US/2/e/LongFast/!abcd1234" {
		t.Errorf("delivery = %+v", got)
	}

	// Dropping the server moves the connection to error and the manager
	// keeps retrying.
	ns.Shutdown()
	waitFor(t, "error status", func() bool {
		s := statusOf(m, id)
		return s == StatusError || s == StatusConnecting
	})
}
