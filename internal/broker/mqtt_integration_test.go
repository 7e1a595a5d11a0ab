// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

//go:build integration

package broker

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tomtom215/meshcast/internal/testinfra"
)

type delivery struct {
	connID, topic string
	payload       []byte
}

func TestMQTT_Integration(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker, err := testinfra.NewMosquittoContainer(ctx)
	if err != nil {
		t.Fatalf("start mosquitto: %v", err)
	}
	testinfra.CleanupContainer(t, broker)

	got := make(chan delivery, 16)
	m := NewManager(ManagerConfig{RetryInterval: 200 * time.Millisecond, ConnectTimeout: 5 * time.Second},
		func(connID, topic string, payload []byte) {
			got <- delivery{connID, topic, payload}
		})
	t.Cleanup(m.Close)

	id, err := m.AddConnection(ConnectionSpec{ID: "mosquitto", URL: broker.URL, Topics: []string{"msh/#"}})
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for statusOf(m, id) != StatusConnected {
		if time.Now().After(deadline) {
			info, _ := m.Connection(id)
			t.Fatalf("connection did not come up: %+v", info)
		}
		time.Sleep(50 * time.Millisecond)
	}

	pub := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(broker.URL).SetClientID("meshcast-test-pub"))
	if tok := pub.Connect(); !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("publisher connect: %v", tok.Error())
	}
	defer pub.Disconnect(100)

	const topic = "msh/US/2/e/LongFast/!0000abcd"
	if tok := pub.Publish(topic, 0, false, []byte{0x0a, 0x00}); !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("publish: %v", tok.Error())
	}

	select {
	case d := <-got:
		if d.connID != "mosquitto" || d.topic != topic || len(d.payload) != 2 {
			t.Errorf("delivery = %+v", d)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("message was not delivered")
	}

	if info, _ := m.Connection(id); info.MessagesReceived != 1 {
		t.Errorf("MessagesReceived = %d, want 1", info.MessagesReceived)
	}

	if err := m.RemoveConnection(id); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	if _, ok := m.Connection(id); ok {
		t.Error("connection still listed after removal")
	}
}
