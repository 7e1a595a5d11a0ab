// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package classifier turns raw broker messages from a Meshtastic mesh into
typed records.

The topic tree selects the decoder:

	msh/<region>/2/map/...         map reports (protobuf or JSON)
	msh/<region>/2/json/<ch>/!gw   JSON uplink packets
	msh/<region>/2/e/<ch>/!gw      encrypted ServiceEnvelope (needs a Decrypter)
	msh/<region>/2/c/<ch>/!gw      plain ServiceEnvelope

Protobuf messages are decoded field by field with protowire, so the package
has no generated code and tolerates unknown fields from newer firmware.

Classify never panics. A message that cannot be decoded is returned with
KindParseError; a message missing its sender or packet id keeps its kind but
carries no Payload, so downstream stages only forward it raw.

Usage:

	dec, err := classifier.NewChannelKeyDecrypter(map[string]string{"LongFast": classifier.DefaultPSK})
	if err != nil {
	    return err
	}
	c := classifier.New(classifier.WithDecrypter(dec))
	msg := c.Classify(topic, payload)
	switch p := msg.Payload.(type) {
	case classifier.PositionReport:
	    store(p.Position)
	}
*/
package classifier
