// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/meshcast/internal/models"
)

// ErrEmptyPayload is set on messages with no bytes.
var ErrEmptyPayload = errors.New("empty payload")

// topic tree segments
const (
	segEncrypted = "e"
	segProtobuf  = "c"
	segJSON      = "json"
	segMap       = "map"
)

type topicInfo struct {
	tree    string
	channel string
	gateway string
}

// parseTopic extracts the topic tree, channel and gateway from a topic such
// as "msh/US/2/e/LongFast/!a1b2c3d4". When several tree markers appear the
// priority is map, then json, then e.
func parseTopic(topic string) topicInfo {
	segs := strings.Split(strings.Trim(topic, "/"), "/")
	ti := topicInfo{}
	treeIdx := -1
	for _, want := range []string{segMap, segJSON, segEncrypted, segProtobuf} {
		for i, s := range segs {
			if s == want {
				ti.tree, treeIdx = want, i
				break
			}
		}
		if treeIdx >= 0 {
			break
		}
	}
	if treeIdx >= 0 && ti.tree != segMap && treeIdx+1 < len(segs) && !strings.HasPrefix(segs[treeIdx+1], "!") {
		ti.channel = segs[treeIdx+1]
	}
	for i := len(segs) - 1; i >= 0; i-- {
		if strings.HasPrefix(segs[i], "!") && len(segs[i]) > 1 {
			ti.gateway = segs[i]
			break
		}
	}
	return ti
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithDecrypter enables decryption of the encrypted topic tree.
func WithDecrypter(d Decrypter) Option {
	return func(c *Classifier) { c.decrypter = d }
}

// WithClock overrides the receive-time source.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// Classifier turns raw broker messages into typed records. It is stateless
// apart from its collaborators and safe for concurrent use.
type Classifier struct {
	decrypter Decrypter
	now       func() time.Time
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify parses one broker message. It never panics: any failure is
// reported as KindParseError with Err set and no payload.
func (c *Classifier) Classify(topic string, payload []byte) (msg Message) {
	msg = Message{Topic: topic, ReceivedAt: c.now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			msg = Message{
				Topic:      topic,
				Kind:       KindParseError,
				ReceivedAt: msg.ReceivedAt,
				Err:        fmt.Errorf("classifier panic: %v", r),
			}
		}
	}()

	if len(payload) == 0 {
		msg.Kind = KindParseError
		msg.Err = ErrEmptyPayload
		return msg
	}

	ti := parseTopic(topic)
	switch ti.tree {
	case segMap:
		c.classifyMap(&msg, payload, ti)
	case segJSON:
		classifyJSON(&msg, payload, ti)
	case segEncrypted:
		c.classifyEncrypted(&msg, payload, ti)
	default:
		c.classifyProtobuf(&msg, payload, ti)
	}
	return msg
}

func (c *Classifier) classifyMap(msg *Message, payload []byte, ti topicInfo) {
	msg.Channel = ti.channel
	msg.GatewayID = ti.gateway
	if first := firstNonSpace(payload); first == '{' || first == '[' {
		msg.Kind = KindMapReport
		report, err := decodeMapReportJSON(msg, payload)
		if err != nil {
			msg.Kind = KindParseError
			msg.Err = err
			return
		}
		if len(report.Nodes) == 1 {
			msg.NodeNum = report.Nodes[0].Num
			msg.NodeID = report.Nodes[0].ID
		}
		msg.Payload = report
		return
	}
	c.classifyProtobuf(msg, payload, ti)
}

func (c *Classifier) classifyEncrypted(msg *Message, payload []byte, ti topicInfo) {
	msg.Encrypted = true
	if c.decrypter == nil {
		msg.Kind = KindEncrypted
		if env, err := DecodeEnvelope(payload); err == nil {
			fillPacketMeta(msg, env, ti)
		} else {
			msg.Channel, msg.GatewayID = ti.channel, ti.gateway
		}
		return
	}
	env, err := c.decrypter.Decrypt(msg.Topic, payload)
	if err != nil {
		msg.Kind = KindParseError
		msg.Err = fmt.Errorf("decrypt: %w", err)
		return
	}
	c.classifyEnvelope(msg, env, ti)
}

func (c *Classifier) classifyProtobuf(msg *Message, payload []byte, ti topicInfo) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		msg.Kind = KindParseError
		msg.Err = err
		return
	}
	if env.Packet.Decoded == nil && len(env.Packet.Encrypted) > 0 {
		msg.Encrypted = true
		if c.decrypter == nil {
			fillPacketMeta(msg, env, ti)
			msg.Kind = KindEncrypted
			return
		}
		if env, err = c.decrypter.Decrypt(msg.Topic, payload); err != nil {
			msg.Kind = KindParseError
			msg.Err = fmt.Errorf("decrypt: %w", err)
			return
		}
	}
	c.classifyEnvelope(msg, env, ti)
}

func (c *Classifier) classifyEnvelope(msg *Message, env *Envelope, ti topicInfo) {
	fillPacketMeta(msg, env, ti)
	pkt := env.Packet
	if pkt.Decoded == nil {
		msg.Kind = KindParseError
		msg.Err = ErrNoDecodedPayload
		return
	}
	decodeApp(msg, &packetContext{
		pkt:      pkt,
		data:     pkt.Decoded,
		nodeID:   msg.NodeID,
		channel:  msg.Channel,
		gateway:  msg.GatewayID,
		snr:      msg.SNR,
		rssi:     msg.RSSI,
		received: msg.ReceivedAt,
	})
}

func fillPacketMeta(msg *Message, env *Envelope, ti topicInfo) {
	pkt := env.Packet
	msg.NodeNum = pkt.From
	if pkt.From != 0 {
		msg.NodeID = models.NodeIDFromNum(pkt.From)
	}
	msg.PacketID = pkt.ID
	msg.Channel = env.ChannelID
	if msg.Channel == "" {
		msg.Channel = ti.channel
	}
	msg.GatewayID = env.GatewayID
	if msg.GatewayID == "" {
		msg.GatewayID = ti.gateway
	}
	if pkt.HasSNR {
		msg.SNR = models.Float64(float64(pkt.RxSNR))
	}
	if pkt.RxRSSI != 0 {
		msg.RSSI = models.Int32(pkt.RxRSSI)
	}
	msg.HopLimit = pkt.HopLimit
}

func firstNonSpace(b []byte) byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
