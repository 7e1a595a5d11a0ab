// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package classifier

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// DefaultPSK is the base64 form of the well-known default channel key.
const DefaultPSK = "AQ=="

// defaultKey is the AES-128 key the one-byte PSK 0x01 expands to.
var defaultKey = []byte{
	0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59,
	0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01,
}

var (
	// ErrInvalidPSK is returned for keys that are not 0, 1, 16 or 32 bytes.
	ErrInvalidPSK = errors.New("invalid pre-shared key")

	// ErrNoKey is returned when no configured key decrypts a packet.
	ErrNoKey = errors.New("no key decrypts packet")

	// ErrNotEncrypted is returned for packets without an encrypted payload.
	ErrNotEncrypted = errors.New("packet is not encrypted")
)

// Decrypter turns an encrypted-topic payload into an envelope whose packet
// carries decoded data.
type Decrypter interface {
	Decrypt(topic string, payload []byte) (*Envelope, error)
}

// ExpandPSK converts a base64 channel PSK into an AES key. A single byte n
// selects the default key with its last byte shifted by n-1; an empty or
// zero PSK means no encryption and returns nil.
func ExpandPSK(psk string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(psk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPSK, err)
	}
	switch len(raw) {
	case 0:
		return nil, nil
	case 1:
		if raw[0] == 0 {
			return nil, nil
		}
		key := make([]byte, len(defaultKey))
		copy(key, defaultKey)
		key[len(key)-1] += raw[0] - 1
		return key, nil
	case 16, 32:
		return raw, nil
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPSK, len(raw))
}

// ChannelKeyDecrypter decrypts packets with per-channel keys, falling back
// to the default key.
type ChannelKeyDecrypter struct {
	mu       sync.RWMutex
	channels map[string][]byte
	fallback [][]byte
}

// NewChannelKeyDecrypter builds a decrypter from channel name to base64 PSK.
// The default key is always tried last.
func NewChannelKeyDecrypter(psks map[string]string) (*ChannelKeyDecrypter, error) {
	d := &ChannelKeyDecrypter{
		channels: make(map[string][]byte, len(psks)),
		fallback: [][]byte{defaultKey},
	}
	for channel, psk := range psks {
		if err := d.SetChannelKey(channel, psk); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// SetChannelKey adds or replaces the key of one channel.
func (d *ChannelKeyDecrypter) SetChannelKey(channel, psk string) error {
	key, err := ExpandPSK(psk)
	if err != nil {
		return fmt.Errorf("channel %q: %w", channel, err)
	}
	if key == nil {
		return nil
	}
	if _, err := aes.NewCipher(key); err != nil {
		return fmt.Errorf("channel %q: %w", channel, err)
	}
	d.mu.Lock()
	d.channels[channel] = key
	d.mu.Unlock()
	return nil
}

// Decrypt implements Decrypter.
func (d *ChannelKeyDecrypter) Decrypt(topic string, payload []byte) (*Envelope, error) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	pkt := env.Packet
	if pkt.Decoded != nil {
		return env, nil
	}
	if len(pkt.Encrypted) == 0 {
		return nil, ErrNotEncrypted
	}

	channel := env.ChannelID
	if channel == "" {
		channel = parseTopic(topic).channel
	}
	for _, key := range d.candidates(channel) {
		data, err := decryptPacket(key, pkt)
		if err != nil {
			continue
		}
		pkt.Decoded = data
		return env, nil
	}
	return nil, ErrNoKey
}

func (d *ChannelKeyDecrypter) candidates(channel string) [][]byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([][]byte, 0, 1+len(d.fallback))
	if k, ok := d.channels[channel]; ok {
		keys = append(keys, k)
	}
	return append(keys, d.fallback...)
}

// decryptPacket runs AES-CTR over the encrypted bytes. The 16-byte nonce is
// the packet id (uint64 LE), the sender (uint32 LE), then four zero bytes.
func decryptPacket(key []byte, pkt *MeshPacket) (*Data, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aes.BlockSize)
	binary.LittleEndian.PutUint64(nonce[0:8], uint64(pkt.ID))
	binary.LittleEndian.PutUint32(nonce[8:12], pkt.From)

	plain := make([]byte, len(pkt.Encrypted))
	cipher.NewCTR(block, nonce).XORKeyStream(plain, pkt.Encrypted)

	data, err := DecodeData(plain)
	if err != nil {
		return nil, err
	}
	if data.PortNum == PortUnknown || data.PortNum > maxPortNum {
		return nil, fmt.Errorf("implausible port %d", data.PortNum)
	}
	return data, nil
}
