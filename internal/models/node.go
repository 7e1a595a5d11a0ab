// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BroadcastNodeNum is the destination node number of channel-wide packets.
const BroadcastNodeNum uint32 = 0xffffffff

// Entity is implemented by every record that can be streamed to clients.
// The accessors expose exactly the attributes client filters match on.
type Entity interface {
	EntityNodeID() string
	EntityChannel() string
	// EntitySNR returns the receive SNR and whether it is known.
	EntitySNR() (float64, bool)
}

// NodeIDFromNum formats a node number as the canonical "!xxxxxxxx" id.
func NodeIDFromNum(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}

// NodeNumFromID parses a canonical "!xxxxxxxx" id (the "!" is optional).
func NodeNumFromID(id string) (uint32, bool) {
	id = strings.TrimPrefix(id, "!")
	if id == "" || len(id) > 8 {
		return 0, false
	}
	n, err := strconv.ParseUint(id, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Node is the latest known identity and radio metadata of a mesh node.
type Node struct {
	ID              string    `json:"id"`
	Num             uint32    `json:"num"`
	LongName        string    `json:"long_name,omitempty"`
	ShortName       string    `json:"short_name,omitempty"`
	HWModel         string    `json:"hw_model,omitempty"`
	Role            string    `json:"role,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	Region          string    `json:"region,omitempty"`
	ModemPreset     string    `json:"modem_preset,omitempty"`
	Channel         string    `json:"channel,omitempty"`
	SNR             *float64  `json:"snr,omitempty"`
	RSSI            *int32    `json:"rssi,omitempty"`
	HopsAway        *uint32   `json:"hops_away,omitempty"`
	LastHeard       time.Time `json:"last_heard"`
}

// EntityNodeID implements Entity.
func (n *Node) EntityNodeID() string { return n.ID }

// EntityChannel implements Entity.
func (n *Node) EntityChannel() string { return n.Channel }

// EntitySNR implements Entity.
func (n *Node) EntitySNR() (float64, bool) {
	if n.SNR == nil {
		return 0, false
	}
	return *n.SNR, true
}

// Merge overlays the non-zero fields of update onto n. The node identity is
// never changed and LastHeard only moves forward.
func (n *Node) Merge(update *Node) {
	if update == nil {
		return
	}
	mergeString(&n.LongName, update.LongName)
	mergeString(&n.ShortName, update.ShortName)
	mergeString(&n.HWModel, update.HWModel)
	mergeString(&n.Role, update.Role)
	mergeString(&n.FirmwareVersion, update.FirmwareVersion)
	mergeString(&n.Region, update.Region)
	mergeString(&n.ModemPreset, update.ModemPreset)
	mergeString(&n.Channel, update.Channel)
	if update.SNR != nil {
		n.SNR = update.SNR
	}
	if update.RSSI != nil {
		n.RSSI = update.RSSI
	}
	if update.HopsAway != nil {
		n.HopsAway = update.HopsAway
	}
	if update.LastHeard.After(n.LastHeard) {
		n.LastHeard = update.LastHeard
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
