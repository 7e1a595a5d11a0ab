// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package cache holds the in-memory state in front of the store.

# Overview

The package provides:
  - LRU: a generic, thread-safe LRU with per-entry TTL
  - HotCache: a read-through cache for node, latest position and
    position history lookups
  - Deduper: an exact, time-windowed set of recently seen packets

# Hot Cache Tiers

HotCache keeps two LRU tiers:

	primary   node:<id>, pos:<id>             10k entries, 10m TTL
	history   <id>|<limit>                    500 entries, 30s TTL

Entries are only inserted after a successful store read, so a failed read
never caches a negative result. The persistence pipeline calls
InvalidateNode and InvalidatePosition after every successful write;
InvalidatePosition also drops every history entry of the node.

WarmUp loads the most recently heard nodes at startup. Run evicts expired
entries on a ticker and publishes tier sizes as metrics.

# Usage Example

	hot := cache.NewHotCache(st, cache.DefaultHotConfig())
	if _, err := hot.WarmUp(ctx); err != nil {
	    logging.Warn().Err(err).Msg("Hot cache warm-up failed")
	}
	node, err := hot.GetNode(ctx, "!a1b2c3d4")

# Packet Deduplication

A packet heard by several gateways reaches the broker once per gateway.
Deduper remembers sender and packet id pairs for a window so only the first
copy produces records:

	d := cache.NewDeduper(50000, 10*time.Minute)
	if d.Seen(cache.PacketKey(msg.NodeNum, msg.PacketID)) {
	    return
	}

# Thread Safety

All types are safe for concurrent use. Returned nodes and positions are
copies; callers may modify them freely.
*/
package cache
