// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package models defines the mesh entities shared by every Meshcast component.

The four persisted entity kinds are:

  - Node: identity and last-heard radio metadata of a mesh node
  - Position: one reported location of a node
  - Telemetry: one device/environment metrics report of a node
  - Message: one text message seen on a channel

Node identifiers use the canonical Meshtastic form "!" followed by the node
number as eight lower-case hex digits (see NodeIDFromNum).

All entity types implement Entity so that the broadcaster can evaluate client
filters without knowing the concrete type.
*/
package models
