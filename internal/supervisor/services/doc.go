// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package services adapts Meshcast components to suture.Service.

ComponentService wraps anything with a blocking Run(ctx) error loop and
gives it a stable name for supervisor events. HTTPServerService turns
http.Server's ListenAndServe/Shutdown pair into a context-aware Serve.

A Serve call that returns while its context is still live is reported as
a failure so the supervisor restarts the component.
*/
package services
