// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

//go:build integration

// Package testinfra starts the external services used by integration tests.
//
// Containers are managed with testcontainers-go and only compiled with the
// integration build tag:
//
//	go test -tags integration ./internal/store/...
//
// Tests call SkipIfNoDocker first so the suite degrades gracefully on hosts
// without a Docker daemon:
//
//	func TestPostgres(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    testinfra.CleanupContainer(t, pg)
//	    s, err := store.OpenPostgres(ctx, store.PostgresConfig{URL: pg.URL})
//	    // ...
//	}
package testinfra
