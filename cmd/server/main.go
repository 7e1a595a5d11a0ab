// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/meshcast/internal/api"
	"github.com/tomtom215/meshcast/internal/broadcast"
	"github.com/tomtom215/meshcast/internal/broker"
	"github.com/tomtom215/meshcast/internal/cache"
	"github.com/tomtom215/meshcast/internal/classifier"
	"github.com/tomtom215/meshcast/internal/coalesce"
	"github.com/tomtom215/meshcast/internal/config"
	"github.com/tomtom215/meshcast/internal/logging"
	"github.com/tomtom215/meshcast/internal/metrics"
	"github.com/tomtom215/meshcast/internal/pipeline"
	"github.com/tomtom215/meshcast/internal/store"
	"github.com/tomtom215/meshcast/internal/supervisor"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggingOptions())
	metrics.SetAppInfo(version)

	logging.Info().
		Str("version", version).
		Str("store", cfg.Store.Backend).
		Int("broker_connections", len(cfg.Broker.InitialConnections())).
		Msg("Starting Meshcast")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Meshcast stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run wires every component, starts the supervisor tree and blocks until
// ctx is canceled. The store is closed only after the tree has stopped so
// the persistence workers can drain.
func run(ctx context.Context, cfg *config.Config) error {
	backend, gc, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	var st store.Store = backend
	if cfg.Breaker.Enabled {
		st = store.NewGuarded(backend, cfg.Breaker.StoreBreaker())
	}

	classifierOpts := []classifier.Option{}
	if cfg.Decrypt.Enabled {
		dec, err := classifier.NewChannelKeyDecrypter(cfg.Decrypt.ChannelKeys)
		if err != nil {
			return fmt.Errorf("decrypter: %w", err)
		}
		classifierOpts = append(classifierOpts, classifier.WithDecrypter(dec))
		logging.Info().Int("channels", len(cfg.Decrypt.ChannelKeys)).Msg("Packet decryption enabled")
	}

	hot := cache.NewHotCache(st, cfg.Cache.HotConfig())
	if n, err := hot.WarmUp(ctx); err != nil {
		logging.Warn().Err(err).Msg("Hot cache warm-up failed, starting cold")
	} else {
		logging.Info().Int("nodes", n).Msg("Hot cache warmed up")
	}

	hub := broadcast.NewHub(cfg.Broadcast.HubConfig(), nil)
	buf := coalesce.New(cfg.Coalesce.BufferConfig(), func(_ context.Context, b coalesce.Batch) {
		hub.DeliverBatch(b)
	})
	var pipelineOpts []pipeline.Option
	if d := cfg.Pipeline.Deduper(); d != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithDeduplicator(d))
	}
	p := pipeline.New(cfg.Pipeline.WorkerConfig(), classifier.New(classifierOpts...), st, hot, buf, hub, pipelineOpts...)
	mgr := broker.NewManager(cfg.Broker.ManagerConfig(), p.Ingest)

	for _, spec := range cfg.Broker.InitialConnections() {
		if _, err := mgr.AddConnection(spec); err != nil {
			return fmt.Errorf("broker connection %q: %w", spec.ID, err)
		}
	}

	origins := cfg.Server.CORSOrigins
	handler := api.NewHandler(api.Dependencies{
		Connections:    mgr,
		Nodes:          hot,
		Hub:            hub,
		Store:          st,
		Pipeline:       p,
		Buffer:         buf,
		Version:        version,
		AllowedOrigins: origins,
	})

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = origins
	mwCfg.RateLimitRequests = cfg.Server.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Server.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Server.RateLimitDisabled

	// No WriteTimeout: SSE and WebSocket responses stay open indefinitely.
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, mwCfg).SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	components := supervisor.Components{
		Pipeline:        p,
		Cache:           hot,
		Coalescer:       buf,
		Broadcaster:     hub,
		BrokerManager:   mgr,
		HTTPServer:      server,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if gc != nil {
		components.StoreGC = gc
	}
	if _, err := tree.Mount(components); err != nil {
		return err
	}

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return nil
}

// openStore opens the configured backend. The second return value is the
// Badger GC loop, nil for PostgreSQL.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *store.BadgerStore, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.Store.Postgres.StoreConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		logging.Info().Msg("PostgreSQL store opened")
		return pg, nil, nil
	default:
		bs, err := store.OpenBadger(cfg.Store.Badger.StoreConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		logging.Info().
			Str("path", cfg.Store.Badger.Path).
			Bool("in_memory", cfg.Store.Badger.InMemory).
			Msg("Badger store opened")
		return bs, bs, nil
	}
}
