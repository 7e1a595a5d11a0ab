// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package supervisor runs Meshcast's long-running components under suture v4.

# Overview

Services are grouped into one child supervisor per Layer. A failing
service is restarted on its own; backoff is tracked per layer, so a broker
crash loop never pauses the API:

	RootSupervisor ("meshcast")
	├── DataSupervisor ("data-layer")
	│   ├── persistence-pipeline
	│   ├── hot-cache-janitor
	│   └── badger-gc (embedded store only)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── coalescing-buffer
	│   ├── broadcast-hub
	│   └── broker-manager
	└── APISupervisor ("api-layer")
	    └── http-server

Broker connections reconnect inside the manager; the supervisor only sees
the manager itself. The store handle is not a service: it is opened before
the tree starts and closed after Serve returns, so the persistence
workers can drain their queue during shutdown.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	if _, err := tree.Mount(supervisor.Components{
	    Pipeline:        p,
	    Cache:           hot,
	    StoreGC:         badgerStore,
	    Coalescer:       buf,
	    Broadcaster:     hub,
	    BrokerManager:   mgr,
	    HTTPServer:      srv,
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}); err != nil {
	    return err
	}
	return tree.Serve(ctx)

Services outside Mount go through Add, and the returned Token remembers the
layer for Remove:

	tok := tree.Add(supervisor.LayerMessaging, svc)
	defer tree.RemoveAndWait(tok, time.Second)

# Failure Handling

Each failure increments a counter that decays over FailureDecay seconds.
Past FailureThreshold the supervisor waits FailureBackoff before the next
restart. Supervisor events are logged through sutureslog into the shared
zerolog pipeline.

If shutdown hangs, UnstoppedServiceReport lists the services that did not
return within ShutdownTimeout.
*/
package supervisor
