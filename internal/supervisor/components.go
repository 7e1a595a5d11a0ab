// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package supervisor

import (
	"errors"
	"time"

	"github.com/tomtom215/meshcast/internal/supervisor/services"
)

// Components are the long-running parts of the ingestion service. StoreGC
// is optional and only set for the embedded Badger store.
type Components struct {
	Pipeline      services.Runner
	Cache         services.Runner
	StoreGC       services.Runner
	Coalescer     services.Runner
	Broadcaster   services.Runner
	BrokerManager services.Runner

	HTTPServer      services.HTTPServer
	ShutdownTimeout time.Duration
}

// ErrMissingComponent is returned by Mount when a required component is nil.
var ErrMissingComponent = errors.New("supervisor: missing required component")

// Mount registers every component in its layer and returns the tokens in
// registration order.
func (t *SupervisorTree) Mount(c Components) ([]Token, error) {
	if c.Pipeline == nil || c.Cache == nil || c.Coalescer == nil ||
		c.Broadcaster == nil || c.BrokerManager == nil || c.HTTPServer == nil {
		return nil, ErrMissingComponent
	}

	tokens := []Token{
		t.Add(LayerData, services.NewPipelineService(c.Pipeline)),
		t.Add(LayerData, services.NewCacheJanitorService(c.Cache)),
	}
	if c.StoreGC != nil {
		tokens = append(tokens, t.Add(LayerData, services.NewStoreGCService(c.StoreGC)))
	}
	tokens = append(tokens,
		t.Add(LayerMessaging, services.NewCoalescerService(c.Coalescer)),
		t.Add(LayerMessaging, services.NewBroadcasterService(c.Broadcaster)),
		t.Add(LayerMessaging, services.NewBrokerManagerService(c.BrokerManager)),
		t.Add(LayerAPI, services.NewHTTPServerService(c.HTTPServer, c.ShutdownTimeout)),
	)
	return tokens, nil
}
