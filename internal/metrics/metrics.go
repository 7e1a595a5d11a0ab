// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ingestion and broadcast pipeline:
// - broker connections and inbound packets
// - classification outcomes
// - persistence outcomes and the store circuit breaker
// - hot-state cache efficiency
// - coalescing buffer flushes
// - live client fan-out
// - HTTP control surface

var (
	// Broker Metrics
	BrokerMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_broker_messages_received_total",
			Help: "Total number of messages received per broker connection",
		},
		[]string{"connection"},
	)

	BrokerConnectionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcast_broker_connection_status",
			Help: "Broker connection status (0=disconnected, 1=connecting, 2=connected, 3=error)",
		},
		[]string{"connection"},
	)

	BrokerReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_broker_reconnects_total",
			Help: "Total number of reconnect attempts per broker connection",
		},
		[]string{"connection"},
	)

	BrokerMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshcast_broker_messages_dropped_total",
			Help: "Messages dropped because their connection was removed",
		},
	)

	// Classifier Metrics
	PacketsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_packets_classified_total",
			Help: "Total number of classified packets by kind",
		},
		[]string{"kind"},
	)

	PacketsIncomplete = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_packets_incomplete_total",
			Help: "Packets classified without a payload (missing sender, id or coordinates)",
		},
		[]string{"kind"},
	)

	PacketsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshcast_packets_duplicate_total",
			Help: "Packets skipped because another gateway already relayed them",
		},
	)

	// Persistence Metrics
	PersistOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_persist_operations_total",
			Help: "Persistence outcomes by record type",
		},
		[]string{"record", "result"}, // result: "ok", "conflict", "error", "rejected"
	)

	PersistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshcast_persist_duration_seconds",
			Help:    "Persistence write duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
		[]string{"record"},
	)

	PersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshcast_persist_queue_depth",
			Help: "Current number of records waiting for a persistence worker",
		},
	)

	PersistQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshcast_persist_queue_dropped_total",
			Help: "Records dropped because the persistence queue was full",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcast_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Cache Metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_cache_requests_total",
			Help: "Hot-state cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // result: "hit", "miss"
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_cache_invalidations_total",
			Help: "Hot-state cache invalidations by tier",
		},
		[]string{"tier"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcast_cache_entries",
			Help: "Current number of hot-state cache entries",
		},
		[]string{"tier"},
	)

	// Coalescing Buffer Metrics
	CoalesceFlushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshcast_coalesce_flushes_total",
			Help: "Total number of non-empty coalescing buffer flushes",
		},
	)

	CoalesceBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshcast_coalesce_batch_size",
			Help:    "Entries per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	CoalesceOverwrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshcast_coalesce_overwrites_total",
			Help: "Pending updates replaced before they were flushed",
		},
	)

	CoalesceDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshcast_coalesce_dropped_total",
			Help: "Updates dropped because the buffer command queue was full",
		},
	)

	// Broadcast Metrics
	LiveClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcast_live_clients",
			Help: "Current number of live clients by transport",
		},
		[]string{"transport"},
	)

	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_frames_sent_total",
			Help: "Frames handed to client transports by event type",
		},
		[]string{"type"},
	)

	BytesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshcast_bytes_sent_total",
			Help: "Payload bytes handed to client transports",
		},
	)

	FramesCompressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meshcast_frames_compressed_total",
			Help: "Frames sent gzip-compressed",
		},
	)

	ClientsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_clients_removed_total",
			Help: "Clients removed by reason",
		},
		[]string{"reason"}, // "write_failed", "unregistered"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcast_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshcast_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshcast_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcast_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordPersist records the outcome of one persistence write.
func RecordPersist(record, result string, duration time.Duration) {
	PersistOperations.WithLabelValues(record, result).Inc()
	PersistDuration.WithLabelValues(record).Observe(duration.Seconds())
}

// RecordCacheLookup records a hot-state cache hit or miss.
func RecordCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(tier, result).Inc()
}

// RecordFlush records a non-empty coalescing buffer flush.
func RecordFlush(entries int) {
	CoalesceFlushes.Inc()
	CoalesceBatchSize.Observe(float64(entries))
}

// RecordFrame records one frame handed to a client transport.
func RecordFrame(eventType string, size int, compressed bool) {
	FramesSent.WithLabelValues(eventType).Inc()
	BytesSent.Add(float64(size))
	if compressed {
		FramesCompressed.Inc()
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(name string, from, to string, toValue float64) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(toValue)
}

// SetAppInfo publishes the build version.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}
