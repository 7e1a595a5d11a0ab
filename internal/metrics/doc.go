// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

/*
Package metrics provides Prometheus metrics for the ingestion and live
broadcast pipeline.

Collectors are package-level promauto variables registered with the default
registry and exposed at /metrics:

	curl http://localhost:8080/metrics

# Available Metrics

Broker:
  - meshcast_broker_messages_received_total{connection}
  - meshcast_broker_connection_status{connection}
  - meshcast_broker_reconnects_total{connection}

Classifier:
  - meshcast_packets_classified_total{kind}
  - meshcast_packets_incomplete_total{kind}

Persistence:
  - meshcast_persist_operations_total{record,result}
  - meshcast_persist_duration_seconds{record}
  - meshcast_persist_queue_depth
  - meshcast_circuit_breaker_state{name}

Cache:
  - meshcast_cache_requests_total{tier,result}
  - meshcast_cache_invalidations_total{tier}

Coalescing and broadcast:
  - meshcast_coalesce_flushes_total, meshcast_coalesce_batch_size
  - meshcast_live_clients{transport}
  - meshcast_frames_sent_total{type}, meshcast_bytes_sent_total
  - meshcast_clients_removed_total{reason}

HTTP:
  - meshcast_api_requests_total{method,endpoint,status_code}
  - meshcast_api_request_duration_seconds{method,endpoint}
*/
package metrics
