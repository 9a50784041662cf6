// Package vm provides a VictoriaMetrics-based implementation of the MetricsCollector interface.
//
// This package uses github.com/VictoriaMetrics/metrics for lightweight,
// Prometheus-compatible metrics collection.
//
// # Basic Usage
//
// Create a collector with default prefix "causeway":
//
//	collector := vm.New()
//	router, _ := causeway.NewRouter(store,
//	    causeway.WithMetrics(collector),
//	)
//
// The same collector can be handed to the SQL store, the replication
// workers and the propagation boundary, so every layer reports into one set.
//
// # Custom Prefix
//
// Use WithPrefix to customize the metric name prefix:
//
//	collector := vm.New(vm.WithPrefix("orders"))
//
// This produces metrics like:
//   - orders_read_total{tier="any"}
//   - orders_replication_backlog{replica="replica-1"}
//
// # Exposing Metrics
//
// Use the Handler method to expose metrics via HTTP:
//
//	http.HandleFunc("/metrics", collector.Handler)
//	http.ListenAndServe(":8080", nil)
//
// Or use WritePrometheus to write metrics to a custom writer:
//
//	collector.WritePrometheus(w)
//
// # Metrics Provided
//
// Read operations:
//   - {prefix}_read_total{tier} - Counter of read operations
//   - {prefix}_read_errors_total{tier} - Counter of read errors
//   - {prefix}_read_duration_seconds{tier} - Histogram of read latencies
//   - {prefix}_bootstrap_reads_total - Counter of reads issued with no bound
//
// Write operations:
//   - {prefix}_write_total - Counter of write operations
//   - {prefix}_write_errors_total - Counter of write errors
//   - {prefix}_write_duration_seconds - Histogram of write latencies
//
// Session watermarks:
//   - {prefix}_watermark_advanced_total - Counter of watermark advances
//   - {prefix}_watermark_stale_total - Counter of stale result watermarks ignored
//
// Propagation boundary:
//   - {prefix}_token_malformed_total - Counter of unparseable inbound tokens
//   - {prefix}_token_exported_total - Counter of outbound tokens
//   - {prefix}_token_withheld_total - Counter of outbound tokens held back
//
// Store:
//   - {prefix}_replica_reads_total{replica} - Counter of reads served by a replica
//   - {prefix}_lag_fallback_total - Counter of reads sent to the primary for lag
//   - {prefix}_lag_wait_seconds - Histogram of time spent waiting for a replica
//   - {prefix}_commit_ship_failed_total - Counter of commits not shipped
//
// Replication:
//   - {prefix}_replication_applied_total{replica} - Counter of applied commits
//   - {prefix}_replication_errors_total{replica} - Counter of failed applies
//   - {prefix}_replication_duration_seconds{replica} - Histogram of apply latencies
//   - {prefix}_replication_backlog{replica} - Gauge of commits not yet applied
//
// Replica health:
//   - {prefix}_replica_draining{replica} - Gauge (1=draining, 0=serving)
//   - {prefix}_drain_mode_entered_total{replica} - Counter of drain entries
//   - {prefix}_drain_mode_exited_total{replica} - Counter of drain exits
//   - {prefix}_circuit_breaker_state{replica} - Gauge of circuit state (0=closed, 2=open)
//   - {prefix}_circuit_breaker_trips_total{replica} - Counter of circuit trips
//
// # Performance Notes
//
// Metrics without a replica label are pre-created at initialization time
// using the NewXXX pattern. Per-replica metrics use GetOrCreateXXX, since
// replica IDs come from the store configuration. Use WithReplicas to
// export them as zero from startup.
package vm
