package types

// MetricsCollector defines methods for collecting operational metrics.
//
// Router methods are labeled by tier; store and replication methods are
// labeled by replica. Implementations should be thread-safe as methods may
// be called concurrently.
//
// Example usage with VictoriaMetrics (via contrib/metrics/vm):
//
//	import vmmetrics "github.com/arloliu/causeway/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("myapp"))
//	router, _ := causeway.NewRouter(store,
//	    causeway.WithMetrics(collector),
//	)
//
//	// Expose metrics via HTTP
//	http.HandleFunc("/metrics", collector.Handler)
type MetricsCollector interface {
	// ----------------------
	// Read Operations
	// ----------------------

	// IncReadTotal increments the total read operations counter.
	IncReadTotal(tier Tier)

	// IncReadError increments the read error counter.
	IncReadError(tier Tier)

	// ObserveReadDuration records a read operation duration in seconds.
	ObserveReadDuration(tier Tier, seconds float64)

	// IncBootstrapRead increments the counter of reads issued by sessions
	// that had no lower bound yet.
	IncBootstrapRead()

	// ----------------------
	// Write Operations
	// ----------------------

	// IncWriteTotal increments the total write operations counter.
	IncWriteTotal()

	// IncWriteError increments the write error counter.
	IncWriteError()

	// ObserveWriteDuration records a write operation duration in seconds.
	ObserveWriteDuration(seconds float64)

	// ----------------------
	// Session Watermarks
	// ----------------------

	// IncWatermarkAdvanced increments the counter when a session watermark moves forward.
	IncWatermarkAdvanced()

	// IncWatermarkStale increments the counter when a result carried a
	// watermark older than the session's and was ignored.
	IncWatermarkStale()

	// ----------------------
	// Propagation Boundary
	// ----------------------

	// IncTokenMalformed increments the counter of inbound tokens that could
	// not be parsed and were replaced by Unconditional.
	IncTokenMalformed()

	// IncTokenExported increments the counter of outbound tokens attached to responses.
	IncTokenExported()

	// IncTokenWithheld increments the counter of outbound tokens held back
	// because the logical operation failed.
	IncTokenWithheld()

	// ----------------------
	// Store
	// ----------------------

	// IncReplicaRead increments the counter of reads served by a replica.
	IncReplicaRead(replica ReplicaID)

	// IncLagFallback increments the counter when no replica satisfied the
	// watermark bound and the read fell back to the primary.
	IncLagFallback()

	// ObserveLagWait records how long a read waited for an eligible replica, in seconds.
	ObserveLagWait(seconds float64)

	// ----------------------
	// Replication
	// ----------------------

	// IncReplicationApplied increments the counter when a commit is applied on a replica.
	IncReplicationApplied(replica ReplicaID)

	// IncReplicationError increments the counter when applying a commit fails.
	IncReplicationError(replica ReplicaID)

	// ObserveReplicationDuration records a commit apply duration in seconds.
	ObserveReplicationDuration(replica ReplicaID, seconds float64)

	// SetReplicationBacklog sets the number of commits a replica has not applied yet.
	SetReplicationBacklog(replica ReplicaID, depth int)

	// IncCommitShipFailed increments the counter when a committed write could
	// not be appended to the commit log.
	IncCommitShipFailed()

	// ----------------------
	// Replica Health
	// ----------------------

	// SetReplicaDraining sets the drain status gauge for a replica.
	// Value: 1 if draining, 0 if healthy.
	SetReplicaDraining(replica ReplicaID, draining bool)

	// IncDrainModeEntered increments the counter when a replica enters drain mode.
	IncDrainModeEntered(replica ReplicaID)

	// IncDrainModeExited increments the counter when a replica exits drain mode.
	IncDrainModeExited(replica ReplicaID)

	// IncCircuitBreakerTrip increments the counter when a replica's circuit opens.
	IncCircuitBreakerTrip(replica ReplicaID)

	// SetCircuitBreakerState sets the circuit state gauge for a replica.
	// Value: 0=closed, 2=open.
	SetCircuitBreakerState(replica ReplicaID, state int)
}
