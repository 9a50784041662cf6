package causeway

import (
	"context"
	"time"
)

// Store is the replicated data store the router sends operations to.
//
// The store owns replica selection, lag handling (blocking or falling back
// to the primary), and the physical topology. The router only supplies the
// tier and the watermark bound.
//
// Implementations MUST be safe for concurrent use from multiple goroutines.
// OpenSession may be called concurrently for independent sessions.
type Store interface {
	// OpenSession returns a handle bound to the given watermark.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - watermark: Lower bound for reads issued through the handle.
	//     Unconditional and FirstPrimary impose no bound.
	//
	// Returns:
	//   - StoreHandle: A handle for executing operations
	//   - error: Error if the store cannot serve the session
	OpenSession(ctx context.Context, watermark Watermark) (StoreHandle, error)
}

// StoreHandle executes operations against a store on behalf of one session.
//
// All operations issued through a handle are bound to the watermark the
// handle was opened with.
type StoreHandle interface {
	// Execute runs an operation on a replica of the requested tier.
	//
	// For TierPrimary the store executes on the primary. For TierAny the
	// store picks any replica whose applied state is at least the handle's
	// watermark, or applies its own lag policy when none is eligible.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - tier: The tier that must serve the operation
	//   - op: The operation to execute
	//
	// Returns:
	//   - Result: Rows and the watermark the serving replica had applied
	//   - error: The store's error, unchanged
	Execute(ctx context.Context, tier Tier, op Operation) (Result, error)
}

// Classifier determines whether a statement is a read or a write.
//
// Implementations MUST resolve any ambiguity to KindWrite, and MUST be safe
// for concurrent use.
type Classifier interface {
	// Classify returns the kind of the statement.
	//
	// Parameters:
	//   - statement: The statement text
	//
	// Returns:
	//   - Kind: KindRead only when the statement cannot mutate state
	Classify(statement string) Kind
}

// ClassifierFunc adapts an ordinary function to the Classifier interface.
type ClassifierFunc func(statement string) Kind

// Classify calls f(statement).
func (f ClassifierFunc) Classify(statement string) Kind {
	return f(statement)
}

// Ordering compares and validates watermarks produced by a store.
//
// Implementations MUST be safe for concurrent use.
type Ordering interface {
	// Compare returns a negative number when a is older than b, zero when
	// they name the same state, and a positive number when a is newer.
	// Sentinels compare older than every concrete watermark.
	Compare(a, b Watermark) int

	// Valid reports whether w is a sentinel or a well-formed watermark.
	Valid(w Watermark) bool
}

// TopologyWatcher monitors replica topology changes.
//
// Implementations include topology.Local (in-memory) and topology.NATS (NATS KV backed).
type TopologyWatcher interface {
	// Watch returns a channel that receives topology updates.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//
	// Returns:
	//   - <-chan TopologyUpdate: Channel of topology changes
	Watch(ctx context.Context) <-chan TopologyUpdate
}

// TopologyOperator allows setting replica drain states.
//
// This interface is typically used by operations tools and tests to control
// replica availability. Implementations include topology.Local (in-memory).
type TopologyOperator interface {
	// SetDrain sets the drain state for a replica.
	//
	// Parameters:
	//   - ctx: Context for cancellation/timeout
	//   - replica: The replica to update
	//   - draining: true to enable drain mode, false to disable
	//   - reason: Human-readable reason for the drain (only used when draining=true)
	//
	// Returns:
	//   - error: nil on success, error if the operation fails
	SetDrain(ctx context.Context, replica ReplicaID, draining bool, reason string) error
}

// TopologyUpdate represents a change in replica topology.
type TopologyUpdate struct {
	// Replica that was updated.
	Replica ReplicaID

	// Available indicates if the replica is available.
	Available bool

	// DrainMode indicates if the replica is in drain mode.
	DrainMode bool
}

// ReplicationWorker applies committed writes to replicas in the background.
//
// Implementations include the memory and NATS workers from the replicate package.
type ReplicationWorker interface {
	// Start begins processing commits in background goroutines.
	//
	// Returns:
	//   - error: ErrWorkerAlreadyRunning if already started
	Start() error

	// Stop gracefully stops the worker and waits for in-flight commits.
	Stop()

	// IsRunning returns whether the worker is currently running.
	IsRunning() bool
}

// CommitLog receives writes committed on the primary for shipping to replicas.
//
// Implementations include replicate.MemoryLog and replicate.NATSLog.
type CommitLog interface {
	// Append adds a committed write to the log.
	//
	// Entries are appended in sequence order.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - entry: The committed write
	//
	// Returns:
	//   - error: nil on success, error if the entry could not be stored
	Append(ctx context.Context, entry CommitEntry) error
}

// ReplicaSelector picks the replica that serves a read.
//
// Implementations include policy.StickyReplica and policy.RoundRobinReplica.
type ReplicaSelector interface {
	// Select returns one of the eligible replicas.
	//
	// Parameters:
	//   - ctx: Context (may carry request-scoped hints)
	//   - eligible: Replicas whose applied state satisfies the read's bound
	//
	// Returns:
	//   - ReplicaID: The chosen replica, or empty if eligible is empty
	Select(ctx context.Context, eligible []ReplicaID) ReplicaID

	// OnSuccess is called after a read on replica succeeds.
	OnSuccess(replica ReplicaID)

	// OnFailure is called after a read on replica fails.
	//
	// Returns:
	//   - bool: true if the selector changed its preference
	OnFailure(replica ReplicaID, err error) bool
}

// ReplicaHealth tracks replica failures and excludes unhealthy replicas.
//
// policy.CircuitBreaker implements this interface.
type ReplicaHealth interface {
	// Allow reports whether a replica may be offered reads.
	Allow(replica ReplicaID) bool

	// RecordFailure records a failed read.
	RecordFailure(replica ReplicaID)

	// RecordLatency records a successful read and its latency.
	RecordLatency(replica ReplicaID, latency time.Duration)
}
