// Package causeway routes the operations of causal sessions across a
// replicated database.
//
// A session is a logical unit of work, typically one request chain, that
// must observe its own effects and never observe state older than what it
// has already seen. Causeway keeps that guarantee while letting reads go to
// lagging replicas whenever they are current enough.
//
// # Key Features
//
//   - Read-your-writes: after a write, later reads in the session see it
//   - Monotonic reads: a session's watermark never moves backward
//   - Write pinning: writes always go to the primary
//   - Replica reads: reads go to any replica at or past the session watermark
//   - Token propagation: the watermark crosses process boundaries as an opaque token
//
// # Basic Usage
//
//	store, _ := sqlstore.New(ctx, sqlstore.WrapDB(primary), replicas)
//
//	router, err := causeway.NewRouter(store,
//	    causeway.WithMetrics(vm.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer router.Close()
//
//	session := router.NewSession(inboundToken)
//	if _, err := router.Query(ctx, session, "INSERT INTO orders (customer, qty) VALUES (?, ?)", "A", 10); err != nil {
//	    return err
//	}
//	result, err := router.Query(ctx, session, "SELECT COUNT(*) FROM orders")
//	// result includes the insert, whichever replica served it.
//
//	outboundToken := session.CurrentToken()
//
// # Watermarks
//
// A Watermark is an opaque token produced by the store. The router only
// compares tokens through an Ordering and forwards them. Two sentinels carry
// no bound:
//
//   - Unconditional: any replica state is acceptable (fresh sessions)
//   - FirstPrimary: the first read goes to the primary
//
// The default ordering, policy.SequenceOrdering, understands tokens built
// with types.SequenceWatermark.
//
// # Classification
//
// Router.Query classifies a statement with the configured Classifier. The
// default classifier treats only statements that are certainly reads as
// reads; anything ambiguous is a write and goes to the primary. Use
// Router.Execute with an explicit Operation to bypass classification.
//
// # Error Handling
//
// The router never wraps or retries store errors. A failed, cancelled or
// timed-out operation returns the error and leaves the session unchanged,
// so the next operation retries from the same watermark.
//
// Sentinel errors:
//
//   - types.ErrNilStore: NewRouter called without a store
//   - types.ErrNilSession: Execute called without a session
//   - types.ErrRouterClosed: operation attempted on a closed router
//
// Store collaborators report node failures as *types.ReplicaError:
//
//	var replicaErr *types.ReplicaError
//	if errors.As(err, &replicaErr) {
//	    log.Printf("%s failed during %s: %v",
//	        replicaErr.Replica, replicaErr.Operation, replicaErr.Cause)
//	}
//
// # Packages
//
//   - propagation: token import/export, HTTP middleware, OpenTelemetry propagator
//   - adapter/sql: reference replicated store over database/sql
//   - replicate: commit logs (memory, NATS JetStream) and replication workers
//   - topology: replica drain signals (local, NATS KV)
//   - policy: classifiers, orderings, replica selectors and circuit breakers
//   - contrib/metrics/vm: VictoriaMetrics collector
//   - contrib/logging/slogadapter: log/slog logger
//
// examples/orders is a runnable orders service built from these packages.
package causeway
