// Package policy provides the default classifier and watermark ordering for
// the causeway router, plus the replica selection and health policies used
// by the reference store.
//
// # Classification
//
// [SQLClassifier] decides whether a statement is a read or a write. It is
// conservative: any statement it cannot prove read-only is a write.
//
//	c := policy.NewSQLClassifier()
//	c.Classify("SELECT * FROM orders")            // KindRead
//	c.Classify("INSERT INTO orders VALUES (...)") // KindWrite
//	c.Classify("SELECT nextval('seq')")           // KindWrite
//	c.Classify("")                                // KindWrite
//
// # Watermark Ordering
//
// [SequenceOrdering] compares the fixed-width hex tokens produced by
// types.SequenceWatermark. Sentinels sort below every concrete watermark.
//
// # Replica Selection
//
// Selectors pick one replica from the set that satisfies a session's
// watermark:
//
//   - [StickyReplica]: Keeps reads on one replica for cache affinity
//   - [RoundRobinReplica]: Cycles through eligible replicas for load distribution
//
// Example:
//
//	store, _ := sqlstore.New(primary, replicas,
//	    sqlstore.WithReplicaSelector(policy.NewRoundRobinReplica()),
//	)
//
// # Replica Health
//
// [CircuitBreaker] excludes replicas after consecutive read failures, and
// optionally after slow reads:
//
//	cb := policy.NewCircuitBreaker(
//	    policy.WithThreshold(3),
//	    policy.WithSlowThreshold(500 * time.Millisecond),
//	)
//	store, _ := sqlstore.New(primary, replicas,
//	    sqlstore.WithCircuitBreaker(cb),
//	)
package policy
