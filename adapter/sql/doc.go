// Package sql provides a reference replicated store over database/sql.
//
// The store implements causeway.Store for one primary and any number of
// replicas. It is meant for tests, examples and small deployments that
// replicate by shipping statements; production systems will usually plug in
// a store backed by their database's own replication.
//
// # Commit Sequence
//
// Every node carries a one-row commit table (DefaultCommitTable) holding the
// last commit sequence it applied. A write on the primary runs in a
// transaction that also bumps the sequence, and its watermark is
// types.SequenceWatermark(seq). A read runs in a transaction that first
// reads the node's sequence, so the reported watermark is exactly the state
// the read observed.
//
// # Replication
//
// With WithCommitLog, every committed write is appended to a commit log.
// A replicate.Worker consumes the log and calls Store.Apply for each
// replica:
//
//	log := replicate.NewMemoryLog()
//	store, _ := sqlstore.New(ctx, sqlstore.WrapDB(primary), []sqlstore.Replica{
//	    {ID: "replica-1", DB: sqlstore.WrapDB(r1)},
//	}, sqlstore.WithCommitLog(log))
//
//	worker := replicate.NewMemoryWorker(log, store.Apply, store.Replicas())
//	_ = worker.Start()
//	defer worker.Stop()
//
// # Lag Policy
//
// A read bounded by a watermark is served by an eligible replica: one that
// has applied at least that sequence, is not draining, and is allowed by
// the circuit breaker. When none is eligible:
//
//   - [LagPolicyPrimary] (default): read from the primary immediately
//   - [LagPolicyWait]: poll until a replica catches up, up to MaxWait, then read from the primary
//
// # Schema
//
// Store.Migrate runs DDL on every node without advancing the sequence. DDL
// issued as a write through the router is replicated like any other write.
//
// # SQLite
//
// In-memory SQLite databases are private to a connection. Open each node
// with a shared-cache name and a single connection:
//
//	db, _ := sql.Open("sqlite3", "file:replica-1?mode=memory&cache=shared")
//	db.SetMaxOpenConns(1)
package sql
