// Package testutil provides test utilities and fake implementations for causeway testing.
//
// # Fakes
//
//   - [FakeStore]: In-memory causeway.Store with controllable replica lag
//   - [TestMetricsCollector]: types.MetricsCollector that records every call
//
// Drive replication lag by hand:
//
//	store := testutil.NewFakeStore("r1", "r2")
//	router, _ := causeway.NewRouter(store)
//
//	// ... a write on the router bumps the primary
//	store.SetApplied("r1", store.Seq()) // r1 is caught up, r2 still lags
//
// # Integration Helpers
//
//   - [StartEmbeddedNATS]: Starts an embedded NATS server with JetStream
//   - [OpenSQLite]: Opens a file-backed SQLite database
package testutil
