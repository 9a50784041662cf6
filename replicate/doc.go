// Package replicate ships committed writes from a primary to its replicas.
//
// A store that owns a primary appends every committed write to a commit
// log as a [types.CommitEntry]. A [Worker] reads the log and applies each
// entry to every replica, strictly in sequence order. A replica's applied
// sequence is what the router compares against a session's watermark, so
// how far a worker falls behind is the replication lag reads observe.
//
// # Commit Logs
//
// The store only needs Append, which both logs provide through the
// [causeway.CommitLog] interface:
//
//	type CommitLog interface {
//	    Append(ctx context.Context, entry CommitEntry) error
//	}
//
// [MemoryLog] is a bounded in-process log for single-instance deployments
// and tests. It rejects out-of-order appends with [types.ErrCommitGap],
// returns [types.ErrCommitLogFull] at capacity, and is compacted by its
// worker once every replica has applied an entry:
//
//	log := replicate.NewMemoryLog(replicate.WithCapacity(1000))
//
// [NATSLog] stores commits durably in a NATS JetStream stream. Each replica
// reads through its own durable pull consumer that allows one
// unacknowledged commit, which keeps delivery ordered across redeliveries.
// Appends are deduplicated by sequence number inside the stream's
// duplicate window. Entries are encoded with MessagePack; UUID arguments
// travel as a MessagePack extension and decode to uuid.UUID.
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	js, _ := jetstream.New(nc)
//	log, _ := replicate.NewNATSLog(js, replicate.WithMaxAge(24*time.Hour))
//
// # Workers
//
// A worker runs one goroutine per replica. A commit that fails to apply is
// retried with exponential backoff until it succeeds or the worker stops;
// commits behind it wait, since applying them would leave a gap. The apply
// function must skip commits the replica already has, because both logs
// deliver at least once.
//
//	store, _ := sqlstore.New(ctx, primary, replicas, sqlstore.WithCommitLog(log))
//	worker := replicate.NewMemoryWorker(log, store.Apply, store.Replicas(),
//	    replicate.WithRetryDelay(50*time.Millisecond),
//	)
//	_ = worker.Start()
//	defer worker.Stop()
//
// [WithApplyDelay] holds commits back until they reach a minimum age,
// which makes replication lag reproducible in tests and demos.
package replicate
