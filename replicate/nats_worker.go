package replicate

import (
	"context"
	"time"

	"github.com/arloliu/causeway/types"
)

// natsBackend implements workerBackend for NATSLog.
type natsBackend struct {
	worker *Worker
	log    *NATSLog
}

// Compile-time assertion that natsBackend implements workerBackend.
var _ workerBackend = (*natsBackend)(nil)

// NewNATSWorker creates a worker that applies commits from a NATSLog.
//
// Each replica reads through its own durable consumer, so a restarted
// worker resumes after the last acknowledged commit.
//
// Parameters:
//   - log: The NATS log to consume from
//   - apply: Function that applies a commit to a replica
//   - replicas: The replicas to keep up to date
//   - opts: Optional configuration options
//
// Returns:
//   - *Worker: A new worker instance
func NewNATSWorker(log *NATSLog, apply ApplyFunc, replicas []types.ReplicaID, opts ...WorkerOption) *Worker {
	w := newWorker(apply, replicas, opts)
	w.backend = &natsBackend{
		worker: w,
		log:    log,
	}

	return w
}

func (b *natsBackend) backendType() string {
	return "nats"
}

// run applies commits to one replica as JetStream delivers them.
func (b *natsBackend) run(replica types.ReplicaID) {
	w := b.worker

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		// The consumer allows one unacknowledged commit, so fetch one at a time.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		msgs, err := b.log.Fetch(ctx, replica, 1)
		cancel()

		if err != nil {
			w.config.Logger.Error("failed to fetch commits",
				"replica", replica.String(),
				"error", err.Error(),
			)
			if !w.sleep(w.config.PollInterval) {
				return
			}

			continue
		}

		if len(msgs) == 0 {
			continue
		}

		for i := range msgs {
			if !b.process(replica, &msgs[i]) {
				return
			}
		}

		b.reportBacklog(replica)
	}
}

// process applies one delivered commit. It reports false if the worker stopped.
func (b *natsBackend) process(replica types.ReplicaID, msg *CommitMessage) bool {
	w := b.worker

	if !w.holdBack(msg.Entry) {
		// Redeliver to whoever runs next.
		_ = msg.Nak(0)

		return false
	}

	if err := w.applyOnce(replica, msg.Entry); err != nil {
		attempt := int(msg.DeliveryCount) //nolint:gosec // delivery counts stay small
		w.reportFailure(replica, msg.Entry, err, attempt)
		_ = msg.Nak(calculateBackoff(attempt, w.config.RetryDelay, w.config.MaxRetryDelay))

		return true
	}

	if err := msg.Ack(); err != nil {
		// The commit is applied; a redelivery is skipped by the apply function.
		w.config.Logger.Warn("failed to acknowledge commit",
			"replica", replica.String(),
			"seq", msg.Entry.Seq,
			"error", err.Error(),
		)
	}

	return true
}

// reportBacklog publishes the number of commits the replica has not applied.
func (b *natsBackend) reportBacklog(replica types.ReplicaID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pending, err := b.log.Pending(ctx, replica)
	if err != nil {
		return
	}

	b.worker.config.Metrics.SetReplicationBacklog(replica, pending)
}
