package replicate

import (
	"sync"
	"time"

	"github.com/arloliu/causeway/types"
)

// memoryBackend implements workerBackend for MemoryLog.
type memoryBackend struct {
	worker *Worker
	log    *MemoryLog

	mu      sync.Mutex
	applied map[types.ReplicaID]uint64
}

// Compile-time assertion that memoryBackend implements workerBackend.
var _ workerBackend = (*memoryBackend)(nil)

// NewMemoryWorker creates a worker that applies commits from a MemoryLog.
//
// Once every replica has applied a commit, the worker compacts it out of
// the log.
//
// Parameters:
//   - log: The memory log to consume from
//   - apply: Function that applies a commit to a replica
//   - replicas: The replicas to keep up to date
//   - opts: Optional configuration options
//
// Returns:
//   - *Worker: A new worker instance
func NewMemoryWorker(log *MemoryLog, apply ApplyFunc, replicas []types.ReplicaID, opts ...WorkerOption) *Worker {
	w := newWorker(apply, replicas, opts)

	applied := make(map[types.ReplicaID]uint64, len(replicas))
	for _, r := range replicas {
		applied[r] = 0
	}

	w.backend = &memoryBackend{
		worker:  w,
		log:     log,
		applied: applied,
	}

	return w
}

func (b *memoryBackend) backendType() string {
	return "memory"
}

// run applies commits to one replica in sequence order.
func (b *memoryBackend) run(replica types.ReplicaID) {
	w := b.worker
	var cursor uint64

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		// Take the wake-up channel before reading so an Append in between is not missed.
		wake := b.log.Wait()
		entries := b.log.Since(cursor, w.config.BatchSize)
		if len(entries) == 0 {
			select {
			case <-w.stopCh:
				return
			case <-wake:
			case <-time.After(w.config.PollInterval):
			}

			continue
		}

		for _, entry := range entries {
			if !b.applyWithRetry(replica, entry) {
				return
			}
			cursor = entry.Seq
			b.markApplied(replica, cursor)
		}
	}
}

// applyWithRetry applies entry until it succeeds. It reports false if the
// worker stopped first.
func (b *memoryBackend) applyWithRetry(replica types.ReplicaID, entry types.CommitEntry) bool {
	w := b.worker

	if !w.holdBack(entry) {
		return false
	}

	for attempt := 1; ; attempt++ {
		err := w.applyOnce(replica, entry)
		if err == nil {
			return true
		}

		w.reportFailure(replica, entry, err, attempt)
		if !w.sleep(calculateBackoff(attempt, w.config.RetryDelay, w.config.MaxRetryDelay)) {
			return false
		}
	}
}

// markApplied records progress and compacts what every replica has applied.
func (b *memoryBackend) markApplied(replica types.ReplicaID, seq uint64) {
	b.mu.Lock()
	b.applied[replica] = seq
	low := seq
	for _, s := range b.applied {
		if s < low {
			low = s
		}
	}
	b.mu.Unlock()

	last := b.log.LastSeq()
	backlog := 0
	if last > seq {
		backlog = int(last - seq) //nolint:gosec // bounded by log capacity
	}
	b.worker.config.Metrics.SetReplicationBacklog(replica, backlog)

	b.log.Compact(low)
}
