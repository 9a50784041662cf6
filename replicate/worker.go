package replicate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/internal/logging"
	"github.com/arloliu/causeway/internal/metrics"
	"github.com/arloliu/causeway/types"
)

// ApplyFunc applies one committed write to a replica.
// It must skip entries the replica has already applied and fail on gaps;
// adapter/sql's Store.Apply does both.
type ApplyFunc func(ctx context.Context, replica types.ReplicaID, entry types.CommitEntry) error

// WorkerConfig configures the replication worker.
type WorkerConfig struct {
	// BatchSize is the number of commits to fetch per read of the log.
	// Default: 100
	BatchSize int

	// PollInterval is the interval between log reads when a replica is caught up.
	// Default: 100ms
	PollInterval time.Duration

	// RetryDelay is the initial delay before retrying a failed apply.
	// Uses exponential backoff.
	// Default: 100ms
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay between retries.
	// Default: 30 seconds
	MaxRetryDelay time.Duration

	// ApplyTimeout is the timeout for each apply.
	// Default: 30 seconds
	ApplyTimeout time.Duration

	// ApplyDelay holds each commit back until it is at least this old.
	// Use it to simulate replication lag in tests and demos.
	// Default: 0 (apply as soon as possible)
	ApplyDelay time.Duration

	// Metrics is the metrics collector for recording replication statistics.
	// If nil, no metrics are recorded.
	Metrics types.MetricsCollector

	// Logger is the structured logger for worker events.
	// If nil, no logs are emitted.
	Logger types.Logger

	// OnApplied is called after a commit is applied to a replica (optional).
	OnApplied func(replica types.ReplicaID, entry types.CommitEntry)

	// OnError is called after a failed apply attempt (optional).
	OnError func(replica types.ReplicaID, entry types.CommitEntry, err error, attempt int)
}

// DefaultWorkerConfig returns the default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:     100,
		PollInterval:  100 * time.Millisecond,
		RetryDelay:    100 * time.Millisecond,
		MaxRetryDelay: 30 * time.Second,
		ApplyTimeout:  30 * time.Second,
	}
}

// WorkerOption configures a Worker.
type WorkerOption func(*WorkerConfig)

// WithBatchSize sets the batch size for log reads.
func WithBatchSize(n int) WorkerOption {
	return func(c *WorkerConfig) {
		c.BatchSize = n
	}
}

// WithPollInterval sets the polling interval when a replica is caught up.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.PollInterval = d
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.RetryDelay = d
	}
}

// WithMaxRetryDelay sets the maximum retry delay.
func WithMaxRetryDelay(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.MaxRetryDelay = d
	}
}

// WithApplyTimeout sets the timeout per apply.
func WithApplyTimeout(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.ApplyTimeout = d
	}
}

// WithApplyDelay holds commits back until they are at least d old.
//
// Parameters:
//   - d: Minimum commit age before apply
//
// Returns:
//   - WorkerOption: Configuration option
func WithApplyDelay(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.ApplyDelay = d
	}
}

// WithOnApplied sets the applied callback.
func WithOnApplied(fn func(types.ReplicaID, types.CommitEntry)) WorkerOption {
	return func(c *WorkerConfig) {
		c.OnApplied = fn
	}
}

// WithOnError sets the error callback.
func WithOnError(fn func(types.ReplicaID, types.CommitEntry, error, int)) WorkerOption {
	return func(c *WorkerConfig) {
		c.OnError = fn
	}
}

// WithWorkerMetrics sets the metrics collector for the worker.
func WithWorkerMetrics(m types.MetricsCollector) WorkerOption {
	return func(c *WorkerConfig) {
		c.Metrics = m
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(l types.Logger) WorkerOption {
	return func(c *WorkerConfig) {
		c.Logger = l
	}
}

// Worker applies commits from a log to a set of replicas.
//
// Each replica is served by its own goroutine and receives commits strictly
// in sequence order. A failed apply is retried with backoff until it
// succeeds or the worker stops; later commits wait behind it.
//
// The worker uses a backend strategy pattern to support different log
// implementations. It manages the lifecycle (Start/Stop) while delegating
// log-specific processing to the backend.
type Worker struct {
	config   WorkerConfig
	apply    ApplyFunc
	replicas []types.ReplicaID
	backend  workerBackend
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
}

// Compile-time assertion that Worker implements causeway.ReplicationWorker.
var _ causeway.ReplicationWorker = (*Worker)(nil)

// workerBackend abstracts log-specific processing logic.
// This interface is unexported - users interact with Worker via NewMemoryWorker/NewNATSWorker.
type workerBackend interface {
	// run processes commits for one replica until stopCh is closed.
	run(replica types.ReplicaID)

	// backendType returns a string identifier for debugging/logging.
	backendType() string
}

// newWorker builds a Worker with defaults applied.
func newWorker(apply ApplyFunc, replicas []types.ReplicaID, opts []WorkerOption) *Worker {
	config := DefaultWorkerConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Ensure metrics is never nil
	if config.Metrics == nil {
		config.Metrics = metrics.NewNopMetrics()
	}

	// Ensure logger is never nil
	if config.Logger == nil {
		config.Logger = logging.NewNopLogger()
	}

	if config.BatchSize < 1 {
		config.BatchSize = 1
	}

	return &Worker{
		config:   config,
		apply:    apply,
		replicas: append([]types.ReplicaID(nil), replicas...),
		stopCh:   make(chan struct{}),
	}
}

// Start begins applying commits, one goroutine per replica.
//
// Returns:
//   - error: ErrWorkerAlreadyRunning if already started
func (w *Worker) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return types.ErrWorkerAlreadyRunning
	}

	for _, replica := range w.replicas {
		w.wg.Go(func() {
			w.backend.run(replica)
		})
	}

	return nil
}

// Stop gracefully stops the worker.
//
// It signals all goroutines to stop and waits for them to finish the
// commit in progress. This method blocks until all workers have stopped.
// A stopped worker cannot be restarted.
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	close(w.stopCh)
	w.wg.Wait()
}

// IsRunning returns whether the worker is currently running.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// BackendType returns the type of backend being used ("memory" or "nats").
func (w *Worker) BackendType() string {
	return w.backend.backendType()
}

// Replicas returns the replicas served by the worker.
func (w *Worker) Replicas() []types.ReplicaID {
	return append([]types.ReplicaID(nil), w.replicas...)
}

// applyOnce applies one commit with timeout and records metrics.
func (w *Worker) applyOnce(replica types.ReplicaID, entry types.CommitEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.ApplyTimeout)
	defer cancel()

	start := time.Now()
	err := w.apply(ctx, replica, entry)
	w.config.Metrics.ObserveReplicationDuration(replica, time.Since(start).Seconds())

	if err != nil {
		w.config.Metrics.IncReplicationError(replica)
		return err
	}

	w.config.Metrics.IncReplicationApplied(replica)
	if w.config.OnApplied != nil {
		w.config.OnApplied(replica, entry)
	}

	return nil
}

// reportFailure logs and reports a failed apply attempt.
func (w *Worker) reportFailure(replica types.ReplicaID, entry types.CommitEntry, err error, attempt int) {
	w.config.Logger.Warn("replication apply failed, will retry",
		"replica", replica.String(),
		"seq", entry.Seq,
		"attempt", attempt,
		"error", err.Error(),
	)
	if w.config.OnError != nil {
		w.config.OnError(replica, entry, err, attempt)
	}
}

// holdBack waits until entry is at least ApplyDelay old.
// It reports false if the worker stopped while waiting.
func (w *Worker) holdBack(entry types.CommitEntry) bool {
	if w.config.ApplyDelay <= 0 {
		return true
	}

	due := time.UnixMicro(entry.CommittedAt).Add(w.config.ApplyDelay)
	wait := time.Until(due)
	if wait <= 0 {
		return true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// sleep waits for d or until the worker stops. It reports false if stopped.
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// calculateBackoff calculates the backoff delay with exponential increase.
func calculateBackoff(attempt int, retryDelay, maxRetryDelay time.Duration) time.Duration {
	delay := retryDelay

	// Exponential backoff: delay * 2^(attempt-1)
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	return delay
}
