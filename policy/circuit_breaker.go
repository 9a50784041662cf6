package policy

import (
	"sync"
	"time"

	"github.com/arloliu/causeway/internal/logging"
	"github.com/arloliu/causeway/internal/metrics"
	"github.com/arloliu/causeway/types"
)

// Circuit states reported through MetricsCollector.SetCircuitBreakerState.
const (
	circuitClosed = 0
	circuitOpen   = 2
)

// CircuitBreaker tracks consecutive read failures per replica.
//
// A replica whose failure count reaches the threshold is open and should
// not be offered reads. After the reset timeout an open replica is allowed
// again; the next success closes it, the next failure restarts the
// timeout. Slow successful reads count as failures when a slow threshold
// is configured.
type CircuitBreaker struct {
	threshold     int
	resetTimeout  time.Duration
	slowThreshold time.Duration
	metrics       types.MetricsCollector
	logger        types.Logger

	mu       sync.Mutex
	replicas map[types.ReplicaID]*breakerState
}

type breakerState struct {
	failures    int
	lastFailure time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithThreshold sets the number of consecutive failures that opens a replica.
//
// Parameters:
//   - n: Number of failures required
//
// Returns:
//   - CircuitBreakerOption: Configuration option
func WithThreshold(n int) CircuitBreakerOption {
	return func(c *CircuitBreaker) {
		c.threshold = n
	}
}

// WithResetTimeout sets how long an open replica stays excluded.
//
// Parameters:
//   - d: Reset timeout duration
//
// Returns:
//   - CircuitBreakerOption: Configuration option
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreaker) {
		c.resetTimeout = d
	}
}

// WithSlowThreshold treats successful reads slower than d as failures.
//
// Zero disables latency tracking.
//
// Parameters:
//   - d: Maximum acceptable read latency
//
// Returns:
//   - CircuitBreakerOption: Configuration option
func WithSlowThreshold(d time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreaker) {
		c.slowThreshold = d
	}
}

// WithCircuitBreakerMetrics sets the metrics collector for the circuit breaker.
//
// Parameters:
//   - m: The metrics collector
//
// Returns:
//   - CircuitBreakerOption: Configuration option
func WithCircuitBreakerMetrics(m types.MetricsCollector) CircuitBreakerOption {
	return func(c *CircuitBreaker) {
		c.metrics = m
	}
}

// WithCircuitBreakerLogger sets the logger for the circuit breaker.
//
// Parameters:
//   - l: The logger
//
// Returns:
//   - CircuitBreakerOption: Configuration option
func WithCircuitBreakerLogger(l types.Logger) CircuitBreakerOption {
	return func(c *CircuitBreaker) {
		c.logger = l
	}
}

// NewCircuitBreaker creates a new CircuitBreaker.
//
// Defaults: threshold=3, resetTimeout=30s, no slow threshold.
//
// Parameters:
//   - opts: Optional configuration options
//
// Returns:
//   - *CircuitBreaker: A new circuit breaker
func NewCircuitBreaker(opts ...CircuitBreakerOption) *CircuitBreaker {
	c := &CircuitBreaker{
		threshold:    3,
		resetTimeout: 30 * time.Second,
		replicas:     make(map[types.ReplicaID]*breakerState),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Ensure metrics is never nil
	if c.metrics == nil {
		c.metrics = metrics.NewNopMetrics()
	}

	// Ensure logger is never nil
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}

	return c
}

// Allow reports whether a replica may be offered reads.
//
// Parameters:
//   - replica: The replica to check
//
// Returns:
//   - bool: false while the replica is open and the reset timeout has not passed
func (c *CircuitBreaker) Allow(replica types.ReplicaID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.replicas[replica]
	if !ok || st.failures < c.threshold {
		return true
	}

	return time.Since(st.lastFailure) >= c.resetTimeout
}

// RecordFailure increments the failure counter for a replica.
//
// If the reset timeout has passed since the last failure of a closed
// replica, the counter restarts at 1.
//
// Parameters:
//   - replica: The replica that failed
func (c *CircuitBreaker) RecordFailure(replica types.ReplicaID) {
	c.mu.Lock()
	st, ok := c.replicas[replica]
	if !ok {
		st = &breakerState{}
		c.replicas[replica] = st
	}

	now := time.Now()
	if st.failures < c.threshold && !st.lastFailure.IsZero() && now.Sub(st.lastFailure) > c.resetTimeout {
		st.failures = 0
	}
	st.failures++
	st.lastFailure = now
	tripped := st.failures == c.threshold
	c.mu.Unlock()

	if tripped {
		c.metrics.IncCircuitBreakerTrip(replica)
		c.metrics.SetCircuitBreakerState(replica, circuitOpen)
		c.logger.Warn("circuit breaker tripped",
			"replica", replica.String(),
			"threshold", c.threshold,
		)
	}
}

// RecordSuccess resets the failure counter for a replica.
//
// Parameters:
//   - replica: The replica that succeeded
func (c *CircuitBreaker) RecordSuccess(replica types.ReplicaID) {
	c.mu.Lock()
	st, ok := c.replicas[replica]
	wasOpen := ok && st.failures >= c.threshold
	delete(c.replicas, replica)
	c.mu.Unlock()

	if wasOpen {
		c.metrics.SetCircuitBreakerState(replica, circuitClosed)
		c.logger.Info("circuit breaker closed",
			"replica", replica.String(),
		)
	}
}

// RecordLatency records a successful read and its latency.
//
// With a slow threshold configured, a read slower than the threshold is a
// soft failure. Otherwise it is a success.
//
// Parameters:
//   - replica: The replica that served the read
//   - latency: The read latency
func (c *CircuitBreaker) RecordLatency(replica types.ReplicaID, latency time.Duration) {
	if c.slowThreshold > 0 && latency > c.slowThreshold {
		c.RecordFailure(replica)
		return
	}
	c.RecordSuccess(replica)
}

// Failures returns the current failure count for a replica.
//
// Parameters:
//   - replica: The replica to check
//
// Returns:
//   - int: Number of consecutive failures
func (c *CircuitBreaker) Failures(replica types.ReplicaID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.replicas[replica]; ok {
		return st.failures
	}

	return 0
}
