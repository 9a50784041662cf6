package sql

import (
	"time"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/internal/logging"
	"github.com/arloliu/causeway/internal/metrics"
	"github.com/arloliu/causeway/policy"
	"github.com/arloliu/causeway/types"
)

// LagPolicy decides what a read does when no replica satisfies its bound.
type LagPolicy uint8

const (
	// LagPolicyPrimary serves the read from the primary immediately.
	LagPolicyPrimary LagPolicy = iota

	// LagPolicyWait polls until a replica catches up, up to MaxWait, and
	// then serves the read from the primary.
	LagPolicyWait
)

// String returns the string representation of the LagPolicy.
func (p LagPolicy) String() string {
	switch p {
	case LagPolicyPrimary:
		return "primary"
	case LagPolicyWait:
		return "wait"
	default:
		return "unknown"
	}
}

// DefaultCommitTable is the table that records the applied commit sequence
// on the primary and every replica.
const DefaultCommitTable = "_causeway_commit"

// Config holds configuration for a Store.
type Config struct {
	Selector     causeway.ReplicaSelector
	Health       causeway.ReplicaHealth
	LagPolicy    LagPolicy
	MaxWait      time.Duration
	PollInterval time.Duration
	CommitLog    causeway.CommitLog
	Topology     causeway.TopologyWatcher
	CommitTable  string
	Metrics      types.MetricsCollector
	Logger       types.Logger
}

// DefaultConfig returns a Config with sensible defaults.
//
// Defaults:
//   - Selector: policy.NewStickyReplica()
//   - Health: none (all replicas always allowed)
//   - LagPolicy: LagPolicyPrimary
//   - MaxWait: 2s, PollInterval: 10ms (LagPolicyWait only)
//   - CommitTable: DefaultCommitTable
//
// Returns:
//   - *Config: Configuration with default settings
func DefaultConfig() *Config {
	return &Config{
		Selector:     policy.NewStickyReplica(),
		LagPolicy:    LagPolicyPrimary,
		MaxWait:      2 * time.Second,
		PollInterval: 10 * time.Millisecond,
		CommitTable:  DefaultCommitTable,
		Metrics:      metrics.NewNopMetrics(),
		Logger:       logging.NewNopLogger(),
	}
}

// Option configures a Store.
type Option func(*Config)

// WithReplicaSelector sets the strategy that picks among eligible replicas.
//
// Parameters:
//   - selector: The replica selector
//
// Returns:
//   - Option: Configuration option
func WithReplicaSelector(selector causeway.ReplicaSelector) Option {
	return func(c *Config) {
		c.Selector = selector
	}
}

// WithCircuitBreaker excludes replicas that keep failing reads.
//
// Parameters:
//   - health: The replica health tracker, typically policy.NewCircuitBreaker()
//
// Returns:
//   - Option: Configuration option
func WithCircuitBreaker(health causeway.ReplicaHealth) Option {
	return func(c *Config) {
		c.Health = health
	}
}

// WithLagPolicy sets what a read does when every replica lags its bound.
//
// Parameters:
//   - p: The lag policy
//
// Returns:
//   - Option: Configuration option
func WithLagPolicy(p LagPolicy) Option {
	return func(c *Config) {
		c.LagPolicy = p
	}
}

// WithMaxWait sets how long LagPolicyWait waits before falling back.
//
// Parameters:
//   - d: Maximum wait
//
// Returns:
//   - Option: Configuration option
func WithMaxWait(d time.Duration) Option {
	return func(c *Config) {
		c.MaxWait = d
	}
}

// WithPollInterval sets how often LagPolicyWait re-checks replica state.
//
// Parameters:
//   - d: Poll interval
//
// Returns:
//   - Option: Configuration option
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = d
	}
}

// WithCommitLog ships every committed write to the given log.
//
// Without a commit log the store never advances its replicas on its own;
// callers apply entries with Store.Apply.
//
// Parameters:
//   - log: The commit log (replicate.MemoryLog or replicate.NATSLog)
//
// Returns:
//   - Option: Configuration option
func WithCommitLog(log causeway.CommitLog) Option {
	return func(c *Config) {
		c.CommitLog = log
	}
}

// WithTopologyWatcher excludes replicas that enter drain mode.
//
// Parameters:
//   - watcher: The topology watcher
//
// Returns:
//   - Option: Configuration option
func WithTopologyWatcher(watcher causeway.TopologyWatcher) Option {
	return func(c *Config) {
		c.Topology = watcher
	}
}

// WithCommitTable sets the name of the commit sequence table.
//
// Parameters:
//   - name: Table name, used verbatim in SQL
//
// Returns:
//   - Option: Configuration option
func WithCommitTable(name string) Option {
	return func(c *Config) {
		c.CommitTable = name
	}
}

// WithMetrics sets the metrics collector.
//
// Parameters:
//   - collector: The metrics collector implementation
//
// Returns:
//   - Option: Configuration option
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *Config) {
		c.Metrics = collector
	}
}

// WithLogger sets the structured logger.
//
// Parameters:
//   - logger: The logger implementation
//
// Returns:
//   - Option: Configuration option
func WithLogger(logger types.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// normalize replaces unset fields with defaults.
func (c *Config) normalize() {
	if c.Selector == nil {
		c.Selector = policy.NewStickyReplica()
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Millisecond
	}
	if c.CommitTable == "" {
		c.CommitTable = DefaultCommitTable
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNopMetrics()
	}
	if c.Logger == nil {
		c.Logger = logging.NewNopLogger()
	}
}
