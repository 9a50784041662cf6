package topology

import (
	"slices"
	"time"

	"github.com/arloliu/causeway/types"
)

// DrainConfig is the drain document stored in NATS KV.
//
// Operations teams PUT this JSON to take replicas out of read rotation
// before maintenance.
type DrainConfig struct {
	// Drain lists the replicas currently being drained.
	Drain []types.ReplicaID `json:"drain"`

	// Reason is a human-readable explanation for the drain.
	// Example: "OS Patching", "Resync after restore"
	Reason string `json:"reason,omitempty"`
}

// Contains reports whether replica is in the drain list.
//
// Parameters:
//   - replica: The replica ID to check
//
// Returns:
//   - bool: true if the replica is being drained
func (d *DrainConfig) Contains(replica types.ReplicaID) bool {
	return slices.Contains(d.Drain, replica)
}

// WatcherConfig holds configuration for topology watchers.
type WatcherConfig struct {
	// Key is the NATS KV key to watch for drain configuration.
	// Default: "causeway.topology.drain"
	Key string

	// PollInterval is the fallback polling interval if watch fails.
	// Default: 5 seconds
	PollInterval time.Duration

	// InitialFetchTimeout is the timeout for the initial KV fetch.
	// Default: 10 seconds
	InitialFetchTimeout time.Duration

	// Logger receives watch failures and malformed drain documents.
	// If nil, no logs are emitted.
	Logger types.Logger
}

// DefaultWatcherConfig returns a WatcherConfig with sensible defaults.
//
// Returns:
//   - WatcherConfig: Default configuration
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Key:                 "causeway.topology.drain",
		PollInterval:        5 * time.Second,
		InitialFetchTimeout: 10 * time.Second,
	}
}

// WatcherOption configures a topology watcher.
type WatcherOption func(*WatcherConfig)

// WithKey sets the NATS KV key to watch.
//
// Parameters:
//   - key: The key name (e.g., "orders.topology.drain")
//
// Returns:
//   - WatcherOption: Configuration option
func WithKey(key string) WatcherOption {
	return func(c *WatcherConfig) {
		c.Key = key
	}
}

// WithPollInterval sets the fallback polling interval.
//
// If the NATS watch fails or disconnects, the watcher falls back to
// polling at this interval.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(c *WatcherConfig) {
		c.PollInterval = d
	}
}

// WithInitialFetchTimeout sets the timeout for each KV fetch.
func WithInitialFetchTimeout(d time.Duration) WatcherOption {
	return func(c *WatcherConfig) {
		c.InitialFetchTimeout = d
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(l types.Logger) WatcherOption {
	return func(c *WatcherConfig) {
		c.Logger = l
	}
}
