package topology

import (
	"context"
	"sync"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/types"
)

// Local provides an in-memory topology watcher and operator for testing.
//
// Unlike NATS, this implementation allows programmatic control
// of drain states, making it ideal for unit tests and demos.
// It implements both TopologyWatcher (for observing) and TopologyOperator
// (for controlling drain states).
type Local struct {
	draining map[types.ReplicaID]string // replica -> reason
	mu       sync.RWMutex

	updates       chan causeway.TopologyUpdate
	done          chan struct{}
	closed        bool
	updatesClosed bool
	watchOnce     sync.Once
}

var (
	_ causeway.TopologyWatcher  = (*Local)(nil)
	_ causeway.TopologyOperator = (*Local)(nil)
)

// NewLocal creates a new in-memory topology watcher/operator.
//
// Returns:
//   - *Local: A new local topology instance
func NewLocal() *Local {
	return &Local{
		draining: make(map[types.ReplicaID]string),
		updates:  make(chan causeway.TopologyUpdate, 16),
		done:     make(chan struct{}),
	}
}

// Watch returns a channel that receives topology updates.
//
// Updates are emitted when SetDrain changes a replica's state. The channel
// is closed when Close() is called or the context is cancelled.
//
// Multiple calls to Watch return the same channel; only the first call's
// context controls the watch lifecycle.
//
// Parameters:
//   - ctx: Context for cancellation (only used on first call)
//
// Returns:
//   - <-chan causeway.TopologyUpdate: Channel of topology changes
func (l *Local) Watch(ctx context.Context) <-chan causeway.TopologyUpdate {
	l.watchOnce.Do(func() {
		go l.waitForClose(ctx)
	})

	return l.updates
}

// SetDrain sets the drain state for a replica.
//
// This method emits a TopologyUpdate if the state changes.
//
// Parameters:
//   - ctx: Accepted for interface compliance; not used
//   - replica: The replica to update
//   - draining: true to enable drain mode, false to disable
//   - reason: Human-readable reason for the drain (only used when draining=true)
//
// Returns:
//   - error: Always nil for local implementation
func (l *Local) SetDrain(_ context.Context, replica causeway.ReplicaID, draining bool, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.updatesClosed {
		return nil
	}

	_, current := l.draining[replica]
	if current == draining {
		if draining {
			l.draining[replica] = reason
		}

		return nil
	}

	if draining {
		l.draining[replica] = reason
	} else {
		delete(l.draining, replica)
	}

	// Emit update (non-blocking)
	select {
	case l.updates <- causeway.TopologyUpdate{
		Replica:   replica,
		Available: !draining,
		DrainMode: draining,
	}:
	default:
		// Channel full, skip update
	}

	return nil
}

// IsDraining returns whether the specified replica is currently in drain mode.
func (l *Local) IsDraining(replica types.ReplicaID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.draining[replica]

	return ok
}

// GetDrainReason returns the drain reason of a replica, if any.
//
// Parameters:
//   - replica: The replica to check
//
// Returns:
//   - string: The drain reason, or empty string if not draining
func (l *Local) GetDrainReason(replica types.ReplicaID) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.draining[replica]
}

// Draining returns the replicas currently in drain mode.
func (l *Local) Draining() []types.ReplicaID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.ReplicaID, 0, len(l.draining))
	for r := range l.draining {
		out = append(out, r)
	}

	return out
}

// Close stops the watcher and releases resources.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	close(l.done)

	return nil
}

// waitForClose waits for context cancellation or close signal.
func (l *Local) waitForClose(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-l.done:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.updatesClosed {
		l.updatesClosed = true
		close(l.updates)
	}
}
