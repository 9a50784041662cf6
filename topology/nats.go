package topology

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/internal/logging"
	"github.com/arloliu/causeway/types"
)

// NATS monitors a NATS KV bucket for drain configuration.
//
// It watches a configurable key and emits TopologyUpdate events when the
// drain status of a replica changes. Replicas appear in updates only once
// they are named in a drain document, so the watcher needs no static list.
//
// Watch() should be called once per instance. Subsequent calls return the
// same channel. The channel is closed when Close() is called or the context
// is cancelled.
type NATS struct {
	kv     jetstream.KeyValue
	config WatcherConfig

	// Current drain state
	draining    map[types.ReplicaID]bool
	drainReason string
	mu          sync.RWMutex

	// Lifecycle
	updates      chan causeway.TopologyUpdate
	done         chan struct{}
	closed       bool
	watchStarted bool
	closeOnce    sync.Once
}

var (
	_ causeway.TopologyWatcher  = (*NATS)(nil)
	_ causeway.TopologyOperator = (*NATS)(nil)
)

// NewNATS creates a new NATS KV topology watcher.
//
// The watcher will begin monitoring the KV bucket for drain configuration
// when Watch() is called.
//
// Parameters:
//   - kv: A NATS JetStream KeyValue store
//   - opts: Optional configuration options
//
// Returns:
//   - *NATS: A new watcher instance
//   - error: Error if kv is nil
//
// Example:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	kv, _ := js.KeyValue(ctx, "causeway-config")
//
//	watcher, _ := topology.NewNATS(kv,
//	    topology.WithKey("orders.topology.drain"),
//	    topology.WithPollInterval(10*time.Second),
//	)
func NewNATS(kv jetstream.KeyValue, opts ...WatcherOption) (*NATS, error) {
	if kv == nil {
		return nil, errors.New("causeway/topology: KeyValue store is nil")
	}

	config := DefaultWatcherConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = logging.NewNopLogger()
	}

	return &NATS{
		kv:       kv,
		config:   config,
		draining: make(map[types.ReplicaID]bool),
		updates:  make(chan causeway.TopologyUpdate, 16),
		done:     make(chan struct{}),
	}, nil
}

// Watch returns a channel that receives topology updates.
//
// The watcher spawns a background goroutine that monitors the NATS KV key.
// When the drain configuration changes, it emits one TopologyUpdate per
// replica whose state changed.
//
// Multiple calls to Watch return the same channel; only the first call's
// context controls the watch lifecycle.
//
// Parameters:
//   - ctx: Context for cancellation (only used on first call)
//
// Returns:
//   - <-chan causeway.TopologyUpdate: Channel of topology changes
func (n *NATS) Watch(ctx context.Context) <-chan causeway.TopologyUpdate {
	n.mu.Lock()
	if n.watchStarted {
		n.mu.Unlock()

		return n.updates
	}
	n.watchStarted = true
	n.mu.Unlock()

	go n.watchLoop(ctx)

	return n.updates
}

// SetDrain adds a replica to, or removes it from, the drain document in KV.
//
// The change reaches every watcher of the key, this one included, through
// the KV watch. Updates use optimistic concurrency on the key revision and
// retry when another operator wrote first.
//
// Parameters:
//   - ctx: Context for cancellation
//   - replica: The replica to update
//   - draining: true to drain, false to restore
//   - reason: Drain reason stored in the document (only used when draining=true)
//
// Returns:
//   - error: Error if the KV update fails
func (n *NATS) SetDrain(ctx context.Context, replica causeway.ReplicaID, draining bool, reason string) error {
	for {
		var (
			doc      DrainConfig
			revision uint64
		)

		entry, err := n.kv.Get(ctx, n.config.Key)
		switch {
		case err == nil:
			revision = entry.Revision()
			if entry.Operation() == jetstream.KeyValuePut {
				// A malformed document is replaced.
				_ = json.Unmarshal(entry.Value(), &doc)
			}
		case errors.Is(err, jetstream.ErrKeyNotFound):
		default:
			return err
		}

		if doc.Contains(replica) == draining {
			return nil
		}

		if draining {
			doc.Drain = append(doc.Drain, replica)
			doc.Reason = reason
		} else {
			doc.Drain = slices.DeleteFunc(doc.Drain, func(r types.ReplicaID) bool { return r == replica })
			if len(doc.Drain) == 0 {
				doc.Reason = ""
			}
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		if revision == 0 {
			_, err = n.kv.Create(ctx, n.config.Key, data)
		} else {
			_, err = n.kv.Update(ctx, n.config.Key, data, revision)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return err
		}
		// Lost the race with another writer; re-read and retry.
	}
}

// Close stops the watcher and releases resources.
//
// This method is safe to call multiple times.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}

	n.closed = true
	close(n.done)

	return nil
}

// IsDraining returns whether the specified replica is currently in drain mode.
//
// This reflects the last processed KV entry and does not perform a live fetch.
//
// Parameters:
//   - replica: The replica to check
//
// Returns:
//   - bool: true if the replica is being drained
func (n *NATS) IsDraining(replica types.ReplicaID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.draining[replica]
}

// Config returns the watcher configuration.
func (n *NATS) Config() WatcherConfig {
	return n.config
}

// GetDrainReason returns the current drain reason, if any.
//
// This returns the cached reason from the last processed KV entry.
//
// Returns:
//   - string: The drain reason, or empty if not draining
func (n *NATS) GetDrainReason() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.drainReason
}

// watchLoop is the main watch loop that monitors the NATS KV key.
func (n *NATS) watchLoop(ctx context.Context) {
	defer n.closeOnce.Do(func() { close(n.updates) })

	// Initial fetch
	n.fetchAndEmit(ctx)

	watcher, err := n.kv.Watch(ctx, n.config.Key)
	if err != nil {
		n.config.Logger.Warn("topology watch failed, falling back to polling",
			"key", n.config.Key,
			"error", err.Error(),
		)
		n.pollLoop(ctx)

		return
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				// Watcher channel closed, fall back to polling
				n.pollLoop(ctx)
				return
			}
			if entry == nil {
				continue
			}
			n.processEntry(entry)
		}
	}
}

// pollLoop is a fallback polling loop when watch fails.
func (n *NATS) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case <-ticker.C:
			n.fetchAndEmit(ctx)
		}
	}
}

// fetchAndEmit fetches the current KV value and emits updates if changed.
func (n *NATS) fetchAndEmit(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, n.config.InitialFetchTimeout)
	defer cancel()

	entry, err := n.kv.Get(fetchCtx, n.config.Key)
	if err != nil {
		// Key doesn't exist or error - treat as no drain
		n.apply(DrainConfig{})
		return
	}

	n.processEntry(entry)
}

// processEntry parses a KV entry and emits topology updates.
func (n *NATS) processEntry(entry jetstream.KeyValueEntry) {
	if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
		n.apply(DrainConfig{})
		return
	}

	var doc DrainConfig
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		n.config.Logger.Warn("ignoring malformed drain document, treating as no drain",
			"key", n.config.Key,
			"error", err.Error(),
		)
		doc = DrainConfig{}
	}

	n.apply(doc)
}

// apply reconciles the cached drain state with doc and emits the differences.
func (n *NATS) apply(doc DrainConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.drainReason = doc.Reason

	for replica := range n.draining {
		if !doc.Contains(replica) {
			delete(n.draining, replica)
			n.emit(causeway.TopologyUpdate{Replica: replica, Available: true})
		}
	}

	for _, replica := range doc.Drain {
		if n.draining[replica] {
			continue
		}
		n.draining[replica] = true
		n.emit(causeway.TopologyUpdate{Replica: replica, Available: false, DrainMode: true})
	}
}

// emit sends an update without blocking. Callers hold n.mu.
func (n *NATS) emit(update causeway.TopologyUpdate) {
	select {
	case n.updates <- update:
	default:
		n.config.Logger.Warn("topology update dropped, consumer too slow",
			"replica", update.Replica.String(),
			"draining", update.DrainMode,
		)
	}
}
