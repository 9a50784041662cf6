// Package replicate ships committed writes from the primary to replicas.
package replicate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/types"
)

// MemoryLog is an in-memory, bounded commit log.
//
// Entries are kept in sequence order until every consumer has applied them
// and the log is compacted. Append fails with ErrCommitLogFull when the log
// holds capacity entries.
//
// # Durability Warning
//
// Entries are LOST on process restart. A replica that missed them can only
// be rebuilt from a copy of the primary. Use NATSLog when the log must
// outlive the process.
//
// All methods are safe for concurrent use.
type MemoryLog struct {
	mu       sync.RWMutex
	entries  []types.CommitEntry
	lastSeq  uint64
	capacity int
	notify   chan struct{}
	closed   atomic.Bool
}

// Compile-time assertion that MemoryLog implements causeway.CommitLog.
var _ causeway.CommitLog = (*MemoryLog)(nil)

// MemoryLogOption configures a MemoryLog.
type MemoryLogOption func(*MemoryLog)

// WithCapacity sets the maximum number of retained entries.
//
// Parameters:
//   - n: Log capacity (default: 10000)
//
// Returns:
//   - MemoryLogOption: Configuration option
func WithCapacity(n int) MemoryLogOption {
	return func(m *MemoryLog) {
		m.capacity = n
	}
}

// NewMemoryLog creates a new in-memory commit log.
//
// Parameters:
//   - opts: Optional configuration options
//
// Returns:
//   - *MemoryLog: A new memory log
func NewMemoryLog(opts ...MemoryLogOption) *MemoryLog {
	m := &MemoryLog{
		capacity: 10000,
		notify:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.capacity < 1 {
		m.capacity = 1
	}

	return m
}

// Append adds a committed write to the log.
//
// Parameters:
//   - ctx: Context for cancellation
//   - entry: The committed write; Seq must be greater than the last appended Seq
//
// Returns:
//   - error: ErrLogClosed, ErrCommitLogFull, or ErrCommitGap on out-of-order entries
func (m *MemoryLog) Append(ctx context.Context, entry types.CommitEntry) error {
	if m.closed.Load() {
		return types.ErrLogClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.Seq <= m.lastSeq {
		return fmt.Errorf("%w: entry %d after %d", types.ErrCommitGap, entry.Seq, m.lastSeq)
	}
	if len(m.entries) >= m.capacity {
		return types.ErrCommitLogFull
	}

	m.entries = append(m.entries, entry)
	m.lastSeq = entry.Seq

	// Wake every waiter.
	close(m.notify)
	m.notify = make(chan struct{})

	return nil
}

// Since returns up to limit entries with Seq greater than afterSeq.
//
// Parameters:
//   - afterSeq: Return entries after this sequence
//   - limit: Maximum number of entries; zero or less means no limit
//
// Returns:
//   - []types.CommitEntry: Entries in sequence order
func (m *MemoryLog) Since(afterSeq uint64, limit int) []types.CommitEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Seq > afterSeq
	})
	end := len(m.entries)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	if i >= end {
		return nil
	}

	out := make([]types.CommitEntry, end-i)
	copy(out, m.entries[i:end])

	return out
}

// Wait returns a channel that is closed by the next Append.
func (m *MemoryLog) Wait() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.notify
}

// Compact discards entries with Seq at or below uptoSeq.
//
// Parameters:
//   - uptoSeq: Highest sequence that every consumer has applied
//
// Returns:
//   - int: Number of entries discarded
func (m *MemoryLog) Compact(uptoSeq uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Seq > uptoSeq
	})
	if i == 0 {
		return 0
	}

	m.entries = append(m.entries[:0:0], m.entries[i:]...)

	return i
}

// LastSeq returns the sequence of the most recently appended entry.
func (m *MemoryLog) LastSeq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lastSeq
}

// Len returns the number of retained entries.
func (m *MemoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Cap returns the log capacity.
func (m *MemoryLog) Cap() int {
	return m.capacity
}

// Close marks the log as closed.
//
// After Close is called, Append returns ErrLogClosed. Retained entries can
// still be read. Close is safe to call multiple times.
func (m *MemoryLog) Close() {
	m.closed.Store(true)
}

// IsClosed returns whether the log has been closed.
func (m *MemoryLog) IsClosed() bool {
	return m.closed.Load()
}
