package policy

import (
	"context"
	"crypto/rand"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/causeway/types"
)

// StickyReplica routes reads to a preferred replica to maximize cache hits.
//
// The preferred replica is picked at random from the first eligible set and
// kept while it stays eligible. When it lags behind a session's watermark
// another eligible replica serves that read, but the preference does not
// move. A failure on the preferred replica clears the preference once the
// cooldown has passed.
type StickyReplica struct {
	mu               sync.Mutex
	preferred        types.ReplicaID
	lastFailoverTime time.Time
	failoverCooldown time.Duration
}

// StickyReplicaOption configures a StickyReplica selector.
type StickyReplicaOption func(*StickyReplica)

// WithStickyCooldown sets the cooldown period after a failover.
//
// Parameters:
//   - d: Duration to wait before allowing another failover
//
// Returns:
//   - StickyReplicaOption: Configuration option
func WithStickyCooldown(d time.Duration) StickyReplicaOption {
	return func(s *StickyReplica) {
		s.failoverCooldown = d
	}
}

// WithPreferredReplica sets the initial preferred replica.
//
// Parameters:
//   - replica: The replica to prefer initially
//
// Returns:
//   - StickyReplicaOption: Configuration option
func WithPreferredReplica(replica types.ReplicaID) StickyReplicaOption {
	return func(s *StickyReplica) {
		s.preferred = replica
	}
}

// NewStickyReplica creates a new StickyReplica selector.
//
// The default failover cooldown is 5 minutes.
//
// Parameters:
//   - opts: Optional configuration options
//
// Returns:
//   - *StickyReplica: A new sticky selector
func NewStickyReplica(opts ...StickyReplicaOption) *StickyReplica {
	s := &StickyReplica{
		failoverCooldown: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Select returns the preferred replica if it is eligible.
//
// Parameters:
//   - ctx: Context (unused)
//   - eligible: Replicas that satisfy the session's watermark
//
// Returns:
//   - types.ReplicaID: The chosen replica, or empty if eligible is empty
func (s *StickyReplica) Select(_ context.Context, eligible []types.ReplicaID) types.ReplicaID {
	if len(eligible) == 0 {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preferred != "" && slices.Contains(eligible, s.preferred) {
		return s.preferred
	}

	pick := eligible[randomIndex(len(eligible))]
	if s.preferred == "" {
		s.preferred = pick
	}

	return pick
}

// OnSuccess is called when a read succeeds.
//
// Parameters:
//   - replica: The replica that succeeded (unused for sticky reads)
func (s *StickyReplica) OnSuccess(_ types.ReplicaID) {
	// Nothing to do for sticky reads on success
}

// OnFailure drops the preference for a failed preferred replica.
//
// Parameters:
//   - replica: The replica that failed
//   - err: The error (unused)
//
// Returns:
//   - bool: true if the preference was dropped
func (s *StickyReplica) OnFailure(replica types.ReplicaID, _ error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replica != s.preferred {
		return false
	}
	if !s.lastFailoverTime.IsZero() && time.Since(s.lastFailoverTime) < s.failoverCooldown {
		return false
	}

	s.preferred = ""
	s.lastFailoverTime = time.Now()

	return true
}

// Preferred returns the current preferred replica, or empty if none.
//
// Returns:
//   - types.ReplicaID: The current preferred replica
func (s *StickyReplica) Preferred() types.ReplicaID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.preferred
}

// RoundRobinReplica cycles through the eligible replicas.
//
// This provides even load distribution but lower cache efficiency.
type RoundRobinReplica struct {
	counter atomic.Uint64
}

// NewRoundRobinReplica creates a new RoundRobinReplica selector.
//
// Returns:
//   - *RoundRobinReplica: A new round-robin selector
func NewRoundRobinReplica() *RoundRobinReplica {
	return &RoundRobinReplica{}
}

// Select returns the next eligible replica.
//
// Parameters:
//   - ctx: Context (unused)
//   - eligible: Replicas that satisfy the session's watermark
//
// Returns:
//   - types.ReplicaID: The chosen replica, or empty if eligible is empty
func (r *RoundRobinReplica) Select(_ context.Context, eligible []types.ReplicaID) types.ReplicaID {
	if len(eligible) == 0 {
		return ""
	}
	count := r.counter.Add(1) - 1

	return eligible[count%uint64(len(eligible))]
}

// OnSuccess is called when a read succeeds.
//
// Parameters:
//   - replica: The replica that succeeded (unused)
func (r *RoundRobinReplica) OnSuccess(_ types.ReplicaID) {
	// Nothing to do
}

// OnFailure is called when a read fails.
//
// Parameters:
//   - replica: The replica that failed (unused)
//   - err: The error (unused)
//
// Returns:
//   - bool: Always false; the rotation already moves on
func (r *RoundRobinReplica) OnFailure(_ types.ReplicaID, _ error) bool {
	return false
}

// randomIndex returns a uniform index in [0, n).
func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}

	return int(v.Int64())
}
