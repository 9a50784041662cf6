package causeway

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/arloliu/causeway/policy"
)

// Session holds the current watermark of one logical session.
//
// A Session is created from an inbound token at the start of a unit of work
// and advanced by the Router after every successful operation. Its final
// watermark is the only externally visible artifact.
//
// Advance is the single mutation point and is guarded by a mutex, so a
// caller that issues concurrent reads within one session still gets a
// watermark that never moves backward.
type Session struct {
	id       string
	ordering Ordering

	mu        sync.Mutex
	watermark Watermark
}

// NewSession creates a session from an inbound token.
//
// An empty or invalid token selects Unconditional. FirstPrimary is kept
// as-is. A nil ordering selects policy.NewSequenceOrdering().
//
// Parameters:
//   - inbound: The token carried by the request, or empty
//   - ordering: The ordering used to validate and compare watermarks
//
// Returns:
//   - *Session: A new session
func NewSession(inbound Watermark, ordering Ordering) *Session {
	if ordering == nil {
		ordering = policy.NewSequenceOrdering()
	}

	if inbound == "" || !ordering.Valid(inbound) {
		inbound = Unconditional
	}

	return &Session{
		id:        uuid.NewString(),
		ordering:  ordering,
		watermark: inbound,
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string {
	return s.id
}

// CurrentToken returns the latest known watermark.
//
// The token bounds subsequent reads and is the value exported at the
// propagation boundary.
func (s *Session) CurrentToken() Watermark {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.watermark
}

// Advance moves the session to w if w is not older than the current watermark.
//
// Sentinels and malformed tokens are ignored. Advancing to the current
// watermark is a no-op.
//
// Parameters:
//   - w: The watermark observed by the latest operation
//
// Returns:
//   - bool: true if the session watermark changed
func (s *Session) Advance(w Watermark) bool {
	if w.IsSentinel() || !s.ordering.Valid(w) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.watermark.IsSentinel() && s.ordering.Compare(w, s.watermark) <= 0 {
		return false
	}
	s.watermark = w

	return true
}

// sessionKey is the context key for the request-scoped session.
type sessionKey struct{}

// ContextWithSession returns a copy of ctx carrying the session.
//
// Parameters:
//   - ctx: Parent context
//   - s: The session to attach
//
// Returns:
//   - context.Context: A context carrying s
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by ContextWithSession.
//
// Parameters:
//   - ctx: The context to inspect
//
// Returns:
//   - *Session: The session, or nil
//   - bool: true if a session was found
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)

	return s, ok && s != nil
}
