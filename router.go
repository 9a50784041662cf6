package causeway

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arloliu/causeway/types"
)

// Router routes the operations of causal sessions to a replicated store.
//
// Writes always go to the primary. Reads go to any replica whose applied
// state is at least the session's watermark. After each successful
// operation the session advances to the watermark reported by the serving
// replica, which gives read-after-write within the session.
//
// The router performs no retries and never wraps store errors. A Router is
// safe for concurrent use by many independent sessions.
type Router struct {
	store  Store
	config *RouterConfig
	tracer trace.Tracer
	closed atomic.Bool
}

// NewRouter creates a new Router.
//
// Parameters:
//   - store: The replicated store (required)
//   - opts: Optional configuration options
//
// Returns:
//   - *Router: A new router
//   - error: ErrNilStore if store is nil
func NewRouter(store Store, opts ...Option) (*Router, error) {
	if store == nil {
		return nil, types.ErrNilStore
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	config.normalize()

	return &Router{
		store:  store,
		config: config,
		tracer: config.TracerProvider.Tracer(instrumentationName),
	}, nil
}

// NewSession creates a session using the router's watermark ordering.
//
// Parameters:
//   - inbound: The inbound token, or empty for a fresh session
//
// Returns:
//   - *Session: A new session
func (r *Router) NewSession(inbound Watermark) *Session {
	return NewSession(inbound, r.config.Ordering)
}

// Ordering returns the watermark ordering used by the router.
func (r *Router) Ordering() Ordering {
	return r.config.Ordering
}

// Route returns the routing decision for an operation without executing it.
//
//   - Writes route to TierPrimary.
//   - Reads of a FirstPrimary session route to TierPrimary.
//   - All other reads route to TierAny, bounded by the session watermark.
//     An Unconditional session has no bound, so any replica is eligible.
//
// A nil session routes like a fresh Unconditional one.
//
// Parameters:
//   - s: The session issuing the operation, may be nil
//   - op: The operation
//
// Returns:
//   - Route: The tier and the watermark bound
func (r *Router) Route(s *Session, op Operation) Route {
	current := Unconditional
	if s != nil {
		current = s.CurrentToken()
	}

	if op.Kind != KindRead {
		return Route{Tier: TierPrimary, MinWatermark: current}
	}
	if current == FirstPrimary {
		return Route{Tier: TierPrimary, MinWatermark: current}
	}

	return Route{Tier: TierAny, MinWatermark: current}
}

// Execute routes and executes one operation within a session.
//
// On success the session advances to the watermark reported by the store.
// On failure, cancellation or timeout the session is left unchanged and the
// store's error is returned as-is.
//
// If the context ends after the store has already succeeded, Execute
// returns the store's result together with the context error and leaves
// the session unchanged. For a write the row may be committed even though
// the error is non-nil; check Result.Watermark before retrying, since a
// blind retry can apply the write twice.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - s: The session issuing the operation
//   - op: The operation to execute
//
// Returns:
//   - Result: The store's result, also set when the context ended after success
//   - error: ErrRouterClosed, ErrNilSession, the store's error, or ctx.Err()
func (r *Router) Execute(ctx context.Context, s *Session, op Operation) (Result, error) {
	if r.closed.Load() {
		return Result{}, types.ErrRouterClosed
	}
	if s == nil {
		return Result{}, types.ErrNilSession
	}

	route := r.Route(s, op)

	ctx, span := r.tracer.Start(ctx, "causeway.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("causeway.kind", op.Kind.String()),
			attribute.String("causeway.tier", route.Tier.String()),
			attribute.String("causeway.session_id", s.ID()),
		),
	)
	defer span.End()

	if op.Kind == KindRead && route.MinWatermark.IsSentinel() {
		r.config.Metrics.IncBootstrapRead()
	}

	start := time.Now()
	result, err := r.execute(ctx, route, op)
	elapsed := time.Since(start).Seconds()

	r.recordOperation(op.Kind, route.Tier, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.config.Logger.Debug("operation failed, session not advanced",
			"sessionID", s.ID(),
			"kind", op.Kind.String(),
			"tier", route.Tier.String(),
			"error", err.Error(),
		)

		return Result{}, err
	}

	// A result delivered after the context ended does not advance the
	// session, but it is still handed back: a write may have committed.
	if ctxErr := ctx.Err(); ctxErr != nil {
		span.RecordError(ctxErr)
		span.SetStatus(codes.Error, ctxErr.Error())
		r.config.Logger.Debug("result arrived after context ended, session not advanced",
			"sessionID", s.ID(),
			"kind", op.Kind.String(),
			"watermark", result.Watermark.String(),
		)

		return result, ctxErr
	}

	span.SetAttributes(attribute.String("causeway.served_by", result.ServedBy.String()))
	r.advance(s, route, op, result)

	return result, nil
}

// Query classifies a statement and executes it within a session.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - s: The session issuing the statement
//   - statement: The statement text
//   - args: Bound values for the statement
//
// Returns:
//   - Result: The store's result
//   - error: ErrRouterClosed, ErrNilSession, or the store's error
func (r *Router) Query(ctx context.Context, s *Session, statement string, args ...any) (Result, error) {
	op := Operation{
		Kind:      r.config.Classifier.Classify(statement),
		Statement: statement,
		Args:      args,
	}

	return r.Execute(ctx, s, op)
}

// Classify returns the kind the router's classifier assigns to a statement.
func (r *Router) Classify(statement string) Kind {
	return r.config.Classifier.Classify(statement)
}

// Close marks the router as closed.
//
// The store is owned by the caller and is not closed. Close is safe to
// call multiple times.
func (r *Router) Close() {
	r.closed.Store(true)
}

// IsClosed returns whether Close has been called.
func (r *Router) IsClosed() bool {
	return r.closed.Load()
}

// execute opens a store handle bound to the route's watermark and runs op.
func (r *Router) execute(ctx context.Context, route Route, op Operation) (Result, error) {
	handle, err := r.store.OpenSession(ctx, route.MinWatermark)
	if err != nil {
		return Result{}, err
	}

	return handle.Execute(ctx, route.Tier, op)
}

// advance records the result watermark on the session.
func (r *Router) advance(s *Session, route Route, op Operation, result Result) {
	if s.Advance(result.Watermark) {
		r.config.Metrics.IncWatermarkAdvanced()
		return
	}

	if result.Watermark == route.MinWatermark || result.Watermark.IsSentinel() {
		return
	}

	r.config.Metrics.IncWatermarkStale()

	if op.Kind == KindWrite && !route.MinWatermark.IsSentinel() {
		// The primary is always current, so a write result older than the
		// session bound means the store broke its contract.
		r.config.Logger.Warn("write returned a watermark older than the session",
			"sessionID", s.ID(),
			"session", route.MinWatermark.String(),
			"result", result.Watermark.String(),
			"servedBy", result.ServedBy.String(),
		)

		return
	}

	r.config.Logger.Debug("ignored stale result watermark",
		"sessionID", s.ID(),
		"session", s.CurrentToken().String(),
		"result", result.Watermark.String(),
		"servedBy", result.ServedBy.String(),
	)
}

// recordOperation records operation metrics by kind and tier.
func (r *Router) recordOperation(kind Kind, tier Tier, seconds float64, err error) {
	if kind == KindRead {
		r.config.Metrics.IncReadTotal(tier)
		r.config.Metrics.ObserveReadDuration(tier, seconds)
		if err != nil {
			r.config.Metrics.IncReadError(tier)
		}

		return
	}

	r.config.Metrics.IncWriteTotal()
	r.config.Metrics.ObserveWriteDuration(seconds)
	if err != nil {
		r.config.Metrics.IncWriteError()
	}
}
