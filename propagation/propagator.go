package propagation

import (
	"context"

	otelprop "go.opentelemetry.io/otel/propagation"

	"github.com/arloliu/causeway"
)

// tokenKey is the context key of an extracted token.
type tokenKey struct{}

// ContextWithToken returns a copy of ctx carrying a session token.
func ContextWithToken(ctx context.Context, w causeway.Watermark) context.Context {
	return context.WithValue(ctx, tokenKey{}, w)
}

// TokenFromContext returns the token stored by Propagator.Extract or ContextWithToken.
//
// Parameters:
//   - ctx: The context to inspect
//
// Returns:
//   - causeway.Watermark: The token
//   - bool: true if a token was found
func TokenFromContext(ctx context.Context) (causeway.Watermark, bool) {
	w, ok := ctx.Value(tokenKey{}).(causeway.Watermark)

	return w, ok && w != ""
}

// Propagator is an OpenTelemetry TextMapPropagator for session tokens.
//
// Combined with other propagators through otelprop.NewCompositeTextMapPropagator,
// it lets outgoing calls carry the caller's session next to its trace context.
type Propagator struct {
	boundary *Boundary
}

var _ otelprop.TextMapPropagator = (*Propagator)(nil)

// NewPropagator creates a Propagator over a boundary.
// A nil boundary uses NewBoundary().
func NewPropagator(boundary *Boundary) *Propagator {
	if boundary == nil {
		boundary = NewBoundary()
	}

	return &Propagator{boundary: boundary}
}

// Inject writes the current token of the session in ctx to the carrier.
//
// Without a session, a token stored by Extract is forwarded. Without
// either, nothing is written.
func (p *Propagator) Inject(ctx context.Context, carrier otelprop.TextMapCarrier) {
	if s, ok := causeway.SessionFromContext(ctx); ok {
		p.boundary.Export(carrier, s.CurrentToken())
		return
	}

	if w, ok := TokenFromContext(ctx); ok {
		p.boundary.Export(carrier, w)
	}
}

// Extract imports the carrier's token into the returned context.
//
// A nil carrier or one without a token returns ctx unchanged.
func (p *Propagator) Extract(ctx context.Context, carrier otelprop.TextMapCarrier) context.Context {
	if carrier == nil || carrier.Get(p.boundary.Key()) == "" {
		return ctx
	}

	return ContextWithToken(ctx, p.boundary.Import(carrier))
}

// Fields returns the carrier keys the propagator reads and writes.
func (p *Propagator) Fields() []string {
	return []string{p.boundary.Key()}
}
