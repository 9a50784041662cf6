package propagation

import (
	otelprop "go.opentelemetry.io/otel/propagation"

	"github.com/arloliu/causeway"
)

// Carrier is the storage medium of the session token, such as HTTP headers.
//
// Use otelprop.HeaderCarrier for http.Header and otelprop.MapCarrier for
// plain maps.
type Carrier = otelprop.TextMapCarrier

// Boundary converts session tokens between carriers and watermarks.
//
// Import never fails: a missing token starts an unconditional session and
// a malformed one is logged, counted and treated as missing.
type Boundary struct {
	config BoundaryConfig
}

// NewBoundary creates a Boundary.
//
// Parameters:
//   - opts: Configuration options
//
// Returns:
//   - *Boundary: A new boundary
func NewBoundary(opts ...Option) *Boundary {
	config := DefaultBoundaryConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Boundary{config: config}
}

// Key returns the carrier key of the session token.
func (b *Boundary) Key() string {
	return b.config.Key
}

// Ordering returns the ordering used to validate inbound tokens.
func (b *Boundary) Ordering() causeway.Ordering {
	return b.config.Ordering
}

// Import reads the session token from a carrier.
//
// Parameters:
//   - carrier: The inbound carrier
//
// Returns:
//   - causeway.Watermark: The token, or Unconditional if it is missing or malformed
func (b *Boundary) Import(carrier Carrier) causeway.Watermark {
	if carrier == nil {
		return causeway.Unconditional
	}

	raw := carrier.Get(b.config.Key)
	if raw == "" {
		return causeway.Unconditional
	}

	w := causeway.Watermark(raw)
	if !b.config.Ordering.Valid(w) {
		b.config.Metrics.IncTokenMalformed()
		b.config.Logger.Debug("ignoring malformed session token",
			"key", b.config.Key,
			"token", raw,
		)

		return causeway.Unconditional
	}

	return w
}

// Export writes the session token to a carrier.
//
// Parameters:
//   - carrier: The outbound carrier
//   - w: The token to write
func (b *Boundary) Export(carrier Carrier, w causeway.Watermark) {
	if carrier == nil || w == "" {
		return
	}

	carrier.Set(b.config.Key, w.String())
}
