package propagation

import (
	"net/http"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/internal/logging"
	"github.com/arloliu/causeway/internal/metrics"
	"github.com/arloliu/causeway/policy"
	"github.com/arloliu/causeway/types"
)

// DefaultKey is the carrier key of the session token.
const DefaultKey = "x-session-token"

// BoundaryConfig holds configuration for a Boundary.
type BoundaryConfig struct {
	// Key is the carrier key holding the token.
	//
	// Default: "x-session-token"
	Key string

	// Ordering validates inbound tokens.
	//
	// Default: policy.NewSequenceOrdering()
	Ordering causeway.Ordering

	Logger  types.Logger
	Metrics types.MetricsCollector
}

// DefaultBoundaryConfig returns a BoundaryConfig with sensible defaults.
func DefaultBoundaryConfig() BoundaryConfig {
	return BoundaryConfig{
		Key:      DefaultKey,
		Ordering: policy.NewSequenceOrdering(),
		Logger:   logging.NewNopLogger(),
		Metrics:  metrics.NewNopMetrics(),
	}
}

// Option configures a Boundary.
type Option func(*BoundaryConfig)

// WithKey sets the carrier key of the session token.
//
// HTTP header carriers canonicalize the key, so "x-session-token" and
// "X-Session-Token" address the same header.
//
// Parameters:
//   - key: The header or map key
//
// Returns:
//   - Option: Configuration option
func WithKey(key string) Option {
	return func(c *BoundaryConfig) {
		if key != "" {
			c.Key = key
		}
	}
}

// WithOrdering sets the ordering used to validate inbound tokens.
//
// Use the same ordering as the Router.
func WithOrdering(ordering causeway.Ordering) Option {
	return func(c *BoundaryConfig) {
		if ordering != nil {
			c.Ordering = ordering
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(c *BoundaryConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *BoundaryConfig) {
		if collector != nil {
			c.Metrics = collector
		}
	}
}

// MiddlewareConfig holds configuration for Middleware.
type MiddlewareConfig struct {
	// Success decides whether a response status may carry the outbound token.
	//
	// Default: status == 200
	Success func(status int) bool
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*MiddlewareConfig)

// WithSuccessFunc sets the test deciding which responses export the token.
//
// Example:
//
//	propagation.WithSuccessFunc(func(status int) bool {
//	    return status >= 200 && status < 300
//	})
func WithSuccessFunc(fn func(status int) bool) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		if fn != nil {
			c.Success = fn
		}
	}
}

func statusOK(status int) bool {
	return status == http.StatusOK
}
