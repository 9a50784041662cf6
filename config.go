package causeway

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/arloliu/causeway/internal/logging"
	"github.com/arloliu/causeway/internal/metrics"
	"github.com/arloliu/causeway/policy"
	"github.com/arloliu/causeway/types"
)

// instrumentationName is the OpenTelemetry instrumentation scope of the router.
const instrumentationName = "github.com/arloliu/causeway"

// RouterConfig holds configuration for a Router.
type RouterConfig struct {
	Classifier     Classifier
	Ordering       Ordering
	Metrics        MetricsCollector
	Logger         types.Logger
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a RouterConfig with sensible defaults.
//
// Defaults:
//   - Classifier: policy.NewSQLClassifier() (conservative SQL keyword classifier)
//   - Ordering: policy.NewSequenceOrdering() (tokens from types.SequenceWatermark)
//   - Metrics, Logger: no-op
//   - TracerProvider: the global OpenTelemetry provider
//
// Returns:
//   - *RouterConfig: Configuration with default settings
func DefaultConfig() *RouterConfig {
	return &RouterConfig{
		Classifier:     policy.NewSQLClassifier(),
		Ordering:       policy.NewSequenceOrdering(),
		Metrics:        metrics.NewNopMetrics(),
		Logger:         logging.NewNopLogger(),
		TracerProvider: otel.GetTracerProvider(),
	}
}

// Option configures a RouterConfig.
type Option func(*RouterConfig)

// WithClassifier sets the statement classifier used by Router.Query.
//
// Parameters:
//   - classifier: The classifier to use
//
// Returns:
//   - Option: Configuration option
func WithClassifier(classifier Classifier) Option {
	return func(c *RouterConfig) {
		c.Classifier = classifier
	}
}

// WithOrdering sets the watermark ordering.
//
// The ordering must match the tokens produced by the store.
//
// Parameters:
//   - ordering: The ordering to use
//
// Returns:
//   - Option: Configuration option
func WithOrdering(ordering Ordering) Option {
	return func(c *RouterConfig) {
		c.Ordering = ordering
	}
}

// WithMetrics sets the metrics collector.
//
// If not set, a no-op collector is used that discards all metrics.
// Use contrib/metrics/vm.New() for VictoriaMetrics integration.
//
// Parameters:
//   - collector: The metrics collector implementation
//
// Returns:
//   - Option: Configuration option
func WithMetrics(collector MetricsCollector) Option {
	return func(c *RouterConfig) {
		c.Metrics = collector
	}
}

// WithLogger sets the structured logger.
//
// If not set, a no-op logger is used that discards all messages.
//
// Parameters:
//   - logger: The logger implementation
//
// Returns:
//   - Option: Configuration option
//
// Example:
//
//	router, _ := causeway.NewRouter(store,
//	    causeway.WithLogger(slogadapter.New(slog.Default())),
//	)
func WithLogger(logger types.Logger) Option {
	return func(c *RouterConfig) {
		c.Logger = logger
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for operation spans.
//
// Parameters:
//   - tp: The tracer provider
//
// Returns:
//   - Option: Configuration option
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *RouterConfig) {
		c.TracerProvider = tp
	}
}

// normalize replaces nil fields with defaults.
func (c *RouterConfig) normalize() {
	if c.Classifier == nil {
		c.Classifier = policy.NewSQLClassifier()
	}
	if c.Ordering == nil {
		c.Ordering = policy.NewSequenceOrdering()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNopMetrics()
	}
	if c.Logger == nil {
		c.Logger = logging.NewNopLogger()
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
}
