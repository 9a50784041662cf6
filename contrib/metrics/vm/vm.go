package vm

import (
	"fmt"
	"io"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/arloliu/causeway/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix.
//
// Default: "causeway"
//
// Parameters:
//   - prefix: The prefix to use for all metric names
//
// Returns:
//   - Option: A configuration option
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithMetricsSet sets the metrics set to use.
//
// If provided, the collector will register metrics with this set instead of
// creating a new one. The caller is responsible for exposing this set
// (e.g., via metrics.WritePrometheus or a custom handler).
//
// Parameters:
//   - set: The metrics set to use
//
// Returns:
//   - Option: A configuration option
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

// WithReplicas pre-creates the per-replica metrics of the given replicas,
// so they are exported as zero before the first event.
//
// Parameters:
//   - replicas: Replica IDs known at startup
//
// Returns:
//   - Option: A configuration option
func WithReplicas(replicas ...types.ReplicaID) Option {
	return func(c *Collector) {
		c.replicas = append(c.replicas, replicas...)
	}
}

// tierMetrics holds the read metrics of one tier.
type tierMetrics struct {
	total    *metrics.Counter
	errors   *metrics.Counter
	duration *metrics.Histogram
}

// Collector implements types.MetricsCollector using VictoriaMetrics.
//
// Metrics without a replica label are pre-created at initialization time.
// Per-replica metrics are created on first use, since the replica set is
// only known to the store. Thread-safe for concurrent use.
type Collector struct {
	set      *metrics.Set
	prefix   string
	replicas []types.ReplicaID

	// Read metrics
	readPrimary    tierMetrics
	readAny        tierMetrics
	bootstrapReads *metrics.Counter

	// Write metrics
	writeTotal    *metrics.Counter
	writeErrors   *metrics.Counter
	writeDuration *metrics.Histogram

	// Session watermark metrics
	watermarkAdvanced *metrics.Counter
	watermarkStale    *metrics.Counter

	// Propagation boundary metrics
	tokenMalformed *metrics.Counter
	tokenExported  *metrics.Counter
	tokenWithheld  *metrics.Counter

	// Store metrics
	lagFallbacks     *metrics.Counter
	lagWait          *metrics.Histogram
	commitShipFailed *metrics.Counter
}

// Compile-time assertion that Collector implements types.MetricsCollector.
var _ types.MetricsCollector = (*Collector)(nil)

// New creates a new VictoriaMetrics-based metrics collector.
//
// The collector creates its own metrics.Set and registers it globally
// unless WithMetricsSet is given.
//
// Parameters:
//   - opts: Configuration options (e.g., WithPrefix)
//
// Returns:
//   - *Collector: A new metrics collector ready for use
//
// Example:
//
//	collector := vm.New(vm.WithPrefix("orders"))
//	router, _ := causeway.NewRouter(store,
//	    causeway.WithMetrics(collector),
//	)
func New(opts ...Option) *Collector {
	c := &Collector{
		prefix: "causeway",
	}

	for _, opt := range opts {
		opt(c)
	}

	// If no set is provided, create a new one and register it globally.
	// If a set is provided, we assume the caller manages it.
	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.initMetrics()

	return c
}

// initMetrics pre-creates all metrics with the configured prefix.
func (c *Collector) initMetrics() {
	p := c.prefix

	for tier, m := range map[types.Tier]*tierMetrics{
		types.TierPrimary: &c.readPrimary,
		types.TierAny:     &c.readAny,
	} {
		m.total = c.set.NewCounter(fmt.Sprintf(`%s_read_total{tier="%s"}`, p, tier))
		m.errors = c.set.NewCounter(fmt.Sprintf(`%s_read_errors_total{tier="%s"}`, p, tier))
		m.duration = c.set.NewHistogram(fmt.Sprintf(`%s_read_duration_seconds{tier="%s"}`, p, tier))
	}
	c.bootstrapReads = c.set.NewCounter(p + "_bootstrap_reads_total")

	c.writeTotal = c.set.NewCounter(p + "_write_total")
	c.writeErrors = c.set.NewCounter(p + "_write_errors_total")
	c.writeDuration = c.set.NewHistogram(p + "_write_duration_seconds")

	c.watermarkAdvanced = c.set.NewCounter(p + "_watermark_advanced_total")
	c.watermarkStale = c.set.NewCounter(p + "_watermark_stale_total")

	c.tokenMalformed = c.set.NewCounter(p + "_token_malformed_total")
	c.tokenExported = c.set.NewCounter(p + "_token_exported_total")
	c.tokenWithheld = c.set.NewCounter(p + "_token_withheld_total")

	c.lagFallbacks = c.set.NewCounter(p + "_lag_fallback_total")
	c.lagWait = c.set.NewHistogram(p + "_lag_wait_seconds")
	c.commitShipFailed = c.set.NewCounter(p + "_commit_ship_failed_total")

	for _, r := range c.replicas {
		c.replicaCounter("replica_reads_total", r)
		c.replicaCounter("replication_applied_total", r)
		c.replicaCounter("replication_errors_total", r)
		c.replicaGauge("replication_backlog", r).Set(0)
		c.replicaGauge("replica_draining", r).Set(0)
		c.replicaGauge("circuit_breaker_state", r).Set(0)
	}
}

// replicaName builds a metric name labeled by replica.
func (c *Collector) replicaName(name string, replica types.ReplicaID) string {
	return fmt.Sprintf(`%s_%s{replica=%q}`, c.prefix, name, string(replica))
}

func (c *Collector) replicaCounter(name string, replica types.ReplicaID) *metrics.Counter {
	return c.set.GetOrCreateCounter(c.replicaName(name, replica))
}

func (c *Collector) replicaGauge(name string, replica types.ReplicaID) *metrics.Gauge {
	return c.set.GetOrCreateGauge(c.replicaName(name, replica), nil)
}

func (c *Collector) tier(tier types.Tier) *tierMetrics {
	if tier == types.TierPrimary {
		return &c.readPrimary
	}

	return &c.readAny
}

// Set returns the underlying metrics set.
func (c *Collector) Set() *metrics.Set {
	return c.set
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
//
// Example:
//
//	http.HandleFunc("/metrics", collector.Handler)
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.set.WritePrometheus(w)
}

// WritePrometheus writes all metrics in Prometheus format to the given writer.
//
// Parameters:
//   - w: The writer to write metrics to
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

// ----------------------
// Read Operations
// ----------------------

// IncReadTotal increments the total read operations counter.
func (c *Collector) IncReadTotal(tier types.Tier) {
	c.tier(tier).total.Inc()
}

// IncReadError increments the read error counter.
func (c *Collector) IncReadError(tier types.Tier) {
	c.tier(tier).errors.Inc()
}

// ObserveReadDuration records a read operation duration in seconds.
func (c *Collector) ObserveReadDuration(tier types.Tier, seconds float64) {
	c.tier(tier).duration.Update(seconds)
}

// IncBootstrapRead increments the counter of reads issued without a bound.
func (c *Collector) IncBootstrapRead() {
	c.bootstrapReads.Inc()
}

// ----------------------
// Write Operations
// ----------------------

// IncWriteTotal increments the total write operations counter.
func (c *Collector) IncWriteTotal() {
	c.writeTotal.Inc()
}

// IncWriteError increments the write error counter.
func (c *Collector) IncWriteError() {
	c.writeErrors.Inc()
}

// ObserveWriteDuration records a write operation duration in seconds.
func (c *Collector) ObserveWriteDuration(seconds float64) {
	c.writeDuration.Update(seconds)
}

// ----------------------
// Session Watermarks
// ----------------------

// IncWatermarkAdvanced increments the counter when a session watermark moves forward.
func (c *Collector) IncWatermarkAdvanced() {
	c.watermarkAdvanced.Inc()
}

// IncWatermarkStale increments the counter when a stale result watermark is ignored.
func (c *Collector) IncWatermarkStale() {
	c.watermarkStale.Inc()
}

// ----------------------
// Propagation Boundary
// ----------------------

// IncTokenMalformed increments the counter of unparseable inbound tokens.
func (c *Collector) IncTokenMalformed() {
	c.tokenMalformed.Inc()
}

// IncTokenExported increments the counter of outbound tokens.
func (c *Collector) IncTokenExported() {
	c.tokenExported.Inc()
}

// IncTokenWithheld increments the counter of outbound tokens held back.
func (c *Collector) IncTokenWithheld() {
	c.tokenWithheld.Inc()
}

// ----------------------
// Store
// ----------------------

// IncReplicaRead increments the counter of reads served by a replica.
func (c *Collector) IncReplicaRead(replica types.ReplicaID) {
	c.replicaCounter("replica_reads_total", replica).Inc()
}

// IncLagFallback increments the counter of reads that fell back to the primary.
func (c *Collector) IncLagFallback() {
	c.lagFallbacks.Inc()
}

// ObserveLagWait records how long a read waited for an eligible replica.
func (c *Collector) ObserveLagWait(seconds float64) {
	c.lagWait.Update(seconds)
}

// ----------------------
// Replication
// ----------------------

// IncReplicationApplied increments the counter of commits applied on a replica.
func (c *Collector) IncReplicationApplied(replica types.ReplicaID) {
	c.replicaCounter("replication_applied_total", replica).Inc()
}

// IncReplicationError increments the counter of failed applies on a replica.
func (c *Collector) IncReplicationError(replica types.ReplicaID) {
	c.replicaCounter("replication_errors_total", replica).Inc()
}

// ObserveReplicationDuration records a commit apply duration in seconds.
func (c *Collector) ObserveReplicationDuration(replica types.ReplicaID, seconds float64) {
	c.set.GetOrCreateHistogram(c.replicaName("replication_duration_seconds", replica)).Update(seconds)
}

// SetReplicationBacklog sets the number of commits a replica has not applied.
func (c *Collector) SetReplicationBacklog(replica types.ReplicaID, depth int) {
	c.replicaGauge("replication_backlog", replica).Set(float64(depth))
}

// IncCommitShipFailed increments the counter of commits that could not be shipped.
func (c *Collector) IncCommitShipFailed() {
	c.commitShipFailed.Inc()
}

// ----------------------
// Replica Health
// ----------------------

// SetReplicaDraining sets the drain status gauge for a replica.
func (c *Collector) SetReplicaDraining(replica types.ReplicaID, draining bool) {
	val := 0.0
	if draining {
		val = 1
	}
	c.replicaGauge("replica_draining", replica).Set(val)
}

// IncDrainModeEntered increments the counter when a replica enters drain mode.
func (c *Collector) IncDrainModeEntered(replica types.ReplicaID) {
	c.replicaCounter("drain_mode_entered_total", replica).Inc()
}

// IncDrainModeExited increments the counter when a replica exits drain mode.
func (c *Collector) IncDrainModeExited(replica types.ReplicaID) {
	c.replicaCounter("drain_mode_exited_total", replica).Inc()
}

// IncCircuitBreakerTrip increments the counter when a replica's circuit opens.
func (c *Collector) IncCircuitBreakerTrip(replica types.ReplicaID) {
	c.replicaCounter("circuit_breaker_trips_total", replica).Inc()
}

// SetCircuitBreakerState sets the circuit state gauge for a replica.
func (c *Collector) SetCircuitBreakerState(replica types.ReplicaID, state int) {
	c.replicaGauge("circuit_breaker_state", replica).Set(float64(state))
}
