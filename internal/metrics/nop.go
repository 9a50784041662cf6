// Package metrics provides internal metrics utilities for causeway.
package metrics

import "github.com/arloliu/causeway/types"

// NopMetrics is a no-op metrics collector that discards all metrics.
//
// This is used as the default metrics collector when no collector is configured,
// avoiding nil checks throughout the codebase.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements types.MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNopMetrics creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A collector that discards all metrics
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// ----------------------
// Read Operations
// ----------------------

// IncReadTotal discards the metric.
func (m *NopMetrics) IncReadTotal(_ types.Tier) {}

// IncReadError discards the metric.
func (m *NopMetrics) IncReadError(_ types.Tier) {}

// ObserveReadDuration discards the metric.
func (m *NopMetrics) ObserveReadDuration(_ types.Tier, _ float64) {}

// IncBootstrapRead discards the metric.
func (m *NopMetrics) IncBootstrapRead() {}

// ----------------------
// Write Operations
// ----------------------

// IncWriteTotal discards the metric.
func (m *NopMetrics) IncWriteTotal() {}

// IncWriteError discards the metric.
func (m *NopMetrics) IncWriteError() {}

// ObserveWriteDuration discards the metric.
func (m *NopMetrics) ObserveWriteDuration(_ float64) {}

// ----------------------
// Session Watermarks
// ----------------------

// IncWatermarkAdvanced discards the metric.
func (m *NopMetrics) IncWatermarkAdvanced() {}

// IncWatermarkStale discards the metric.
func (m *NopMetrics) IncWatermarkStale() {}

// ----------------------
// Propagation Boundary
// ----------------------

// IncTokenMalformed discards the metric.
func (m *NopMetrics) IncTokenMalformed() {}

// IncTokenExported discards the metric.
func (m *NopMetrics) IncTokenExported() {}

// IncTokenWithheld discards the metric.
func (m *NopMetrics) IncTokenWithheld() {}

// ----------------------
// Store
// ----------------------

// IncReplicaRead discards the metric.
func (m *NopMetrics) IncReplicaRead(_ types.ReplicaID) {}

// IncLagFallback discards the metric.
func (m *NopMetrics) IncLagFallback() {}

// ObserveLagWait discards the metric.
func (m *NopMetrics) ObserveLagWait(_ float64) {}

// ----------------------
// Replication
// ----------------------

// IncReplicationApplied discards the metric.
func (m *NopMetrics) IncReplicationApplied(_ types.ReplicaID) {}

// IncReplicationError discards the metric.
func (m *NopMetrics) IncReplicationError(_ types.ReplicaID) {}

// ObserveReplicationDuration discards the metric.
func (m *NopMetrics) ObserveReplicationDuration(_ types.ReplicaID, _ float64) {}

// SetReplicationBacklog discards the metric.
func (m *NopMetrics) SetReplicationBacklog(_ types.ReplicaID, _ int) {}

// IncCommitShipFailed discards the metric.
func (m *NopMetrics) IncCommitShipFailed() {}

// ----------------------
// Replica Health
// ----------------------

// SetReplicaDraining discards the metric.
func (m *NopMetrics) SetReplicaDraining(_ types.ReplicaID, _ bool) {}

// IncDrainModeEntered discards the metric.
func (m *NopMetrics) IncDrainModeEntered(_ types.ReplicaID) {}

// IncDrainModeExited discards the metric.
func (m *NopMetrics) IncDrainModeExited(_ types.ReplicaID) {}

// IncCircuitBreakerTrip discards the metric.
func (m *NopMetrics) IncCircuitBreakerTrip(_ types.ReplicaID) {}

// SetCircuitBreakerState discards the metric.
func (m *NopMetrics) SetCircuitBreakerState(_ types.ReplicaID, _ int) {}
