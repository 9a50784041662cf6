package testutil

import (
	"sync"

	"github.com/arloliu/causeway/types"
)

// TestMetricsCollector is a test implementation of types.MetricsCollector
// that tracks method calls for assertion in tests.
type TestMetricsCollector struct {
	mu sync.RWMutex

	// Reads
	ReadTotal      map[types.Tier]int64
	ReadErrors     map[types.Tier]int64
	ReadDuration   map[types.Tier][]float64
	BootstrapReads int64

	// Writes
	WriteTotal    int64
	WriteErrors   int64
	WriteDuration []float64

	// Session watermarks
	WatermarkAdvanced int64
	WatermarkStale    int64

	// Propagation boundary
	TokenMalformed int64
	TokenExported  int64
	TokenWithheld  int64

	// Store
	ReplicaReads map[types.ReplicaID]int64
	LagFallbacks int64
	LagWaits     []float64

	// Replication
	ReplicationApplied  map[types.ReplicaID]int64
	ReplicationErrors   map[types.ReplicaID]int64
	ReplicationDuration map[types.ReplicaID][]float64
	ReplicationBacklog  map[types.ReplicaID]int
	CommitShipFailed    int64

	// Replica health
	ReplicaDraining     map[types.ReplicaID]bool
	DrainModeEntered    map[types.ReplicaID]int64
	DrainModeExited     map[types.ReplicaID]int64
	CircuitBreakerTrips map[types.ReplicaID]int64
	CircuitBreakerState map[types.ReplicaID]int
}

// Compile-time assertion that TestMetricsCollector implements types.MetricsCollector.
var _ types.MetricsCollector = (*TestMetricsCollector)(nil)

// NewTestMetricsCollector creates a new test metrics collector.
func NewTestMetricsCollector() *TestMetricsCollector {
	m := &TestMetricsCollector{}
	m.Reset()

	return m
}

// ----------------------
// Read Operations
// ----------------------

func (m *TestMetricsCollector) IncReadTotal(tier types.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadTotal[tier]++
}

func (m *TestMetricsCollector) IncReadError(tier types.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadErrors[tier]++
}

func (m *TestMetricsCollector) ObserveReadDuration(tier types.Tier, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadDuration[tier] = append(m.ReadDuration[tier], seconds)
}

func (m *TestMetricsCollector) IncBootstrapRead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BootstrapReads++
}

// ----------------------
// Write Operations
// ----------------------

func (m *TestMetricsCollector) IncWriteTotal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteTotal++
}

func (m *TestMetricsCollector) IncWriteError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteErrors++
}

func (m *TestMetricsCollector) ObserveWriteDuration(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteDuration = append(m.WriteDuration, seconds)
}

// ----------------------
// Session Watermarks
// ----------------------

func (m *TestMetricsCollector) IncWatermarkAdvanced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WatermarkAdvanced++
}

func (m *TestMetricsCollector) IncWatermarkStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WatermarkStale++
}

// ----------------------
// Propagation Boundary
// ----------------------

func (m *TestMetricsCollector) IncTokenMalformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokenMalformed++
}

func (m *TestMetricsCollector) IncTokenExported() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokenExported++
}

func (m *TestMetricsCollector) IncTokenWithheld() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokenWithheld++
}

// ----------------------
// Store
// ----------------------

func (m *TestMetricsCollector) IncReplicaRead(replica types.ReplicaID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicaReads[replica]++
}

func (m *TestMetricsCollector) IncLagFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LagFallbacks++
}

func (m *TestMetricsCollector) ObserveLagWait(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LagWaits = append(m.LagWaits, seconds)
}

// ----------------------
// Replication
// ----------------------

func (m *TestMetricsCollector) IncReplicationApplied(replica types.ReplicaID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicationApplied[replica]++
}

func (m *TestMetricsCollector) IncReplicationError(replica types.ReplicaID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicationErrors[replica]++
}

func (m *TestMetricsCollector) ObserveReplicationDuration(replica types.ReplicaID, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicationDuration[replica] = append(m.ReplicationDuration[replica], seconds)
}

func (m *TestMetricsCollector) SetReplicationBacklog(replica types.ReplicaID, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicationBacklog[replica] = depth
}

func (m *TestMetricsCollector) IncCommitShipFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitShipFailed++
}

// ----------------------
// Replica Health
// ----------------------

func (m *TestMetricsCollector) SetReplicaDraining(replica types.ReplicaID, draining bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicaDraining[replica] = draining
}

func (m *TestMetricsCollector) IncDrainModeEntered(replica types.ReplicaID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DrainModeEntered[replica]++
}

func (m *TestMetricsCollector) IncDrainModeExited(replica types.ReplicaID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DrainModeExited[replica]++
}

func (m *TestMetricsCollector) IncCircuitBreakerTrip(replica types.ReplicaID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CircuitBreakerTrips[replica]++
}

func (m *TestMetricsCollector) SetCircuitBreakerState(replica types.ReplicaID, state int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CircuitBreakerState[replica] = state
}

// ----------------------
// Test Helpers
// ----------------------

// GetReadTotal returns the read count for a tier.
func (m *TestMetricsCollector) GetReadTotal(tier types.Tier) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ReadTotal[tier]
}

// GetReadErrors returns the read error count for a tier.
func (m *TestMetricsCollector) GetReadErrors(tier types.Tier) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ReadErrors[tier]
}

// GetWriteTotal returns the write count.
func (m *TestMetricsCollector) GetWriteTotal() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.WriteTotal
}

// GetWriteErrors returns the write error count.
func (m *TestMetricsCollector) GetWriteErrors() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.WriteErrors
}

// GetWatermarkAdvanced returns how often a session watermark moved forward.
func (m *TestMetricsCollector) GetWatermarkAdvanced() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.WatermarkAdvanced
}

// GetWatermarkStale returns how often a stale result watermark was ignored.
func (m *TestMetricsCollector) GetWatermarkStale() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.WatermarkStale
}

// GetBootstrapReads returns the number of reads issued without a bound.
func (m *TestMetricsCollector) GetBootstrapReads() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.BootstrapReads
}

// GetTokenCounts returns the malformed, exported and withheld token counts.
func (m *TestMetricsCollector) GetTokenCounts() (malformed, exported, withheld int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenMalformed, m.TokenExported, m.TokenWithheld
}

// GetReplicaReads returns the number of reads a replica served.
func (m *TestMetricsCollector) GetReplicaReads(replica types.ReplicaID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ReplicaReads[replica]
}

// GetLagFallbacks returns the number of reads that fell back to the primary.
func (m *TestMetricsCollector) GetLagFallbacks() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LagFallbacks
}

// GetReplicationApplied returns the number of commits applied on a replica.
func (m *TestMetricsCollector) GetReplicationApplied(replica types.ReplicaID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ReplicationApplied[replica]
}

// GetReplicationErrors returns the number of failed applies on a replica.
func (m *TestMetricsCollector) GetReplicationErrors(replica types.ReplicaID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ReplicationErrors[replica]
}

// GetCommitShipFailed returns the number of commits that could not be shipped.
func (m *TestMetricsCollector) GetCommitShipFailed() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CommitShipFailed
}

// GetCircuitBreakerTrips returns the number of times a replica's circuit opened.
func (m *TestMetricsCollector) GetCircuitBreakerTrips(replica types.ReplicaID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CircuitBreakerTrips[replica]
}

// IsDraining returns the last reported drain state of a replica.
func (m *TestMetricsCollector) IsDraining(replica types.ReplicaID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ReplicaDraining[replica]
}

// Reset clears all collected metrics.
func (m *TestMetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadTotal = make(map[types.Tier]int64)
	m.ReadErrors = make(map[types.Tier]int64)
	m.ReadDuration = make(map[types.Tier][]float64)
	m.BootstrapReads = 0
	m.WriteTotal = 0
	m.WriteErrors = 0
	m.WriteDuration = nil
	m.WatermarkAdvanced = 0
	m.WatermarkStale = 0
	m.TokenMalformed = 0
	m.TokenExported = 0
	m.TokenWithheld = 0
	m.ReplicaReads = make(map[types.ReplicaID]int64)
	m.LagFallbacks = 0
	m.LagWaits = nil
	m.ReplicationApplied = make(map[types.ReplicaID]int64)
	m.ReplicationErrors = make(map[types.ReplicaID]int64)
	m.ReplicationDuration = make(map[types.ReplicaID][]float64)
	m.ReplicationBacklog = make(map[types.ReplicaID]int)
	m.CommitShipFailed = 0
	m.ReplicaDraining = make(map[types.ReplicaID]bool)
	m.DrainModeEntered = make(map[types.ReplicaID]int64)
	m.DrainModeExited = make(map[types.ReplicaID]int64)
	m.CircuitBreakerTrips = make(map[types.ReplicaID]int64)
	m.CircuitBreakerState = make(map[types.ReplicaID]int)
}
