package causeway

import "github.com/arloliu/causeway/types"

// Type aliases for convenience - re-export from types package.
type (
	Watermark        = types.Watermark
	Kind             = types.Kind
	Tier             = types.Tier
	Operation        = types.Operation
	Route            = types.Route
	Result           = types.Result
	Row              = types.Row
	CommitEntry      = types.CommitEntry
	ReplicaID        = types.ReplicaID
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
)

// Re-export watermark sentinels for convenience.
const (
	Unconditional = types.Unconditional
	FirstPrimary  = types.FirstPrimary
)

// Re-export kind constants for convenience.
const (
	KindRead  = types.KindRead
	KindWrite = types.KindWrite
)

// Re-export tier constants for convenience.
const (
	TierPrimary = types.TierPrimary
	TierAny     = types.TierAny
)
