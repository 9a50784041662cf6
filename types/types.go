// Package types provides shared types and errors for the causeway library.
//
// This is a "leaf" package with no imports from other causeway packages,
// allowing it to be imported by any package without causing import cycles.
package types

import (
	"errors"
	"strconv"
)

// Kind classifies an operation as a read or a write.
//
// The zero value is KindWrite so that an operation whose kind was never
// determined is routed to the primary.
type Kind uint8

const (
	// KindWrite marks a statement that may mutate persistent state.
	KindWrite Kind = iota
	// KindRead marks a statement that only retrieves rows.
	KindRead
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Tier identifies the replica tier an operation is routed to.
type Tier uint8

const (
	// TierPrimary targets the authoritative replica. The primary is always current.
	TierPrimary Tier = iota
	// TierAny targets any replica, the primary included, whose applied
	// state is at least the route's minimum watermark.
	TierAny
)

// String returns the string representation of the Tier.
func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierAny:
		return "any"
	default:
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
}

// Operation is a single statement issued within a session.
//
// Operations are immutable once issued.
type Operation struct {
	// Kind is the read/write classification of the statement.
	Kind Kind

	// Statement is the query text.
	Statement string

	// Args are the bound values for the statement.
	Args []any
}

// Read builds a read operation.
func Read(statement string, args ...any) Operation {
	return Operation{Kind: KindRead, Statement: statement, Args: args}
}

// Write builds a write operation.
func Write(statement string, args ...any) Operation {
	return Operation{Kind: KindWrite, Statement: statement, Args: args}
}

// Route is the routing decision for one operation.
type Route struct {
	// Tier is the replica tier that must serve the operation.
	Tier Tier

	// MinWatermark is the lower bound on the applied state of the serving
	// replica. Unconditional and FirstPrimary impose no bound.
	MinWatermark Watermark
}

// Row is a single result row keyed by column name.
type Row map[string]any

// Result is the outcome of an operation executed by a store.
type Result struct {
	// Rows holds the rows returned by a read. Empty for writes.
	Rows []Row

	// RowsAffected is the number of rows changed by a write.
	RowsAffected int64

	// LastInsertID is the driver-reported id of the last inserted row, if any.
	LastInsertID int64

	// Watermark is the commit state the serving replica had applied when it
	// executed the operation.
	Watermark Watermark

	// ServedBy names the replica that executed the operation.
	ServedBy ReplicaID
}

// ReplicaID identifies a replica of the store.
type ReplicaID string

// String returns the string representation of the ReplicaID.
func (r ReplicaID) String() string {
	return string(r)
}

// PrimaryID is the conventional id of the primary replica.
const PrimaryID ReplicaID = "primary"

// CommitEntry is one write committed on the primary, in the form shipped
// to replicas.
type CommitEntry struct {
	// Seq is the commit sequence number. Entries are applied in Seq order.
	Seq uint64

	// Statement is the write statement as executed on the primary.
	Statement string

	// Args are the bound values of the statement.
	Args []any

	// CommittedAt is the commit time in Unix microseconds.
	CommittedAt int64
}

// Watermark returns the sequence watermark of the entry.
func (e CommitEntry) Watermark() Watermark {
	return SequenceWatermark(e.Seq)
}

// Sentinel errors for common failure scenarios.
var (
	// ErrNilStore indicates that a nil store was provided to the router.
	ErrNilStore = errors.New("causeway: store cannot be nil")

	// ErrNilSession indicates that a nil session was passed to the router.
	ErrNilSession = errors.New("causeway: session cannot be nil")

	// ErrRouterClosed indicates an operation was attempted on a closed router.
	ErrRouterClosed = errors.New("causeway: router is closed")

	// ErrStoreClosed indicates an operation was attempted on a closed store.
	ErrStoreClosed = errors.New("causeway: store is closed")

	// ErrNoPrimary indicates that a store was configured without a primary.
	ErrNoPrimary = errors.New("causeway: primary cannot be nil")

	// ErrCommitLogFull indicates the in-memory commit log is at capacity.
	ErrCommitLogFull = errors.New("causeway: commit log is full")

	// ErrCommitGap indicates a replica received a commit that does not
	// directly follow its applied sequence.
	ErrCommitGap = errors.New("causeway: commit sequence gap")

	// ErrLogClosed indicates an operation was attempted on a closed commit log.
	ErrLogClosed = errors.New("causeway: commit log is closed")

	// ErrWorkerAlreadyRunning indicates Start was called on a running worker.
	ErrWorkerAlreadyRunning = errors.New("causeway: worker already running")

	// ErrInvalidWatermark indicates a token could not be parsed as a watermark.
	ErrInvalidWatermark = errors.New("causeway: invalid watermark")
)

// ReplicaError wraps an error from a specific replica.
type ReplicaError struct {
	// Replica identifies which replica the error came from.
	Replica ReplicaID

	// Operation describes what operation failed.
	Operation string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ReplicaError) Error() string {
	return "causeway: replica " + string(e.Replica) + " " + e.Operation + " failed: " + e.Cause.Error()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ReplicaError) Unwrap() error {
	return e.Cause
}

// CommitError reports a write that committed on the primary but could not
// be handed to the commit log.
//
// This error is NOT returned to the caller: the write is durable on the
// primary and its watermark is valid. It is used for logging only.
type CommitError struct {
	// Watermark is the commit that could not be shipped.
	Watermark Watermark

	// Cause is the underlying error from the commit log.
	Cause error
}

// Error implements the error interface.
func (e *CommitError) Error() string {
	return "causeway: commit " + string(e.Watermark) + " not shipped: " + e.Cause.Error()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CommitError) Unwrap() error {
	return e.Cause
}
