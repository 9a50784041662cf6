// Package types provides shared types and error definitions for the causeway library.
//
// This is a leaf package with zero causeway imports to prevent import cycles.
// All packages in causeway can safely import this package.
//
// # Watermarks
//
// A Watermark is an opaque token naming a commit state of the store. Two
// sentinels carry no lower bound:
//
//	const (
//	    Unconditional Watermark = "first-unconditional"
//	    FirstPrimary  Watermark = "first-primary"
//	)
//
// Stores built on a commit sequence can use SequenceWatermark and
// ParseSequence to encode tokens that sort correctly as strings.
//
// # Operations and Routes
//
// An Operation is a statement plus its bound arguments and its Kind
// (KindRead or KindWrite). A Route names the Tier that must serve it:
//
//	const (
//	    TierPrimary Tier = iota // writes, and first reads of FirstPrimary sessions
//	    TierAny                 // reads: any replica at or past the session watermark
//	)
//
// # Errors
//
// Sentinel errors are provided for common failure scenarios:
//
//   - ErrNilStore: A nil store was passed to the router
//   - ErrNilSession: A nil session was passed to the router
//   - ErrRouterClosed: Operation attempted on a closed router
//   - ErrStoreClosed: Operation attempted on a closed store
//   - ErrCommitLogFull: The in-memory commit log has reached capacity
//   - ErrCommitGap: A replica saw a commit out of sequence
//   - ErrInvalidWatermark: A token is not a valid watermark
package types
