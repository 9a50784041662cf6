package types

import (
	"fmt"
	"strconv"
)

// Watermark is an opaque, totally ordered token representing the state of
// the database as of some commit.
//
// Watermarks are produced by the store. Routers only compare and forward
// them; the ordering is supplied by an Ordering implementation.
type Watermark string

// String returns the string representation of the Watermark.
func (w Watermark) String() string {
	return string(w)
}

const (
	// Unconditional means "no lower bound": any replica state is acceptable.
	// Sessions without an inbound token start here.
	Unconditional Watermark = "first-unconditional"

	// FirstPrimary means "no lower bound, but serve the first read from the
	// primary". After the first successful operation the session holds a
	// concrete watermark.
	FirstPrimary Watermark = "first-primary"
)

// IsSentinel reports whether w is one of the bound-free sentinels.
func (w Watermark) IsSentinel() bool {
	return w == Unconditional || w == FirstPrimary
}

// sequenceWidth is the number of hex digits in a sequence watermark.
const sequenceWidth = 16

// SequenceWatermark encodes a commit sequence number as a watermark.
//
// The encoding is fixed-width lower-case hex, so lexical order agrees with
// numeric order.
//
// Parameters:
//   - seq: The commit sequence number
//
// Returns:
//   - Watermark: The encoded token, e.g. "000000000000002a" for 42
func SequenceWatermark(seq uint64) Watermark {
	return Watermark(fmt.Sprintf("%0*x", sequenceWidth, seq))
}

// ParseSequence decodes a watermark produced by SequenceWatermark.
//
// Parameters:
//   - w: The token to decode
//
// Returns:
//   - uint64: The commit sequence number
//   - error: ErrInvalidWatermark if w is not a sequence watermark
func ParseSequence(w Watermark) (uint64, error) {
	if len(w) != sequenceWidth {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWatermark, string(w))
	}
	for i := 0; i < len(w); i++ {
		c := w[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWatermark, string(w))
		}
	}

	seq, err := strconv.ParseUint(string(w), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWatermark, string(w))
	}

	return seq, nil
}
