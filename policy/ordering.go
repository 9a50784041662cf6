package policy

import (
	"cmp"

	"github.com/arloliu/causeway/types"
)

// SequenceOrdering orders watermarks produced by types.SequenceWatermark.
//
// Sentinels compare older than every concrete watermark and equal to each
// other. A token that is neither a sentinel nor a sequence watermark is
// invalid; Compare treats it like a sentinel so it can never win.
type SequenceOrdering struct{}

// NewSequenceOrdering creates a new SequenceOrdering.
//
// Returns:
//   - *SequenceOrdering: The default watermark ordering
func NewSequenceOrdering() *SequenceOrdering {
	return &SequenceOrdering{}
}

// Compare returns -1, 0 or +1 as a is older than, equal to, or newer than b.
//
// Parameters:
//   - a: First watermark
//   - b: Second watermark
//
// Returns:
//   - int: Comparison result
func (SequenceOrdering) Compare(a, b types.Watermark) int {
	seqA, okA := sequenceOf(a)
	seqB, okB := sequenceOf(b)

	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	default:
		return cmp.Compare(seqA, seqB)
	}
}

// Valid reports whether w is a sentinel or a sequence watermark.
//
// Parameters:
//   - w: The token to check
//
// Returns:
//   - bool: true if w can be used as a session watermark
func (SequenceOrdering) Valid(w types.Watermark) bool {
	if w.IsSentinel() {
		return true
	}
	_, err := types.ParseSequence(w)

	return err == nil
}

func sequenceOf(w types.Watermark) (uint64, bool) {
	if w.IsSentinel() {
		return 0, false
	}
	seq, err := types.ParseSequence(w)
	if err != nil {
		return 0, false
	}

	return seq, true
}
