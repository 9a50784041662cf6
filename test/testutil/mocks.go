package testutil

import (
	"context"
	"sync"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/types"
)

// FakeCall records one operation a FakeStore executed.
type FakeCall struct {
	// Watermark is the bound the handle was opened with.
	Watermark types.Watermark
	Tier      types.Tier
	Operation types.Operation
	ServedBy  types.ReplicaID
}

// FakeStore is an in-memory causeway.Store that simulates a primary with
// lagging replicas.
//
// Writes bump the primary's commit sequence. Replicas only apply commits
// when told to via SetApplied or CatchUp, so tests control replication lag
// exactly. A read served by a replica returns that replica's applied state.
type FakeStore struct {
	mu       sync.Mutex
	seq      uint64
	applied  map[types.ReplicaID]uint64
	order    []types.ReplicaID
	calls    []FakeCall
	failures []error

	// OnExecute, if set, replaces the store's behavior entirely.
	OnExecute func(ctx context.Context, watermark types.Watermark, tier types.Tier, op types.Operation) (types.Result, error)
}

// Compile-time assertion that FakeStore implements causeway.Store.
var _ causeway.Store = (*FakeStore)(nil)

// NewFakeStore creates a fake store with the given replicas, all empty.
func NewFakeStore(replicas ...types.ReplicaID) *FakeStore {
	applied := make(map[types.ReplicaID]uint64, len(replicas))
	for _, r := range replicas {
		applied[r] = 0
	}

	return &FakeStore{
		applied: applied,
		order:   append([]types.ReplicaID(nil), replicas...),
	}
}

// OpenSession opens a handle bounded by watermark.
func (f *FakeStore) OpenSession(ctx context.Context, watermark types.Watermark) (causeway.StoreHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &fakeHandle{store: f, watermark: watermark}, nil
}

// FailNext makes the next executed operation fail with err.
// Calls queue up; each failure is consumed by one operation.
func (f *FakeStore) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
}

// Seq returns the primary's commit sequence.
func (f *FakeStore) Seq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// SetApplied sets the commit sequence a replica has applied.
func (f *FakeStore) SetApplied(replica types.ReplicaID, seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied[replica] = seq
}

// CatchUp brings every replica up to the primary.
func (f *FakeStore) CatchUp() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for r := range f.applied {
		f.applied[r] = f.seq
	}
}

// Calls returns the operations executed so far.
func (f *FakeStore) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// LastCall returns the most recent executed operation.
func (f *FakeStore) LastCall() (FakeCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return FakeCall{}, false
	}
	return f.calls[len(f.calls)-1], true
}

type fakeHandle struct {
	store     *FakeStore
	watermark types.Watermark
}

func (h *fakeHandle) Execute(ctx context.Context, tier types.Tier, op types.Operation) (types.Result, error) {
	f := h.store
	if f.OnExecute != nil {
		return f.OnExecute(ctx, h.watermark, tier, op)
	}

	if err := ctx.Err(); err != nil {
		return types.Result{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	call := FakeCall{Watermark: h.watermark, Tier: tier, Operation: op}

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		f.calls = append(f.calls, call)

		return types.Result{}, err
	}

	served, seq := types.PrimaryID, f.seq
	switch {
	case op.Kind == types.KindWrite:
		f.seq++
		seq = f.seq
	case tier == types.TierAny:
		bound, err := types.ParseSequence(h.watermark)
		if err != nil && !h.watermark.IsSentinel() {
			break
		}
		for _, r := range f.order {
			if f.applied[r] >= bound {
				served, seq = r, f.applied[r]
				break
			}
		}
	}

	call.ServedBy = served
	f.calls = append(f.calls, call)

	result := types.Result{
		Watermark: types.SequenceWatermark(seq),
		ServedBy:  served,
	}
	if op.Kind == types.KindWrite {
		result.RowsAffected = 1
	}

	return result, nil
}
