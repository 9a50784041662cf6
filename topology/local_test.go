package topology

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/types"
)

const (
	replicaA types.ReplicaID = "replica-a"
	replicaB types.ReplicaID = "replica-b"
	replicaC types.ReplicaID = "replica-c"
)

func receiveUpdate(t *testing.T, updates <-chan causeway.TopologyUpdate) causeway.TopologyUpdate {
	t.Helper()

	select {
	case update, ok := <-updates:
		require.True(t, ok, "updates channel closed")
		return update
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for update")
	}

	return causeway.TopologyUpdate{}
}

func TestNewLocal(t *testing.T) {
	local := NewLocal()
	require.NotNil(t, local)
	defer local.Close()

	assert.False(t, local.IsDraining(replicaA))
	assert.Empty(t, local.Draining())
}

func TestLocalSetDrain(t *testing.T) {
	local := NewLocal()
	defer local.Close()

	ctx := t.Context()
	updates := local.Watch(ctx)

	require.NoError(t, local.SetDrain(ctx, replicaA, true, "maintenance"))

	update := receiveUpdate(t, updates)
	assert.Equal(t, replicaA, update.Replica)
	assert.True(t, update.DrainMode)
	assert.False(t, update.Available)

	assert.True(t, local.IsDraining(replicaA))
	assert.False(t, local.IsDraining(replicaB))
	assert.Equal(t, "maintenance", local.GetDrainReason(replicaA))
	assert.Empty(t, local.GetDrainReason(replicaB))
}

func TestLocalClearDrain(t *testing.T) {
	local := NewLocal()
	defer local.Close()

	ctx := t.Context()
	updates := local.Watch(ctx)

	require.NoError(t, local.SetDrain(ctx, replicaB, true, "test"))
	receiveUpdate(t, updates)

	require.NoError(t, local.SetDrain(ctx, replicaB, false, ""))

	update := receiveUpdate(t, updates)
	assert.Equal(t, replicaB, update.Replica)
	assert.False(t, update.DrainMode)
	assert.True(t, update.Available)

	assert.False(t, local.IsDraining(replicaB))
	assert.Empty(t, local.GetDrainReason(replicaB))
}

func TestLocalNoUpdateOnSameState(t *testing.T) {
	local := NewLocal()
	defer local.Close()

	ctx := t.Context()
	updates := local.Watch(ctx)

	// Clearing a replica that is not draining is a no-op.
	require.NoError(t, local.SetDrain(ctx, replicaA, false, ""))
	require.NoError(t, local.SetDrain(ctx, replicaA, true, "first"))
	receiveUpdate(t, updates)

	// Draining again only refreshes the reason.
	require.NoError(t, local.SetDrain(ctx, replicaA, true, "second"))
	assert.Equal(t, "second", local.GetDrainReason(replicaA))

	select {
	case update := <-updates:
		t.Fatalf("unexpected update: %+v", update)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalManyReplicas(t *testing.T) {
	local := NewLocal()
	defer local.Close()

	ctx := t.Context()
	updates := local.Watch(ctx)

	for _, r := range []types.ReplicaID{replicaA, replicaB, replicaC} {
		require.NoError(t, local.SetDrain(ctx, r, true, "rolling restart"))
	}

	seen := make(map[types.ReplicaID]bool)
	for range 3 {
		update := receiveUpdate(t, updates)
		seen[update.Replica] = update.DrainMode
	}
	assert.Equal(t, map[types.ReplicaID]bool{replicaA: true, replicaB: true, replicaC: true}, seen)
	assert.ElementsMatch(t, []types.ReplicaID{replicaA, replicaB, replicaC}, local.Draining())
}

func TestLocalClose(t *testing.T) {
	local := NewLocal()
	updates := local.Watch(t.Context())

	require.NoError(t, local.Close())

	select {
	case _, ok := <-updates:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Close")
	}

	// SetDrain after close is a no-op
	require.NoError(t, local.SetDrain(t.Context(), replicaA, true, "late"))
	assert.False(t, local.IsDraining(replicaA))

	// Double close is safe
	require.NoError(t, local.Close())
}

func TestLocalContextCancellation(t *testing.T) {
	local := NewLocal()
	defer local.Close()

	ctx, cancel := context.WithCancel(t.Context())
	updates := local.Watch(ctx)
	cancel()

	select {
	case _, ok := <-updates:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}
}

func TestLocalMultipleWatchCalls(t *testing.T) {
	local := NewLocal()
	defer local.Close()

	first := local.Watch(t.Context())
	second := local.Watch(t.Context())
	assert.Equal(t, first, second)
}
