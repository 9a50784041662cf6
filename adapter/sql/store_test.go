package sql_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/causeway"
	sqlstore "github.com/arloliu/causeway/adapter/sql"
	"github.com/arloliu/causeway/policy"
	"github.com/arloliu/causeway/replicate"
	"github.com/arloliu/causeway/test/testutil"
	"github.com/arloliu/causeway/topology"
	"github.com/arloliu/causeway/types"
)

const ordersSchema = "CREATE TABLE IF NOT EXISTS orders (id INTEGER PRIMARY KEY, item TEXT NOT NULL)"

// cluster is a primary with replicas, each a separate SQLite database.
type cluster struct {
	primary  *sql.DB
	replicas map[types.ReplicaID]*sql.DB
	ids      []types.ReplicaID
}

func newCluster(t *testing.T, replicas ...types.ReplicaID) *cluster {
	t.Helper()

	c := &cluster{
		primary:  testutil.OpenSQLite(t, "primary"),
		replicas: make(map[types.ReplicaID]*sql.DB, len(replicas)),
		ids:      replicas,
	}
	for _, id := range replicas {
		c.replicas[id] = testutil.OpenSQLite(t, string(id))
	}

	return c
}

func (c *cluster) open(t *testing.T, opts ...sqlstore.Option) *sqlstore.Store {
	t.Helper()

	replicas := make([]sqlstore.Replica, 0, len(c.ids))
	for _, id := range c.ids {
		replicas = append(replicas, sqlstore.Replica{ID: id, DB: sqlstore.WrapDB(c.replicas[id])})
	}

	store, err := sqlstore.New(t.Context(), sqlstore.WrapDB(c.primary), replicas, opts...)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(t.Context(), ordersSchema))

	return store
}

func execute(t *testing.T, store causeway.Store, w types.Watermark, tier types.Tier, op types.Operation) (types.Result, error) {
	t.Helper()

	h, err := store.OpenSession(t.Context(), w)
	require.NoError(t, err)

	return h.Execute(t.Context(), tier, op)
}

func insertOrder(t *testing.T, store causeway.Store, id int64, item string) types.Result {
	t.Helper()

	result, err := execute(t, store, types.Unconditional, types.TierPrimary,
		types.Write("INSERT INTO orders (id, item) VALUES (?, ?)", id, item))
	require.NoError(t, err)

	return result
}

func orderEntry(seq uint64, id int64, item string) types.CommitEntry {
	return types.CommitEntry{
		Seq:         seq,
		Statement:   "INSERT INTO orders (id, item) VALUES (?, ?)",
		Args:        []any{id, item},
		CommittedAt: time.Now().UnixMicro(),
	}
}

var listOrders = types.Read("SELECT id, item FROM orders ORDER BY id")

func TestNewValidation(t *testing.T) {
	c := newCluster(t, "r1")
	primary := sqlstore.WrapDB(c.primary)
	replica := sqlstore.WrapDB(c.replicas["r1"])

	_, err := sqlstore.New(t.Context(), nil, nil)
	require.ErrorIs(t, err, types.ErrNoPrimary)

	tests := []struct {
		name     string
		replicas []sqlstore.Replica
		want     string
	}{
		{name: "nil connection", replicas: []sqlstore.Replica{{ID: "r1"}}, want: "nil connection"},
		{name: "empty id", replicas: []sqlstore.Replica{{DB: replica}}, want: "invalid replica id"},
		{name: "primary id", replicas: []sqlstore.Replica{{ID: types.PrimaryID, DB: replica}}, want: "invalid replica id"},
		{name: "duplicate", replicas: []sqlstore.Replica{{ID: "r1", DB: replica}, {ID: "r1", DB: replica}}, want: "duplicate replica id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sqlstore.New(t.Context(), primary, tt.replicas)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStoreWriteAdvancesSequence(t *testing.T) {
	store := newCluster(t, "r1").open(t)

	first := insertOrder(t, store, 1, "widget")
	assert.Equal(t, types.SequenceWatermark(1), first.Watermark)
	assert.Equal(t, types.PrimaryID, first.ServedBy)
	assert.Equal(t, int64(1), first.RowsAffected)
	assert.Equal(t, int64(1), first.LastInsertID)

	second := insertOrder(t, store, 2, "gadget")
	assert.Equal(t, types.SequenceWatermark(2), second.Watermark)

	seq, ok := store.Applied(types.PrimaryID)
	require.True(t, ok)
	assert.Equal(t, uint64(2), seq)

	seq, ok = store.Applied("r1")
	require.True(t, ok)
	assert.Equal(t, uint64(0), seq)

	_, ok = store.Applied("unknown")
	assert.False(t, ok)
}

func TestStoreFailedWriteDoesNotAdvance(t *testing.T) {
	store := newCluster(t, "r1").open(t)

	insertOrder(t, store, 1, "widget")

	_, err := execute(t, store, types.Unconditional, types.TierPrimary,
		types.Write("INSERT INTO orders (id, item) VALUES (?, ?)", 1, "duplicate key"))
	var replicaErr *types.ReplicaError
	require.ErrorAs(t, err, &replicaErr)
	assert.Equal(t, types.PrimaryID, replicaErr.Replica)

	assert.Equal(t, types.SequenceWatermark(2), insertOrder(t, store, 2, "gadget").Watermark)
}

func TestStoreReadsFromReplicaAtBound(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	store := newCluster(t, "r1").open(t, sqlstore.WithMetrics(collector))

	w := insertOrder(t, store, 1, "widget").Watermark
	require.NoError(t, store.Apply(t.Context(), "r1", orderEntry(1, 1, "widget")))

	result, err := execute(t, store, w, types.TierAny, listOrders)
	require.NoError(t, err)

	assert.Equal(t, types.ReplicaID("r1"), result.ServedBy)
	assert.Equal(t, w, result.Watermark)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "widget", result.Rows[0]["item"])
	assert.Equal(t, int64(1), collector.GetReplicaReads("r1"))
	assert.Equal(t, int64(0), collector.GetLagFallbacks())
}

func TestStoreUnconditionalReadAcceptsStaleReplica(t *testing.T) {
	store := newCluster(t, "r1").open(t)

	insertOrder(t, store, 1, "widget")

	result, err := execute(t, store, types.Unconditional, types.TierAny, listOrders)
	require.NoError(t, err)

	assert.Equal(t, types.ReplicaID("r1"), result.ServedBy)
	assert.Equal(t, types.SequenceWatermark(0), result.Watermark)
	assert.Empty(t, result.Rows)
}

func TestStoreLagFallsBackToPrimary(t *testing.T) {
	tests := []struct {
		name      string
		watermark func(types.Result) types.Watermark
	}{
		{name: "replica behind", watermark: func(r types.Result) types.Watermark { return r.Watermark }},
		{name: "invalid bound", watermark: func(types.Result) types.Watermark { return "not-a-watermark" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := testutil.NewTestMetricsCollector()
			store := newCluster(t, "r1", "r2").open(t, sqlstore.WithMetrics(collector))

			written := insertOrder(t, store, 1, "widget")

			result, err := execute(t, store, tt.watermark(written), types.TierAny, listOrders)
			require.NoError(t, err)

			assert.Equal(t, types.PrimaryID, result.ServedBy)
			assert.Equal(t, written.Watermark, result.Watermark)
			assert.Len(t, result.Rows, 1)
			assert.Equal(t, int64(1), collector.GetLagFallbacks())
		})
	}
}

func TestStorePrimaryTierRead(t *testing.T) {
	store := newCluster(t, "r1").open(t)
	insertOrder(t, store, 1, "widget")

	result, err := execute(t, store, types.FirstPrimary, types.TierPrimary, listOrders)
	require.NoError(t, err)
	assert.Equal(t, types.PrimaryID, result.ServedBy)
	assert.Equal(t, types.SequenceWatermark(1), result.Watermark)
}

func TestStoreLagPolicyWait(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	store := newCluster(t, "r1").open(t,
		sqlstore.WithLagPolicy(sqlstore.LagPolicyWait),
		sqlstore.WithMaxWait(5*time.Second),
		sqlstore.WithPollInterval(5*time.Millisecond),
		sqlstore.WithMetrics(collector),
	)

	w := insertOrder(t, store, 1, "widget").Watermark

	go func() {
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, store.Apply(context.Background(), "r1", orderEntry(1, 1, "widget")))
	}()

	result, err := execute(t, store, w, types.TierAny, listOrders)
	require.NoError(t, err)
	assert.Equal(t, types.ReplicaID("r1"), result.ServedBy)
	assert.Len(t, result.Rows, 1)
	assert.Equal(t, int64(0), collector.GetLagFallbacks())
}

func TestStoreLagPolicyWaitTimesOut(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	store := newCluster(t, "r1").open(t,
		sqlstore.WithLagPolicy(sqlstore.LagPolicyWait),
		sqlstore.WithMaxWait(30*time.Millisecond),
		sqlstore.WithPollInterval(5*time.Millisecond),
		sqlstore.WithMetrics(collector),
	)

	w := insertOrder(t, store, 1, "widget").Watermark

	start := time.Now()
	result, err := execute(t, store, w, types.TierAny, listOrders)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, types.PrimaryID, result.ServedBy)
	assert.Equal(t, int64(1), collector.GetLagFallbacks())
}

func TestStoreLagPolicyWaitCancelled(t *testing.T) {
	store := newCluster(t, "r1").open(t,
		sqlstore.WithLagPolicy(sqlstore.LagPolicyWait),
		sqlstore.WithMaxWait(10*time.Second),
	)

	w := insertOrder(t, store, 1, "widget").Watermark

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	h, err := store.OpenSession(ctx, w)
	require.NoError(t, err)
	_, err = h.Execute(ctx, types.TierAny, listOrders)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreApply(t *testing.T) {
	store := newCluster(t, "r1").open(t)
	ctx := t.Context()

	require.NoError(t, store.Apply(ctx, "r1", orderEntry(1, 1, "widget")))

	// Redelivery is skipped.
	require.NoError(t, store.Apply(ctx, "r1", orderEntry(1, 1, "widget")))

	err := store.Apply(ctx, "r1", orderEntry(3, 3, "gizmo"))
	require.ErrorIs(t, err, types.ErrCommitGap)

	var replicaErr *types.ReplicaError
	require.ErrorAs(t, err, &replicaErr)
	assert.Equal(t, types.ReplicaID("r1"), replicaErr.Replica)
	assert.Equal(t, "apply", replicaErr.Operation)

	seq, _ := store.Applied("r1")
	assert.Equal(t, uint64(1), seq)

	require.Error(t, store.Apply(ctx, "unknown", orderEntry(2, 2, "gadget")))
	require.Error(t, store.Apply(ctx, types.PrimaryID, orderEntry(2, 2, "gadget")))
}

func TestStoreReloadsSequence(t *testing.T) {
	c := newCluster(t, "r1")

	store := c.open(t, sqlstore.WithCommitTable("commit_seq"))
	insertOrder(t, store, 1, "widget")
	insertOrder(t, store, 2, "gadget")
	require.NoError(t, store.Apply(t.Context(), "r1", orderEntry(1, 1, "widget")))
	store.Close()

	reopened := c.open(t, sqlstore.WithCommitTable("commit_seq"))
	seq, _ := reopened.Applied("r1")
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, types.SequenceWatermark(3), insertOrder(t, reopened, 3, "gizmo").Watermark)
}

func TestStoreClosed(t *testing.T) {
	store := newCluster(t, "r1").open(t)

	h, err := store.OpenSession(t.Context(), types.Unconditional)
	require.NoError(t, err)

	store.Close()
	store.Close()

	_, err = store.OpenSession(t.Context(), types.Unconditional)
	require.ErrorIs(t, err, types.ErrStoreClosed)

	_, err = h.Execute(t.Context(), types.TierAny, listOrders)
	require.ErrorIs(t, err, types.ErrStoreClosed)
}

func TestStoreDrainViaTopology(t *testing.T) {
	local := topology.NewLocal()
	defer local.Close()

	collector := testutil.NewTestMetricsCollector()
	store := newCluster(t, "r1", "r2").open(t,
		sqlstore.WithTopologyWatcher(local),
		sqlstore.WithMetrics(collector),
	)
	ctx := t.Context()

	require.NoError(t, local.SetDrain(ctx, "r1", true, "maintenance"))
	require.Eventually(t, func() bool { return store.IsDraining("r1") }, time.Second, 5*time.Millisecond)
	assert.True(t, collector.IsDraining("r1"))

	for range 3 {
		result, err := execute(t, store, types.Unconditional, types.TierAny, listOrders)
		require.NoError(t, err)
		assert.Equal(t, types.ReplicaID("r2"), result.ServedBy)
	}

	require.NoError(t, local.SetDrain(ctx, "r1", false, ""))
	require.Eventually(t, func() bool { return !store.IsDraining("r1") }, time.Second, 5*time.Millisecond)
	assert.False(t, collector.IsDraining("r1"))
}

func TestStoreCircuitBreakerExcludesFailingReplica(t *testing.T) {
	c := newCluster(t, "r1")
	collector := testutil.NewTestMetricsCollector()
	breaker := policy.NewCircuitBreaker(
		policy.WithThreshold(2),
		policy.WithResetTimeout(time.Minute),
		policy.WithCircuitBreakerMetrics(collector),
	)
	store := c.open(t, sqlstore.WithCircuitBreaker(breaker), sqlstore.WithMetrics(collector))

	// The audit table exists only on the primary, so replica reads fail.
	_, err := c.primary.ExecContext(t.Context(), "CREATE TABLE audit (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	readAudit := types.Read("SELECT id FROM audit")

	for range 2 {
		_, err := execute(t, store, types.Unconditional, types.TierAny, readAudit)
		var replicaErr *types.ReplicaError
		require.ErrorAs(t, err, &replicaErr)
		assert.Equal(t, types.ReplicaID("r1"), replicaErr.Replica)
	}
	assert.Equal(t, int64(1), collector.GetCircuitBreakerTrips("r1"))

	result, err := execute(t, store, types.Unconditional, types.TierAny, readAudit)
	require.NoError(t, err)
	assert.Equal(t, types.PrimaryID, result.ServedBy)
	assert.Equal(t, int64(1), collector.GetLagFallbacks())
}

func TestStoreShipFailureKeepsWrite(t *testing.T) {
	log := replicate.NewMemoryLog()
	log.Close()

	collector := testutil.NewTestMetricsCollector()
	store := newCluster(t, "r1").open(t, sqlstore.WithCommitLog(log), sqlstore.WithMetrics(collector))

	result := insertOrder(t, store, 1, "widget")
	assert.Equal(t, types.SequenceWatermark(1), result.Watermark)
	assert.Equal(t, int64(1), collector.GetCommitShipFailed())
}

func TestStoreReplicatesThroughMemoryWorker(t *testing.T) {
	log := replicate.NewMemoryLog()
	defer log.Close()

	store := newCluster(t, "r1", "r2").open(t, sqlstore.WithCommitLog(log))

	worker := replicate.NewMemoryWorker(log, store.Apply, store.Replicas(),
		replicate.WithPollInterval(5*time.Millisecond),
	)
	require.NoError(t, worker.Start())
	defer worker.Stop()

	router, err := causeway.NewRouter(store)
	require.NoError(t, err)

	session := router.NewSession("")
	for i := range 5 {
		_, err := router.Query(t.Context(), session, "INSERT INTO orders (id, item) VALUES (?, ?)", i+1, fmt.Sprintf("item-%d", i+1))
		require.NoError(t, err)
	}
	assert.Equal(t, types.SequenceWatermark(5), session.CurrentToken())

	require.Eventually(t, func() bool {
		a, _ := store.Applied("r1")
		b, _ := store.Applied("r2")
		return a == 5 && b == 5
	}, 3*time.Second, 5*time.Millisecond)

	result, err := router.Query(t.Context(), session, "SELECT id, item FROM orders ORDER BY id")
	require.NoError(t, err)
	assert.NotEqual(t, types.PrimaryID, result.ServedBy)
	assert.Len(t, result.Rows, 5)
	assert.Equal(t, types.SequenceWatermark(5), session.CurrentToken())
}

func TestStoreReadAfterWriteUnderLag(t *testing.T) {
	log := replicate.NewMemoryLog()
	defer log.Close()

	store := newCluster(t, "r1").open(t, sqlstore.WithCommitLog(log))

	// Replication lags every commit by a full second.
	worker := replicate.NewMemoryWorker(log, store.Apply, store.Replicas(),
		replicate.WithApplyDelay(time.Second),
	)
	require.NoError(t, worker.Start())
	defer worker.Stop()

	router, err := causeway.NewRouter(store)
	require.NoError(t, err)
	session := router.NewSession("")

	_, err = router.Query(t.Context(), session, "INSERT INTO orders (id, item) VALUES (?, ?)", 1, "widget")
	require.NoError(t, err)

	result, err := router.Query(t.Context(), session, "SELECT id, item FROM orders")
	require.NoError(t, err)
	assert.Equal(t, types.PrimaryID, result.ServedBy)
	require.Len(t, result.Rows, 1)

	// A fresh session may read the stale replica.
	fresh := router.NewSession("")
	stale, err := router.Query(t.Context(), fresh, "SELECT id, item FROM orders")
	require.NoError(t, err)
	assert.Equal(t, types.ReplicaID("r1"), stale.ServedBy)
	assert.Empty(t, stale.Rows)
}
