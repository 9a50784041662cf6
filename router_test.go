package causeway_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/test/testutil"
	"github.com/arloliu/causeway/types"
)

func newRouter(t *testing.T, store causeway.Store, opts ...causeway.Option) *causeway.Router {
	t.Helper()

	router, err := causeway.NewRouter(store, opts...)
	require.NoError(t, err)
	t.Cleanup(router.Close)

	return router
}

func TestNewRouterNilStore(t *testing.T) {
	_, err := causeway.NewRouter(nil)
	require.ErrorIs(t, err, types.ErrNilStore)
}

func TestRouterRoute(t *testing.T) {
	router := newRouter(t, testutil.NewFakeStore())
	bound := types.SequenceWatermark(4)

	tests := []struct {
		name    string
		session causeway.Watermark
		op      causeway.Operation
		want    causeway.Route
	}{
		{
			name:    "write",
			session: bound,
			op:      types.Write("UPDATE orders SET qty = 1"),
			want:    causeway.Route{Tier: causeway.TierPrimary, MinWatermark: bound},
		},
		{
			name:    "bounded read",
			session: bound,
			op:      types.Read("SELECT 1"),
			want:    causeway.Route{Tier: causeway.TierAny, MinWatermark: bound},
		},
		{
			name:    "unconditional read",
			session: causeway.Unconditional,
			op:      types.Read("SELECT 1"),
			want:    causeway.Route{Tier: causeway.TierAny, MinWatermark: causeway.Unconditional},
		},
		{
			name:    "first primary read",
			session: causeway.FirstPrimary,
			op:      types.Read("SELECT 1"),
			want:    causeway.Route{Tier: causeway.TierPrimary, MinWatermark: causeway.FirstPrimary},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, router.Route(router.NewSession(tt.session), tt.op))
		})
	}
}

func TestRouterRouteNilSession(t *testing.T) {
	router := newRouter(t, testutil.NewFakeStore())

	assert.Equal(t,
		causeway.Route{Tier: causeway.TierAny, MinWatermark: causeway.Unconditional},
		router.Route(nil, types.Read("SELECT 1")))
	assert.Equal(t,
		causeway.Route{Tier: causeway.TierPrimary, MinWatermark: causeway.Unconditional},
		router.Route(nil, types.Write("DELETE FROM orders")))
}

func TestRouterConcurrentSessions(t *testing.T) {
	store := testutil.NewFakeStore("r1", "r2")
	router := newRouter(t, store)

	const (
		sessions = 16
		rounds   = 25
	)

	// Replicas catch up in the background, so reads land on both tiers.
	done := make(chan struct{})
	var replication sync.WaitGroup
	replication.Go(func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
				store.CatchUp()
			}
		}
	})

	var wg sync.WaitGroup
	for range sessions {
		wg.Go(func() {
			ctx := t.Context()
			session := router.NewSession("")
			var last uint64

			for range rounds {
				written, err := router.Query(ctx, session, "INSERT INTO orders (id) VALUES (?)", 1)
				if !assert.NoError(t, err) {
					return
				}
				writeSeq, err := types.ParseSequence(written.Watermark)
				if !assert.NoError(t, err) {
					return
				}
				assert.Greater(t, writeSeq, last, "writes advance the session")

				read, err := router.Query(ctx, session, "SELECT * FROM orders")
				if !assert.NoError(t, err) {
					return
				}
				readSeq, err := types.ParseSequence(read.Watermark)
				if !assert.NoError(t, err) {
					return
				}
				assert.GreaterOrEqual(t, readSeq, writeSeq, "read observes the session's own write")

				current, err := types.ParseSequence(session.CurrentToken())
				if !assert.NoError(t, err) {
					return
				}
				assert.GreaterOrEqual(t, current, readSeq)
				last = current
			}
		})
	}
	wg.Wait()
	close(done)
	replication.Wait()

	assert.Equal(t, uint64(sessions*rounds), store.Seq())
}

func TestRouterWritePinning(t *testing.T) {
	store := testutil.NewFakeStore("r1", "r2")
	store.CatchUp()
	router := newRouter(t, store)
	session := router.NewSession("")

	for i := range 3 {
		result, err := router.Query(t.Context(), session, "INSERT INTO orders (id) VALUES (?)", i)
		require.NoError(t, err)
		assert.Equal(t, types.PrimaryID, result.ServedBy)
	}

	for _, call := range store.Calls() {
		assert.Equal(t, causeway.TierPrimary, call.Tier)
	}
	assert.Equal(t, types.SequenceWatermark(3), session.CurrentToken())
}

func TestRouterReadAfterWrite(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	store := testutil.NewFakeStore("r1")
	router := newRouter(t, store, causeway.WithMetrics(collector))
	session := router.NewSession("")

	written, err := router.Query(t.Context(), session, "INSERT INTO orders (id) VALUES (1)")
	require.NoError(t, err)
	assert.Equal(t, written.Watermark, session.CurrentToken())

	// The replica has not applied the write, so only the primary qualifies.
	result, err := router.Query(t.Context(), session, "SELECT * FROM orders")
	require.NoError(t, err)
	assert.Equal(t, types.PrimaryID, result.ServedBy)

	call, _ := store.LastCall()
	assert.Equal(t, written.Watermark, call.Watermark)
	assert.Equal(t, causeway.TierAny, call.Tier)

	store.CatchUp()
	result, err = router.Query(t.Context(), session, "SELECT * FROM orders")
	require.NoError(t, err)
	assert.Equal(t, types.ReplicaID("r1"), result.ServedBy)
	assert.Equal(t, written.Watermark, session.CurrentToken())
	assert.Equal(t, int64(2), collector.GetReadTotal(causeway.TierAny))
	assert.Equal(t, int64(1), collector.GetWriteTotal())
}

func TestRouterUnconditionalBootstrap(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	store := testutil.NewFakeStore("r1")
	router := newRouter(t, store, causeway.WithMetrics(collector))

	writer := router.NewSession("")
	for range 3 {
		_, err := router.Query(t.Context(), writer, "INSERT INTO orders (id) VALUES (1)")
		require.NoError(t, err)
	}

	// A fresh session accepts the replica's oldest state.
	fresh := router.NewSession("")
	result, err := router.Query(t.Context(), fresh, "SELECT * FROM orders")
	require.NoError(t, err)

	assert.Equal(t, types.ReplicaID("r1"), result.ServedBy)
	assert.Equal(t, types.SequenceWatermark(0), fresh.CurrentToken())
	assert.Equal(t, int64(1), collector.GetBootstrapReads())
}

func TestRouterFirstPrimary(t *testing.T) {
	store := testutil.NewFakeStore("r1")
	store.CatchUp()
	router := newRouter(t, store)
	session := router.NewSession(causeway.FirstPrimary)

	first, err := router.Query(t.Context(), session, "SELECT * FROM orders")
	require.NoError(t, err)
	assert.Equal(t, types.PrimaryID, first.ServedBy)

	second, err := router.Query(t.Context(), session, "SELECT * FROM orders")
	require.NoError(t, err)
	assert.Equal(t, types.ReplicaID("r1"), second.ServedBy)
}

func TestRouterMonotonicity(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	store := testutil.NewFakeStore()
	router := newRouter(t, store, causeway.WithMetrics(collector))

	// A misbehaving store reports older state than the session holds.
	store.OnExecute = func(_ context.Context, _ types.Watermark, _ types.Tier, _ types.Operation) (types.Result, error) {
		return types.Result{Watermark: types.SequenceWatermark(2), ServedBy: "r1"}, nil
	}

	session := router.NewSession(types.SequenceWatermark(7))
	for _, stmt := range []string{"SELECT 1", "INSERT INTO t VALUES (1)"} {
		_, err := router.Query(t.Context(), session, stmt)
		require.NoError(t, err)
		assert.Equal(t, types.SequenceWatermark(7), session.CurrentToken())
	}
	assert.Equal(t, int64(2), collector.GetWatermarkStale())
	assert.Equal(t, int64(0), collector.GetWatermarkAdvanced())
}

func TestRouterFailureIsolation(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	store := testutil.NewFakeStore("r1")
	router := newRouter(t, store, causeway.WithMetrics(collector))
	session := router.NewSession(types.SequenceWatermark(0))

	storeErr := &types.ReplicaError{Replica: "r1", Operation: "read", Cause: errors.New("connection reset")}
	store.FailNext(storeErr)
	store.FailNext(storeErr)

	_, err := router.Query(t.Context(), session, "SELECT * FROM orders")
	require.Error(t, err)
	assert.Same(t, storeErr, err, "store errors are returned unchanged")
	assert.Equal(t, types.SequenceWatermark(0), session.CurrentToken())

	_, err = router.Query(t.Context(), session, "INSERT INTO orders (id) VALUES (1)")
	require.ErrorIs(t, err, storeErr)
	assert.Equal(t, types.SequenceWatermark(0), session.CurrentToken())
	assert.Equal(t, uint64(0), store.Seq())

	assert.Equal(t, int64(1), collector.GetReadErrors(causeway.TierAny))
	assert.Equal(t, int64(1), collector.GetWriteErrors())

	// The next operation retries from the same watermark.
	_, err = router.Query(t.Context(), session, "INSERT INTO orders (id) VALUES (1)")
	require.NoError(t, err)
	assert.Equal(t, types.SequenceWatermark(1), session.CurrentToken())
}

func TestRouterCancellation(t *testing.T) {
	t.Run("before execution", func(t *testing.T) {
		store := testutil.NewFakeStore("r1")
		router := newRouter(t, store)
		session := router.NewSession("")

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := router.Query(ctx, session, "INSERT INTO orders (id) VALUES (1)")
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, causeway.Unconditional, session.CurrentToken())
		assert.Equal(t, uint64(0), store.Seq())
	})

	t.Run("result after deadline", func(t *testing.T) {
		store := testutil.NewFakeStore()
		router := newRouter(t, store)
		session := router.NewSession("")

		ctx, cancel := context.WithCancel(t.Context())
		store.OnExecute = func(context.Context, types.Watermark, types.Tier, types.Operation) (types.Result, error) {
			cancel()
			return types.Result{
				Watermark:    types.SequenceWatermark(1),
				ServedBy:     types.PrimaryID,
				RowsAffected: 1,
			}, nil
		}

		// The committed result comes back with the error so the caller can
		// tell the write landed.
		result, err := router.Query(ctx, session, "INSERT INTO orders (id) VALUES (1)")
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, types.SequenceWatermark(1), result.Watermark)
		assert.Equal(t, int64(1), result.RowsAffected)
		assert.Equal(t, causeway.Unconditional, session.CurrentToken())
	})
}

func TestRouterClosedAndNilSession(t *testing.T) {
	router := newRouter(t, testutil.NewFakeStore())

	_, err := router.Execute(t.Context(), nil, types.Read("SELECT 1"))
	require.ErrorIs(t, err, types.ErrNilSession)

	router.Close()
	router.Close()
	assert.True(t, router.IsClosed())

	_, err = router.Query(t.Context(), router.NewSession(""), "SELECT 1")
	require.ErrorIs(t, err, types.ErrRouterClosed)
}

func TestRouterClassification(t *testing.T) {
	store := testutil.NewFakeStore("r1")
	router := newRouter(t, store)

	tests := []struct {
		statement string
		kind      causeway.Kind
		tier      causeway.Tier
	}{
		{statement: "SELECT * FROM orders", kind: causeway.KindRead, tier: causeway.TierAny},
		{statement: "INSERT INTO orders (id) VALUES (1)", kind: causeway.KindWrite, tier: causeway.TierPrimary},
		{statement: "CALL refresh_totals()", kind: causeway.KindWrite, tier: causeway.TierPrimary},
	}

	for _, tt := range tests {
		t.Run(tt.statement, func(t *testing.T) {
			assert.Equal(t, tt.kind, router.Classify(tt.statement))

			_, err := router.Query(t.Context(), router.NewSession(""), tt.statement)
			require.NoError(t, err)

			call, ok := store.LastCall()
			require.True(t, ok)
			assert.Equal(t, tt.tier, call.Tier)
			assert.Equal(t, tt.kind, call.Operation.Kind)
		})
	}
}

func TestRouterCustomClassifier(t *testing.T) {
	store := testutil.NewFakeStore("r1")
	router := newRouter(t, store, causeway.WithClassifier(causeway.ClassifierFunc(func(string) causeway.Kind {
		return causeway.KindWrite
	})))

	_, err := router.Query(t.Context(), router.NewSession(""), "SELECT 1")
	require.NoError(t, err)

	call, _ := store.LastCall()
	assert.Equal(t, causeway.TierPrimary, call.Tier)
}

func TestRouterSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	store := testutil.NewFakeStore("r1")
	router := newRouter(t, store, causeway.WithTracerProvider(tp))
	session := router.NewSession("")

	_, err := router.Query(t.Context(), session, "SELECT 1")
	require.NoError(t, err)

	store.FailNext(errors.New("boom"))
	_, err = router.Query(t.Context(), session, "INSERT INTO t VALUES (1)")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	read := spans[0]
	assert.Equal(t, "causeway.execute", read.Name())
	assert.Contains(t, read.Attributes(), attribute.String("causeway.kind", "read"))
	assert.Contains(t, read.Attributes(), attribute.String("causeway.tier", "any"))
	assert.Contains(t, read.Attributes(), attribute.String("causeway.session_id", session.ID()))
	assert.Contains(t, read.Attributes(), attribute.String("causeway.served_by", "r1"))

	write := spans[1]
	assert.Contains(t, write.Attributes(), attribute.String("causeway.tier", "primary"))
	assert.Equal(t, codes.Error, write.Status().Code)
}

// TestOrdersScenario follows one client across two requests of an orders
// service: list, then insert and count.
func TestOrdersScenario(t *testing.T) {
	store := testutil.NewFakeStore("lagging", "current")
	router := newRouter(t, store)

	// Existing orders, replicated everywhere.
	seed := router.NewSession("")
	_, err := router.Query(t.Context(), seed, "INSERT INTO orders (customer, item, qty) VALUES (?, ?, ?)", "X", "Y", 1)
	require.NoError(t, err)
	store.CatchUp()

	// Request 1: no token.
	first := router.NewSession("")
	listed, err := router.Query(t.Context(), first, "SELECT * FROM orders")
	require.NoError(t, err)
	t1 := first.CurrentToken()
	assert.Equal(t, listed.Watermark, t1)
	assert.False(t, t1.IsSentinel())

	// Request 2 imports T1 and writes.
	second := router.NewSession(t1)
	_, err = router.Query(t.Context(), second, "INSERT INTO orders (customer, item, qty) VALUES (?, ?, ?)", "A", "B", 10)
	require.NoError(t, err)
	t2 := second.CurrentToken()
	assert.Equal(t, 1, router.Ordering().Compare(t2, t1))

	// Only "current" has applied T2.
	store.SetApplied("current", store.Seq())

	counted, err := router.Query(t.Context(), second, "SELECT COUNT(*) FROM orders")
	require.NoError(t, err)
	assert.Equal(t, types.ReplicaID("current"), counted.ServedBy)
	assert.GreaterOrEqual(t, router.Ordering().Compare(counted.Watermark, t2), 0)
	assert.Equal(t, t2, second.CurrentToken())
}
