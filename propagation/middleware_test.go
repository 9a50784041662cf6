package propagation_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/propagation"
	"github.com/arloliu/causeway/test/testutil"
	"github.com/arloliu/causeway/types"
)

type fixture struct {
	store     *testutil.FakeStore
	router    *causeway.Router
	boundary  *propagation.Boundary
	collector *testutil.TestMetricsCollector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	collector := testutil.NewTestMetricsCollector()
	store := testutil.NewFakeStore("replica-1")
	router, err := causeway.NewRouter(store, causeway.WithMetrics(collector))
	require.NoError(t, err)

	return &fixture{
		store:     store,
		router:    router,
		boundary:  propagation.NewBoundary(propagation.WithMetrics(collector)),
		collector: collector,
	}
}

// writeHandler inserts one row and answers with status.
func (f *fixture) writeHandler(t *testing.T, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		session, ok := causeway.SessionFromContext(req.Context())
		if !assert.True(t, ok) {
			return
		}

		_, err := f.router.Query(req.Context(), session, "INSERT INTO orders VALUES (?)", 1)
		assert.NoError(t, err)

		w.WriteHeader(status)
	})
}

func TestMiddlewareExportsOnSuccess(t *testing.T) {
	f := newFixture(t)
	handler := propagation.Middleware(f.router, f.boundary)(f.writeHandler(t, http.StatusOK))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders/add", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0000000000000001", rec.Header().Get(propagation.DefaultKey))

	_, exported, withheld := f.collector.GetTokenCounts()
	assert.Equal(t, int64(1), exported)
	assert.Equal(t, int64(0), withheld)
}

func TestMiddlewareWithholdsOnFailure(t *testing.T) {
	f := newFixture(t)
	handler := propagation.Middleware(f.router, f.boundary)(f.writeHandler(t, http.StatusCreated))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders/add", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get(propagation.DefaultKey))

	_, exported, withheld := f.collector.GetTokenCounts()
	assert.Equal(t, int64(0), exported)
	assert.Equal(t, int64(1), withheld)
}

func TestMiddlewareSuccessFunc(t *testing.T) {
	f := newFixture(t)
	any2xx := propagation.WithSuccessFunc(func(status int) bool {
		return status >= 200 && status < 300
	})
	handler := propagation.Middleware(f.router, f.boundary, any2xx)(f.writeHandler(t, http.StatusCreated))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders/add", nil))

	assert.Equal(t, "0000000000000001", rec.Header().Get(propagation.DefaultKey))
}

func TestMiddlewareImplicitStatus(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "write body", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("[]"))
		}},
		{name: "no output", handler: func(http.ResponseWriter, *http.Request) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/orders/list", nil)
			req.Header.Set(propagation.DefaultKey, "0000000000000005")

			propagation.Middleware(f.router, f.boundary)(tt.handler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "0000000000000005", rec.Header().Get(propagation.DefaultKey))
		})
	}
}

func TestMiddlewareSessionFromInboundToken(t *testing.T) {
	f := newFixture(t)
	f.store.SetApplied("replica-1", 3)

	var seen causeway.Watermark
	handler := propagation.Middleware(f.router, f.boundary)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		session, _ := causeway.SessionFromContext(req.Context())
		seen = session.CurrentToken()

		_, err := f.router.Query(req.Context(), session, "SELECT * FROM orders")
		assert.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/list", nil)
	req.Header.Set(propagation.DefaultKey, "0000000000000002")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, types.SequenceWatermark(2), seen)

	call, ok := f.store.LastCall()
	require.True(t, ok)
	assert.Equal(t, types.TierAny, call.Tier)
	assert.Equal(t, types.ReplicaID("replica-1"), call.ServedBy)
	assert.Equal(t, "0000000000000003", rec.Header().Get(propagation.DefaultKey))
}

func TestMiddlewareMalformedToken(t *testing.T) {
	f := newFixture(t)

	var seen causeway.Watermark
	handler := propagation.Middleware(f.router, f.boundary)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		session, _ := causeway.SessionFromContext(req.Context())
		seen = session.CurrentToken()
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(propagation.DefaultKey, "garbage")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, causeway.Unconditional, seen)
	malformed, _, withheld := f.collector.GetTokenCounts()
	assert.Equal(t, int64(1), malformed)
	assert.Equal(t, int64(1), withheld)
}
