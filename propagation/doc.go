// Package propagation carries causeway session tokens across request boundaries.
//
// A unit of work starts with Import, which turns the inbound token into
// the starting watermark of a session, and ends with Export, which hands
// the session's final watermark back to the caller. A missing or malformed
// token starts an unconditional session, so a bad token can cost
// freshness but never an error.
//
// # HTTP
//
// Middleware wraps an http.Handler:
//
//	boundary := propagation.NewBoundary(
//	    propagation.WithKey("x-d1-token"),
//	    propagation.WithMetrics(collector),
//	)
//
//	r := chi.NewRouter()
//	r.Use(propagation.Middleware(router, boundary))
//	r.Get("/api/orders/list", func(w http.ResponseWriter, req *http.Request) {
//	    session, _ := causeway.SessionFromContext(req.Context())
//	    result, err := router.Query(req.Context(), session, "SELECT * FROM orders")
//	    ...
//	})
//
// The token is attached only to responses passing the success test
// (status 200 by default, see WithSuccessFunc).
//
// # OpenTelemetry
//
// Propagator implements otelprop.TextMapPropagator, so the token can ride
// along with trace context:
//
//	otel.SetTextMapPropagator(otelprop.NewCompositeTextMapPropagator(
//	    otelprop.TraceContext{},
//	    propagation.NewPropagator(boundary),
//	))
package propagation
