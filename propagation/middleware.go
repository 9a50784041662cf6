package propagation

import (
	"net/http"

	otelprop "go.opentelemetry.io/otel/propagation"

	"github.com/arloliu/causeway"
)

// Middleware returns HTTP middleware that runs each request in a session.
//
// The session is created from the inbound token and attached to the
// request context, where handlers find it with causeway.SessionFromContext.
// When the handler writes its status, the session's current token is
// attached to the response if the status passes the success test, and
// withheld otherwise.
//
// Parameters:
//   - router: The router creating sessions
//   - boundary: The token boundary
//   - opts: Middleware options
//
// Returns:
//   - func(http.Handler) http.Handler: The middleware
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(propagation.Middleware(router, boundary))
func Middleware(router *causeway.Router, boundary *Boundary, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	config := MiddlewareConfig{Success: statusOK}
	for _, opt := range opts {
		opt(&config)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			session := router.NewSession(boundary.Import(otelprop.HeaderCarrier(req.Header)))
			ctx := causeway.ContextWithSession(req.Context(), session)

			tw := &tokenWriter{
				ResponseWriter: w,
				session:        session,
				boundary:       boundary,
				success:        config.Success,
			}
			next.ServeHTTP(tw, req.WithContext(ctx))

			if !tw.wroteHeader {
				tw.WriteHeader(http.StatusOK)
			}
		})
	}
}

// tokenWriter attaches the session token right before the status is written.
type tokenWriter struct {
	http.ResponseWriter

	session     *causeway.Session
	boundary    *Boundary
	success     func(status int) bool
	wroteHeader bool
}

func (w *tokenWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	metrics := w.boundary.config.Metrics
	if w.success(status) {
		w.boundary.Export(otelprop.HeaderCarrier(w.Header()), w.session.CurrentToken())
		metrics.IncTokenExported()
	} else {
		metrics.IncTokenWithheld()
	}

	w.ResponseWriter.WriteHeader(status)
}

func (w *tokenWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	return w.ResponseWriter.Write(p)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *tokenWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
