// Package httpmiddleware provides net/http middlewares shared by the API
// server: recovery, CORS, rate limiting, request IDs, request-scoped
// logging and OpenTelemetry instrumentation.
package httpmiddleware

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Middleware wraps an http.Handler.
type Middleware func(next http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost one.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder returns the route template serving r, or "" when no route
// matches.
type RouteFinder func(r *http.Request) string

// MakeRouteFinder resolves routes against router. It works outside the
// router's own middleware chain, so instrumentation wrapping the whole server
// can still label requests by template instead of raw path.
func MakeRouteFinder(router *mux.Router) RouteFinder {
	return func(r *http.Request) string {
		var match mux.RouteMatch
		if !router.Match(r, &match) || match.Route == nil {
			return ""
		}
		tmpl, err := match.Route.GetPathTemplate()
		if err != nil {
			return ""
		}
		return tmpl
	}
}

// statusRecorder captures the response status code and size.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
