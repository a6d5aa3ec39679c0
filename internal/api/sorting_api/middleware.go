package sorting_api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const unmatchedRoute = "unmatched"

// observe logs each request and feeds the HTTP histogram. The route label is
// the chi pattern so ids do not blow up label cardinality; requests no route
// matched share one label.
func (a *SortingAPI) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		took := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := unmatchedRoute
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		a.metrics.ObserveHTTP(r.Method, route, status, took)

		ev := a.log.Debug()
		if status >= http.StatusInternalServerError {
			ev = a.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("took", took).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}
