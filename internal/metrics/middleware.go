package metrics

import (
	"net/http"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// RouteUnmatched is the route label recorded for requests no mux
// pattern matched, so arbitrary paths cannot mint new label values.
const RouteUnmatched = "unmatched"

// Middleware returns an HTTP middleware that records request count and
// duration for every route. The route label is the ServeMux pattern
// that matched the request; the mux fills in r.Pattern during routing,
// so it is read after the handler runs.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		route := r.Pattern
		if route == "" {
			route = RouteUnmatched
		}
		RecordHTTPRequest(r.Method, route, recorder.statusCode, time.Since(start))
	})
}
