package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// routeLabel maps a request path onto its route template. Account ids, tiers
// and metric names all come from the URL, so none of them may become labels.
func routeLabel(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(segs) >= 2 && segs[0] == "webhooks":
		return "/webhooks/{provider}"
	case len(segs) >= 3 && segs[0] == "v1" && segs[1] == "accounts":
		segs[2] = "{id}"
		if len(segs) == 5 && (segs[3] == "quota" || (segs[3] == "usage" && segs[4] != "history")) {
			segs[4] = "{metric}"
		}
	case len(segs) == 4 && segs[0] == "v1" && segs[1] == "tier-limits":
		segs[2], segs[3] = "{tier}", "{metric}"
	}

	return "/" + strings.Join(segs, "/")
}

// Middleware records request count, latency and in-flight gauges.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r.URL.Path)

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
