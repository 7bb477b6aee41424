package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds the gateway request collectors.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewHTTPMetrics creates the gateway collectors and registers them on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pyazgate",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the gateway, by path and status code.",
		}, []string{"path", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pyazgate",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency at the gateway, including the upstream call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Latency)
	}
	return m
}

// Instrument wraps next with request IDs, request metrics and an access log.
// metrics may be nil.
func Instrument(next http.Handler, metrics *HTTPMetrics, logger *slog.Logger) http.Handler {
	return requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		path := routeLabel(r.URL.Path)
		if metrics != nil {
			metrics.Requests.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
			metrics.Latency.WithLabelValues(path).Observe(elapsed.Seconds())
		}
		if logger != nil {
			logger.DebugContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", elapsed,
				"request_id", RequestID(r.Context()),
			)
		}
	}))
}

// routeLabel keeps the path label bounded to known routes.
func routeLabel(path string) string {
	switch path {
	case "/get", "/set", "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
