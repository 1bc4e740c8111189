package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions the HTTP series by endpoint. Every served path is
// static, so the raw path doubles as the endpoint name.
const labelHandler = "handler"

// serverMetrics bundles every Prometheus series the server owns. New creates
// one instance per Server against the configured registry, which is how
// tests run with their own prometheus.Registry instead of the global one.
type serverMetrics struct {
	// queriesTotal counts completed /api/query requests, partitioned by
	// outcome: "ok", "cached", "rate_limited", "rejected", or "error".
	queriesTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of each
	// /api/query request from decode to envelope write.
	queryDurationSeconds *prometheus.HistogramVec

	// queriesInFlight is the number of /api/query requests currently
	// inside the pipeline.
	queriesInFlight prometheus.Gauge

	// cacheLookupsTotal counts semantic cache outcomes for answered
	// queries, partitioned by result: "hit" or "miss".
	cacheLookupsTotal *prometheus.CounterVec

	// httpRequestsTotal counts every request that reaches the mux, whatever
	// the endpoint, partitioned by method, handler and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records whole-request latency per endpoint.
	httpDurationSeconds *prometheus.HistogramVec

	// httpRejectedTotal counts requests rejected by the per-IP rate
	// limiting middleware before reaching any handler.
	httpRejectedTotal prometheus.Counter
}

// newServerMetrics registers every series against reg and returns the
// populated bundle. Registration goes through promauto.With(reg), never the
// package-global default.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowligo",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "knowligo",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/query requests from decode to response.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),

		queriesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "knowligo",
			Subsystem: "query",
			Name:      "in_flight",
			Help:      "Number of /api/query requests currently inside the pipeline.",
		}),

		cacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowligo",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Semantic cache outcomes for answered queries, partitioned by result.",
		}, []string{"result"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowligo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, partitioned by method, handler and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "knowligo",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Whole-request HTTP latency per endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		httpRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "knowligo",
			Subsystem: "http",
			Name:      "requests_rejected_total",
			Help:      "Requests rejected by the per-IP rate limiter before reaching a handler.",
		}),
	}
}

// httpMetrics is an [http.Handler] middleware that records the request count
// and latency of every request against the server's HTTP metrics.
func (s *Server) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(
			r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(
			r.Method, r.URL.Path).Observe(elapsed.Seconds())
	})
}
