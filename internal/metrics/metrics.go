// Package metrics exposes the gateway's own operational Prometheus metrics,
// distinct from the per-node resource samples internal/metricspump streams
// to WebSocket clients.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Upstream client metrics cover both the Proxmox and Incus NodeClient drivers.
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of hypervisor upstream API requests.",
		},
		[]string{"backend", "method", "endpoint", "status", "outcome"},
	)

	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Hypervisor upstream API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "method", "endpoint"},
	)

	aggregatorNodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_node_errors_total",
			Help: "Number of times a node transitioned to Error status during aggregation.",
		},
		[]string{"node_id"},
	)
)

// Init registers all collectors exactly once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpRequestsTotal)
		prometheus.MustRegister(httpRequestDuration)
		prometheus.MustRegister(upstreamRequestsTotal)
		prometheus.MustRegister(upstreamRequestDuration)
		prometheus.MustRegister(aggregatorNodeErrors)
	})
}

// Handler exposes the Prometheus exposition HTTP handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

type statusCapturingWriter struct {
	w      http.ResponseWriter
	status int
}

func (s *statusCapturingWriter) Header() http.Header         { return s.w.Header() }
func (s *statusCapturingWriter) Write(b []byte) (int, error) { return s.w.Write(b) }
func (s *statusCapturingWriter) WriteHeader(code int) {
	s.status = code
	s.w.WriteHeader(code)
}

// HTTPMetricsMiddleware captures per-request HTTP metrics.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	Init()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		scw := &statusCapturingWriter{w: w, status: 200}
		next.ServeHTTP(scw, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(scw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// ObserveUpstream records hypervisor upstream request metrics for a given backend ("proxmox"/"incus").
func ObserveUpstream(backend, method, endpoint string, status int, outcome string, start time.Time) {
	Init()
	upstreamRequestsTotal.WithLabelValues(backend, method, endpoint, strconv.Itoa(status), outcome).Inc()
	upstreamRequestDuration.WithLabelValues(backend, method, endpoint).Observe(time.Since(start).Seconds())
}

// ObserveNodeError increments the counter recording an aggregation-time node failure.
func ObserveNodeError(nodeID string) {
	Init()
	aggregatorNodeErrors.WithLabelValues(nodeID).Inc()
}
