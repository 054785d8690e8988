// Package metrics exposes Hatrac's Prometheus instrumentation: request
// counts/latency per resource kind, upload job counts, and backend I/O
// byte totals. Grounded on warren's pkg/metrics package (same
// package-level prometheus.*Vec + init-time MustRegister shape,
// promhttp.Handler for the scrape endpoint) rather than the teacher,
// which declares prometheus/client_golang in go.mod but never imports
// it from any source file (see DESIGN.md).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatrac_requests_total",
			Help: "Total HTTP requests by method, resource kind, and status class",
		},
		[]string{"method", "kind", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hatrac_request_duration_seconds",
			Help:    "HTTP request duration in seconds by resource kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	BackendBytesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatrac_backend_bytes_written_total",
			Help: "Bytes written to the storage backend by operation",
		},
		[]string{"op"},
	)

	BackendBytesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatrac_backend_bytes_read_total",
			Help: "Bytes read from the storage backend",
		},
		[]string{},
	)

	DatabaseRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hatrac_database_serialization_retries_total",
			Help: "Total transaction retries due to serialization failure",
		},
	)

	UploadJobsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hatrac_upload_jobs_open",
			Help: "Number of chunked upload jobs currently open or finalizing",
		},
	)

	UploadJobsFinalizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hatrac_upload_jobs_finalized_total",
			Help: "Total chunked upload jobs successfully finalized",
		},
	)

	UploadJobsCancelledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hatrac_upload_jobs_cancelled_total",
			Help: "Total chunked upload jobs cancelled or failed",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(BackendBytesWritten)
	prometheus.MustRegister(BackendBytesRead)
	prometheus.MustRegister(DatabaseRetriesTotal)
	prometheus.MustRegister(UploadJobsOpen)
	prometheus.MustRegister(UploadJobsFinalizedTotal)
	prometheus.MustRegister(UploadJobsCancelledTotal)
}

// Handler exposes the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one request/operation, mirroring warren's pkg/metrics.Timer.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) ObserveDurationVec(h prometheus.ObserverVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
