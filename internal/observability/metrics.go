package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Sanduku.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Test run metrics.
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Container engine metrics.
	ImagePullsTotal *prometheus.CounterVec

	// File operation metrics.
	FileOpsTotal *prometheus.CounterVec

	// Path confinement metrics.
	PathRejectionsTotal *prometheus.CounterVec

	// HTTP API metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "runner",
			Name:      "runs_total",
			Help:      "Total test runs by terminal status.",
		}, []string{"status"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sanduku",
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Test run duration in seconds, container launch included.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),

		ImagePullsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "engine",
			Name:      "image_pulls_total",
			Help:      "Total runner image pull attempts.",
		}, []string{"result"}),

		FileOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "files",
			Name:      "operations_total",
			Help:      "Total confined file operations.",
		}, []string{"op", "status"}),

		PathRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "pathguard",
			Name:      "rejections_total",
			Help:      "Total paths rejected by the confinement boundary.",
		}, []string{"op"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sanduku",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sanduku",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ImagePullsTotal,
		m.FileOpsTotal,
		m.PathRejectionsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
