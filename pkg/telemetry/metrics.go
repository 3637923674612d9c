package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfroyo/sous/pkg/engine"
)

// Metrics provides Prometheus metrics for sous runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	lastRun       prometheus.Gauge

	// Phase metrics
	phaseDuration *prometheus.HistogramVec

	// Intent metrics
	fileOps       *prometheus.CounterVec
	dependencyOps *prometheus.CounterVec
	needsReview   prometheus.Gauge

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. Disabled metrics record nothing.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of runs by outcome",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of run phases in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		fileOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_operations_total",
				Help:      "Total number of file reconciles by operation",
			},
			[]string{"op"},
		),
		dependencyOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dependency_operations_total",
				Help:      "Total number of dependency entries by operation",
			},
			[]string{"op"},
		),
		needsReview: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "files_needing_review",
				Help:      "Files left for review by the last run",
			},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.lastRun,
		m.phaseDuration,
		m.fileOps,
		m.dependencyOps,
		m.needsReview,
		m.errorsByClass,
	)

	return m
}

// Registry returns the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(s *engine.Summary) {
	if m.registry == nil || s == nil {
		return
	}
	status := "clean"
	if s.Dirty {
		status = "dirty"
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(s.Duration().Seconds())
	m.lastRun.Set(float64(s.FinishedAt.Unix()))
	m.needsReview.Set(float64(len(s.NeedsReview)))
}

// RecordPhase records how long a phase took.
func (m *Metrics) RecordPhase(phase string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordFileOperation counts a file reconcile.
func (m *Metrics) RecordFileOperation(op engine.FileOp) {
	if m.registry == nil {
		return
	}
	m.fileOps.WithLabelValues(string(op)).Inc()
}

// RecordDependencyOperation counts a dependency entry.
func (m *Metrics) RecordDependencyOperation(op engine.DependencyOp) {
	if m.registry == nil {
		return
	}
	m.dependencyOps.WithLabelValues(string(op)).Inc()
}

// RecordError counts an error by class.
func (m *Metrics) RecordError(class engine.ErrorClass) {
	if m.registry == nil {
		return
	}
	m.errorsByClass.WithLabelValues(string(class)).Inc()
}

// WriteTextfile writes the registry in node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewServer returns the HTTP server exposing metrics on the configured address.
func (m *Metrics) NewServer() *http.Server {
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// MetricsReporter feeds engine events into Metrics.
type MetricsReporter struct {
	engine.NopReporter

	metrics *Metrics
	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetricsReporter creates a reporter recording into m.
func NewMetricsReporter(m *Metrics) *MetricsReporter {
	return &MetricsReporter{metrics: m, started: map[string]time.Time{}}
}

// PhaseStart implements engine.Reporter.
func (r *MetricsReporter) PhaseStart(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[phase] = time.Now()
}

// PhaseEnd implements engine.Reporter.
func (r *MetricsReporter) PhaseEnd(phase string, err error) {
	r.mu.Lock()
	start, ok := r.started[phase]
	delete(r.started, phase)
	r.mu.Unlock()
	if ok {
		r.metrics.RecordPhase(phase, time.Since(start))
	}
	if class, ok := engine.ClassOf(err); ok {
		r.metrics.RecordError(class)
	}
}

// FileOperation implements engine.Reporter.
func (r *MetricsReporter) FileOperation(op engine.FileOperation) {
	r.metrics.RecordFileOperation(op.Op)
}

// DependencyOperation implements engine.Reporter.
func (r *MetricsReporter) DependencyOperation(op engine.DependencyOperation) {
	r.metrics.RecordDependencyOperation(op.Op)
}

// Summary implements engine.Reporter.
func (r *MetricsReporter) Summary(s *engine.Summary) {
	r.metrics.RecordRun(s)
}
