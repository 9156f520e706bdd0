// Package metrics provides Prometheus metrics for the gap admission gate.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every gap metric.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Admission outcomes
	admissions       *prometheus.CounterVec
	validations      *prometheus.CounterVec
	findings         *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	admissionLatency prometheus.Histogram

	// Archive guard
	archiveRejections *prometheus.CounterVec
	archiveBytes      prometheus.Counter

	// Fingerprinting
	fingerprintFailures *prometheus.CounterVec
	cacheSize           *prometheus.GaugeVec
	cacheLockWait       prometheus.Histogram

	// Queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        prometheus.Gauge
	workersActive      prometheus.Gauge
	jobs               *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the Record* helpers

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gap",
		subsystem:        "admission",
		histogramBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.admissions = m.counterVec("decisions_total", "Admission decisions by action", "action")
	m.validations = m.counterVec("validations_total", "Validation runs by result", "result")
	m.findings = m.counterVec("findings_total", "Validation findings by category and severity", "category", "severity")
	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: m.histogramBuckets,
	}, []string{"stage"})
	m.admissionLatency = m.histogram("latency_seconds", "End-to-end admission latency")

	m.archiveRejections = m.counterVec("archive_rejections_total", "Archives refused by a safety guard", "reason")
	m.archiveBytes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "archive_extracted_bytes_total",
		Help: "Bytes written by archive extraction",
	})

	m.fingerprintFailures = m.counterVec("fingerprint_failures_total", "Fingerprints that degraded to unknown", "kind")
	m.cacheSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "fingerprint_cache_entries",
		Help: "Known fingerprints per cache partition",
	}, []string{"partition"})
	m.cacheLockWait = m.histogram("cache_lock_wait_seconds", "Time spent waiting for the fingerprint cache lock")

	m.queueSize = m.gauge("queue_size", "Pending admission jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Admission queue capacity")
	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "queue_enqueued_total",
		Help: "Admission jobs accepted into the queue",
	})
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Admission jobs refused by the queue", "reason")
	m.workerCount = m.gauge("worker_count", "Configured admission workers")
	m.workersActive = m.gauge("workers_active", "Workers currently validating a shard")
	m.jobs = m.counterVec("jobs_total", "Admission jobs by final status", "status")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "type")
}

// RecordAdmission counts a final admission action.
func RecordAdmission(action string) {
	globalManager.admissions.WithLabelValues(action).Inc()
}

// RecordValidation counts a validation run.
func RecordValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	globalManager.validations.WithLabelValues(result).Inc()
}

// RecordFinding counts one error or warning.
func RecordFinding(category, severity string) {
	globalManager.findings.WithLabelValues(category, severity).Inc()
}

// ObserveStage records the duration of a pipeline stage.
func ObserveStage(stage string, d time.Duration) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveAdmissionLatency records end-to-end admission time.
func ObserveAdmissionLatency(d time.Duration) {
	globalManager.admissionLatency.Observe(d.Seconds())
}

// RecordArchiveRejection counts an archive refused by a guard.
func RecordArchiveRejection(reason string) {
	globalManager.archiveRejections.WithLabelValues(reason).Inc()
}

// AddExtractedBytes adds to the extracted byte counter.
func AddExtractedBytes(n int64) {
	if n > 0 {
		globalManager.archiveBytes.Add(float64(n))
	}
}

// RecordFingerprintFailure counts a fingerprint that could not be computed.
func RecordFingerprintFailure(kind string) {
	globalManager.fingerprintFailures.WithLabelValues(kind).Inc()
}

// UpdateCacheSize sets the size of a cache partition.
func UpdateCacheSize(partition string, n int) {
	globalManager.cacheSize.WithLabelValues(partition).Set(float64(n))
}

// ObserveCacheLockWait records time spent acquiring the cache lock.
func ObserveCacheLockWait(d time.Duration) {
	globalManager.cacheLockWait.Observe(d.Seconds())
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueEnqueueError counts a refused job.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkersActive moves the active worker gauge by delta.
func AddWorkersActive(delta int) {
	globalManager.workersActive.Add(float64(delta))
}

// RecordJob counts a job reaching a terminal status.
func RecordJob(status string) {
	globalManager.jobs.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method string, statusCode int) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method string, statusCode int, d time.Duration) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Observe(d.Seconds())
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom registry served by the daemon.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
