// Package metrics provides Prometheus metrics for the pixelsync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Recorder outcomes
	syncResults     *prometheus.CounterVec
	xpAwarded       prometheus.Counter
	freezesUsed     prometheus.Counter
	txRollbacks     prometheus.Counter
	countRegression *prometheus.CounterVec

	// External platform
	fetchLatency prometheus.Histogram
	fetchErrors  *prometheus.CounterVec

	// Batch
	batchRuns          prometheus.Counter
	batchRetries       prometheus.Counter
	batchDuration      prometheus.Histogram
	batchLastProcessed prometheus.Gauge

	// Queue / workers
	queueSize          prometheus.Gauge
	queueEnqueueErrors prometheus.Counter
	workerActiveCount  prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go/process collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pixelsync",
		subsystem:        "sync",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.syncResults = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "results_total",
		Help:      "Daily snapshot sync outcomes by status (ok, skipped, failed)",
	}, []string{"status"})

	m.xpAwarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "xp_awarded_total",
		Help:      "Total XP granted by committed daily progress rows",
	})

	m.freezesUsed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "streak_freezes_used_total",
		Help:      "Streak freeze tokens consumed",
	})

	m.txRollbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tx_rollbacks_total",
		Help:      "Snapshot transactions rolled back",
	})

	m.countRegression = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "count_regressions_total",
		Help:      "Solved-count decreases reported by the platform, clamped to zero",
	}, []string{"bucket"})

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_latency_milliseconds",
		Help:      "External stats fetch latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.fetchErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_errors_total",
		Help:      "External stats fetch failures by kind",
	}, []string{"kind"})

	m.batchRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_runs_total",
		Help:      "Daily batch runs started",
	})

	m.batchRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_retries_total",
		Help:      "Per-user retries issued by the batch after a retryable failure",
	})

	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_duration_milliseconds",
		Help:      "Wall time of a full daily batch in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(100, 4, 10),
	})

	m.batchLastProcessed = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_last_processed",
		Help:      "Users processed by the most recent batch",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Sync jobs waiting in the batch queue",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Sync jobs rejected by the batch queue",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Batch workers currently running",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordSyncResult counts one recorder outcome.
func RecordSyncResult(status string) {
	globalManager.syncResults.WithLabelValues(status).Inc()
}

// RecordXPAwarded adds committed XP.
func RecordXPAwarded(xp int) {
	if xp > 0 {
		globalManager.xpAwarded.Add(float64(xp))
	}
}

// RecordFreezeUsed counts a consumed streak freeze token.
func RecordFreezeUsed() {
	globalManager.freezesUsed.Inc()
}

// RecordTxRollback counts an aborted snapshot transaction.
func RecordTxRollback() {
	globalManager.txRollbacks.Inc()
}

// RecordCountRegression counts a clamped decrease in one bucket.
func RecordCountRegression(bucket string) {
	globalManager.countRegression.WithLabelValues(bucket).Inc()
}

// RecordFetchLatency records external fetch latency in milliseconds.
func RecordFetchLatency(latencyMs float64) {
	globalManager.fetchLatency.Observe(latencyMs)
}

// RecordFetchError counts a failed fetch by kind.
func RecordFetchError(kind string) {
	globalManager.fetchErrors.WithLabelValues(kind).Inc()
}

// RecordBatchRun counts a started batch.
func RecordBatchRun() {
	globalManager.batchRuns.Inc()
}

// RecordBatchRetry counts a single-user retry.
func RecordBatchRetry() {
	globalManager.batchRetries.Inc()
}

// RecordBatchFinished records batch wall time and size.
func RecordBatchFinished(durationMs float64, processed int) {
	globalManager.batchDuration.Observe(durationMs)
	globalManager.batchLastProcessed.Set(float64(processed))
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
