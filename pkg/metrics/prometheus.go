// Package metrics provides Prometheus metrics for the SitStraight posture service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Score buckets follow the 0..100 posture scale.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 65, 70, 80, 90, 100} //nolint:gochecknoglobals // fixed scale

// Manager manages all Prometheus metrics for the posture service.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	refreshInterval time.Duration
	constLabels     map[string]string
	registry        prometheus.Registerer

	// Posture pipeline
	framesScored        *prometheus.CounterVec
	postureScore        prometheus.Histogram
	lastSlouch          prometheus.Gauge
	lastScore           prometheus.Gauge
	scoringLatency      prometheus.Histogram
	inferenceLatency    prometheus.Histogram
	framesDropped       prometheus.Counter
	decodeErrors        prometheus.Counter
	incompleteLandmarks prometheus.Counter
	extractorErrors     *prometheus.CounterVec
	configReloads       *prometheus.CounterVec

	// Async ingest
	samplesProcessed prometheus.Counter
	samplesDuplicate prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	storeRecordsTotal prometheus.Gauge
	storeWriteLatency prometheus.Histogram
	storeQueryLatency prometheus.Histogram

	// HTTP and streaming
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
	wsClients           prometheus.Gauge

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "sitstraight",
		subsystem:       "posture",
		latencyBuckets:  []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Current returns the process-wide manager.
func Current() (*Manager, error) {
	if globalManager == nil {
		return nil, ErrNotInitialized
	}
	return globalManager, nil
}

// RefreshInterval is the cadence gauge updaters should use.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.framesScored = m.counterVec("frames_scored_total",
		"Frames or landmark sets scored, by resulting state and entry point", "state", "source")
	m.postureScore = m.histogram("score", "Distribution of posture scores", scoreBuckets)
	m.lastSlouch = m.gauge("last_slouch_raw", "Slouch value of the most recent scored frame")
	m.lastScore = m.gauge("last_score", "Score of the most recent scored frame")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds",
		"Time spent turning landmarks into metrics", m.latencyBuckets)
	m.inferenceLatency = m.histogram("inference_latency_milliseconds",
		"Time spent in the landmark extractor", m.latencyBuckets)
	m.framesDropped = m.counter("frames_dropped_total",
		"Live frames skipped because the previous inference was still running")
	m.decodeErrors = m.counter("decode_errors_total", "Frames that could not be decoded")
	m.incompleteLandmarks = m.counter("incomplete_landmarks_total",
		"Landmark sets missing a required point")
	m.extractorErrors = m.counterVec("extractor_errors_total", "Landmark extractor failures", "reason")
	m.configReloads = m.counterVec("config_reloads_total", "Scoring configuration reloads", "result")

	m.samplesProcessed = m.counter("samples_processed_total", "Queued samples scored by workers")
	m.samplesDuplicate = m.counter("samples_duplicate_total", "Samples rejected as duplicates")

	m.queueSize = m.gauge("queue_size", "Current size of the sample queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum sample queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Samples enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Samples dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Samples rejected by a full queue")

	m.workerCount = m.gauge("worker_count", "Number of running sample workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spends on one sample", m.latencyBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Samples a worker failed to process")

	m.storeRecordsTotal = m.gauge("store_records_total", "Samples held by the store")
	m.storeWriteLatency = m.histogram("store_write_latency_milliseconds", "Store write latency", m.latencyBuckets)
	m.storeQueryLatency = m.histogram("store_query_latency_milliseconds", "Store query latency", m.latencyBuckets)

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.rateLimited = m.counterVec("http_rate_limited_total", "Requests rejected by the rate limiter", "endpoint")
	m.wsClients = m.gauge("ws_clients", "Connected websocket clients")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordFrameScored records one scored frame.
func RecordFrameScored(state, source string, score int, slouch float64) {
	globalManager.framesScored.WithLabelValues(state, source).Inc()
	globalManager.postureScore.Observe(float64(score))
	globalManager.lastScore.Set(float64(score))
	globalManager.lastSlouch.Set(slouch)
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordInferenceLatency records extractor latency in milliseconds.
func RecordInferenceLatency(latencyMs float64) {
	globalManager.inferenceLatency.Observe(latencyMs)
}

// RecordFrameDropped counts a skipped live frame.
func RecordFrameDropped() { globalManager.framesDropped.Inc() }

// RecordDecodeError counts an undecodable frame.
func RecordDecodeError() { globalManager.decodeErrors.Inc() }

// RecordIncompleteLandmarks counts a landmark set missing required points.
func RecordIncompleteLandmarks() { globalManager.incompleteLandmarks.Inc() }

// RecordExtractorError counts a landmark extractor failure.
func RecordExtractorError(reason string) {
	globalManager.extractorErrors.WithLabelValues(reason).Inc()
}

// RecordConfigReload counts a scoring configuration reload ("ok" or "error").
func RecordConfigReload(result string) {
	globalManager.configReloads.WithLabelValues(result).Inc()
}

// RecordSampleProcessed counts a sample scored by a worker.
func RecordSampleProcessed() { globalManager.samplesProcessed.Inc() }

// RecordSampleDuplicate counts a duplicate sample.
func RecordSampleDuplicate() { globalManager.samplesDuplicate.Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueue.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeue.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// UpdateStoreRecords sets the number of stored samples.
func UpdateStoreRecords(count int) { globalManager.storeRecordsTotal.Set(float64(count)) }

// RecordStoreWriteLatency records store write latency.
func RecordStoreWriteLatency(latencyMs float64) { globalManager.storeWriteLatency.Observe(latencyMs) }

// RecordStoreQueryLatency records store query latency.
func RecordStoreQueryLatency(latencyMs float64) { globalManager.storeQueryLatency.Observe(latencyMs) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(endpoint string) {
	globalManager.rateLimited.WithLabelValues(endpoint).Inc()
}

// UpdateWSClients sets the number of connected websocket clients.
func UpdateWSClients(count int) { globalManager.wsClients.Set(float64(count)) }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
