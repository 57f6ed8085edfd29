// Package metrics provides Prometheus metrics for the gridedge services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcome label values.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// Manager owns every gridedge collector.
type Manager struct {
	namespace        string
	subsystem        string
	deliveryBuckets []float64
	constLabels     map[string]string
	registry        prometheus.Registerer

	// Ingestion
	readingsReceived  prometheus.Counter
	readingsMalformed prometheus.Counter
	readingsFlagged   prometheus.Counter
	readingsDuplicate prometheus.Counter
	anomalies         *prometheus.CounterVec
	sourcesTracked    prometheus.Gauge

	// Delivery
	deliveryAttempts *prometheus.CounterVec
	deliveryRetries  prometheus.Counter
	deliveryOutcomes *prometheus.CounterVec
	deliveryLatency  prometheus.Histogram
	deliveryBackoff  prometheus.Histogram

	// Queue and workers
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueRejected    *prometheus.CounterVec
	workerCount      prometheus.Gauge

	// Store companion
	storeWrites  *prometheus.CounterVec
	storePruned  prometheus.Counter
	probeResults *prometheus.CounterVec
	meterSends   *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "gridedge",
		subsystem:       "edge",
		deliveryBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		constLabels:     make(map[string]string),
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.readingsReceived = m.counter("readings_received_total", "Readings accepted by the ingestion endpoint")
	m.readingsMalformed = m.counter("readings_malformed_total", "Readings rejected as malformed")
	m.readingsFlagged = m.counter("readings_flagged_total", "Readings outside configured voltage/current bounds")
	m.readingsDuplicate = m.counter("readings_duplicate_total", "Replayed readings answered without re-forwarding")
	m.anomalies = m.counterVec("anomalies_total", "Readings scored as anomalous", "source_id")
	m.sourcesTracked = m.gauge("sources_tracked", "Number of per-source windows held by the detector")

	m.deliveryAttempts = m.counterVec("delivery_attempts_total", "Store delivery attempts by result", "result")
	m.deliveryRetries = m.counter("delivery_retries_total", "Delivery attempts scheduled after a transient failure")
	m.deliveryOutcomes = m.counterVec("delivery_outcomes_total", "Terminal delivery outcomes", "outcome")
	m.deliveryLatency = m.histogram("delivery_attempt_duration_milliseconds", "Duration of a single delivery attempt", m.deliveryBuckets)
	m.deliveryBackoff = m.histogram("delivery_backoff_milliseconds", "Scheduled backoff before a retry",
		[]float64{10, 50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000})

	m.queueSize = m.gauge("queue_size", "Deliveries waiting for a worker")
	m.queueCapacity = m.gauge("queue_capacity", "Delivery queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Delivery queue utilization (0.0-1.0)")
	m.queueRejected = m.counterVec("queue_rejected_total", "Deliveries refused by the queue", "reason")
	m.workerCount = m.gauge("worker_count", "Delivery workers running")

	m.storeWrites = m.counterVec("store_writes_total", "Readings written by the store companion", "result")
	m.storePruned = m.counter("store_pruned_total", "Readings removed by retention pruning")
	m.probeResults = m.counterVec("probe_results_total", "Health probe results", "ready")
	m.meterSends = m.counterVec("meter_sends_total", "Simulated meter sends", "city", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordReadingReceived counts a reading accepted for processing.
func RecordReadingReceived() { globalManager.readingsReceived.Inc() }

// RecordReadingMalformed counts a malformed reading.
func RecordReadingMalformed() { globalManager.readingsMalformed.Inc() }

// RecordReadingFlagged counts an out-of-range reading.
func RecordReadingFlagged() { globalManager.readingsFlagged.Inc() }

// RecordReadingDuplicate counts a replayed reading.
func RecordReadingDuplicate() { globalManager.readingsDuplicate.Inc() }

// RecordAnomaly counts an anomalous reading for a source.
func RecordAnomaly(sourceID string) { globalManager.anomalies.WithLabelValues(sourceID).Inc() }

// UpdateSourcesTracked sets the number of detector windows.
func UpdateSourcesTracked(n int) { globalManager.sourcesTracked.Set(float64(n)) }

// RecordDeliveryAttempt records one attempt; result is "ok", "transient" or "permanent".
func RecordDeliveryAttempt(result string, latencyMs float64) {
	globalManager.deliveryAttempts.WithLabelValues(result).Inc()
	globalManager.deliveryLatency.Observe(latencyMs)
}

// RecordDeliveryRetry records a scheduled retry and its backoff.
func RecordDeliveryRetry(backoff time.Duration) {
	globalManager.deliveryRetries.Inc()
	globalManager.deliveryBackoff.Observe(float64(backoff.Milliseconds()))
}

// RecordDeliveryOutcome counts a terminal outcome.
func RecordDeliveryOutcome(outcome string) {
	globalManager.deliveryOutcomes.WithLabelValues(outcome).Inc()
}

// UpdateQueueSize sets the queue length and utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueRejected counts a refused enqueue.
func RecordQueueRejected(reason string) { globalManager.queueRejected.WithLabelValues(reason).Inc() }

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// RecordStoreWrite counts a store write; result is "ok", "rejected" or "error".
func RecordStoreWrite(result string) { globalManager.storeWrites.WithLabelValues(result).Inc() }

// RecordStorePruned adds pruned rows.
func RecordStorePruned(n int) { globalManager.storePruned.Add(float64(n)) }

// RecordProbe counts a health probe result.
func RecordProbe(ready bool) {
	label := "false"
	if ready {
		label = "true"
	}
	globalManager.probeResults.WithLabelValues(label).Inc()
}

// RecordMeterSend counts one simulated reading handed to the edge.
func RecordMeterSend(city, result string) {
	globalManager.meterSends.WithLabelValues(city, result).Inc()
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutineCount.Set(float64(n)) }

// GetRegistry returns the registry that backs /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
