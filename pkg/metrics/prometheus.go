// Package metrics provides Prometheus metrics for the moodblocks service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Reconciliation
	mergesTotal       *prometheus.CounterVec
	recordsMerged     *prometheus.CounterVec
	recordsDuplicate  prometheus.Counter
	recordsDropped    *prometheus.CounterVec
	mergeLatency      prometheus.Histogram
	positionsTracked  prometheus.Gauge
	currentPosition   prometheus.Gauge
	viewVersion       prometheus.Gauge
	mergesAfterClose  prometheus.Counter
	symbolCount       *prometheus.GaugeVec
	feedLength        prometheus.Gauge
	snapshotFetches   *prometheus.CounterVec
	snapshotLatency   prometheus.Histogram
	snapshotRecords   prometheus.Gauge
	snapshotTruncated prometheus.Counter
	liveEvents        *prometheus.CounterVec
	liveSubscribed    prometheus.Gauge
	submissions       *prometheus.CounterVec
	submitLatency     prometheus.Histogram

	// Inbox
	inboxSize         prometheus.Gauge
	inboxCapacity     prometheus.Gauge
	inboxUtilization  prometheus.Gauge
	inboxEnqueued     prometheus.Counter
	inboxDequeued     prometheus.Counter
	inboxEnqueueError *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	streamClients       prometheus.Gauge

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "moodblocks",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.mergesTotal = m.counterVec("merges_total", "Number of batches applied by the reconciliation engine", "source")
	m.recordsMerged = m.counterVec("records_merged_total", "Records accepted into the model", "symbol")
	m.recordsDuplicate = m.counter("records_duplicate_total", "Records skipped because the same event was already merged")
	m.recordsDropped = m.counterVec("records_dropped_total", "Records dropped before reaching the model", "stage", "reason")
	m.mergeLatency = m.histogram("merge_latency_milliseconds", "Time spent applying one batch in milliseconds")
	m.positionsTracked = m.gauge("positions_tracked", "Distinct positions in the position-to-symbol map")
	m.currentPosition = m.gauge("current_position", "Latest known ledger position")
	m.viewVersion = m.gauge("view_version", "Version of the last published view snapshot")
	m.mergesAfterClose = m.counter("merges_after_close_total", "Batches discarded because the engine was already closed")
	m.symbolCount = m.gaugeVec("symbol_count", "Leaderboard counter per symbol", "symbol")
	m.feedLength = m.gauge("feed_length", "Records held in the live feed ring")

	m.snapshotFetches = m.counterVec("snapshot_fetches_total", "Snapshot fetch cycles by result", "result")
	m.snapshotLatency = m.histogram("snapshot_fetch_latency_milliseconds", "Snapshot fetch latency in milliseconds")
	m.snapshotRecords = m.gauge("snapshot_records", "Records in the last fetched snapshot after truncation")
	m.snapshotTruncated = m.counter("snapshot_truncated_total", "Snapshots that exceeded the truncation window")

	m.liveEvents = m.counterVec("live_events_total", "Live push events by result", "result")
	m.liveSubscribed = m.gauge("live_subscribed", "1 while the live subscription is active")

	m.submissions = m.counterVec("submissions_total", "Mood submissions by result", "result")
	m.submitLatency = m.histogram("submit_latency_milliseconds", "Ledger write latency in milliseconds")

	m.inboxSize = m.gauge("inbox_size", "Batches waiting in the inbox")
	m.inboxCapacity = m.gauge("inbox_capacity", "Inbox capacity")
	m.inboxUtilization = m.gauge("inbox_utilization_ratio", "Inbox utilization ratio (size / capacity)")
	m.inboxEnqueued = m.counter("inbox_enqueue_total", "Batches enqueued")
	m.inboxDequeued = m.counter("inbox_dequeue_total", "Batches dequeued")
	m.inboxEnqueueError = m.counterVec("inbox_enqueue_errors_total", "Rejected enqueues by reason", "reason")

	m.httpRequests = promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total", Help: "HTTP requests by endpoint, method and status", ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_milliseconds", Help: "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.streamClients = m.gauge("stream_clients", "Connected websocket stream clients")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordMerge records one applied batch.
func RecordMerge(source string, latencyMs float64) {
	if on() {
		globalManager.mergesTotal.WithLabelValues(source).Inc()
		globalManager.mergeLatency.Observe(latencyMs)
	}
}

// RecordRecordMerged counts an accepted record.
func RecordRecordMerged(symbol string) {
	if on() {
		globalManager.recordsMerged.WithLabelValues(symbol).Inc()
	}
}

// RecordRecordDuplicate counts a record skipped by the dedupe set.
func RecordRecordDuplicate() {
	if on() {
		globalManager.recordsDuplicate.Inc()
	}
}

// RecordRecordDropped counts a record dropped at stage (fetch, live, merge).
func RecordRecordDropped(stage, reason string) {
	if on() {
		globalManager.recordsDropped.WithLabelValues(stage, reason).Inc()
	}
}

// RecordMergeAfterClose counts a batch that arrived after teardown.
func RecordMergeAfterClose() {
	if on() {
		globalManager.mergesAfterClose.Inc()
	}
}

// UpdateModel publishes model-level gauges after a merge.
func UpdateModel(positions int, position uint64, version uint64, feedLen int) {
	if on() {
		globalManager.positionsTracked.Set(float64(positions))
		globalManager.currentPosition.Set(float64(position))
		globalManager.viewVersion.Set(float64(version))
		globalManager.feedLength.Set(float64(feedLen))
	}
}

// UpdateSymbolCount sets the leaderboard gauge of one symbol.
func UpdateSymbolCount(symbol string, count int) {
	if on() {
		globalManager.symbolCount.WithLabelValues(symbol).Set(float64(count))
	}
}

// RecordSnapshotFetch records one fetch cycle.
func RecordSnapshotFetch(result string, latencyMs float64, records int) {
	if on() {
		globalManager.snapshotFetches.WithLabelValues(result).Inc()
		globalManager.snapshotLatency.Observe(latencyMs)
		if result == "ok" {
			globalManager.snapshotRecords.Set(float64(records))
		}
	}
}

// RecordSnapshotTruncated counts a snapshot larger than the window.
func RecordSnapshotTruncated() {
	if on() {
		globalManager.snapshotTruncated.Inc()
	}
}

// RecordLiveEvent counts a pushed event by result (accepted, malformed, rejected).
func RecordLiveEvent(result string) {
	if on() {
		globalManager.liveEvents.WithLabelValues(result).Inc()
	}
}

// UpdateLiveSubscribed flips the subscription gauge.
func UpdateLiveSubscribed(active bool) {
	if on() {
		v := 0.0
		if active {
			v = 1
		}
		globalManager.liveSubscribed.Set(v)
	}
}

// RecordSubmission records a submit attempt.
func RecordSubmission(result string, latencyMs float64) {
	if on() {
		globalManager.submissions.WithLabelValues(result).Inc()
		globalManager.submitLatency.Observe(latencyMs)
	}
}

// UpdateInbox refreshes inbox size and utilization gauges.
func UpdateInbox(size, capacity int) {
	if !on() {
		return
	}
	globalManager.inboxSize.Set(float64(size))
	globalManager.inboxCapacity.Set(float64(capacity))
	if capacity > 0 {
		globalManager.inboxUtilization.Set(float64(size) / float64(capacity))
	}
}

// RecordInboxEnqueue counts an accepted enqueue.
func RecordInboxEnqueue() {
	if on() {
		globalManager.inboxEnqueued.Inc()
	}
}

// RecordInboxDequeue counts a dequeue.
func RecordInboxDequeue() {
	if on() {
		globalManager.inboxDequeued.Inc()
	}
}

// RecordInboxEnqueueError counts a rejected enqueue.
func RecordInboxEnqueueError(reason string) {
	if on() {
		globalManager.inboxEnqueueError.WithLabelValues(reason).Inc()
	}
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// AddStreamClients adjusts the websocket client gauge by delta.
func AddStreamClients(delta int) {
	if on() {
		globalManager.streamClients.Add(float64(delta))
	}
}

// RecordError counts an error by component and type.
func RecordError(component, errorType string) {
	if on() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets the heap gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime observes an average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	if on() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry backing the global metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
