// Package metrics provides Prometheus metrics for the resonance service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// strengthBuckets cover the [0,1] resonance range at classification boundaries.
var strengthBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the resonance service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Fingerprint store
	fingerprintsRegistered prometheus.Counter
	fingerprintsArchived   prometheus.Counter
	fingerprintsActive     prometheus.Gauge
	comparisonsStored      prometheus.Gauge

	// Recorder and engine
	pulsesRecorded *prometheus.CounterVec
	matches        *prometheus.CounterVec
	matchStrength  prometheus.Histogram
	scoringLatency prometheus.Histogram

	// Persistence
	storeWriteLatency *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	storeCorruptions  *prometheus.CounterVec

	// Scheduler and adapters
	schedulerRunning prometheus.Gauge
	pollTicks        prometheus.Counter
	pollTickDuration prometheus.Histogram
	adapterItems     *prometheus.CounterVec
	adapterErrors    *prometheus.CounterVec
	duplicateItems   prometheus.Counter

	// Notification queue and dispatchers
	notificationsEmitted *prometheus.CounterVec
	notificationsDropped *prometheus.CounterVec
	queueSize            prometheus.Gauge
	queueCapacity        prometheus.Gauge
	queueEnqueued        prometheus.Counter
	queueDequeued        prometheus.Counter
	dispatcherCount      prometheus.Gauge
	dispatchLatency      prometheus.Histogram
	sinkErrors           *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

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

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "resonance",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Enabled reports whether recording is on.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// RefreshInterval is how often gauge updaters should sample.
func (m *Manager) RefreshInterval() time.Duration {
	return time.Duration(m.refreshInterval.Load())
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.fingerprintsRegistered = auto.NewCounter(m.counterOpts("fingerprints_registered_total", "Total number of fingerprints registered"))
	m.fingerprintsArchived = auto.NewCounter(m.counterOpts("fingerprints_archived_total", "Total number of fingerprints archived"))
	m.fingerprintsActive = auto.NewGauge(m.gaugeOpts("fingerprints_active", "Fingerprints currently taking part in comparisons"))
	m.comparisonsStored = auto.NewGauge(m.gaugeOpts("comparisons_stored", "Comparison records held in the log"))

	m.pulsesRecorded = auto.NewCounterVec(m.counterOpts("pulses_recorded_total", "Total number of comparison records written"), []string{"input_type"})
	m.matches = auto.NewCounterVec(m.counterOpts("matches_total", "Retained matches by classification"), []string{"classification"})
	m.matchStrength = auto.NewHistogram(m.histogramOpts("match_strength", "Distribution of retained match strengths", strengthBuckets))
	m.scoringLatency = auto.NewHistogram(m.histogramOpts("scoring_latency_milliseconds", "Time to score one input against the active set", m.histogramBuckets))

	m.storeWriteLatency = auto.NewHistogramVec(
		m.histogramOpts("store_write_latency_milliseconds", "Durable write latency by backend and collection", m.histogramBuckets),
		[]string{"backend", "collection"},
	)
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total", "Persistence failures by backend and operation"), []string{"backend", "op"})
	m.storeCorruptions = auto.NewCounterVec(m.counterOpts("store_corruptions_total", "Unreadable persisted data discarded on load"), []string{"backend", "collection"})

	m.schedulerRunning = auto.NewGauge(m.gaugeOpts("scheduler_running", "1 while the poll scheduler is running"))
	m.pollTicks = auto.NewCounter(m.counterOpts("poll_ticks_total", "Total number of poll ticks"))
	m.pollTickDuration = auto.NewHistogram(m.histogramOpts("poll_tick_duration_milliseconds", "Duration of one poll tick", m.histogramBuckets))
	m.adapterItems = auto.NewCounterVec(m.counterOpts("adapter_items_total", "Items received from feed adapters"), []string{"adapter"})
	m.adapterErrors = auto.NewCounterVec(m.counterOpts("adapter_errors_total", "Feed adapter failures"), []string{"adapter"})
	m.duplicateItems = auto.NewCounter(m.counterOpts("duplicate_items_total", "Feed items skipped because they were already recorded"))

	m.notificationsEmitted = auto.NewCounterVec(m.counterOpts("notifications_emitted_total", "Notifications accepted by the queue"), []string{"kind"})
	m.notificationsDropped = auto.NewCounterVec(m.counterOpts("notifications_dropped_total", "Notifications rejected by the queue"), []string{"kind"})
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current notification backlog"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum notification backlog"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Notifications enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Notifications dequeued"))
	m.dispatcherCount = auto.NewGauge(m.gaugeOpts("dispatcher_count", "Running notification dispatchers"))
	m.dispatchLatency = auto.NewHistogram(m.histogramOpts("dispatch_latency_milliseconds", "Time to deliver one notification to all sinks", m.histogramBuckets))
	m.sinkErrors = auto.NewCounterVec(m.counterOpts("sink_errors_total", "Notification delivery failures by sink"), []string{"sink"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Total number of errors by component"), []string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Fingerprint store.

// RecordFingerprintRegistered increments the registration counter.
func RecordFingerprintRegistered() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.fingerprintsRegistered.Inc()
}

// RecordFingerprintArchived increments the archive counter.
func RecordFingerprintArchived() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.fingerprintsArchived.Inc()
}

// UpdateActiveFingerprints sets the active fingerprint gauge.
func UpdateActiveFingerprints(n int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.fingerprintsActive.Set(float64(n))
}

// UpdateStoredComparisons sets the comparison log size gauge.
func UpdateStoredComparisons(n int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.comparisonsStored.Set(float64(n))
}

// Recorder and engine.

// RecordPulse counts one written comparison record.
func RecordPulse(inputType string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.pulsesRecorded.WithLabelValues(inputType).Inc()
}

// RecordMatch counts a retained match and observes its strength.
func RecordMatch(classification string, strength float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.matches.WithLabelValues(classification).Inc()
	globalManager.matchStrength.Observe(strength)
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.scoringLatency.Observe(latencyMs)
}

// Persistence.

// RecordStoreWrite observes a successful durable write.
func RecordStoreWrite(backend, collection string, latencyMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.storeWriteLatency.WithLabelValues(backend, collection).Observe(latencyMs)
}

// RecordStoreError counts a failed persistence operation.
func RecordStoreError(backend, op string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// RecordStoreCorruption counts persisted data discarded on load.
func RecordStoreCorruption(backend, collection string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.storeCorruptions.WithLabelValues(backend, collection).Inc()
}

// Scheduler and adapters.

// UpdateSchedulerRunning flips the scheduler state gauge.
func UpdateSchedulerRunning(running bool) {
	if !globalManager.Enabled() {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	globalManager.schedulerRunning.Set(v)
}

// RecordPollTick counts a tick and observes its duration.
func RecordPollTick(durationMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.pollTicks.Inc()
	globalManager.pollTickDuration.Observe(durationMs)
}

// RecordAdapterItems adds n received items for adapter.
func RecordAdapterItems(adapter string, n int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.adapterItems.WithLabelValues(adapter).Add(float64(n))
}

// RecordAdapterError counts an adapter failure.
func RecordAdapterError(adapter string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.adapterErrors.WithLabelValues(adapter).Inc()
}

// RecordDuplicateItem counts a skipped re-delivered item.
func RecordDuplicateItem() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.duplicateItems.Inc()
}

// Notification queue and dispatchers.

// RecordNotification counts an accepted notification.
func RecordNotification(kind string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.notificationsEmitted.WithLabelValues(kind).Inc()
}

// RecordNotificationDropped counts a rejected notification.
func RecordNotificationDropped(kind string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.notificationsDropped.WithLabelValues(kind).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueDequeued.Inc()
}

// UpdateDispatcherCount sets the number of running dispatchers.
func UpdateDispatcherCount(n int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.dispatcherCount.Set(float64(n))
}

// RecordDispatchLatency observes the time to fan a notification out.
func RecordDispatchLatency(latencyMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.dispatchLatency.Observe(latencyMs)
}

// RecordSinkError counts a failed delivery.
func RecordSinkError(sink string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.sinkErrors.WithLabelValues(sink).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Configure applies the runtime options, WithMetricsEnabled and
// WithRefreshInterval, to the global manager. Options that shape metric
// names only take effect in NewManager.
func Configure(opts ...Option) {
	m := &Manager{}
	m.enabled.Store(globalManager.Enabled())
	m.refreshInterval.Store(int64(globalManager.RefreshInterval()))
	for _, opt := range opts {
		opt(m)
	}
	globalManager.enabled.Store(m.Enabled())
	globalManager.refreshInterval.Store(int64(m.RefreshInterval()))
}

// Enabled reports whether the package-level recorders update metrics.
func Enabled() bool { return globalManager.Enabled() }

// RefreshInterval returns the global gauge sampling interval.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
