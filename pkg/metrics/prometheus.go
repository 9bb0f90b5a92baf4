// Package metrics provides Prometheus metrics for the attune session engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the attune service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Reaction pipeline
	reactionsProcessed prometheus.Counter
	reactionsRejected  *prometheus.CounterVec
	reactionsDebounced prometheus.Counter
	pipelineLatency    prometheus.Histogram
	autoAdvances       prometheus.Counter

	// Recommendations
	recommendationLatency   *prometheus.HistogramVec
	recommendationsUpdated  prometheus.Counter
	recommendationFallbacks prometheus.Counter

	// Sessions
	activeSessions     prometheus.Gauge
	activeParticipants prometheus.Gauge
	sessionsCreated    prometheus.Counter
	sessionsEnded      prometheus.Counter

	// Event bus
	busPublished   *prometheus.CounterVec
	busDropped     prometheus.Counter
	busSubscribers prometheus.Gauge

	// Reaction log sink
	reactionLogWrites   prometheus.Counter
	reactionLogFailures prometheus.Counter
	reactionLogBreaker  prometheus.Gauge

	// Transport
	wsConnections       prometheus.Gauge
	wsMessages          *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "attune",
		subsystem:        "engine",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(auto promauto.Factory, name, help string) prometheus.Counter {
	return auto.NewCounter(prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help})
}

func (m *Manager) gauge(auto promauto.Factory, name, help string) prometheus.Gauge {
	return auto.NewGauge(prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help})
}

func (m *Manager) histogram(auto promauto.Factory, name, help string) prometheus.Histogram {
	return auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) counterVec(auto promauto.Factory, name, help string, labels ...string) *prometheus.CounterVec {
	return auto.NewCounterVec(prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}, labels)
}

func (m *Manager) histogramVec(auto promauto.Factory, name, help string, labels ...string) *prometheus.HistogramVec {
	return auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics on the configured registry.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)

	m.reactionsProcessed = m.counter(auto, "reactions_processed_total", "Total number of reactions recorded into sessions")
	m.reactionsRejected = m.counterVec(auto, "reactions_rejected_total", "Total number of reactions rejected before mutation", "reason")
	m.reactionsDebounced = m.counter(auto, "reactions_debounced_total", "Total number of reactions superseded within a debounce window")
	m.pipelineLatency = m.histogram(auto, "pipeline_latency_milliseconds", "Reaction pipeline latency in milliseconds")
	m.autoAdvances = m.counter(auto, "auto_advances_total", "Total number of tracks skipped by the auto-advance rule")

	m.recommendationLatency = m.histogramVec(auto, "recommendation_latency_milliseconds", "Recommendation computation latency in milliseconds", "mode")
	m.recommendationsUpdated = m.counter(auto, "recommendations_updated_total", "Total number of recommendation updates published")
	m.recommendationFallbacks = m.counter(auto, "recommendation_fallbacks_total", "Total number of adaptive requests served by the combined strategy")

	m.activeSessions = m.gauge(auto, "active_sessions", "Current number of live sessions")
	m.activeParticipants = m.gauge(auto, "active_participants", "Current number of participants across live sessions")
	m.sessionsCreated = m.counter(auto, "sessions_created_total", "Total number of sessions created")
	m.sessionsEnded = m.counter(auto, "sessions_ended_total", "Total number of sessions ended")

	m.busPublished = m.counterVec(auto, "bus_published_total", "Total number of events published on the event bus", "event_type")
	m.busDropped = m.counter(auto, "bus_dropped_total", "Total number of events dropped for slow subscribers")
	m.busSubscribers = m.gauge(auto, "bus_subscribers", "Current number of event bus subscribers")

	m.reactionLogWrites = m.counter(auto, "reaction_log_writes_total", "Total number of reactions written to the durable log")
	m.reactionLogFailures = m.counter(auto, "reaction_log_failures_total", "Total number of failed or skipped durable log writes")
	m.reactionLogBreaker = m.gauge(auto, "reaction_log_breaker_state", "Reaction log circuit breaker state (0 closed, 1 half-open, 2 open)")

	m.wsConnections = m.gauge(auto, "ws_connections", "Current number of websocket connections")
	m.wsMessages = m.counterVec(auto, "ws_messages_total", "Total number of websocket frames", "direction")
	m.httpRequests = m.counterVec(auto, "http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec(auto, "http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = m.gauge(auto, "queue_size", "Current number of buffered reaction jobs")
	m.queueCapacity = m.gauge(auto, "queue_capacity", "Total reaction job capacity across shards")
	m.queueEnqueueTotal = m.counter(auto, "queue_enqueue_total", "Total number of reaction jobs enqueued")
	m.queueDequeueTotal = m.counter(auto, "queue_dequeue_total", "Total number of reaction jobs dequeued")
	m.queueEnqueueErrors = m.counter(auto, "queue_enqueue_errors_total", "Total number of reaction jobs rejected by a full or closed queue")

	m.workerActiveCount = m.gauge(auto, "worker_active_count", "Number of running shard workers")
	m.workerProcessingLatency = m.histogram(auto, "worker_processing_latency_milliseconds", "Worker job latency in milliseconds")
	m.workerErrors = m.counter(auto, "worker_errors_total", "Total number of worker job failures")

	m.errorsByComponent = m.counterVec(auto, "errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge(auto, "system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge(auto, "system_goroutine_count", "Number of goroutines")
}

// RecordReactionProcessed increments the processed reactions counter.
func RecordReactionProcessed() { globalManager.reactionsProcessed.Inc() }

// RecordReactionRejected counts a reaction rejected for the given reason.
func RecordReactionRejected(reason string) {
	globalManager.reactionsRejected.WithLabelValues(reason).Inc()
}

// RecordReactionDebounced counts a reaction superseded inside a debounce window.
func RecordReactionDebounced() { globalManager.reactionsDebounced.Inc() }

// RecordPipelineLatency records reaction pipeline latency in milliseconds.
func RecordPipelineLatency(latencyMs float64) { globalManager.pipelineLatency.Observe(latencyMs) }

// RecordAutoAdvance counts an automatic track change.
func RecordAutoAdvance() { globalManager.autoAdvances.Inc() }

// RecordRecommendationLatency records recommendation latency for a mode (combined, adaptive).
func RecordRecommendationLatency(mode string, latencyMs float64) {
	globalManager.recommendationLatency.WithLabelValues(mode).Observe(latencyMs)
}

// RecordRecommendationsUpdated counts a published recommendation update.
func RecordRecommendationsUpdated() { globalManager.recommendationsUpdated.Inc() }

// RecordRecommendationFallback counts an adaptive request answered by the combined strategy.
func RecordRecommendationFallback() { globalManager.recommendationFallbacks.Inc() }

// UpdateActiveSessions sets the number of live sessions.
func UpdateActiveSessions(count int) { globalManager.activeSessions.Set(float64(count)) }

// UpdateActiveParticipants sets the number of participants across live sessions.
func UpdateActiveParticipants(count int) { globalManager.activeParticipants.Set(float64(count)) }

// RecordSessionCreated increments the created sessions counter.
func RecordSessionCreated() { globalManager.sessionsCreated.Inc() }

// RecordSessionEnded increments the ended sessions counter.
func RecordSessionEnded() { globalManager.sessionsEnded.Inc() }

// RecordBusPublished counts an event published on the bus.
func RecordBusPublished(eventType string) {
	globalManager.busPublished.WithLabelValues(eventType).Inc()
}

// RecordBusDropped counts an event dropped for a slow subscriber.
func RecordBusDropped() { globalManager.busDropped.Inc() }

// UpdateBusSubscribers sets the number of bus subscribers.
func UpdateBusSubscribers(count int) { globalManager.busSubscribers.Set(float64(count)) }

// RecordReactionLogWrite counts a durable reaction log write.
func RecordReactionLogWrite() { globalManager.reactionLogWrites.Inc() }

// RecordReactionLogFailure counts a failed or skipped durable reaction log write.
func RecordReactionLogFailure() { globalManager.reactionLogFailures.Inc() }

// UpdateReactionLogBreakerState sets the breaker state gauge.
func UpdateReactionLogBreakerState(state int) {
	globalManager.reactionLogBreaker.Set(float64(state))
}

// UpdateWSConnections sets the number of open websocket connections.
func UpdateWSConnections(count int) { globalManager.wsConnections.Set(float64(count)) }

// RecordWSMessage counts a websocket frame in the given direction (in, out).
func RecordWSMessage(direction string) {
	globalManager.wsMessages.WithLabelValues(direction).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the number of buffered jobs.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the total queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueTotal.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueTotal.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
