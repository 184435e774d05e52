// Package metrics provides Prometheus metrics for the tourist safety live map service.
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

// Manager manages all Prometheus metrics for the live map service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Snapshot Metrics - the live reconciliation loop
	snapshotRefreshes     *prometheus.CounterVec
	snapshotRefreshErrors *prometheus.CounterVec
	snapshotFetchLatency  prometheus.Histogram
	snapshotApplied       prometheus.Counter
	snapshotTourists      prometheus.Gauge
	snapshotActiveAlerts  prometheus.Gauge

	// Render Metrics - marker synchronization
	markersPlaced       prometheus.Gauge
	markerSyncLatency   prometheus.Histogram
	malformedCoordinate prometheus.Counter
	orphanedAlerts      prometheus.Counter

	// Feed Metrics
	feedDepth prometheus.Gauge

	// Notification Metrics
	notificationsEmitted *prometheus.CounterVec

	// Bus Metrics - change-notification feed
	busPublished     *prometheus.CounterVec
	busDropped       prometheus.Counter
	busSubscriptions prometheus.Gauge

	// Surface Metrics - websocket map clients
	surfaceClients       prometheus.Gauge
	surfaceFramesDropped prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tourwatch",
		subsystem:        "livemap",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Snapshot Metrics
	m.snapshotRefreshes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_refreshes_total",
		Help:      "Total number of collection re-fetches, by collection",
	}, []string{"collection"})

	m.snapshotRefreshErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_refresh_errors_total",
		Help:      "Total number of failed collection re-fetches, by collection",
	}, []string{"collection"})

	m.snapshotFetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_fetch_latency_milliseconds",
		Help:      "Store fetch latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.snapshotApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_applied_total",
		Help:      "Total number of snapshots published to dependents",
	})

	m.snapshotTourists = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_tourists",
		Help:      "Number of tourists in the current snapshot",
	})

	m.snapshotActiveAlerts = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_active_alerts",
		Help:      "Number of active alerts in the current snapshot",
	})

	// Render Metrics
	m.markersPlaced = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "markers_placed",
		Help:      "Number of markers currently placed on the rendering surface",
	})

	m.markerSyncLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "marker_sync_latency_milliseconds",
		Help:      "Marker synchronization latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.malformedCoordinate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "malformed_coordinates_total",
		Help:      "Total number of tourists skipped for missing or malformed coordinates",
	})

	m.orphanedAlerts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "orphaned_alerts_total",
		Help:      "Total number of alerts referencing a tourist missing from the snapshot",
	})

	// Feed Metrics
	m.feedDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_depth",
		Help:      "Number of active alerts in the ordered feed",
	})

	// Notification Metrics
	m.notificationsEmitted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_emitted_total",
		Help:      "Total number of transient notifications emitted, by urgency",
	}, []string{"urgency"})

	// Bus Metrics
	m.busPublished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_published_total",
		Help:      "Total number of change events published, by collection",
	}, []string{"collection"})

	m.busDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_dropped_total",
		Help:      "Total number of change events dropped on slow subscribers",
	})

	m.busSubscriptions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_subscriptions",
		Help:      "Number of live change-feed subscriptions",
	})

	// Surface Metrics
	m.surfaceClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "surface_clients",
		Help:      "Number of connected live map clients",
	})

	m.surfaceFramesDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "surface_frames_dropped_total",
		Help:      "Total number of frames dropped on slow map clients",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	// Enhanced Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Total number of errors by component and type",
	}, []string{"component", "error_type"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_endpoint_total",
		Help:      "Total number of HTTP errors by endpoint",
	}, []string{"endpoint", "method", "error_type"})

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// Snapshot Metrics Functions.

// RecordSnapshotRefresh increments the re-fetch counter for a collection.
func RecordSnapshotRefresh(collection string) {
	globalManager.snapshotRefreshes.WithLabelValues(collection).Inc()
}

// RecordSnapshotRefreshError increments the failed re-fetch counter for a collection.
func RecordSnapshotRefreshError(collection string) {
	globalManager.snapshotRefreshErrors.WithLabelValues(collection).Inc()
}

// RecordSnapshotFetchLatency records store fetch latency in milliseconds.
func RecordSnapshotFetchLatency(latencyMs float64) {
	globalManager.snapshotFetchLatency.Observe(latencyMs)
}

// RecordSnapshotApplied increments the published-snapshot counter.
func RecordSnapshotApplied() {
	globalManager.snapshotApplied.Inc()
}

// UpdateSnapshotTourists sets the tourist count of the current snapshot.
func UpdateSnapshotTourists(count int) {
	globalManager.snapshotTourists.Set(float64(count))
}

// UpdateSnapshotActiveAlerts sets the active-alert count of the current snapshot.
func UpdateSnapshotActiveAlerts(count int) {
	globalManager.snapshotActiveAlerts.Set(float64(count))
}

// Render Metrics Functions.

// UpdateMarkersPlaced sets the number of markers on the surface.
func UpdateMarkersPlaced(count int) {
	globalManager.markersPlaced.Set(float64(count))
}

// RecordMarkerSyncLatency records marker synchronization latency in milliseconds.
func RecordMarkerSyncLatency(latencyMs float64) {
	globalManager.markerSyncLatency.Observe(latencyMs)
}

// RecordMalformedCoordinate increments the malformed-coordinate counter.
func RecordMalformedCoordinate() {
	globalManager.malformedCoordinate.Inc()
}

// RecordOrphanedAlert increments the orphaned-alert counter.
func RecordOrphanedAlert() {
	globalManager.orphanedAlerts.Inc()
}

// Feed Metrics Functions.

// UpdateFeedDepth sets the depth of the ordered alert feed.
func UpdateFeedDepth(depth int) {
	globalManager.feedDepth.Set(float64(depth))
}

// Notification Metrics Functions.

// RecordNotificationEmitted increments the notification counter for an urgency.
func RecordNotificationEmitted(urgency string) {
	globalManager.notificationsEmitted.WithLabelValues(urgency).Inc()
}

// Bus Metrics Functions.

// RecordBusPublished increments the published change-event counter for a collection.
func RecordBusPublished(collection string) {
	globalManager.busPublished.WithLabelValues(collection).Inc()
}

// RecordBusDropped increments the dropped change-event counter.
func RecordBusDropped() {
	globalManager.busDropped.Inc()
}

// UpdateBusSubscriptions sets the number of live subscriptions.
func UpdateBusSubscriptions(count int) {
	globalManager.busSubscriptions.Set(float64(count))
}

// Surface Metrics Functions.

// UpdateSurfaceClients sets the number of connected map clients.
func UpdateSurfaceClients(count int) {
	globalManager.surfaceClients.Set(float64(count))
}

// RecordSurfaceFrameDropped increments the dropped-frame counter.
func RecordSurfaceFrameDropped() {
	globalManager.surfaceFramesDropped.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error for a specific component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error for a specific endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry for serving metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
