// Package metrics provides Prometheus metrics for the crewboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Source
	fetchTotal    *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	fetchRetries  prometheus.Counter
	rowsFetched   *prometheus.GaugeVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	cacheEntries  prometheus.Gauge
	cacheResets   prometheus.Counter
	sessionsTotal prometheus.Counter

	// Pipeline
	reportsTotal    *prometheus.CounterVec
	reportErrors    *prometheus.CounterVec
	reportLatency   *prometheus.HistogramVec
	rowsDropped     *prometheus.CounterVec
	insightsEmitted *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crewboard",
		subsystem:        "reports",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.fetchTotal = auto.NewCounterVec(m.counterOpts("fetch_total", "Spreadsheet fetches by page"), []string{"page"})
	m.fetchErrors = auto.NewCounterVec(m.counterOpts("fetch_errors_total", "Failed fetches by error kind"), []string{"kind"})
	m.fetchLatency = auto.NewHistogramVec(m.histogramOpts("fetch_latency_seconds", "Spreadsheet fetch latency"), []string{"page"})
	m.fetchRetries = auto.NewCounter(m.counterOpts("fetch_retries_total", "Fetch attempts retried after a transient failure"))
	m.rowsFetched = auto.NewGaugeVec(m.gaugeOpts("rows_fetched", "Rows in the most recent fetch by page"), []string{"page"})
	m.cacheHits = auto.NewCounter(m.counterOpts("cache_hits_total", "Dataset cache hits"))
	m.cacheMisses = auto.NewCounter(m.counterOpts("cache_misses_total", "Dataset cache misses"))
	m.cacheEntries = auto.NewGauge(m.gaugeOpts("cache_entries", "Datasets currently cached"))
	m.cacheResets = auto.NewCounter(m.counterOpts("cache_resets_total", "Cache resets caused by new sessions"))
	m.sessionsTotal = auto.NewCounter(m.counterOpts("sessions_total", "Sessions started"))

	m.reportsTotal = auto.NewCounterVec(m.counterOpts("built_total", "Reports built by page"), []string{"page"})
	m.reportErrors = auto.NewCounterVec(m.counterOpts("errors_total", "Report failures by page and kind"), []string{"page", "kind"})
	m.reportLatency = auto.NewHistogramVec(m.histogramOpts("latency_seconds", "Pipeline latency excluding fetch"), []string{"page"})
	m.rowsDropped = auto.NewCounterVec(m.counterOpts("rows_dropped_total", "Rows dropped by normalization"), []string{"page"})
	m.insightsEmitted = auto.NewCounterVec(m.counterOpts("insights_total", "Insights emitted by severity"), []string{"page", "severity"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_seconds", "HTTP request duration"),
		[]string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("http_errors_total", "HTTP errors by endpoint"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_ms", "Average GC pause in milliseconds"))
}

// RecordFetch records a completed fetch and its duration in seconds.
func RecordFetch(page string, seconds float64, rows int) {
	globalManager.fetchTotal.WithLabelValues(page).Inc()
	globalManager.fetchLatency.WithLabelValues(page).Observe(seconds)
	globalManager.rowsFetched.WithLabelValues(page).Set(float64(rows))
}

// RecordFetchError increments the fetch error counter for kind.
func RecordFetchError(kind string) {
	globalManager.fetchErrors.WithLabelValues(kind).Inc()
}

// RecordFetchRetry increments the retry counter.
func RecordFetchRetry() {
	globalManager.fetchRetries.Inc()
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// UpdateCacheEntries sets the number of cached datasets.
func UpdateCacheEntries(n int) {
	globalManager.cacheEntries.Set(float64(n))
}

// RecordCacheReset increments the cache reset counter.
func RecordCacheReset() {
	globalManager.cacheResets.Inc()
}

// RecordSession increments the session counter.
func RecordSession() {
	globalManager.sessionsTotal.Inc()
}

// RecordReport records a successful pipeline run.
func RecordReport(page string, seconds float64) {
	globalManager.reportsTotal.WithLabelValues(page).Inc()
	globalManager.reportLatency.WithLabelValues(page).Observe(seconds)
}

// RecordReportError records a failed pipeline run.
func RecordReportError(page, kind string) {
	globalManager.reportErrors.WithLabelValues(page, kind).Inc()
}

// RecordRowsDropped adds n rows dropped by normalization.
func RecordRowsDropped(page string, n int) {
	if n > 0 {
		globalManager.rowsDropped.WithLabelValues(page).Add(float64(n))
	}
}

// RecordInsight increments the insight counter for severity.
func RecordInsight(page, severity string) {
	globalManager.insightsEmitted.WithLabelValues(page, severity).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordErrorByEndpoint records an HTTP error with endpoint, method and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
