package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Pipeline stages
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec

	// Ingestion
	eventsLoaded  prometheus.Counter
	eventsSkipped *prometheus.CounterVec
	duplicateRows prometheus.Counter
	raceRows      prometheus.Gauge

	// Feature store
	featureRows         prometheus.Gauge
	featureColumns      prometheus.Gauge
	featureSetsSaved    prometheus.Counter
	featureStoreLatency *prometheus.HistogramVec

	// Ratings and models
	ratingUpdates prometheus.Counter
	driversRated  prometheus.Gauge
	modelMetric   *prometheus.GaugeVec

	// Provider
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerCache    *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitwall",
		subsystem:        "pipeline",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		enabled:          true,
		customLabels:     make(map[string]string),
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
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.stageRuns = auto.NewCounterVec(
		m.counterOpts("stage_runs_total", "Pipeline stage executions by outcome"),
		[]string{"stage", "outcome"},
	)
	m.stageDuration = auto.NewHistogramVec(
		m.histogramOpts("stage_duration_milliseconds", "Pipeline stage wall time in milliseconds"),
		[]string{"stage"},
	)

	m.eventsLoaded = auto.NewCounter(m.counterOpts("events_loaded_total", "Race events loaded from the provider"))
	m.eventsSkipped = auto.NewCounterVec(
		m.counterOpts("events_skipped_total", "Race events skipped during ingestion"),
		[]string{"reason"},
	)
	m.duplicateRows = auto.NewCounter(m.counterOpts("duplicate_rows_total", "Result rows dropped as duplicate (year, round, driver) keys"))
	m.raceRows = auto.NewGauge(m.gaugeOpts("race_rows", "Race result rows held by the last ingestion"))

	m.featureRows = auto.NewGauge(m.gaugeOpts("feature_rows", "Rows in the last engineered feature table"))
	m.featureColumns = auto.NewGauge(m.gaugeOpts("feature_columns", "Columns in the last engineered feature table"))
	m.featureSetsSaved = auto.NewCounter(m.counterOpts("feature_sets_saved_total", "Feature sets written to the store"))
	m.featureStoreLatency = auto.NewHistogramVec(
		m.histogramOpts("feature_store_latency_milliseconds", "Feature store operation latency in milliseconds"),
		[]string{"operation"},
	)

	m.ratingUpdates = auto.NewCounter(m.counterOpts("rating_updates_total", "Pairwise rating updates applied"))
	m.driversRated = auto.NewGauge(m.gaugeOpts("drivers_rated", "Drivers currently on the rating board"))
	m.modelMetric = auto.NewGaugeVec(
		m.gaugeOpts("model_metric", "Last evaluation metric value per model"),
		[]string{"model", "metric"},
	)

	m.providerRequests = auto.NewCounterVec(
		m.counterOpts("provider_requests_total", "Result provider requests by endpoint and outcome"),
		[]string{"endpoint", "outcome"},
	)
	m.providerLatency = auto.NewHistogramVec(
		m.histogramOpts("provider_request_duration_milliseconds", "Result provider request latency in milliseconds"),
		[]string{"endpoint"},
	)
	m.providerCache = auto.NewCounterVec(
		m.counterOpts("provider_cache_total", "Provider response cache lookups by result"),
		[]string{"result"},
	)
	m.breakerState = auto.NewGaugeVec(
		m.gaugeOpts("circuit_breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)"),
		[]string{"name"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
}

// RecordStageRun records one stage execution.
func RecordStageRun(stage, outcome string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.stageRuns.WithLabelValues(stage, outcome).Inc()
	globalManager.stageDuration.WithLabelValues(stage).Observe(durationMs)
}

// RecordEventLoaded increments the loaded events counter.
func RecordEventLoaded() {
	if !globalManager.enabled {
		return
	}
	globalManager.eventsLoaded.Inc()
}

// RecordEventSkipped increments the skipped events counter for reason.
func RecordEventSkipped(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.eventsSkipped.WithLabelValues(reason).Inc()
}

// RecordDuplicateRow increments the duplicate rows counter.
func RecordDuplicateRow() {
	if !globalManager.enabled {
		return
	}
	globalManager.duplicateRows.Inc()
}

// UpdateRaceRows sets the number of ingested race rows.
func UpdateRaceRows(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.raceRows.Set(float64(n))
}

// UpdateFeatureShape sets the shape of the last feature table.
func UpdateFeatureShape(rows, cols int) {
	if !globalManager.enabled {
		return
	}
	globalManager.featureRows.Set(float64(rows))
	globalManager.featureColumns.Set(float64(cols))
}

// RecordFeatureSetSaved increments the saved feature sets counter.
func RecordFeatureSetSaved() {
	if !globalManager.enabled {
		return
	}
	globalManager.featureSetsSaved.Inc()
}

// RecordFeatureStoreLatency observes one store operation.
func RecordFeatureStoreLatency(operation string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.featureStoreLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordRatingUpdates adds n applied rating updates.
func RecordRatingUpdates(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.ratingUpdates.Add(float64(n))
}

// UpdateDriversRated sets the rating board size.
func UpdateDriversRated(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.driversRated.Set(float64(n))
}

// UpdateModelMetric publishes one evaluation metric for a model.
func UpdateModelMetric(model, metric string, value float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.modelMetric.WithLabelValues(model, metric).Set(value)
}

// RecordProviderRequest records one provider request.
func RecordProviderRequest(endpoint, outcome string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.providerRequests.WithLabelValues(endpoint, outcome).Inc()
	globalManager.providerLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordProviderCache records a cache lookup result: "hit" or "miss".
func RecordProviderCache(result string) {
	if !globalManager.enabled {
		return
	}
	globalManager.providerCache.WithLabelValues(result).Inc()
}

// UpdateCircuitBreakerState sets the state of the named breaker.
func UpdateCircuitBreakerState(name string, state int) {
	if !globalManager.enabled {
		return
	}
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent increments the error counter for a component.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
