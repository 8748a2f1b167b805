package observability

import (
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics of the analysis pipeline.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	stageDuration    *prometheus.HistogramVec
	runsTotal        *prometheus.CounterVec
	customersTotal   *prometheus.CounterVec
	fitEvaluations   *prometheus.HistogramVec
	fitFailures      *prometheus.CounterVec
	sourceErrors     *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	fitLogLikelihood *prometheus.GaugeVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// pipeline metrics in it. A private registry lets tests build as many
// instances as they need.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_stage_duration_seconds",
				Help:    "Duration of pipeline stages.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"stage"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_runs_total",
				Help: "Total batch runs by outcome.",
			},
			[]string{"status"},
		),
		customersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_customers_processed_total",
				Help: "Total customers scored, by pipeline.",
			},
			[]string{"pipeline"},
		),
		fitEvaluations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_fit_evaluations",
				Help:    "Objective evaluations per model fit.",
				Buckets: prometheus.ExponentialBuckets(10, 2, 12),
			},
			[]string{"model"},
		),
		fitFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_fit_failures_total",
				Help: "Total model fits that did not converge.",
			},
			[]string{"model"},
		),
		sourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_source_errors_total",
				Help: "Total errors loading customer records.",
			},
			[]string{"source"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_hits_total",
				Help: "Total run cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_misses_total",
				Help: "Total run cache misses.",
			},
			[]string{"cache"},
		),
		fitLogLikelihood: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crm_fit_log_likelihood",
				Help: "Log-likelihood of the latest fit.",
			},
			[]string{"model"},
		),
	}
}

// RecordStage records the duration of a pipeline stage.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncrRun increments the run counter with a status label.
func (m *Metrics) IncrRun(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}

// AddCustomers counts customers processed by a pipeline.
func (m *Metrics) AddCustomers(pipeline string, n int) {
	m.customersTotal.WithLabelValues(pipeline).Add(float64(n))
}

// RecordFit records a successful fit.
func (m *Metrics) RecordFit(report domain.FitReport) {
	m.fitEvaluations.WithLabelValues(report.Model).Observe(float64(report.Evaluations))
	m.fitLogLikelihood.WithLabelValues(report.Model).Set(report.LogLikelihood)
}

// IncrFitFailure increments the non-convergence counter.
func (m *Metrics) IncrFitFailure(model string) {
	m.fitFailures.WithLabelValues(model).Inc()
}

// IncrSourceError increments the source error counter.
func (m *Metrics) IncrSourceError(source string) {
	m.sourceErrors.WithLabelValues(source).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetPipelineSnapshot returns a snapshot of the pipeline counters suitable
// for the GET /v1/metrics/pipeline endpoint.
func (m *Metrics) GetPipelineSnapshot() *domain.PipelineMetrics {
	succeeded := getCounterValue(m.runsTotal, "success")
	failed := getCounterValue(m.runsTotal, "error")
	hits := getCounterValue(m.cacheHits, "runs")
	misses := getCounterValue(m.cacheMisses, "runs")

	total := succeeded + failed
	errorRate := float64(0)
	if total > 0 {
		errorRate = failed / total
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.PipelineMetrics{
		RunsTotal:          int64(total),
		RunsFailed:         int64(failed),
		ErrorRate:          errorRate,
		CustomersProcessed: int64(getCounterValue(m.customersTotal, "cltv")),
		FitFailures:        int64(getCounterValue(m.fitFailures, "bg-nbd") + getCounterValue(m.fitFailures, "gamma-gamma")),
		CacheHitRate:       hitRate,
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
