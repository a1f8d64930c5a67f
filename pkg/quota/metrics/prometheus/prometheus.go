package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// Metrics implements quota.Metrics using Prometheus.
type Metrics struct {
	consumptionTotal       *prometheus.CounterVec
	releaseTotal           *prometheus.CounterVec
	periodResetsTotal      prometheus.Counter
	storageOpsDuration     *prometheus.HistogramVec
	storageOpsErrors       *prometheus.CounterVec
	generationTotal        *prometheus.CounterVec
	generationDuration     *prometheus.HistogramVec
	normalizationStepTotal *prometheus.CounterVec
	catalogRefreshTotal    *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		consumptionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_consumption_total",
			Help:      "Total number of quota admission attempts.",
		}, []string{"category", "plan", "allowed"}),

		releaseTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_release_total",
			Help:      "Total number of quota units refunded after failed generations.",
		}, []string{"category"}),

		periodResetsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_period_resets_total",
			Help:      "Total number of entitlement period resets.",
		}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),

		generationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests by outcome.",
		}, []string{"task", "outcome"}),

		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "End-to-end latency of generation requests.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"task"}),

		normalizationStepTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalization_step_total",
			Help:      "Which normalization ladder step produced the validated output.",
		}, []string{"schema", "step"}),

		catalogRefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refresh_total",
			Help:      "Total number of exercise catalog refresh attempts.",
		}, []string{"success"}),
	}
}

func (m *Metrics) RecordConsumption(category, plan string, allowed bool) {
	m.consumptionTotal.WithLabelValues(category, plan, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) RecordRelease(category string) {
	m.releaseTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordPeriodReset() {
	m.periodResetsTotal.Inc()
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordGeneration(task, outcome string, duration time.Duration) {
	m.generationTotal.WithLabelValues(task, outcome).Inc()
	m.generationDuration.WithLabelValues(task).Observe(duration.Seconds())
}

func (m *Metrics) RecordNormalizationStep(schema, step string) {
	m.normalizationStepTotal.WithLabelValues(schema, step).Inc()
}

func (m *Metrics) RecordCatalogRefresh(err error) {
	m.catalogRefreshTotal.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
}

var _ quota.Metrics = (*Metrics)(nil)
