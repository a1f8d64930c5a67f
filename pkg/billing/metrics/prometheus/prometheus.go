// Package prommetrics exports billing.Metrics as Prometheus collectors under
// the "<namespace>_billing_" prefix.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/fitgen/pkg/billing"
)

const subsystem = "billing"

// apiBuckets are sized for payment processor round trips
var apiBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics implements billing.Metrics
type Metrics struct {
	webhooks        *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	webhookErrors   *prometheus.CounterVec
	syncs           *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	planChanges     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	apiCalls        *prometheus.CounterVec
	apiDuration     *prometheus.HistogramVec
}

// NewMetrics registers the billing collectors on reg
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	return &Metrics{
		webhooks: counter("webhook_events_total",
			"Payment webhooks handled, by event type and outcome.", "provider", "event_type", "status"),
		webhookDuration: histogram("webhook_processing_duration_seconds",
			"Time spent applying one payment webhook.", prometheus.DefBuckets, "provider", "event_type"),
		webhookErrors: counter("webhook_errors_total",
			"Payment webhooks rejected or failed, by reason.", "provider", "error_type"),
		syncs: counter("user_sync_total",
			"Plan reconciliations pulled from the payment processor.", "provider", "status"),
		syncDuration: histogram("user_sync_duration_seconds",
			"Time spent reconciling one user's plan.", apiBuckets, "provider"),
		planChanges: counter("plan_changes_total",
			"Plan transitions written to the ledger.", "provider", "from_plan", "to_plan"),
		notifications: counter("notifications_total",
			"Plan change notifications, by outcome.", "provider", "status"),
		apiCalls: counter("api_calls_total",
			"Calls to the payment processor API.", "provider", "endpoint", "status"),
		apiDuration: histogram("api_call_duration_seconds",
			"Latency of payment processor API calls.", apiBuckets, "provider", "endpoint"),
	}
}

func (m *Metrics) RecordWebhookEvent(provider, eventType, status string) {
	m.webhooks.WithLabelValues(provider, eventType, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(provider, eventType string, d time.Duration) {
	m.webhookDuration.WithLabelValues(provider, eventType).Observe(d.Seconds())
}

func (m *Metrics) RecordWebhookError(provider, errorType string) {
	m.webhookErrors.WithLabelValues(provider, errorType).Inc()
}

func (m *Metrics) RecordUserSync(provider, status string) {
	m.syncs.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordUserSyncDuration(provider string, d time.Duration) {
	m.syncDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) RecordPlanChange(provider, fromPlan, toPlan string) {
	m.planChanges.WithLabelValues(provider, fromPlan, toPlan).Inc()
}

func (m *Metrics) RecordNotification(provider, status string) {
	m.notifications.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordAPICall(provider, endpoint, status string) {
	m.apiCalls.WithLabelValues(provider, endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(provider, endpoint string, d time.Duration) {
	m.apiDuration.WithLabelValues(provider, endpoint).Observe(d.Seconds())
}

var _ billing.Metrics = (*Metrics)(nil)
