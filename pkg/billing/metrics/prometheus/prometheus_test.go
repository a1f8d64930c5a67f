package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, labels map[string]string) float64 {
	for _, m := range f.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "fitgen")

	m.RecordWebhookEvent("stripe", "customer.subscription.updated", "success")
	m.RecordWebhookEvent("stripe", "customer.subscription.updated", "success")
	m.RecordWebhookError("stripe", "invalid_signature")
	m.RecordPlanChange("stripe", "free", "pro")
	m.RecordNotification("stripe", "error")
	m.RecordAPICall("stripe", "/customers", "success")
	m.RecordAPICallDuration("stripe", "/customers", 120*time.Millisecond)
	m.RecordUserSync("stripe", "success")
	m.RecordUserSyncDuration("stripe", time.Second)
	m.RecordWebhookProcessingDuration("stripe", "checkout.session.completed", 5*time.Millisecond)

	families := gather(t, reg)
	require.Contains(t, families, "fitgen_billing_webhook_events_total")
	assert.Equal(t, 2.0, counterValue(families["fitgen_billing_webhook_events_total"], map[string]string{"status": "success"}))
	assert.Equal(t, 1.0, counterValue(families["fitgen_billing_plan_changes_total"], map[string]string{"to_plan": "pro"}))
	assert.Equal(t, 1.0, counterValue(families["fitgen_billing_notifications_total"], map[string]string{"status": "error"}))

	for _, name := range []string{
		"fitgen_billing_webhook_errors_total",
		"fitgen_billing_webhook_processing_duration_seconds",
		"fitgen_billing_api_calls_total",
		"fitgen_billing_api_call_duration_seconds",
		"fitgen_billing_user_sync_total",
		"fitgen_billing_user_sync_duration_seconds",
	} {
		assert.Contains(t, families, name)
	}

	hist := families["fitgen_billing_api_call_duration_seconds"].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.Len(t, hist.GetBucket(), len(apiBuckets))
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "fitgen")
	assert.Panics(t, func() { NewMetrics(reg, "fitgen") })
}
