package billing

import "time"

// Metrics observes webhook handling, plan reconciliation and payment processor calls.
// Providers fall back to NoopMetrics when none is configured.
type Metrics interface {
	// RecordWebhookEvent counts a handled event. status is "success" or "error".
	RecordWebhookEvent(provider, eventType, status string)

	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError counts rejected or failed webhooks by reason,
	// e.g. "invalid_signature", "payload_too_large", "user_not_found", "rate_limited".
	RecordWebhookError(provider, errorType string)

	// RecordNotification counts plan change notifications ("success" or "error")
	RecordNotification(provider, status string)

	// RecordUserSync counts SyncUser runs ("success" or "error")
	RecordUserSync(provider, status string)
	RecordUserSyncDuration(provider string, duration time.Duration)

	// RecordPlanChange counts ledger plan transitions. fromPlan is "none" for new records.
	RecordPlanChange(provider, fromPlan, toPlan string)

	// RecordAPICall counts payment processor calls by endpoint and outcome
	RecordAPICall(provider, endpoint, status string)
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (*NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (*NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (*NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (*NoopMetrics) RecordNotification(_, _ string)                               {}
func (*NoopMetrics) RecordUserSync(_, _ string)                                   {}
func (*NoopMetrics) RecordUserSyncDuration(_ string, _ time.Duration)             {}
func (*NoopMetrics) RecordPlanChange(_, _, _ string)                              {}
func (*NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (*NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
