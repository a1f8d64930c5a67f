package billing

import (
	"time"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// WebhookEvent describes a plan change applied from a provider event.
// It is passed to the Notifier after the entitlement has been updated in storage.
type WebhookEvent struct {
	// ID is the provider event ID
	ID string

	// UserID is the internal user identifier
	UserID string

	// PreviousPlan is the plan before the update (empty if the user had no record)
	PreviousPlan quota.Plan

	// NewPlan is the plan after the update
	NewPlan quota.Plan

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type
	// Stripe: "checkout.session.completed", "customer.subscription.updated", etc.
	EventType string

	// CustomerID and SubscriptionID are the provider identifiers the event carried
	CustomerID     string
	SubscriptionID string

	// Status is the subscription status reported by the provider
	Status string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time
}
