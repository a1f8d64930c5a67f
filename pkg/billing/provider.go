package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// Provider is the interface the HTTP layer uses to talk to the payment processor.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles validation, parsing, and ledger updates internally.
	WebhookHandler() http.Handler

	// SyncUser forces a synchronization of the user's plan from the provider.
	// This is used for "Restore Purchases" or reconciliation jobs.
	// Returns the detected plan and any error.
	SyncUser(ctx context.Context, userID string) (quota.Plan, error)

	// CheckoutURL opens a subscription checkout session for the user
	CheckoutURL(ctx context.Context, userID, email, successURL, cancelURL string) (string, error)

	// PortalURL opens a self-service portal session for the user's customer
	PortalURL(ctx context.Context, userID, returnURL string) (string, error)
}

// Notifier receives plan changes after they are persisted.
// Failures are logged by the caller and never roll back the plan write.
type Notifier interface {
	PlanChanged(ctx context.Context, event WebhookEvent) error
}

// ClaimsUpdater propagates a plan into the user's auth token claims.
type ClaimsUpdater interface {
	SetPlanClaim(ctx context.Context, userID string, plan quota.Plan) error
}
