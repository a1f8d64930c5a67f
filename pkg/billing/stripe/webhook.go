package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/fitgen/pkg/apperr"
	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/billing/internal"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionCreated = "customer.subscription.created"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

// planChange is a plan write derived from a webhook event or a sync
type planChange struct {
	eventID        string
	eventType      string
	userID         string
	customerID     string
	subscriptionID string
	status         string
	plan           quota.Plan
	at             time.Time
}

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := p.clock.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		apperr.WriteError(w, p.logger, apperr.New(apperr.CodeMethodNotAllowed, "webhooks must be POSTed"))
		return
	}

	if p.webhookSecret == "" {
		p.metrics.RecordWebhookError(providerName, "not_configured")
		apperr.WriteError(w, p.logger, fmt.Errorf("%w: webhook secret missing", billing.ErrProviderNotConfigured))
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		apperr.WriteError(w, p.logger, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err))
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_signature")
		apperr.WriteError(w, p.logger, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err),
			quota.F("ip", internal.GetClientIP(r)))
		return
	}

	eventType := string(event.Type)
	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, p.clock.Now().Sub(startTime))
		apperr.WriteError(w, p.logger, err, quota.F("event_id", event.ID), quota.F("event_type", eventType))
		return
	}

	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, p.clock.Now().Sub(startTime))
	apperr.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	at := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case eventCheckoutCompleted:
		return p.handleCheckoutSessionCompleted(ctx, event, at)
	case eventSubscriptionCreated, eventSubscriptionUpdated, eventSubscriptionDeleted:
		return p.handleSubscriptionEvent(ctx, event, at)
	default:
		p.logger.Debug("ignoring stripe event", quota.F("event_id", event.ID), quota.F("event_type", string(event.Type)))
		return nil
	}
}

// handleCheckoutSessionCompleted upgrades the buyer as soon as checkout finishes,
// before the subscription events arrive.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event, at time.Time) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: checkout session: %v", billing.ErrInvalidWebhookPayload, err)
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	fallback := session.ClientReferenceID
	if fallback == "" && session.Metadata != nil {
		fallback = session.Metadata[metadataUserID]
	}

	userID, err := p.resolveUser(ctx, customerID, fallback)
	if err != nil {
		return p.skipUnresolved(event, customerID, err)
	}

	plan := quota.PlanFree
	if session.Status == stripe.CheckoutSessionStatusComplete {
		plan = quota.PlanPro
	}

	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}

	return p.apply(ctx, planChange{
		eventID:        event.ID,
		eventType:      string(event.Type),
		userID:         userID,
		customerID:     customerID,
		subscriptionID: subscriptionID,
		status:         string(session.Status),
		plan:           plan,
		at:             at,
	})
}

func (p *Provider) handleSubscriptionEvent(ctx context.Context, event *stripe.Event, at time.Time) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	userID, err := p.resolveUser(ctx, customerID, sub.Metadata[metadataUserID])
	if err != nil {
		return p.skipUnresolved(event, customerID, err)
	}

	change := planChange{
		eventID:        event.ID,
		eventType:      string(event.Type),
		userID:         userID,
		customerID:     customerID,
		subscriptionID: sub.ID,
		status:         string(sub.Status),
		plan:           PlanForStatus(sub.Status),
		at:             at,
	}
	if event.Type == eventSubscriptionDeleted {
		change.plan = quota.PlanFree
		change.subscriptionID = ""
	}

	return p.apply(ctx, change)
}

// resolveUser maps a customer to a user. When the mapping is missing and the
// event names the user, the mapping is stored for later events.
func (p *Provider) resolveUser(ctx context.Context, customerID, fallbackUserID string) (string, error) {
	if customerID != "" {
		userID, err := p.customers.FindUserByCustomerID(ctx, customerID)
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, billing.ErrUserNotFound) {
			return "", fmt.Errorf("lookup customer %s: %w", customerID, err)
		}
	}

	if fallbackUserID == "" {
		return "", billing.ErrUserNotFound
	}

	if customerID != "" {
		if err := p.customers.SetCustomerID(ctx, fallbackUserID, customerID); err != nil {
			return "", fmt.Errorf("store customer mapping: %w", err)
		}
	}
	return fallbackUserID, nil
}

// skipUnresolved acknowledges events for customers we cannot map. Storage
// failures are returned so Stripe retries.
func (p *Provider) skipUnresolved(event *stripe.Event, customerID string, err error) error {
	if !errors.Is(err, billing.ErrUserNotFound) {
		return err
	}
	p.metrics.RecordWebhookError(providerName, "user_not_found")
	p.logger.Warn("stripe event for unknown customer",
		quota.F("event_id", event.ID),
		quota.F("event_type", string(event.Type)),
		quota.F("customer_id", customerID),
	)
	return nil
}

// apply writes the plan, propagates it to the auth claims and notifies
// listeners when it changed. Writing the same plan twice is a no-op for
// listeners.
func (p *Provider) apply(ctx context.Context, change planChange) error {
	var previous quota.Plan
	existing, err := p.manager.GetEntitlement(ctx, change.userID)
	switch {
	case err == nil:
		previous = existing.Plan
	case !errors.Is(err, quota.ErrEntitlementNotFound):
		return fmt.Errorf("read entitlement: %w", err)
	}

	if err := p.manager.SetPlan(ctx, change.userID, change.plan, change.subscriptionID); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}

	changed := previous != change.plan
	if changed {
		from := string(previous)
		if from == "" {
			from = "none"
		}
		p.metrics.RecordPlanChange(providerName, from, string(change.plan))
		p.logger.Info("plan changed",
			quota.F("user_id", change.userID),
			quota.F("from", from),
			quota.F("to", string(change.plan)),
			quota.F("event_type", change.eventType),
		)
	}

	if p.claims != nil {
		if err := p.claims.SetPlanClaim(ctx, change.userID, change.plan); err != nil {
			p.logger.Error("failed to update plan claim",
				quota.F("user_id", change.userID),
				quota.F("plan", string(change.plan)),
				quota.F("error", err.Error()),
			)
			return fmt.Errorf("set plan claim: %w", err)
		}
	}

	if changed && p.notifier != nil {
		event := billing.WebhookEvent{
			ID:             change.eventID,
			UserID:         change.userID,
			PreviousPlan:   previous,
			NewPlan:        change.plan,
			Provider:       providerName,
			EventType:      change.eventType,
			CustomerID:     change.customerID,
			SubscriptionID: change.subscriptionID,
			Status:         change.status,
			EventTimestamp: change.at,
		}
		if err := p.notifier.PlanChanged(ctx, event); err != nil {
			p.metrics.RecordNotification(providerName, "error")
			p.logger.Warn("plan change notification failed",
				quota.F("user_id", change.userID),
				quota.F("error", err.Error()),
			)
		} else {
			p.metrics.RecordNotification(providerName, "success")
		}
	}

	return nil
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
