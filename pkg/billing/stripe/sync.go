package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

const syncEventType = "sync"

// syncUserFromAPI reconciles the stored plan with the subscriptions Stripe reports
func (p *Provider) syncUserFromAPI(ctx context.Context, userID string) (quota.Plan, error) {
	startTime := p.clock.Now()
	plan, err := p.syncUser(ctx, userID)

	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordUserSync(providerName, status)
	p.metrics.RecordUserSyncDuration(providerName, p.clock.Now().Sub(startTime))
	return plan, err
}

func (p *Provider) syncUser(ctx context.Context, userID string) (quota.Plan, error) {
	if strings.TrimSpace(userID) == "" {
		return quota.PlanFree, quota.ErrInvalidUserID
	}

	customerID, err := p.customers.GetCustomerID(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrCustomerNotFound):
		// customers created outside checkout carry the user in their metadata
		customerID, err = p.searchCustomerByMetadata(ctx, userID)
		if errors.Is(err, billing.ErrCustomerNotFound) {
			return quota.PlanFree, p.apply(ctx, planChange{
				eventType: syncEventType,
				userID:    userID,
				plan:      quota.PlanFree,
				at:        p.clock.Now(),
			})
		}
		if err != nil {
			return quota.PlanFree, err
		}
		if err := p.customers.SetCustomerID(ctx, userID, customerID); err != nil {
			return quota.PlanFree, fmt.Errorf("store customer mapping: %w", err)
		}
	default:
		return quota.PlanFree, fmt.Errorf("lookup customer: %w", err)
	}

	change, err := p.currentSubscription(ctx, customerID)
	if err != nil {
		return quota.PlanFree, err
	}
	change.userID = userID
	change.at = p.clock.Now()

	if err := p.apply(ctx, change); err != nil {
		return change.plan, err
	}
	return change.plan, nil
}

// currentSubscription picks the first entitling subscription of the customer
func (p *Provider) currentSubscription(ctx context.Context, customerID string) (planChange, error) {
	startTime := p.clock.Now()
	change := planChange{
		eventType:  syncEventType,
		customerID: customerID,
		plan:       quota.PlanFree,
	}

	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)

	for sub, err := range p.stripeClient.V1Subscriptions.List(ctx, params) {
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/subscriptions", "error")
			return change, fmt.Errorf("list subscriptions: %w", err)
		}
		if PlanForStatus(sub.Status) == quota.PlanPro {
			change.plan = quota.PlanPro
			change.subscriptionID = sub.ID
			change.status = string(sub.Status)
			break
		}
	}

	p.metrics.RecordAPICall(providerName, "/subscriptions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/subscriptions", p.clock.Now().Sub(startTime))
	return change, nil
}

// searchCustomerByMetadata searches for a customer by metadata using the Stripe Search API
func (p *Provider) searchCustomerByMetadata(ctx context.Context, userID string) (string, error) {
	params := &stripe.CustomerSearchParams{}
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", metadataUserID, strings.ReplaceAll(userID, "'", "\\'"))

	for cust, err := range p.stripeClient.V1Customers.Search(ctx, params) {
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/customers/search", "error")
			return "", fmt.Errorf("stripe search error: %w", err)
		}
		// search is eventually consistent and may return loose matches
		if cust.Metadata[metadataUserID] == userID {
			p.metrics.RecordAPICall(providerName, "/customers/search", "success")
			return cust.ID, nil
		}
	}

	p.metrics.RecordAPICall(providerName, "/customers/search", "not_found")
	return "", billing.ErrCustomerNotFound
}
