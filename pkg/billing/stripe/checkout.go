package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/fitgen/pkg/billing"
)

// CheckoutURL creates a subscription Checkout Session for the configured price
// and returns its URL. The Stripe customer is created on first use.
func (p *Provider) CheckoutURL(ctx context.Context, userID, email, successURL, cancelURL string) (string, error) {
	if p.priceID == "" {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "price_not_configured")
		return "", billing.ErrPriceNotConfigured
	}

	customerID, err := p.ensureCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}

	startTime := p.clock.Now()
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
	}
	params.AddMetadata(metadataUserID, userID)
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(metadataUserID, userID)

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", p.clock.Now().Sub(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "error")
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	p.metrics.RecordAPICall(providerName, "/checkout/sessions", "success")

	return session.URL, nil
}

// PortalURL creates a Billing Portal session for the user's customer
func (p *Provider) PortalURL(ctx context.Context, userID, returnURL string) (string, error) {
	customerID, err := p.customers.GetCustomerID(ctx, userID)
	if err != nil {
		if errors.Is(err, billing.ErrCustomerNotFound) {
			p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "customer_not_found")
			return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, userID)
		}
		return "", fmt.Errorf("lookup customer: %w", err)
	}

	startTime := p.clock.Now()
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	session, err := p.stripeClient.V1BillingPortalSessions.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/billing_portal/sessions", p.clock.Now().Sub(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "error")
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "success")

	return session.URL, nil
}

// ensureCustomer returns the mapped customer, creating it in Stripe when the
// user has none. Storage failures abort so no duplicate customer is created.
func (p *Provider) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	customerID, err := p.customers.GetCustomerID(ctx, userID)
	if err == nil {
		return customerID, nil
	}
	if !errors.Is(err, billing.ErrCustomerNotFound) {
		p.metrics.RecordAPICall(providerName, "/customers", "customer_resolution_failed")
		return "", fmt.Errorf("lookup customer: %w", err)
	}

	params := &stripe.CustomerCreateParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(metadataUserID, userID)

	startTime := p.clock.Now()
	cust, err := p.stripeClient.V1Customers.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/customers", p.clock.Now().Sub(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/customers", "error")
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	p.metrics.RecordAPICall(providerName, "/customers", "success")

	if err := p.customers.SetCustomerID(ctx, userID, cust.ID); err != nil {
		return "", fmt.Errorf("store customer mapping: %w", err)
	}
	return cust.ID, nil
}
