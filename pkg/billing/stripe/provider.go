package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/fitgen/pkg/apperr"
	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/billing/internal"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxWebhookBodyBytes      = 256 * 1024
	metadataUserID           = "user_id"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config

	StripeAPIKey        string
	StripeWebhookSecret string

	// PriceID is the recurring price sold by CheckoutURL
	PriceID string

	// APIBaseURL overrides the Stripe API host. Tests point it at an httptest server.
	APIBaseURL string

	// Clock is used for durations and rate limiting. Defaults to the system clock.
	Clock quota.Clock
}

// Provider reconciles Stripe subscriptions into the quota ledger
type Provider struct {
	manager       *quota.Manager
	customers     billing.CustomerStore
	claims        billing.ClaimsUpdater
	notifier      billing.Notifier
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	priceID       string
	stripeClient  *stripe.Client
	clock         quota.Clock
	logger        quota.Logger
	metrics       billing.Metrics
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil || config.Customers == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if config.APIBaseURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(config.APIBaseURL, "/"))
	}
	stripeClient := stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig)))

	clock := config.Clock
	if clock == nil {
		clock = quota.SystemClock{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &quota.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	limiter := internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow, clock)
	limiter.OnLimited = func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordWebhookError(providerName, "rate_limited")
		apperr.WriteError(w, logger, apperr.New(apperr.CodeRateLimited, "too many webhook requests"),
			quota.F("ip", internal.GetClientIP(r)))
	}

	return &Provider{
		manager:       config.Manager,
		customers:     config.Customers,
		claims:        config.Claims,
		notifier:      config.Notifier,
		rateLimiter:   limiter,
		webhookSecret: strings.TrimSpace(config.StripeWebhookSecret),
		priceID:       strings.TrimSpace(config.PriceID),
		stripeClient:  stripeClient,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// SyncUser pulls the user's subscriptions from Stripe and writes the resulting plan
func (p *Provider) SyncUser(ctx context.Context, userID string) (quota.Plan, error) {
	return p.syncUserFromAPI(ctx, userID)
}

// PlanForStatus maps a Stripe subscription status to a plan
func PlanForStatus(status stripe.SubscriptionStatus) quota.Plan {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return quota.PlanPro
	default:
		return quota.PlanFree
	}
}

var _ billing.Provider = (*Provider)(nil)
