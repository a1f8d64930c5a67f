package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrUserNotFound is returned when no user maps to a billing customer
	ErrUserNotFound = errors.New("user not found for billing customer")

	// ErrCustomerNotFound is returned when a user has no billing customer yet
	ErrCustomerNotFound = errors.New("customer not found in billing provider")

	// ErrPriceNotConfigured is returned when checkout is attempted without a price ID
	ErrPriceNotConfigured = errors.New("subscription price not configured")
)
