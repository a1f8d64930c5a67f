package api

import (
	"time"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// GenerateResponse is the body of a successful generation
type GenerateResponse struct {
	Text      string `json:"text"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"` // RFC 3339
	Plan      string `json:"plan"`
}

// UsageResponse represents the complete quota state for a user
type UsageResponse struct {
	UserID     string                         `json:"userId"`
	Plan       string                         `json:"plan"`
	ResetAt    *time.Time                     `json:"resetAt,omitempty"`
	Categories map[string]quota.CategoryUsage `json:"categories"`
}

// CheckoutRequest optionally carries the email prefilled on the checkout page
type CheckoutRequest struct {
	Email string `json:"email,omitempty"`
}

// URLResponse carries a payment page URL
type URLResponse struct {
	URL string `json:"url"`
}

// SyncResponse reports the plan after reconciling with the payment processor
type SyncResponse struct {
	Plan string `json:"plan"`
}
