package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mihaimyh/fitgen/pkg/auth"
	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/pipeline"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// DefaultMaxBodyBytes fits an 8 MiB image after base64 expansion plus the payload
const DefaultMaxBodyBytes = 12 << 20

// Runner executes generation requests. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, caller *auth.Identity, in pipeline.Input) (*pipeline.Output, error)
}

// UsageReader reports a user's quota standing. *quota.Manager implements it.
type UsageReader interface {
	Usage(ctx context.Context, userID string, claimed quota.Plan) (*quota.Snapshot, error)
}

// Config holds configuration for the API handlers
type Config struct {
	// Pipeline runs generation requests (required)
	Pipeline Runner

	// Usage reads quota standing (required)
	Usage UsageReader

	// Billing opens checkout and portal sessions. Optional; without it the
	// billing endpoints answer config_error.
	Billing billing.Provider

	// CheckoutSuccessURL, CheckoutCancelURL and PortalReturnURL are where
	// the payment pages send the user back to
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string

	// MaxBodyBytes caps request bodies (default: DefaultMaxBodyBytes)
	MaxBodyBytes int64

	// GetIdentity extracts the verified caller.
	// Default: auth.IdentityFromContext, as set by the request gate
	GetIdentity func(*http.Request) (*auth.Identity, bool)

	// OnError handles errors. If nil, the standard envelope is written.
	OnError func(http.ResponseWriter, *http.Request, error)

	Logger quota.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if c.Usage == nil {
		return fmt.Errorf("usage reader is required")
	}
	return nil
}

// NewHandler creates the API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.GetIdentity == nil {
		config.GetIdentity = FromContext
	}
	if config.Logger == nil {
		config.Logger = &quota.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}

// FromContext reads the identity the request gate stored in the context
func FromContext(r *http.Request) (*auth.Identity, bool) {
	return auth.IdentityFromContext(r.Context())
}
