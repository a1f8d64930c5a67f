// Package firebase verifies Firebase ID tokens and writes the plan custom claim.
package firebase

import (
	"context"
	"errors"
	"fmt"

	fbauth "firebase.google.com/go/v4/auth"

	"github.com/mihaimyh/fitgen/pkg/auth"
	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// authClient is the subset of *auth.Client used here
type authClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	GetUser(ctx context.Context, uid string) (*fbauth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
}

// Provider implements auth.Verifier and billing.ClaimsUpdater on Firebase Auth
type Provider struct {
	client authClient
}

// New wraps a Firebase Auth client
func New(client *fbauth.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("firebase auth client is required")
	}
	return &Provider{client: client}, nil
}

// Verify implements auth.Verifier
func (p *Provider) Verify(ctx context.Context, idToken string) (*auth.Identity, error) {
	token, err := p.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}
	if token.UID == "" {
		return nil, fmt.Errorf("%w: token missing uid", auth.ErrInvalidToken)
	}
	return &auth.Identity{UserID: token.UID, ClaimedPlan: auth.PlanFromClaims(token.Claims)}, nil
}

// SetPlanClaim implements billing.ClaimsUpdater. Other custom claims are kept.
func (p *Provider) SetPlanClaim(ctx context.Context, userID string, plan quota.Plan) error {
	user, err := p.client.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	claims := make(map[string]interface{}, len(user.CustomClaims)+1)
	for k, v := range user.CustomClaims {
		claims[k] = v
	}
	if current, _ := claims[auth.PlanClaim].(string); current == string(plan) {
		return nil
	}
	claims[auth.PlanClaim] = string(plan)

	if err := p.client.SetCustomUserClaims(ctx, userID, claims); err != nil {
		return fmt.Errorf("failed to set plan claim for %s: %w", userID, err)
	}
	return nil
}

var (
	_ auth.Verifier         = (*Provider)(nil)
	_ billing.ClaimsUpdater = (*Provider)(nil)
)
