// Package auth verifies bearer tokens and carries the caller's identity
// through the request context.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// PlanClaim is the custom token claim holding the user's plan
const PlanClaim = "plan"

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified caller
type Identity struct {
	UserID      string
	ClaimedPlan quota.Plan
}

// Verifier validates a bearer token
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type ctxKey int

const identityKey ctxKey = iota

// WithIdentity stores the identity in a context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity from a context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// ExtractBearerToken reads the token from an Authorization header value
func ExtractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// PlanFromClaims reads the plan claim, defaulting to free when absent or unknown
func PlanFromClaims(claims map[string]any) quota.Plan {
	raw, _ := claims[PlanClaim].(string)
	plan, err := quota.ParsePlan(raw)
	if err != nil {
		return quota.PlanFree
	}
	return plan
}
