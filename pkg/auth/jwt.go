package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// JWTVerifier validates HMAC or JWKS-signed JWTs with golang-jwt
type JWTVerifier struct {
	parser  *jwt.Parser
	keyfunc jwt.Keyfunc
}

// NewHMACVerifier verifies HS256 tokens signed with secret.
// Empty issuer or audience disables that check.
func NewHMACVerifier(secret, issuer, audience string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must be set")
	}
	key := []byte(secret)
	return &JWTVerifier{
		parser: newParser(issuer, audience, jwt.SigningMethodHS256.Name),
		keyfunc: func(*jwt.Token) (interface{}, error) {
			return key, nil
		},
	}, nil
}

// NewJWKSVerifier verifies RS256 tokens against keys served at jwksURL
func NewJWKSVerifier(jwksURL, issuer, audience string) (*JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url must be set")
	}
	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}
	return &JWTVerifier{
		parser: newParser(issuer, audience,
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name),
		keyfunc: keyProvider.Keyfunc,
	}, nil
}

func newParser(issuer, audience string, methods ...string) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience = strings.TrimSpace(audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return jwt.NewParser(opts...)
}

// Verify implements Verifier
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*Identity, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: token missing sub", ErrInvalidToken)
	}

	return &Identity{UserID: sub, ClaimedPlan: PlanFromClaims(claims)}, nil
}
