// Package http provides the request gate placed in front of every
// externally callable endpoint: origin validation, CORS and bearer-token
// authentication.
package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"

	"github.com/mihaimyh/fitgen/pkg/apperr"
	"github.com/mihaimyh/fitgen/pkg/auth"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

var (
	defaultAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultAllowedHeaders = []string{"Authorization", "Content-Type"}
)

// Config holds gate configuration
type Config struct {
	// Verifier validates bearer tokens (required)
	Verifier auth.Verifier

	// AllowedOrigins is the origin allow-list. Empty allows any origin.
	AllowedOrigins []string

	// AllowedMethods and AllowedHeaders are advertised on preflight responses
	AllowedMethods []string
	AllowedHeaders []string

	// MaxAge is how long browsers may cache a preflight result
	// Default: 1 hour
	MaxAge time.Duration

	Logger quota.Logger

	// OnRejected is called when the request fails origin or auth checks
	// If nil, the standard error envelope is written
	OnRejected func(w http.ResponseWriter, r *http.Request, err error)
}

// Gate validates the origin and the bearer token of each request
type Gate struct {
	verifier   auth.Verifier
	origins    map[string]struct{}
	cors       *cors.Cors
	logger     quota.Logger
	onRejected func(w http.ResponseWriter, r *http.Request, err error)
}

// New creates a Gate
func New(config Config) (*Gate, error) {
	if config.Verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if len(config.AllowedMethods) == 0 {
		config.AllowedMethods = defaultAllowedMethods
	}
	if len(config.AllowedHeaders) == 0 {
		config.AllowedHeaders = defaultAllowedHeaders
	}
	if config.MaxAge == 0 {
		config.MaxAge = time.Hour
	}
	if config.Logger == nil {
		config.Logger = &quota.NoopLogger{}
	}

	g := &Gate{
		verifier:   config.Verifier,
		origins:    make(map[string]struct{}, len(config.AllowedOrigins)),
		logger:     config.Logger,
		onRejected: config.OnRejected,
	}
	for _, origin := range config.AllowedOrigins {
		if origin = NormalizeOrigin(origin); origin != "" {
			g.origins[origin] = struct{}{}
		}
	}

	opts := cors.Options{
		AllowedMethods:     config.AllowedMethods,
		AllowedHeaders:     config.AllowedHeaders,
		MaxAge:             int(config.MaxAge.Seconds()),
		OptionsPassthrough: true,
	}
	if len(g.origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowOriginFunc = func(_ *http.Request, origin string) bool {
			return g.originAllowed(origin)
		}
	}
	g.cors = cors.New(opts)

	if g.onRejected == nil {
		g.onRejected = func(w http.ResponseWriter, r *http.Request, err error) {
			apperr.WriteError(w, g.logger, err,
				quota.F("path", r.URL.Path),
				quota.F("origin", r.Header.Get("Origin")))
		}
	}
	return g, nil
}

// Middleware returns the gate as an http middleware. CORS headers and
// preflight responses come from go-chi/cors; the gate then rejects
// disallowed origins before looking at credentials.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return g.cors.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// go-chi/cors has already set the preflight headers; OPTIONS never
		// reaches handlers.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !g.originAllowed(r.Header.Get("Origin")) {
			g.onRejected(w, r, apperr.New(apperr.CodeOriginRejected, "origin not allowed"))
			return
		}

		token, ok := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			g.onRejected(w, r, apperr.New(apperr.CodeUnauthenticated, "missing or malformed bearer token"))
			return
		}

		identity, err := g.verifier.Verify(r.Context(), token)
		if err != nil {
			g.onRejected(w, r, apperr.Wrap(apperr.CodeUnauthenticated, err, "invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	}))
}

// HandlerFunc wraps a handler function with the gate
func (g *Gate) HandlerFunc(next http.HandlerFunc) http.HandlerFunc {
	return g.Middleware(next).ServeHTTP
}

// originAllowed reports whether origin passes the allow-list. Without an
// allow-list every origin passes, including a missing one.
func (g *Gate) originAllowed(raw string) bool {
	if len(g.origins) == 0 {
		return true
	}
	origin := NormalizeOrigin(raw)
	if origin == "" {
		return false
	}
	_, ok := g.origins[origin]
	return ok
}

// NormalizeOrigin trims whitespace and trailing slashes
func NormalizeOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}

// MethodNotAllowed writes the method_not_allowed envelope. It is meant for
// the router's method-not-allowed hook.
func MethodNotAllowed(logger quota.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apperr.WriteError(w, logger, apperr.New(apperr.CodeMethodNotAllowed, r.Method+" not allowed"),
			quota.F("path", r.URL.Path))
	}
}
