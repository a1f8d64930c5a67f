package billing

import (
	"net/http"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Manager is the ledger whose plan field the provider keeps in sync
	Manager *quota.Manager

	// Customers maps users to provider customers in both directions
	Customers CustomerStore

	// Claims propagates plan changes into auth token claims. Optional.
	Claims ClaimsUpdater

	// Notifier receives best-effort plan change notifications. Optional.
	Notifier Notifier

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Logger is optional. If nil, quota.NoopLogger is used.
	Logger quota.Logger

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.NewMetrics(reg, namespace) for Prometheus metrics.
	Metrics Metrics
}
