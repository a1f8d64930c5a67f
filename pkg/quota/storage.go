package quota

import "context"

// UpdateFunc mutates an entitlement inside a storage transaction.
// It receives nil when no record exists and returns the record to persist,
// or nil to leave storage untouched. An error aborts the transaction.
type UpdateFunc func(current *Entitlement) (*Entitlement, error)

// Storage defines the interface for entitlement persistence.
type Storage interface {
	// GetEntitlement retrieves a user's entitlement
	// Returns ErrEntitlementNotFound when no record exists
	GetEntitlement(ctx context.Context, userID string) (*Entitlement, error)

	// UpdateEntitlement runs fn as an atomic read-modify-write of one record.
	// Concurrent calls for the same user are serialized or retried by the backend.
	UpdateEntitlement(ctx context.Context, userID string, fn UpdateFunc) (*Entitlement, error)

	// SetPlan merges plan and subscription ID into the record, creating it if needed.
	// Usage counters and the reset timestamp are not touched.
	SetPlan(ctx context.Context, userID string, plan Plan, subscriptionID string) error
}
