package billing

import "context"

// CustomerStore persists the user <-> payment processor customer mapping.
// Every ledger backend implements it next to its entitlement records.
type CustomerStore interface {
	// GetCustomerID returns the customer ID for a user, or ErrCustomerNotFound
	GetCustomerID(ctx context.Context, userID string) (string, error)

	// SetCustomerID stores the customer ID for a user
	SetCustomerID(ctx context.Context, userID, customerID string) error

	// FindUserByCustomerID is the reverse lookup used by webhooks.
	// Returns the first matching user, or ErrUserNotFound.
	FindUserByCustomerID(ctx context.Context, customerID string) (string, error)
}
