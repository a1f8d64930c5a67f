package quota

import "errors"

var (
	// ErrQuotaExceeded is returned when a category has no units left in the current period
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidPlan is returned for an unknown plan name
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrInvalidCategory is returned for an unknown quota category
	ErrInvalidCategory = errors.New("invalid category")

	// ErrEntitlementNotFound is returned when user has no entitlement
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidUserID is returned when a user ID is empty
	ErrInvalidUserID = errors.New("invalid user id")
)
