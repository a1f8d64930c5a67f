// Package memory provides an in-memory implementation of the quota.Storage interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// Storage implements quota.Storage and billing.CustomerStore using in-memory maps
type Storage struct {
	mu           sync.Mutex
	entitlements map[string]*quota.Entitlement
	customers    map[string]string // userID -> customerID
	clock        quota.Clock
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return NewWithClock(quota.SystemClock{})
}

// NewWithClock creates an in-memory adapter that stamps UpdatedAt from clock
func NewWithClock(clock quota.Clock) *Storage {
	return &Storage{
		entitlements: make(map[string]*quota.Entitlement),
		customers:    make(map[string]string),
		clock:        clock,
	}
}

// GetEntitlement implements quota.Storage
func (s *Storage) GetEntitlement(_ context.Context, userID string) (*quota.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		return nil, quota.ErrEntitlementNotFound
	}

	// Return a copy to prevent external mutations
	return ent.Clone(), nil
}

// UpdateEntitlement implements quota.Storage. The whole read-modify-write runs under one lock.
func (s *Storage) UpdateEntitlement(
	ctx context.Context, userID string, fn quota.UpdateFunc,
) (*quota.Entitlement, error) {
	if userID == "" {
		return nil, quota.ErrInvalidUserID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entitlements[userID]
	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current.Clone(), nil
	}

	// Store a copy to prevent external mutations
	stored := next.Clone()
	stored.UserID = userID
	s.entitlements[userID] = stored
	return stored.Clone(), nil
}

// SetPlan implements quota.Storage
func (s *Storage) SetPlan(_ context.Context, userID string, plan quota.Plan, subscriptionID string) error {
	if userID == "" {
		return quota.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		ent = &quota.Entitlement{UserID: userID, Usage: map[quota.Category]int{}}
		s.entitlements[userID] = ent
	}
	ent.Plan = plan
	ent.SubscriptionID = subscriptionID
	ent.UpdatedAt = s.clock.Now().UTC()
	return nil
}

// GetCustomerID implements billing.CustomerStore
func (s *Storage) GetCustomerID(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customerID, ok := s.customers[userID]
	if !ok || customerID == "" {
		return "", billing.ErrCustomerNotFound
	}
	return customerID, nil
}

// SetCustomerID implements billing.CustomerStore
func (s *Storage) SetCustomerID(_ context.Context, userID, customerID string) error {
	if userID == "" {
		return quota.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers[userID] = customerID
	return nil
}

// FindUserByCustomerID implements billing.CustomerStore
func (s *Storage) FindUserByCustomerID(_ context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", billing.ErrUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, id := range s.customers {
		if id == customerID {
			return userID, nil
		}
	}
	return "", billing.ErrUserNotFound
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entitlements = make(map[string]*quota.Entitlement)
	s.customers = make(map[string]string)
}

var (
	_ quota.Storage         = (*Storage)(nil)
	_ billing.CustomerStore = (*Storage)(nil)
)
