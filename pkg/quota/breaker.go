package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState is the state of a Breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker fails storage calls fast after consecutive backend failures.
// After ResetTimeout one trial call is let through; its outcome closes or
// reopens the breaker.
type Breaker struct {
	mu sync.Mutex

	state        BreakerState
	threshold    int
	resetTimeout time.Duration
	failures     int
	openedAt     time.Time
	trialRunning bool

	clock         Clock
	onStateChange func(BreakerState)
}

// BreakerConfig configures a Breaker
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker (default: 5)
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open before a trial call (default: 30s)
	ResetTimeout time.Duration

	Clock Clock

	// OnStateChange is called with the new state, under the breaker lock
	OnStateChange func(BreakerState)
}

// NewBreaker creates a closed breaker
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	return &Breaker{
		state:         BreakerClosed,
		threshold:     config.FailureThreshold,
		resetTimeout:  config.ResetTimeout,
		clock:         config.Clock,
		onStateChange: config.OnStateChange,
	}
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

func (b *Breaker) currentState() BreakerState {
	if b.state == BreakerOpen && !b.clock.Now().Before(b.openedAt.Add(b.resetTimeout)) {
		return BreakerHalfOpen
	}
	return b.state
}

// Execute runs fn unless the breaker is open
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.currentState() {
	case BreakerOpen:
		b.mu.Unlock()
		return fmt.Errorf("%w: circuit open", ErrStorageUnavailable)
	case BreakerHalfOpen:
		if b.trialRunning {
			b.mu.Unlock()
			return fmt.Errorf("%w: circuit half open", ErrStorageUnavailable)
		}
		b.trialRunning = true
		b.setState(BreakerHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialRunning = false
	if countsAsFailure(err) {
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.threshold {
			b.openedAt = b.clock.Now()
			b.setState(BreakerOpen)
		}
		return err
	}
	b.failures = 0
	b.setState(BreakerClosed)
	return err
}

func (b *Breaker) setState(state BreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	if b.onStateChange != nil {
		b.onStateChange(state)
	}
}

// countsAsFailure separates backend trouble from expected outcomes
func countsAsFailure(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrEntitlementNotFound),
		errors.Is(err, ErrInvalidUserID),
		errors.Is(err, ErrInvalidPlan),
		errors.Is(err, ErrInvalidCategory):
		return false
	}
	return true
}

// BreakerStorage wraps a Storage with a Breaker
type BreakerStorage struct {
	storage Storage
	breaker *Breaker
}

// NewBreakerStorage wraps storage
func NewBreakerStorage(storage Storage, breaker *Breaker) *BreakerStorage {
	return &BreakerStorage{storage: storage, breaker: breaker}
}

// GetEntitlement implements Storage
func (s *BreakerStorage) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	var ent *Entitlement
	err := s.breaker.Execute(func() error {
		var e error
		ent, e = s.storage.GetEntitlement(ctx, userID)
		return e
	})
	return ent, err
}

// UpdateEntitlement implements Storage
func (s *BreakerStorage) UpdateEntitlement(ctx context.Context, userID string, fn UpdateFunc) (*Entitlement, error) {
	var ent *Entitlement
	err := s.breaker.Execute(func() error {
		var e error
		ent, e = s.storage.UpdateEntitlement(ctx, userID, fn)
		return e
	})
	return ent, err
}

// SetPlan implements Storage
func (s *BreakerStorage) SetPlan(ctx context.Context, userID string, plan Plan, subscriptionID string) error {
	return s.breaker.Execute(func() error {
		return s.storage.SetPlan(ctx, userID, plan, subscriptionID)
	})
}

var _ Storage = (*BreakerStorage)(nil)
