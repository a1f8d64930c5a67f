package quota

import (
	"context"
	"errors"
	"time"
)

// Manager enforces per-category usage limits over a Storage
type Manager struct {
	storage Storage
	config  Config
	clock   Clock
	logger  Logger
	metrics Metrics
}

// NewManager creates a new quota manager with the given storage and configuration
func NewManager(storage Storage, config Config) (*Manager, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	// Set defaults
	if config.Limits == nil {
		config.Limits = DefaultLimits()
	}
	if config.DefaultPlan == "" {
		config.DefaultPlan = PlanFree
	}
	if config.Period <= 0 {
		config.Period = DefaultPeriod
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	return &Manager{
		storage: storage,
		config:  config,
		clock:   config.Clock,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// CheckAndConsume admits one unit of category for userID.
// A missing record is created with the claimed plan. Once a record exists its
// stored plan decides the limit. A due reset is applied in the same transaction.
// When the category is exhausted the returned Decision has Allowed=false and
// the counters are left as they were.
func (m *Manager) CheckAndConsume(ctx context.Context, userID string, claimed Plan, category Category) (*Decision, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	if claimed == "" {
		claimed = m.config.DefaultPlan
	}

	var (
		decision Decision
		reset    bool
	)
	start := time.Now()
	_, err := m.storage.UpdateEntitlement(ctx, userID, func(current *Entitlement) (*Entitlement, error) {
		now := m.clock.Now()
		dirty := false
		reset = false

		ent := current.Clone()
		if ent == nil {
			ent = m.newEntitlement(userID, claimed, now)
			dirty = true
		}
		if changed, wasReset := m.applyReset(ent, now); changed {
			reset = wasReset
			dirty = true
		}

		limit := m.limit(ent.Plan, category)
		used := ent.Used(category)
		decision = Decision{
			Plan:     ent.Plan,
			Category: category,
			Used:     used,
			Limit:    limit,
			ResetAt:  ent.ResetAt,
		}

		if used >= limit {
			decision.Allowed = false
			decision.Remaining = 0
			if !dirty {
				return nil, nil
			}
			ent.UpdatedAt = now
			return ent, nil
		}

		ent.Usage[category] = used + 1
		ent.UpdatedAt = now
		decision.Allowed = true
		decision.Used = used + 1
		decision.Remaining = limit - used - 1
		return ent, nil
	})
	m.metrics.RecordStorageOperation("check_and_consume", time.Since(start), err)
	if err != nil {
		m.logger.Error("quota admission failed",
			F("user_id", userID), F("category", string(category)), F("error", err.Error()))
		return nil, err
	}

	if reset {
		m.metrics.RecordPeriodReset()
		m.logger.Info("quota period reset",
			F("user_id", userID), F("reset_at", decision.ResetAt))
	}
	m.metrics.RecordConsumption(string(category), string(decision.Plan), decision.Allowed)
	if !decision.Allowed {
		m.logger.Info("quota exceeded",
			F("user_id", userID), F("category", string(category)),
			F("used", decision.Used), F("limit", decision.Limit))
	}

	return &decision, nil
}

// Release refunds one unit of category, floored at zero.
// It is a no-op when the user has no record.
func (m *Manager) Release(ctx context.Context, userID string, category Category) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	if !category.Valid() {
		return ErrInvalidCategory
	}

	start := time.Now()
	_, err := m.storage.UpdateEntitlement(ctx, userID, func(current *Entitlement) (*Entitlement, error) {
		if current == nil {
			return nil, nil
		}
		now := m.clock.Now()
		ent := current.Clone()
		dirty, _ := m.applyReset(ent, now)

		if used := ent.Used(category); used > 0 {
			ent.Usage[category] = used - 1
			dirty = true
		}
		if !dirty {
			return nil, nil
		}
		ent.UpdatedAt = now
		return ent, nil
	})
	m.metrics.RecordStorageOperation("release", time.Since(start), err)
	if err != nil {
		m.logger.Error("quota release failed",
			F("user_id", userID), F("category", string(category)), F("error", err.Error()))
		return err
	}

	m.metrics.RecordRelease(string(category))
	return nil
}

// Usage returns a read-only view of every category. A pending reset is
// reflected in the view but not persisted.
func (m *Manager) Usage(ctx context.Context, userID string, claimed Plan) (*Snapshot, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if claimed == "" {
		claimed = m.config.DefaultPlan
	}

	now := m.clock.Now()
	ent, err := m.storage.GetEntitlement(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrEntitlementNotFound) {
			return nil, err
		}
		ent = m.newEntitlement(userID, claimed, now)
	}
	ent = ent.Clone()
	m.applyReset(ent, now)

	snap := &Snapshot{
		UserID:     userID,
		Plan:       ent.Plan,
		ResetAt:    ent.ResetAt,
		Categories: make(map[Category]CategoryUsage, len(Categories)),
	}
	for _, c := range Categories {
		limit := m.limit(ent.Plan, c)
		used := ent.Used(c)
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		snap.Categories[c] = CategoryUsage{Used: used, Limit: limit, Remaining: remaining}
	}
	return snap, nil
}

// SetPlan overwrites the stored plan and subscription ID without touching usage
func (m *Manager) SetPlan(ctx context.Context, userID string, plan Plan, subscriptionID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	if _, err := ParsePlan(string(plan)); err != nil {
		return err
	}

	start := time.Now()
	err := m.storage.SetPlan(ctx, userID, plan, subscriptionID)
	m.metrics.RecordStorageOperation("set_plan", time.Since(start), err)
	return err
}

// GetEntitlement retrieves a user's entitlement
func (m *Manager) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	return m.storage.GetEntitlement(ctx, userID)
}

// Limit returns the configured limit for a plan and category
func (m *Manager) Limit(plan Plan, category Category) int {
	return m.limit(plan, category)
}

// Period returns the configured reset window
func (m *Manager) Period() time.Duration {
	return m.config.Period
}

func (m *Manager) newEntitlement(userID string, plan Plan, now time.Time) *Entitlement {
	return &Entitlement{
		UserID:    userID,
		Plan:      plan,
		Usage:     zeroUsage(),
		ResetAt:   now.Add(m.config.Period),
		UpdatedAt: now,
	}
}

// applyReset zeroes all counters and advances ResetAt by one period when due.
// A record written by a plan merge has no ResetAt yet; it gets one without a reset.
func (m *Manager) applyReset(ent *Entitlement, now time.Time) (changed, reset bool) {
	if ent.Usage == nil {
		ent.Usage = zeroUsage()
	}
	if ent.ResetAt.IsZero() {
		ent.ResetAt = now.Add(m.config.Period)
		return true, false
	}
	if now.Before(ent.ResetAt) {
		return false, false
	}
	ent.Usage = zeroUsage()
	ent.ResetAt = ent.ResetAt.Add(m.config.Period)
	return true, true
}

// limit returns the quota limit for a category based on plan
func (m *Manager) limit(plan Plan, category Category) int {
	limits, ok := m.config.Limits[plan]
	if !ok {
		// Fall back to default plan
		limits, ok = m.config.Limits[m.config.DefaultPlan]
		if !ok {
			return 0
		}
	}
	return limits[category]
}

func zeroUsage() map[Category]int {
	usage := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		usage[c] = 0
	}
	return usage
}
