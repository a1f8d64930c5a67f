package quota

import (
	"strings"
	"time"
)

// DefaultPeriod is the length of one quota period
const DefaultPeriod = 30 * 24 * time.Hour

// Plan is a subscription plan
type Plan string

const (
	// PlanFree is the plan every user starts on
	PlanFree Plan = "free"
	// PlanPro is the paid plan
	PlanPro Plan = "pro"
)

// ParsePlan normalizes a plan name. Unknown names return ErrInvalidPlan.
func ParsePlan(s string) (Plan, error) {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanFree:
		return PlanFree, nil
	case PlanPro:
		return PlanPro, nil
	default:
		return "", ErrInvalidPlan
	}
}

// Category is an independently metered usage bucket
type Category string

const (
	CategoryRoutine   Category = "routine"
	CategoryNutrition Category = "nutrition"
	CategoryCoach     Category = "coach"
	CategoryAnalysis  Category = "analysis"
)

// Categories lists every quota category in display order
var Categories = []Category{CategoryRoutine, CategoryNutrition, CategoryCoach, CategoryAnalysis}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Entitlement is the persisted record of a user's plan and quota usage
type Entitlement struct {
	UserID         string
	Plan           Plan
	Usage          map[Category]int
	ResetAt        time.Time
	SubscriptionID string
	UpdatedAt      time.Time
}

// Used returns the counter for a category
func (e *Entitlement) Used(c Category) int {
	if e == nil || e.Usage == nil {
		return 0
	}
	return e.Usage[c]
}

// Clone returns a deep copy
func (e *Entitlement) Clone() *Entitlement {
	if e == nil {
		return nil
	}
	out := *e
	out.Usage = make(map[Category]int, len(e.Usage))
	for k, v := range e.Usage {
		out.Usage[k] = v
	}
	return &out
}

// Decision is the result of an admission check
type Decision struct {
	Allowed   bool
	Plan      Plan
	Category  Category
	Used      int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// CategoryUsage is the usage view of one category
type CategoryUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// Snapshot is a read-only view of all categories for a user
type Snapshot struct {
	UserID     string
	Plan       Plan
	ResetAt    time.Time
	Categories map[Category]CategoryUsage
}

// Config holds ledger configuration
type Config struct {
	// Limits maps plan -> category -> units per period
	Limits map[Plan]map[Category]int

	// DefaultPlan is used when the stored plan has no limits configured
	// Default: PlanFree
	DefaultPlan Plan

	// Period is the reset window
	// Default: DefaultPeriod (30 days)
	Period time.Duration

	// Clock supplies the current time. Default: SystemClock
	Clock Clock

	// Logger is optional. If nil, NoopLogger is used
	Logger Logger

	// Metrics is optional. If nil, NoopMetrics is used
	Metrics Metrics
}

// DefaultLimits returns the stock per-plan limits
func DefaultLimits() map[Plan]map[Category]int {
	return map[Plan]map[Category]int{
		PlanFree: {
			CategoryRoutine:   3,
			CategoryNutrition: 10,
			CategoryCoach:     10,
			CategoryAnalysis:  3,
		},
		PlanPro: {
			CategoryRoutine:   30,
			CategoryNutrition: 300,
			CategoryCoach:     300,
			CategoryAnalysis:  60,
		},
	}
}
