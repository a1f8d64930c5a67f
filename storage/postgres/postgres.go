// Package postgres provides a PostgreSQL implementation of the quota.Storage interface.
// This implementation uses SQL transactions with SELECT FOR UPDATE for atomic quota operations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// errInsertRace is returned when another transaction created the row first
var errInsertRace = errors.New("entitlement created concurrently")

const maxInsertAttempts = 3

// Storage implements quota.Storage and billing.CustomerStore using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies embedded migrations on startup
	AutoMigrate bool

	// Clock stamps updated_at (default: quota.SystemClock)
	Clock quota.Clock
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Clock == nil {
		config.Clock = quota.SystemClock{}
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool, config: config}

	if config.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetEntitlement implements quota.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*quota.Entitlement, error) {
	if userID == "" {
		return nil, quota.ErrInvalidUserID
	}

	ent, err := scanEntitlement(s.pool.QueryRow(ctx,
		`SELECT user_id, plan, subscription_id, usage, reset_at, updated_at
			FROM entitlements WHERE user_id = $1`,
		userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, quota.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	return ent, nil
}

// UpdateEntitlement implements quota.Storage. The row is locked with
// SELECT FOR UPDATE while fn runs. A missing row is inserted with
// ON CONFLICT DO NOTHING and the whole update retried if another
// transaction won the insert.
func (s *Storage) UpdateEntitlement(
	ctx context.Context, userID string, fn quota.UpdateFunc,
) (*quota.Entitlement, error) {
	if userID == "" {
		return nil, quota.ErrInvalidUserID
	}

	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		ent, err := s.updateEntitlement(ctx, userID, fn)
		if errors.Is(err, errInsertRace) {
			continue
		}
		return ent, err
	}
	return nil, fmt.Errorf("%w: %v", quota.ErrStorageUnavailable, errInsertRace)
}

func (s *Storage) updateEntitlement(
	ctx context.Context, userID string, fn quota.UpdateFunc,
) (*quota.Entitlement, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanEntitlement(tx.QueryRow(ctx,
		`SELECT user_id, plan, subscription_id, usage, reset_at, updated_at
			FROM entitlements WHERE user_id = $1 FOR UPDATE`,
		userID))
	if errors.Is(err, pgx.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to lock entitlement: %w", err)
	}

	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	next = next.Clone()
	next.UserID = userID
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = s.config.Clock.Now().UTC()
	}

	usage, err := json.Marshal(next.Usage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}

	if current == nil {
		tag, err := tx.Exec(ctx,
			`INSERT INTO entitlements (user_id, plan, subscription_id, usage, reset_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (user_id) DO NOTHING`,
			userID, string(next.Plan), next.SubscriptionID, usage, nullTime(next.ResetAt), next.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert entitlement: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, errInsertRace
		}
	} else {
		// Plan columns are owned by SetPlan once the row exists
		_, err := tx.Exec(ctx,
			`UPDATE entitlements SET usage = $2, reset_at = $3, updated_at = $4
				WHERE user_id = $1`,
			userID, usage, nullTime(next.ResetAt), next.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update entitlement: %w", err)
		}
		next.Plan = current.Plan
		next.SubscriptionID = current.SubscriptionID
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// SetPlan implements quota.Storage
func (s *Storage) SetPlan(ctx context.Context, userID string, plan quota.Plan, subscriptionID string) error {
	if userID == "" {
		return quota.ErrInvalidUserID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entitlements (user_id, plan, subscription_id, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE SET
				plan = EXCLUDED.plan,
				subscription_id = EXCLUDED.subscription_id,
				updated_at = EXCLUDED.updated_at`,
		userID, string(plan), subscriptionID, s.config.Clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	return nil
}

// GetCustomerID implements billing.CustomerStore
func (s *Storage) GetCustomerID(ctx context.Context, userID string) (string, error) {
	var customerID string
	err := s.pool.QueryRow(ctx,
		`SELECT customer_id FROM billing_customers WHERE user_id = $1`, userID,
	).Scan(&customerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", billing.ErrCustomerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get customer: %w", err)
	}
	return customerID, nil
}

// SetCustomerID implements billing.CustomerStore
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) error {
	if userID == "" {
		return quota.ErrInvalidUserID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_customers (user_id, customer_id, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET
				customer_id = EXCLUDED.customer_id,
				updated_at = EXCLUDED.updated_at`,
		userID, customerID, s.config.Clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set customer: %w", err)
	}
	return nil
}

// FindUserByCustomerID implements billing.CustomerStore
func (s *Storage) FindUserByCustomerID(ctx context.Context, customerID string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM billing_customers WHERE customer_id = $1`, customerID,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", billing.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find customer owner: %w", err)
	}
	return userID, nil
}

func scanEntitlement(row pgx.Row) (*quota.Entitlement, error) {
	var (
		ent     quota.Entitlement
		plan    string
		usage   []byte
		resetAt *time.Time
	)
	if err := row.Scan(&ent.UserID, &plan, &ent.SubscriptionID, &usage, &resetAt, &ent.UpdatedAt); err != nil {
		return nil, err
	}

	ent.Plan = quota.Plan(plan)
	ent.Usage = make(map[quota.Category]int)
	if len(usage) > 0 {
		if err := json.Unmarshal(usage, &ent.Usage); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage: %w", err)
		}
	}
	if resetAt != nil {
		ent.ResetAt = resetAt.UTC()
	}
	return &ent, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var (
	_ quota.Storage         = (*Storage)(nil)
	_ billing.CustomerStore = (*Storage)(nil)
)
