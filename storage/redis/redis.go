// Package redis provides a Redis implementation of the quota.Storage interface.
// Entitlements are stored as hashes and updated with optimistic WATCH/MULTI transactions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

const (
	fieldPlan           = "plan"
	fieldSubscriptionID = "subscriptionId"
	fieldResetAt        = "resetAt"
	fieldUpdatedAt      = "updatedAt"
	usageFieldPrefix    = "usage:"
)

// Storage implements quota.Storage and billing.CustomerStore using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "fitgen:")
	KeyPrefix string

	// EntitlementTTL expires idle entitlement hashes (0 = no expiration)
	EntitlementTTL time.Duration

	// MaxRetries is the maximum number of attempts when a watched key changes (default: 3)
	MaxRetries int

	// Clock stamps updatedAt (default: quota.SystemClock)
	Clock quota.Clock
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "fitgen:",
		MaxRetries: 3,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "fitgen:"
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Clock == nil {
		config.Clock = quota.SystemClock{}
	}

	return &Storage{client: client, config: config}, nil
}

// GetEntitlement implements quota.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*quota.Entitlement, error) {
	if userID == "" {
		return nil, quota.ErrInvalidUserID
	}

	data, err := s.client.HGetAll(ctx, s.entitlementKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	if len(data) == 0 {
		return nil, quota.ErrEntitlementNotFound
	}
	return entitlementFromHash(userID, data), nil
}

// UpdateEntitlement implements quota.Storage. The hash is watched for the
// duration of fn; a concurrent write aborts the EXEC and the update is retried.
func (s *Storage) UpdateEntitlement(
	ctx context.Context, userID string, fn quota.UpdateFunc,
) (*quota.Entitlement, error) {
	if userID == "" {
		return nil, quota.ErrInvalidUserID
	}

	key := s.entitlementKey(userID)
	var result *quota.Entitlement

	txf := func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to read entitlement: %w", err)
		}

		var current *quota.Entitlement
		if len(data) > 0 {
			current = entitlementFromHash(userID, data)
		}

		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}

		next = next.Clone()
		next.UserID = userID
		if next.UpdatedAt.IsZero() {
			next.UpdatedAt = s.config.Clock.Now().UTC()
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, usageHash(next, current == nil))
			if s.config.EntitlementTTL > 0 {
				pipe.Expire(ctx, key, s.config.EntitlementTTL)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Plan fields belong to SetPlan once the record exists
		if current != nil {
			next.Plan = current.Plan
			next.SubscriptionID = current.SubscriptionID
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: entitlement %s changed during %d attempts",
		quota.ErrStorageUnavailable, userID, s.config.MaxRetries)
}

// SetPlan implements quota.Storage. HSET only touches the plan fields,
// so usage counters survive a plan change.
func (s *Storage) SetPlan(ctx context.Context, userID string, plan quota.Plan, subscriptionID string) error {
	if userID == "" {
		return quota.ErrInvalidUserID
	}

	key := s.entitlementKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldPlan, string(plan),
			fieldSubscriptionID, subscriptionID,
			fieldUpdatedAt, formatTime(s.config.Clock.Now().UTC()),
		)
		if s.config.EntitlementTTL > 0 {
			pipe.Expire(ctx, key, s.config.EntitlementTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	return nil
}

// GetCustomerID implements billing.CustomerStore
func (s *Storage) GetCustomerID(ctx context.Context, userID string) (string, error) {
	customerID, err := s.client.Get(ctx, s.customerKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", billing.ErrCustomerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get customer: %w", err)
	}
	return customerID, nil
}

// SetCustomerID implements billing.CustomerStore. Both directions of the
// mapping are written in one MULTI block.
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) error {
	if userID == "" {
		return quota.ErrInvalidUserID
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.customerKey(userID), customerID, 0)
		pipe.Set(ctx, s.customerOwnerKey(customerID), userID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set customer: %w", err)
	}
	return nil
}

// FindUserByCustomerID implements billing.CustomerStore
func (s *Storage) FindUserByCustomerID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", billing.ErrUserNotFound
	}

	userID, err := s.client.Get(ctx, s.customerOwnerKey(customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", billing.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find customer owner: %w", err)
	}
	return userID, nil
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) entitlementKey(userID string) string {
	return fmt.Sprintf("%sentitlement:%s", s.config.KeyPrefix, userID)
}

func (s *Storage) customerKey(userID string) string {
	return fmt.Sprintf("%scustomer:%s", s.config.KeyPrefix, userID)
}

func (s *Storage) customerOwnerKey(customerID string) string {
	return fmt.Sprintf("%scustomer_owner:%s", s.config.KeyPrefix, customerID)
}

func usageHash(ent *quota.Entitlement, withPlan bool) map[string]interface{} {
	fields := map[string]interface{}{
		fieldResetAt:   formatTime(ent.ResetAt),
		fieldUpdatedAt: formatTime(ent.UpdatedAt),
	}
	for category, used := range ent.Usage {
		fields[usageFieldPrefix+string(category)] = used
	}
	if withPlan {
		fields[fieldPlan] = string(ent.Plan)
		fields[fieldSubscriptionID] = ent.SubscriptionID
	}
	return fields
}

func entitlementFromHash(userID string, data map[string]string) *quota.Entitlement {
	ent := &quota.Entitlement{
		UserID:         userID,
		Plan:           quota.Plan(data[fieldPlan]),
		SubscriptionID: data[fieldSubscriptionID],
		ResetAt:        parseTime(data[fieldResetAt]),
		UpdatedAt:      parseTime(data[fieldUpdatedAt]),
		Usage:          make(map[quota.Category]int),
	}
	for field, value := range data {
		if !strings.HasPrefix(field, usageFieldPrefix) {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		ent.Usage[quota.Category(strings.TrimPrefix(field, usageFieldPrefix))] = n
	}
	return ent
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

var (
	_ quota.Storage         = (*Storage)(nil)
	_ billing.CustomerStore = (*Storage)(nil)
)
