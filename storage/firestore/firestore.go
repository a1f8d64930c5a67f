// Package firestore provides a Firestore implementation of the quota.Storage interface.
// This implementation uses Google Cloud Firestore for production-grade quota persistence.
//
// Layout, relative to the root collection:
//
//	{root}/{appID}/users/{userID}/quota/entitlement
//	{root}/{appID}/users/{userID}/billing/stripe
package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

const (
	usersCollection   = "users"
	quotaCollection   = "quota"
	entitlementDocID  = "entitlement"
	billingCollection = "billing"
	stripeDocID       = "stripe"
)

// Storage implements quota.Storage and billing.CustomerStore using Google Cloud Firestore
type Storage struct {
	client         *firestore.Client
	rootCollection string
	appID          string
	clock          quota.Clock
}

// Config holds Firestore storage configuration
type Config struct {
	// RootCollection is the top-level collection holding app namespaces
	// Default: "apps"
	RootCollection string

	// AppID is the namespace document under RootCollection (required)
	AppID string

	// Clock stamps updatedAt. Default: quota.SystemClock
	Clock quota.Clock
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.AppID == "" {
		return nil, fmt.Errorf("app id is required")
	}

	// Set defaults
	if config.RootCollection == "" {
		config.RootCollection = "apps"
	}
	if config.Clock == nil {
		config.Clock = quota.SystemClock{}
	}

	return &Storage{
		client:         client,
		rootCollection: config.RootCollection,
		appID:          config.AppID,
		clock:          config.Clock,
	}, nil
}

// GetEntitlement implements quota.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*quota.Entitlement, error) {
	snap, err := s.entitlementDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, quota.ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	if !snap.Exists() {
		return nil, quota.ErrEntitlementNotFound
	}

	return entitlementFromData(userID, snap.Data()), nil
}

// UpdateEntitlement implements quota.Storage with a Firestore transaction.
// The transaction may run fn more than once when it contends with another writer.
func (s *Storage) UpdateEntitlement(
	ctx context.Context, userID string, fn quota.UpdateFunc,
) (*quota.Entitlement, error) {
	if userID == "" {
		return nil, quota.ErrInvalidUserID
	}

	doc := s.entitlementDoc(userID)
	var result *quota.Entitlement

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		result = nil

		var current *quota.Entitlement
		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil && snap.Exists() {
			current = entitlementFromData(userID, snap.Data())
		}

		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}

		result = next.Clone()
		result.UserID = userID

		// The plan belongs to the billing path once the record exists.
		data := usageData(result)
		if current == nil {
			data["plan"] = string(result.Plan)
			data["subscriptionId"] = result.SubscriptionID
		}
		return tx.Set(doc, data, firestore.MergeAll)
	})
	if err != nil {
		return nil, fmt.Errorf("entitlement transaction failed: %w", err)
	}

	return result, nil
}

// SetPlan implements quota.Storage as a merge write
func (s *Storage) SetPlan(ctx context.Context, userID string, plan quota.Plan, subscriptionID string) error {
	if userID == "" {
		return quota.ErrInvalidUserID
	}

	data := map[string]interface{}{
		"plan":           string(plan),
		"subscriptionId": subscriptionID,
		"updatedAt":      s.clock.Now().UTC(),
	}

	if _, err := s.entitlementDoc(userID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}

	return nil
}

// GetCustomerID implements billing.CustomerStore
func (s *Storage) GetCustomerID(ctx context.Context, userID string) (string, error) {
	snap, err := s.customerDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", billing.ErrCustomerNotFound
		}
		return "", fmt.Errorf("failed to get customer mapping: %w", err)
	}

	customerID := getString(snap.Data(), "stripeCustomerId")
	if customerID == "" {
		return "", billing.ErrCustomerNotFound
	}
	return customerID, nil
}

// SetCustomerID implements billing.CustomerStore
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) error {
	if userID == "" {
		return quota.ErrInvalidUserID
	}

	data := map[string]interface{}{
		"stripeCustomerId": customerID,
		"userId":           userID,
		"appId":            s.appID,
		"updatedAt":        s.clock.Now().UTC(),
	}

	if _, err := s.customerDoc(userID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set customer mapping: %w", err)
	}
	return nil
}

// FindUserByCustomerID implements billing.CustomerStore with a collection group
// query over every user's billing sub-records, limited to one match.
func (s *Storage) FindUserByCustomerID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", billing.ErrUserNotFound
	}

	iter := s.client.CollectionGroup(billingCollection).
		Where("stripeCustomerId", "==", customerID).
		Where("appId", "==", s.appID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", billing.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query customer mapping: %w", err)
	}

	if userID := getString(snap.Data(), "userId"); userID != "" {
		return userID, nil
	}
	// billing/{doc} -> users/{userID}
	if parent := snap.Ref.Parent.Parent; parent != nil {
		return parent.ID, nil
	}
	return "", billing.ErrUserNotFound
}

// userDoc returns the user's document under the app namespace
func (s *Storage) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.rootCollection).
		Doc(s.appID).
		Collection(usersCollection).
		Doc(userID)
}

func (s *Storage) entitlementDoc(userID string) *firestore.DocumentRef {
	return s.userDoc(userID).Collection(quotaCollection).Doc(entitlementDocID)
}

func (s *Storage) customerDoc(userID string) *firestore.DocumentRef {
	return s.userDoc(userID).Collection(billingCollection).Doc(stripeDocID)
}

func usageData(ent *quota.Entitlement) map[string]interface{} {
	usage := make(map[string]interface{}, len(ent.Usage))
	for category, used := range ent.Usage {
		usage[string(category)] = used
	}
	return map[string]interface{}{
		"usage":     usage,
		"resetAt":   ent.ResetAt,
		"updatedAt": ent.UpdatedAt,
	}
}

func entitlementFromData(userID string, data map[string]interface{}) *quota.Entitlement {
	ent := &quota.Entitlement{
		UserID:         userID,
		Plan:           quota.Plan(getString(data, "plan")),
		Usage:          make(map[quota.Category]int, len(quota.Categories)),
		ResetAt:        getTime(data, "resetAt"),
		SubscriptionID: getString(data, "subscriptionId"),
		UpdatedAt:      getTime(data, "updatedAt"),
	}
	if usage, ok := data["usage"].(map[string]interface{}); ok {
		for key := range usage {
			ent.Usage[quota.Category(key)] = getInt(usage, key)
		}
	}
	return ent
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

var (
	_ quota.Storage         = (*Storage)(nil)
	_ billing.CustomerStore = (*Storage)(nil)
)
