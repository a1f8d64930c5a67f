package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

func TestStorage_GetEntitlement_NotFound(t *testing.T) {
	storage := New()

	_, err := storage.GetEntitlement(context.Background(), "user1")
	if !errors.Is(err, quota.ErrEntitlementNotFound) {
		t.Errorf("Expected ErrEntitlementNotFound, got %v", err)
	}
}

func TestStorage_UpdateEntitlement_CreateAndModify(t *testing.T) {
	storage := New()
	ctx := context.Background()
	resetAt := time.Now().UTC().Add(time.Hour)

	_, err := storage.UpdateEntitlement(ctx, "user1", func(cur *quota.Entitlement) (*quota.Entitlement, error) {
		if cur != nil {
			t.Errorf("Expected nil current record, got %+v", cur)
		}
		return &quota.Entitlement{
			Plan:    quota.PlanFree,
			Usage:   map[quota.Category]int{quota.CategoryRoutine: 1},
			ResetAt: resetAt,
		}, nil
	})
	if err != nil {
		t.Fatalf("UpdateEntitlement failed: %v", err)
	}

	updated, err := storage.UpdateEntitlement(ctx, "user1", func(cur *quota.Entitlement) (*quota.Entitlement, error) {
		cur.Usage[quota.CategoryRoutine]++
		return cur, nil
	})
	if err != nil {
		t.Fatalf("UpdateEntitlement failed: %v", err)
	}
	if updated.UserID != "user1" {
		t.Errorf("Expected user ID to be set, got %q", updated.UserID)
	}
	if got := updated.Used(quota.CategoryRoutine); got != 2 {
		t.Errorf("Expected routine usage 2, got %d", got)
	}
}

func TestStorage_UpdateEntitlement_NilResultLeavesRecord(t *testing.T) {
	storage := New()
	ctx := context.Background()

	ent, err := storage.UpdateEntitlement(ctx, "user1", func(*quota.Entitlement) (*quota.Entitlement, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("UpdateEntitlement failed: %v", err)
	}
	if ent != nil {
		t.Errorf("Expected nil entitlement, got %+v", ent)
	}
	if _, err := storage.GetEntitlement(ctx, "user1"); !errors.Is(err, quota.ErrEntitlementNotFound) {
		t.Errorf("Expected no record to be created, got %v", err)
	}
}

func TestStorage_UpdateEntitlement_ErrorAborts(t *testing.T) {
	storage := New()
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := storage.UpdateEntitlement(ctx, "user1", func(*quota.Entitlement) (*quota.Entitlement, error) {
		return &quota.Entitlement{Plan: quota.PlanPro}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if _, err := storage.GetEntitlement(ctx, "user1"); !errors.Is(err, quota.ErrEntitlementNotFound) {
		t.Errorf("Expected aborted update to leave no record, got %v", err)
	}
}

func TestStorage_UpdateEntitlement_Concurrent(t *testing.T) {
	storage := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.UpdateEntitlement(ctx, "user1", func(cur *quota.Entitlement) (*quota.Entitlement, error) {
				if cur == nil {
					cur = &quota.Entitlement{Usage: map[quota.Category]int{}}
				}
				cur.Usage[quota.CategoryCoach]++
				return cur, nil
			})
			if err != nil {
				t.Errorf("UpdateEntitlement failed: %v", err)
			}
		}()
	}
	wg.Wait()

	ent, err := storage.GetEntitlement(ctx, "user1")
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if got := ent.Used(quota.CategoryCoach); got != 50 {
		t.Errorf("Expected 50 increments, got %d", got)
	}
}

func TestStorage_SetPlan_MergesWithoutTouchingUsage(t *testing.T) {
	storage := New()
	ctx := context.Background()
	resetAt := time.Now().UTC().Add(24 * time.Hour)

	_, err := storage.UpdateEntitlement(ctx, "user1", func(*quota.Entitlement) (*quota.Entitlement, error) {
		return &quota.Entitlement{
			Plan:    quota.PlanFree,
			Usage:   map[quota.Category]int{quota.CategoryNutrition: 4},
			ResetAt: resetAt,
		}, nil
	})
	if err != nil {
		t.Fatalf("UpdateEntitlement failed: %v", err)
	}

	if err := storage.SetPlan(ctx, "user1", quota.PlanPro, "sub_123"); err != nil {
		t.Fatalf("SetPlan failed: %v", err)
	}

	ent, err := storage.GetEntitlement(ctx, "user1")
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if ent.Plan != quota.PlanPro || ent.SubscriptionID != "sub_123" {
		t.Errorf("Expected pro/sub_123, got %s/%s", ent.Plan, ent.SubscriptionID)
	}
	if ent.Used(quota.CategoryNutrition) != 4 {
		t.Errorf("Expected usage to survive plan merge, got %d", ent.Used(quota.CategoryNutrition))
	}
	if !ent.ResetAt.Equal(resetAt) {
		t.Errorf("Expected reset timestamp to survive plan merge")
	}
}

func TestStorage_SetPlan_CreatesRecord(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if err := storage.SetPlan(ctx, "user2", quota.PlanPro, "sub_1"); err != nil {
		t.Fatalf("SetPlan failed: %v", err)
	}
	ent, err := storage.GetEntitlement(ctx, "user2")
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if !ent.ResetAt.IsZero() {
		t.Errorf("Expected zero reset timestamp on plan-only record, got %v", ent.ResetAt)
	}
}

func TestStorage_SetPlan_StampsInjectedClock(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := NewWithClock(quota.NewFakeClock(at))

	if err := storage.SetPlan(context.Background(), "user3", quota.PlanFree, ""); err != nil {
		t.Fatalf("SetPlan failed: %v", err)
	}
	ent, err := storage.GetEntitlement(context.Background(), "user3")
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if !ent.UpdatedAt.Equal(at) {
		t.Errorf("Expected updatedAt %v, got %v", at, ent.UpdatedAt)
	}
}

func TestStorage_CustomerMapping(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if _, err := storage.GetCustomerID(ctx, "user1"); !errors.Is(err, billing.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}
	if _, err := storage.FindUserByCustomerID(ctx, "cus_1"); !errors.Is(err, billing.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}

	if err := storage.SetCustomerID(ctx, "user1", "cus_1"); err != nil {
		t.Fatalf("SetCustomerID failed: %v", err)
	}

	customerID, err := storage.GetCustomerID(ctx, "user1")
	if err != nil || customerID != "cus_1" {
		t.Errorf("Expected cus_1, got %q (%v)", customerID, err)
	}
	userID, err := storage.FindUserByCustomerID(ctx, "cus_1")
	if err != nil || userID != "user1" {
		t.Errorf("Expected user1, got %q (%v)", userID, err)
	}
}

func TestStorage_Clear(t *testing.T) {
	storage := New()
	ctx := context.Background()

	_ = storage.SetPlan(ctx, "user1", quota.PlanPro, "")
	_ = storage.SetCustomerID(ctx, "user1", "cus_1")
	storage.Clear()

	if _, err := storage.GetEntitlement(ctx, "user1"); !errors.Is(err, quota.ErrEntitlementNotFound) {
		t.Errorf("Expected entitlement to be cleared, got %v", err)
	}
	if _, err := storage.GetCustomerID(ctx, "user1"); !errors.Is(err, billing.ErrCustomerNotFound) {
		t.Errorf("Expected customer mapping to be cleared, got %v", err)
	}
}
