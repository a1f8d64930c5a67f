package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

const testProjectID = "test-project"

// setupStorage connects to the Firestore emulator and returns a storage
// scoped to a unique app namespace. Skips when no emulator is configured.
func setupStorage(t *testing.T) *Storage {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, testProjectID)
	if err != nil {
		t.Fatalf("Failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	storage, err := New(client, Config{
		RootCollection: "test_apps",
		AppID:          fmt.Sprintf("app_%s_%d", t.Name(), time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return storage
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{AppID: "app"}); err == nil {
		t.Error("Expected error for nil client")
	}
}

func TestNew_DefaultsClock(t *testing.T) {
	storage, err := New(&firestore.Client{}, Config{AppID: "app"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := storage.clock.(quota.SystemClock); !ok {
		t.Errorf("Expected system clock, got %T", storage.clock)
	}

	fake := quota.NewFakeClock(time.Unix(0, 0))
	storage, err = New(&firestore.Client{}, Config{AppID: "app", Clock: fake})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if storage.clock != fake {
		t.Error("Expected injected clock to be kept")
	}
}

func TestHelpers_TypeCoercion(t *testing.T) {
	now := time.Now().UTC()
	data := map[string]interface{}{
		"plan":    "pro",
		"resetAt": now,
		"usage": map[string]interface{}{
			"routine":   int64(2),
			"nutrition": float64(3),
			"coach":     1,
		},
	}

	ent := entitlementFromData("u1", data)
	if ent.Plan != quota.PlanPro {
		t.Errorf("Expected pro plan, got %s", ent.Plan)
	}
	if ent.Used(quota.CategoryRoutine) != 2 || ent.Used(quota.CategoryNutrition) != 3 || ent.Used(quota.CategoryCoach) != 1 {
		t.Errorf("Unexpected usage: %+v", ent.Usage)
	}
	if !ent.ResetAt.Equal(now) {
		t.Errorf("Expected resetAt to round-trip")
	}
	if getInt(data, "missing") != 0 || getString(data, "missing") != "" || !getTime(data, "missing").IsZero() {
		t.Error("Expected zero values for missing keys")
	}
}

func TestFirestore_UpdateEntitlement(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	_, err := storage.GetEntitlement(ctx, "user1")
	if !errors.Is(err, quota.ErrEntitlementNotFound) {
		t.Fatalf("Expected ErrEntitlementNotFound, got %v", err)
	}

	resetAt := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	_, err = storage.UpdateEntitlement(ctx, "user1", func(cur *quota.Entitlement) (*quota.Entitlement, error) {
		return &quota.Entitlement{
			Plan:    quota.PlanFree,
			Usage:   map[quota.Category]int{quota.CategoryRoutine: 1},
			ResetAt: resetAt,
		}, nil
	})
	if err != nil {
		t.Fatalf("UpdateEntitlement failed: %v", err)
	}

	ent, err := storage.GetEntitlement(ctx, "user1")
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if ent.Plan != quota.PlanFree || ent.Used(quota.CategoryRoutine) != 1 {
		t.Errorf("Unexpected entitlement: %+v", ent)
	}
	if !ent.ResetAt.Equal(resetAt) {
		t.Errorf("Expected resetAt %v, got %v", resetAt, ent.ResetAt)
	}
}

func TestFirestore_UpdateDoesNotOverwritePlan(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	_, err := storage.UpdateEntitlement(ctx, "user1", func(*quota.Entitlement) (*quota.Entitlement, error) {
		return &quota.Entitlement{Plan: quota.PlanFree, Usage: map[quota.Category]int{}}, nil
	})
	if err != nil {
		t.Fatalf("UpdateEntitlement failed: %v", err)
	}
	if err := storage.SetPlan(ctx, "user1", quota.PlanPro, "sub_1"); err != nil {
		t.Fatalf("SetPlan failed: %v", err)
	}

	_, err = storage.UpdateEntitlement(ctx, "user1", func(cur *quota.Entitlement) (*quota.Entitlement, error) {
		cur.Plan = quota.PlanFree
		cur.Usage[quota.CategoryCoach] = 2
		return cur, nil
	})
	if err != nil {
		t.Fatalf("UpdateEntitlement failed: %v", err)
	}

	ent, err := storage.GetEntitlement(ctx, "user1")
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if ent.Plan != quota.PlanPro {
		t.Errorf("Expected plan to stay pro, got %s", ent.Plan)
	}
	if ent.Used(quota.CategoryCoach) != 2 {
		t.Errorf("Expected coach usage 2, got %d", ent.Used(quota.CategoryCoach))
	}
}

func TestFirestore_ConcurrentAdmission(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	manager, err := quota.NewManager(storage, quota.Config{
		Limits: map[quota.Plan]map[quota.Category]int{
			quota.PlanFree: {quota.CategoryRoutine: 3},
		},
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := manager.CheckAndConsume(ctx, "user1", quota.PlanFree, quota.CategoryRoutine)
			if err != nil {
				t.Errorf("CheckAndConsume failed: %v", err)
				return
			}
			if decision.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 3 {
		t.Errorf("Expected exactly 3 admissions, got %d", allowed)
	}
}

func TestFirestore_CustomerMapping(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	if _, err := storage.GetCustomerID(ctx, "user1"); !errors.Is(err, billing.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}
	if err := storage.SetCustomerID(ctx, "user1", "cus_abc"); err != nil {
		t.Fatalf("SetCustomerID failed: %v", err)
	}

	customerID, err := storage.GetCustomerID(ctx, "user1")
	if err != nil || customerID != "cus_abc" {
		t.Errorf("Expected cus_abc, got %q (%v)", customerID, err)
	}

	userID, err := storage.FindUserByCustomerID(ctx, "cus_abc")
	if err != nil || userID != "user1" {
		t.Errorf("Expected user1, got %q (%v)", userID, err)
	}

	if _, err := storage.FindUserByCustomerID(ctx, "cus_missing"); !errors.Is(err, billing.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}
