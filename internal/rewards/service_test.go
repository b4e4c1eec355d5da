package rewards

import (
	"context"
	"testing"
	"time"

	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/referral"
	"pix-settlement-go/internal/settings"

	"github.com/shopspring/decimal"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func setupRewards(t *testing.T) (*Service, *testClock, *models.User) {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	clk := &testClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	user, err := referral.NewService(db, clk).Register(context.Background(), referral.RegisterParams{
		Name: "Claimer", Email: "claimer@example.com",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return NewService(db, settings.NewProvider(db), clk, time.UTC), clk, user
}

func TestClaimOncePerDay(t *testing.T) {
	service, _, user := setupRewards(t)
	ctx := context.Background()

	result, err := service.Claim(ctx, user.Id)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !result.Reward.Amount.Equal(decimal.RequireFromString("0.50")) || !result.NewBalance.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("Unexpected result %+v", result)
	}
	if result.Streak != 1 {
		t.Errorf("Expected streak 1, got %d", result.Streak)
	}

	_, err = service.Claim(ctx, user.Id)
	se, ok := models.AsSettlementError(err)
	if !ok || se.Code != models.CodeAlreadyClaimedToday {
		t.Errorf("Expected ALREADY_CLAIMED_TODAY, got %v", err)
	}
}

func TestStreakResetsAfterGap(t *testing.T) {
	service, clk, user := setupRewards(t)
	ctx := context.Background()

	for day := 0; day < 3; day++ {
		result, err := service.Claim(ctx, user.Id)
		if err != nil {
			t.Fatalf("Claim on day %d failed: %v", day, err)
		}
		if result.Streak != day+1 {
			t.Errorf("Expected streak %d, got %d", day+1, result.Streak)
		}
		clk.now = clk.now.AddDate(0, 0, 1)
	}

	clk.now = clk.now.AddDate(0, 0, 1)
	result, err := service.Claim(ctx, user.Id)
	if err != nil {
		t.Fatalf("Claim after gap failed: %v", err)
	}
	if result.Streak != 1 {
		t.Errorf("Expected streak reset to 1, got %d", result.Streak)
	}
	if !result.NewBalance.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected balance 2.00 after four claims, got %s", result.NewBalance)
	}
}

func TestClaimUnknownUser(t *testing.T) {
	service, _, _ := setupRewards(t)
	_, err := service.Claim(context.Background(), "missing")
	if se, ok := models.AsSettlementError(err); !ok || se.Code != models.CodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}
