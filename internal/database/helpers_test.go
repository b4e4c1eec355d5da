package database

import (
	"context"
	"testing"
	"time"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*Service, func()) {
	t.Helper()
	service, err := OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return service, service.Close
}

func createTestUser(t *testing.T, s *Service, email string, ancestors ...string) *models.User {
	t.Helper()
	referredBy := ""
	if len(ancestors) > 0 {
		referredBy = ancestors[0]
	}
	user, err := s.CreateUser(context.Background(), store.CreateUserParams{
		Name:         "Test " + email,
		Email:        email,
		ReferralCode: "REF-" + email,
		ReferredBy:   referredBy,
		Ancestors:    ancestors,
		CreatedAt:    testNow,
	})
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

func creditTestBalance(t *testing.T, s *Service, userId string, balanceType models.BalanceType, amount string) {
	t.Helper()
	err := s.withTx(context.Background(), func(ltx *ledgerTx) error {
		_, err := s.post(context.Background(), ltx, PostParams{
			UserId:      userId,
			BalanceType: balanceType,
			Type:        models.LedgerDeposit,
			Operation:   models.OperationCredit,
			Amount:      decimal.RequireFromString(amount),
			Description: "test funding",
			At:          testNow,
		})
		return err
	})
	if err != nil {
		t.Fatalf("Failed to fund %s: %v", userId, err)
	}
}

func testPlan(id string, planType models.PlanType) models.Plan {
	plan := models.Plan{
		Id:           id,
		Name:         "Plan " + id,
		Price:        decimal.NewFromInt(100),
		Type:         planType,
		DurationDays: 10,
		TotalReturn:  decimal.NewFromInt(150),
		MaxPurchases: 2,
		Active:       true,
		CreatedAt:    testNow,
	}
	if planType == models.PlanDaily {
		plan.DailyIncome = decimal.NewFromInt(5)
		plan.DurationDays = 20
		plan.TotalReturn = decimal.NewFromInt(100)
	}
	return plan
}
