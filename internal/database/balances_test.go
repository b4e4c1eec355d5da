package database

import (
	"context"
	"errors"
	"testing"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestGetBalance_NoBalance(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	user := createTestUser(t, service, "a@example.com")

	balance, err := service.GetBalance(context.Background(), user.Id, models.BalanceWithdrawable)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}

	if !balance.Equal(decimal.Zero) {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}
}

func TestPost_CreditAndDebit(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")

	creditTestBalance(t, service, user.Id, models.BalanceWithdrawable, "2.00")

	err := service.withTx(ctx, func(ltx *ledgerTx) error {
		_, err := service.post(ctx, ltx, PostParams{
			UserId:      user.Id,
			BalanceType: models.BalanceWithdrawable,
			Type:        models.LedgerWithdrawal,
			Operation:   models.OperationDebit,
			Amount:      decimal.RequireFromString("0.50"),
			At:          testNow,
		})
		return err
	})
	if err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	balance, err := service.GetBalance(ctx, user.Id, models.BalanceWithdrawable)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	expected := decimal.RequireFromString("1.50")
	if !balance.Equal(expected) {
		t.Errorf("Expected balance %s, got %s", expected.String(), balance.String())
	}

	if err := service.ReconcileBalance(ctx, user.Id, models.BalanceWithdrawable); err != nil {
		t.Errorf("Reconciliation failed: %v", err)
	}

	history, err := service.GetLedgerHistory(ctx, user.Id, 10, 0)
	if err != nil {
		t.Fatalf("GetLedgerHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 ledger entries, got %d", len(history))
	}
	if history[0].Operation != models.OperationDebit {
		t.Errorf("Expected newest entry to be the debit, got %s", history[0].Operation)
	}
	if !history[0].BalanceBefore.Equal(decimal.NewFromInt(2)) || !history[0].BalanceAfter.Equal(expected) {
		t.Errorf("Unexpected running balance %s -> %s", history[0].BalanceBefore, history[0].BalanceAfter)
	}
}

func TestPost_RejectsOverdraft(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")
	creditTestBalance(t, service, user.Id, models.BalanceWithdrawable, "10")

	err := service.withTx(ctx, func(ltx *ledgerTx) error {
		_, err := service.post(ctx, ltx, PostParams{
			UserId:      user.Id,
			BalanceType: models.BalanceWithdrawable,
			Type:        models.LedgerWithdrawal,
			Operation:   models.OperationDebit,
			Amount:      decimal.RequireFromString("10.01"),
			At:          testNow,
		})
		return err
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	history, err := service.GetLedgerHistory(ctx, user.Id, 10, 0)
	if err != nil {
		t.Fatalf("GetLedgerHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected the failed debit to leave no entry, got %d entries", len(history))
	}
}

func TestGetAllUserBalances(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")

	creditTestBalance(t, service, user.Id, models.BalanceInvestable, "1")
	creditTestBalance(t, service, user.Id, models.BalanceWithdrawable, "10")

	balances, err := service.GetAllUserBalances(ctx, user.Id)
	if err != nil {
		t.Fatalf("GetAllUserBalances failed: %v", err)
	}

	if len(balances) != 2 {
		t.Fatalf("Expected 2 balances, got %d", len(balances))
	}

	found := make(map[models.BalanceType]decimal.Decimal)
	for _, balance := range balances {
		found[balance.BalanceType] = balance.Balance
	}

	if !found[models.BalanceInvestable].Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected investable balance 1, got %s", found[models.BalanceInvestable].String())
	}
	if !found[models.BalanceWithdrawable].Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected withdrawable balance 10, got %s", found[models.BalanceWithdrawable].String())
	}
}

func TestLedgerTotalsMatchUserTotals(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")
	creditTestBalance(t, service, user.Id, models.BalanceInvestable, "100")

	if _, err := service.CreateCycle(ctx, store.CreateCycleParams{UserId: user.Id, Plan: testPlan("p1", models.PlanDaily), StartedAt: testNow}); err != nil {
		t.Fatalf("CreateCycle failed: %v", err)
	}
	if _, err := service.ClaimDailyReward(ctx, store.ClaimRewardParams{UserId: user.Id, Amount: decimal.RequireFromString("0.50"), ClaimDate: "2025-03-10", At: testNow}); err != nil {
		t.Fatalf("ClaimDailyReward failed: %v", err)
	}

	balances, err := service.GetUserBalances(ctx, user.Id)
	if err != nil {
		t.Fatalf("GetUserBalances failed: %v", err)
	}
	totals, err := service.GetLedgerTotals(ctx, user.Id)
	if err != nil {
		t.Fatalf("GetLedgerTotals failed: %v", err)
	}

	if !balances.Investable.Equal(totals.Investable) || !balances.Withdrawable.Equal(totals.Withdrawable) {
		t.Errorf("Cached balances %s/%s differ from ledger %s/%s",
			balances.Investable, balances.Withdrawable, totals.Investable, totals.Withdrawable)
	}
	if !balances.TotalInvested.Equal(decimal.NewFromInt(100)) || !totals.TotalInvested.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected total invested 100, got user=%s ledger=%s", balances.TotalInvested, totals.TotalInvested)
	}
	if !balances.TotalEarned.Equal(decimal.RequireFromString("0.5")) || !totals.TotalEarned.Equal(balances.TotalEarned) {
		t.Errorf("Expected total earned 0.5, got user=%s ledger=%s", balances.TotalEarned, totals.TotalEarned)
	}
}
