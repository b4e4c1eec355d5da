package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

func withdrawalParams(userId, amount string) store.CreateWithdrawalParams {
	a := decimal.RequireFromString(amount)
	fee := a.Mul(decimal.RequireFromString("0.10")).Round(2)
	return store.CreateWithdrawalParams{
		UserId:        userId,
		Amount:        a,
		FeeAmount:     fee,
		NetAmount:     a.Sub(fee),
		PixKey:        "a@example.com",
		PixKeyType:    "email",
		Cpf:           "52998224725",
		RequestedDate: "2025-03-10",
		RequestedAt:   testNow,
	}
}

func TestCreateWithdrawal_ConcurrentRequestsCannotOverdraw(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")
	creditTestBalance(t, service, user.Id, models.BalanceWithdrawable, "150")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.CreateWithdrawal(ctx, withdrawalParams(user.Id, "100"))
		}(i)
	}
	wg.Wait()

	successes, rejections := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrInsufficientBalance):
			rejections++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if successes != 1 || rejections != 1 {
		t.Fatalf("Expected one success and one rejection, got %d and %d", successes, rejections)
	}

	balance, err := service.GetBalance(ctx, user.Id, models.BalanceWithdrawable)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected withdrawable 50, got %s", balance.String())
	}

	withdrawals, err := service.ListUserWithdrawals(ctx, user.Id)
	if err != nil {
		t.Fatalf("ListUserWithdrawals failed: %v", err)
	}
	if len(withdrawals) != 1 {
		t.Errorf("Expected exactly one withdrawal row, got %d", len(withdrawals))
	}
}

func TestTransitionWithdrawal_RejectRefunds(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")
	creditTestBalance(t, service, user.Id, models.BalanceWithdrawable, "100")

	withdrawal, err := service.CreateWithdrawal(ctx, withdrawalParams(user.Id, "100"))
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}
	if !withdrawal.FeeAmount.Equal(decimal.NewFromInt(10)) || !withdrawal.NetAmount.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Unexpected fee split %s/%s", withdrawal.FeeAmount, withdrawal.NetAmount)
	}

	count, err := service.CountWithdrawalsForDate(ctx, user.Id, "2025-03-10")
	if err != nil {
		t.Fatalf("CountWithdrawalsForDate failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 withdrawal today, got %d", count)
	}

	rejected, err := service.TransitionWithdrawal(ctx, store.TransitionWithdrawalParams{
		WithdrawalId: withdrawal.Id,
		From:         []models.WithdrawalStatus{models.WithdrawalRequested, models.WithdrawalApproved},
		To:           models.WithdrawalRejected,
		Reason:       "invalid key owner",
		Refund:       true,
		At:           testNow,
	})
	if err != nil {
		t.Fatalf("TransitionWithdrawal failed: %v", err)
	}
	if rejected.Status != models.WithdrawalRejected || rejected.RejectedAt == nil {
		t.Errorf("Unexpected rejected withdrawal %+v", rejected)
	}

	balances, err := service.GetUserBalances(ctx, user.Id)
	if err != nil {
		t.Fatalf("GetUserBalances failed: %v", err)
	}
	if !balances.Withdrawable.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected refund to restore 100, got %s", balances.Withdrawable.String())
	}
	if !balances.TotalWithdrawn.IsZero() {
		t.Errorf("Expected total withdrawn 0 after refund, got %s", balances.TotalWithdrawn.String())
	}

	count, err = service.CountWithdrawalsForDate(ctx, user.Id, "2025-03-10")
	if err != nil {
		t.Fatalf("CountWithdrawalsForDate failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected rejected withdrawals not to count, got %d", count)
	}

	_, err = service.TransitionWithdrawal(ctx, store.TransitionWithdrawalParams{
		WithdrawalId: withdrawal.Id,
		From:         []models.WithdrawalStatus{models.WithdrawalRequested},
		To:           models.WithdrawalPaid,
		At:           testNow,
	})
	if !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
}

func TestWithdrawalStats(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")
	creditTestBalance(t, service, user.Id, models.BalanceWithdrawable, "500")

	for _, amount := range []string{"100", "60"} {
		if _, err := service.CreateWithdrawal(ctx, withdrawalParams(user.Id, amount)); err != nil {
			t.Fatalf("CreateWithdrawal failed: %v", err)
		}
	}

	stats, err := service.WithdrawalStats(ctx)
	if err != nil {
		t.Fatalf("WithdrawalStats failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("Expected 1 status group, got %d", len(stats))
	}
	if stats[0].Count != 2 || !stats[0].Amount.Equal(decimal.NewFromInt(160)) {
		t.Errorf("Unexpected stats %+v", stats[0])
	}
}

func TestCreateWithdrawal_EnforcesDailyLimitInTransaction(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")
	creditTestBalance(t, service, user.Id, models.BalanceWithdrawable, "300")

	params := withdrawalParams(user.Id, "100")
	params.DailyLimit = 1
	if _, err := service.CreateWithdrawal(ctx, params); err != nil {
		t.Fatalf("First withdrawal failed: %v", err)
	}

	_, err := service.CreateWithdrawal(ctx, params)
	if !errors.Is(err, store.ErrDailyLimit) {
		t.Fatalf("Expected ErrDailyLimit, got %v", err)
	}

	balance, err := service.GetBalance(ctx, user.Id, models.BalanceWithdrawable)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected the rejected withdrawal to leave 200, got %s", balance)
	}

	params.RequestedDate = "2025-03-11"
	if _, err := service.CreateWithdrawal(ctx, params); err != nil {
		t.Errorf("Expected the next day to be allowed, got %v", err)
	}
}
