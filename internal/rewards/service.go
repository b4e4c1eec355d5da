package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/settings"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxStreak bounds how far back a streak is counted.
const maxStreak = 366

type Store interface {
	store.RewardStore
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetBalance(ctx context.Context, userId string, balanceType models.BalanceType) (decimal.Decimal, error)
}

type Service struct {
	store    Store
	settings *settings.Provider
	clock    clock.Clock
	location *time.Location
}

func NewService(s Store, provider *settings.Provider, clk clock.Clock, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: s, settings: provider, clock: clk, location: loc}
}

// Claim credits today's reward to the withdrawable balance.
func (s *Service) Claim(ctx context.Context, userId string) (*models.RewardResult, error) {
	now := s.clock.Now()
	if _, err := s.store.GetUserById(ctx, userId); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, models.NewSettlementError(models.CodeNotFound, fmt.Sprintf("user %s not found", userId))
		}
		return nil, err
	}

	cfg, err := s.settings.Reward(ctx, now)
	if err != nil {
		return nil, err
	}

	today := clock.LocalDate(now, s.location)
	reward, err := s.store.ClaimDailyReward(ctx, store.ClaimRewardParams{
		UserId:    userId,
		Amount:    cfg.Amount.Round(2),
		ClaimDate: today,
		At:        now,
	})
	if errors.Is(err, store.ErrAlreadyClaimed) {
		return nil, models.NewSettlementError(models.CodeAlreadyClaimedToday, "daily reward already claimed today")
	}
	if err != nil {
		return nil, err
	}

	balance, err := s.store.GetBalance(ctx, userId, models.BalanceWithdrawable)
	if err != nil {
		return nil, err
	}
	streak, err := s.Streak(ctx, userId)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Daily reward credited",
		zap.String("user_id", userId),
		zap.String("amount", reward.Amount.String()),
		zap.Int("streak", streak))
	return &models.RewardResult{Reward: reward, NewBalance: balance, Streak: streak}, nil
}

// Streak counts consecutive claim days ending today.
func (s *Service) Streak(ctx context.Context, userId string) (int, error) {
	dates, err := s.store.ListRewardDates(ctx, userId, maxStreak)
	if err != nil {
		return 0, err
	}

	expected := s.clock.Now().In(s.location)
	streak := 0
	for _, date := range dates {
		if date != expected.Format(time.DateOnly) {
			break
		}
		streak++
		expected = expected.AddDate(0, 0, -1)
	}
	return streak, nil
}
