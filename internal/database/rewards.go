package database

import (
	"context"
	"fmt"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClaimDailyReward credits the daily bonus once per user and calendar day.
func (s *Service) ClaimDailyReward(ctx context.Context, params store.ClaimRewardParams) (*models.DailyReward, error) {
	reward := &models.DailyReward{
		Id:        uuid.New().String(),
		UserId:    params.UserId,
		Amount:    params.Amount,
		ClaimDate: params.ClaimDate,
		CreatedAt: params.At,
	}

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		_, err := ltx.tx.ExecContext(ctx, queryInsertDailyReward, reward.Id, reward.UserId, reward.Amount, reward.ClaimDate, reward.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s on %s", store.ErrAlreadyClaimed, params.UserId, params.ClaimDate)
			}
			return fmt.Errorf("failed to insert daily reward: %w", err)
		}

		_, err = s.post(ctx, ltx, PostParams{
			UserId:        params.UserId,
			BalanceType:   models.BalanceWithdrawable,
			Type:          models.LedgerDailyReward,
			Operation:     models.OperationCredit,
			Amount:        params.Amount,
			ReferenceType: models.ReferenceDailyReward,
			ReferenceId:   reward.Id,
			Description:   "Daily reward " + params.ClaimDate,
			At:            params.At,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Daily reward claimed", zap.String("user_id", reward.UserId), zap.String("date", reward.ClaimDate))
	return reward, nil
}

// ListRewardDates returns up to limit claim dates, most recent first.
func (s *Service) ListRewardDates(ctx context.Context, userId string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryListRewardDates, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query rewards: %w", err)
	}
	defer closeRows(rows)

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("unable to scan reward row: %w", err)
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward rows: %w", err)
	}
	return dates, nil
}
