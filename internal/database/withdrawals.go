/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanWithdrawal(row rowScanner) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var approvedAt, paidAt, rejectedAt sql.NullTime
	err := row.Scan(&w.Id, &w.UserId, &w.Amount, &w.FeeAmount, &w.NetAmount, &w.PixKey, &w.PixKeyType, &w.Cpf,
		&w.Status, &w.TransactionId, &w.ErrorMessage, &w.ProviderResponse, &w.RequestedDate, &w.RequestedAt,
		&approvedAt, &paidAt, &rejectedAt)
	if err != nil {
		return nil, err
	}
	w.ApprovedAt = nullTime(approvedAt)
	w.PaidAt = nullTime(paidAt)
	w.RejectedAt = nullTime(rejectedAt)
	return &w, nil
}

// CreateWithdrawal inserts a REQUESTED withdrawal and debits the full amount from the withdrawable balance.
// The balance and daily-limit checks are repeated inside the transaction, so racing requests
// can neither overdraw nor exceed the limit.
func (s *Service) CreateWithdrawal(ctx context.Context, params store.CreateWithdrawalParams) (*models.Withdrawal, error) {
	withdrawal := &models.Withdrawal{
		Id:            uuid.New().String(),
		UserId:        params.UserId,
		Amount:        params.Amount,
		FeeAmount:     params.FeeAmount,
		NetAmount:     params.NetAmount,
		PixKey:        params.PixKey,
		PixKeyType:    params.PixKeyType,
		Cpf:           params.Cpf,
		Status:        models.WithdrawalRequested,
		RequestedDate: params.RequestedDate,
		RequestedAt:   params.RequestedAt,
	}

	if !withdrawal.FeeAmount.Add(withdrawal.NetAmount).Equal(withdrawal.Amount) {
		return nil, fmt.Errorf("fee %s plus net %s does not equal amount %s",
			withdrawal.FeeAmount.String(), withdrawal.NetAmount.String(), withdrawal.Amount.String())
	}

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		if params.DailyLimit > 0 {
			var count int
			err := ltx.tx.QueryRowContext(ctx, queryCountWithdrawalsForDate, params.UserId, params.RequestedDate).Scan(&count)
			if err != nil {
				return fmt.Errorf("failed to count withdrawals: %w", err)
			}
			if count >= params.DailyLimit {
				return fmt.Errorf("%w: %d of %d on %s", store.ErrDailyLimit, count, params.DailyLimit, params.RequestedDate)
			}
		}

		_, err := s.post(ctx, ltx, PostParams{
			UserId:        params.UserId,
			BalanceType:   models.BalanceWithdrawable,
			Type:          models.LedgerWithdrawal,
			Operation:     models.OperationDebit,
			Amount:        params.Amount,
			ReferenceType: models.ReferenceWithdrawal,
			ReferenceId:   withdrawal.Id,
			Description:   fmt.Sprintf("PIX withdrawal (fee %s)", params.FeeAmount.StringFixed(2)),
			At:            params.RequestedAt,
		})
		if err != nil {
			return err
		}

		_, err = ltx.tx.ExecContext(ctx, queryInsertWithdrawal,
			withdrawal.Id, withdrawal.UserId, withdrawal.Amount, withdrawal.FeeAmount, withdrawal.NetAmount,
			withdrawal.PixKey, withdrawal.PixKeyType, withdrawal.Cpf, withdrawal.Status,
			"", "", "", withdrawal.RequestedDate, withdrawal.RequestedAt, nil, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to insert withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal created",
		zap.String("withdrawal_id", withdrawal.Id),
		zap.String("user_id", withdrawal.UserId),
		zap.String("amount", withdrawal.Amount.String()),
		zap.String("net_amount", withdrawal.NetAmount.String()))
	return withdrawal, nil
}

func (s *Service) CountWithdrawalsForDate(ctx context.Context, userId, date string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountWithdrawalsForDate, userId, date).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}
	return count, nil
}

func (s *Service) GetWithdrawal(ctx context.Context, withdrawalId string) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx, queryGetWithdrawal, withdrawalId))
	if err != nil {
		return nil, notFound(err, "withdrawal", withdrawalId)
	}
	return w, nil
}

func (s *Service) FindWithdrawalByTransactionId(ctx context.Context, transactionId string) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx, queryGetWithdrawalByTransactionId, transactionId))
	if err != nil {
		return nil, notFound(err, "withdrawal with transaction", transactionId)
	}
	return w, nil
}

func (s *Service) ListUserWithdrawals(ctx context.Context, userId string) ([]models.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, queryListUserWithdrawals, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query withdrawals: %w", err)
	}
	defer closeRows(rows)

	var withdrawals []models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan withdrawal row: %w", err)
		}
		withdrawals = append(withdrawals, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}
	return withdrawals, nil
}

// RecordWithdrawalHandoff stores the gateway outcome. It never touches balances.
func (s *Service) RecordWithdrawalHandoff(ctx context.Context, params store.WithdrawalHandoffParams) error {
	_, err := s.db.ExecContext(ctx, queryUpdateWithdrawalHandoff, params.Status, params.TransactionId,
		params.ErrorMessage, params.ProviderResponse, params.WithdrawalId)
	if err != nil {
		return fmt.Errorf("failed to record handoff for withdrawal %s: %w", params.WithdrawalId, err)
	}

	zap.L().Info("Withdrawal handoff recorded",
		zap.String("withdrawal_id", params.WithdrawalId),
		zap.String("status", string(params.Status)),
		zap.String("transaction_id", params.TransactionId),
		zap.String("error", params.ErrorMessage))
	return nil
}

// TransitionWithdrawal moves a withdrawal from one of params.From to params.To,
// refunding the full amount in the same transaction when params.Refund is set.
func (s *Service) TransitionWithdrawal(ctx context.Context, params store.TransitionWithdrawalParams) (*models.Withdrawal, error) {
	var withdrawal *models.Withdrawal

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		var err error
		withdrawal, err = scanWithdrawal(ltx.tx.QueryRowContext(ctx, queryGetWithdrawal, params.WithdrawalId))
		if err != nil {
			return notFound(err, "withdrawal", params.WithdrawalId)
		}
		if !slices.Contains(params.From, withdrawal.Status) {
			return fmt.Errorf("%w: withdrawal %s is %s, cannot move to %s",
				store.ErrInvalidStatus, withdrawal.Id, withdrawal.Status, params.To)
		}

		from := withdrawal.Status
		at := params.At
		switch params.To {
		case models.WithdrawalApproved:
			withdrawal.ApprovedAt = &at
		case models.WithdrawalPaid:
			withdrawal.PaidAt = &at
		case models.WithdrawalRejected, models.WithdrawalCancelled:
			withdrawal.RejectedAt = &at
		}
		if params.TransactionId != "" {
			withdrawal.TransactionId = params.TransactionId
		}
		if params.Reason != "" {
			withdrawal.ErrorMessage = params.Reason
		}
		withdrawal.Status = params.To

		result, err := ltx.tx.ExecContext(ctx, queryUpdateWithdrawalStatus, withdrawal.Status, withdrawal.TransactionId,
			withdrawal.ErrorMessage, timeOrNil(withdrawal.ApprovedAt), timeOrNil(withdrawal.PaidAt),
			timeOrNil(withdrawal.RejectedAt), withdrawal.Id, from)
		if err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("withdrawal update failed - %w", store.ErrConcurrentModification)
		}

		if params.Refund {
			_, err = s.post(ctx, ltx, PostParams{
				UserId:        withdrawal.UserId,
				BalanceType:   models.BalanceWithdrawable,
				Type:          models.LedgerRefund,
				Operation:     models.OperationCredit,
				Amount:        withdrawal.Amount,
				ReferenceType: models.ReferenceWithdrawal,
				ReferenceId:   withdrawal.Id,
				Description:   fmt.Sprintf("Withdrawal %s refunded", params.To),
				At:            params.At,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal status changed",
		zap.String("withdrawal_id", withdrawal.Id),
		zap.String("status", string(withdrawal.Status)),
		zap.Bool("refunded", params.Refund))
	return withdrawal, nil
}

// WithdrawalStats aggregates count and amount per status.
func (s *Service) WithdrawalStats(ctx context.Context) ([]store.WithdrawalStat, error) {
	rows, err := s.db.QueryContext(ctx, queryWithdrawalStats)
	if err != nil {
		return nil, fmt.Errorf("unable to query withdrawals: %w", err)
	}
	defer closeRows(rows)

	byStatus := make(map[models.WithdrawalStatus]*store.WithdrawalStat)
	for rows.Next() {
		var status models.WithdrawalStatus
		var amount decimal.Decimal
		if err := rows.Scan(&status, &amount); err != nil {
			return nil, fmt.Errorf("unable to scan withdrawal row: %w", err)
		}
		stat, ok := byStatus[status]
		if !ok {
			stat = &store.WithdrawalStat{Status: status}
			byStatus[status] = stat
		}
		stat.Count++
		stat.Amount = stat.Amount.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}

	stats := make([]store.WithdrawalStat, 0, len(byStatus))
	for _, stat := range byStatus {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}
