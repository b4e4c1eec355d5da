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
	"errors"
	"fmt"

	"pix-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetBalance returns the cached balance of one balance type
func (s *Service) GetBalance(ctx context.Context, userId string, balanceType models.BalanceType) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, queryGetBalance, userId, balanceType).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// No balance record means zero balance
		return decimal.Zero, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("user_id", userId), zap.String("balance_type", string(balanceType)), zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	zap.L().Debug("Retrieved balance", zap.String("user_id", userId), zap.String("balance_type", string(balanceType)), zap.String("balance", balance.String()))
	return balance, nil
}

// GetUserBalances returns both balances plus lifetime totals
func (s *Service) GetUserBalances(ctx context.Context, userId string) (*models.UserBalances, error) {
	user, err := s.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}

	investable, err := s.GetBalance(ctx, userId, models.BalanceInvestable)
	if err != nil {
		return nil, err
	}
	withdrawable, err := s.GetBalance(ctx, userId, models.BalanceWithdrawable)
	if err != nil {
		return nil, err
	}

	return &models.UserBalances{
		UserId:         userId,
		Investable:     investable,
		Withdrawable:   withdrawable,
		TotalInvested:  user.TotalInvested,
		TotalEarned:    user.TotalEarned,
		TotalWithdrawn: user.TotalWithdrawn,
	}, nil
}

// GetAllUserBalances returns every balance row for a user
func (s *Service) GetAllUserBalances(ctx context.Context, userId string) ([]models.AccountBalance, error) {
	zap.L().Debug("Getting all balances", zap.String("user_id", userId))

	rows, err := s.db.QueryContext(ctx, queryGetAllUserBalances, userId)
	if err != nil {
		zap.L().Error("Failed to get all balances", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to get all balances: %w", err)
	}
	defer closeRows(rows)

	var balances []models.AccountBalance
	for rows.Next() {
		var balance models.AccountBalance
		err := rows.Scan(&balance.Id, &balance.UserId, &balance.BalanceType, &balance.Balance,
			&balance.LastEntryId, &balance.Version, &balance.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, balance)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during balance row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}

	zap.L().Debug("Retrieved all balances", zap.String("user_id", userId), zap.Int("count", len(balances)))
	return balances, nil
}

// ReconcileBalance verifies that the cached balance matches the sum of its ledger entries
func (s *Service) ReconcileBalance(ctx context.Context, userId string, balanceType models.BalanceType) error {
	zap.L().Info("Reconciling balance", zap.String("user_id", userId), zap.String("balance_type", string(balanceType)))

	currentBalance, err := s.GetBalance(ctx, userId, balanceType)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryGetLedgerForBalance, userId, balanceType)
	if err != nil {
		return fmt.Errorf("failed to calculate balance from ledger: %w", err)
	}
	defer closeRows(rows)

	calculatedBalance := decimal.Zero
	for rows.Next() {
		entry := models.LedgerEntry{}
		if err := rows.Scan(&entry.Operation, &entry.Amount); err != nil {
			return fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		calculatedBalance = calculatedBalance.Add(entry.SignedAmount())
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating ledger rows: %w", err)
	}

	// Check if balances match (exact decimal comparison)
	if !currentBalance.Equal(calculatedBalance) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.String("balance_type", string(balanceType)),
			zap.String("current_balance", currentBalance.String()),
			zap.String("calculated_balance", calculatedBalance.String()),
			zap.String("difference", currentBalance.Sub(calculatedBalance).String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s", currentBalance.String(), calculatedBalance.String())
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("user_id", userId),
		zap.String("balance_type", string(balanceType)),
		zap.String("balance", currentBalance.String()))
	return nil
}
