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

package api

import (
	"context"
	"errors"
	"fmt"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetUserBalances returns both balances and the running totals of a user
func (s *LedgerService) GetUserBalances(ctx context.Context, userId string) (*models.UserBalances, error) {
	if userId == "" {
		return nil, models.NewSettlementError(models.CodeValidation, "user_id is required")
	}

	balances, err := s.db.GetUserBalances(ctx, userId)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, models.NewSettlementError(models.CodeNotFound, fmt.Sprintf("user %s not found", userId))
		}
		zap.L().Error("Failed to get user balances", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balances: %w", err)
	}

	return balances, nil
}

// GetLedgerHistory returns paginated ledger entries for a user, newest first
func (s *LedgerService) GetLedgerHistory(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	if userId == "" {
		return nil, models.NewSettlementError(models.CodeValidation, "user_id is required")
	}

	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.db.GetLedgerHistory(ctx, userId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get ledger history",
			zap.String("user_id", userId),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve ledger history: %w", err)
	}

	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, nil
}

// ListPlans returns the plans that can currently be purchased
func (s *LedgerService) ListPlans(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.db.ListPlans(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve plans: %w", err)
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	return plans, nil
}
