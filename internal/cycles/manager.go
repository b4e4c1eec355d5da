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

package cycles

import (
	"context"
	"errors"
	"fmt"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CommissionEngine fans out referral commissions for purchases and daily earnings.
type CommissionEngine interface {
	ProcessPurchase(ctx context.Context, cycle *models.Cycle) (*models.CommissionResult, error)
	ProcessResidual(ctx context.Context, earning *models.Earning) (*models.CommissionResult, error)
}

// Store is the persistence surface of the cycle lifecycle.
type Store interface {
	store.PlanStore
	store.CycleStore
	GetBalance(ctx context.Context, userId string, balanceType models.BalanceType) (decimal.Decimal, error)
}

// Manager handles plan purchases.
type Manager struct {
	store  Store
	engine CommissionEngine
	clock  clock.Clock
}

func NewManager(s Store, engine CommissionEngine, clk clock.Clock) *Manager {
	return &Manager{store: s, engine: engine, clock: clk}
}

// Purchase buys planId for userId. The cycle, the investable debit and its ledger entry
// commit together; commissions are paid afterwards and never undo the purchase.
func (m *Manager) Purchase(ctx context.Context, userId, planId string) (*models.PurchaseResult, error) {
	zap.L().Info("Processing purchase", zap.String("user_id", userId), zap.String("plan_id", planId))

	plan, err := m.store.GetPlan(ctx, planId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NewSettlementError(models.CodePlanNotFound, fmt.Sprintf("plan %s not found", planId))
	}
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, models.NewSettlementError(models.CodePlanInactive, fmt.Sprintf("plan %s is not active", planId))
	}

	balance, err := m.store.GetBalance(ctx, userId, models.BalanceInvestable)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(plan.Price) {
		return nil, insufficientBalance(balance, plan)
	}

	cycle, err := m.store.CreateCycle(ctx, store.CreateCycleParams{
		UserId:    userId,
		Plan:      *plan,
		StartedAt: m.clock.Now(),
	})
	switch {
	case errors.Is(err, store.ErrPurchaseLimit):
		return nil, models.NewSettlementError(models.CodePurchaseLimitReached,
			fmt.Sprintf("maximum of %d active purchases reached for plan %s", plan.MaxPurchases, plan.Name))
	case errors.Is(err, store.ErrInsufficientBalance):
		return nil, insufficientBalance(balance, plan)
	case err != nil:
		zap.L().Error("Purchase failed", zap.String("user_id", userId), zap.String("plan_id", planId), zap.Error(err))
		return nil, err
	}

	result := &models.PurchaseResult{Cycle: cycle}

	commissions, err := m.engine.ProcessPurchase(ctx, cycle)
	if err != nil {
		zap.L().Error("Commission fan-out failed, purchase kept",
			zap.String("cycle_id", cycle.Id),
			zap.String("user_id", userId),
			zap.Error(err))
		result.CommissionsError = err.Error()
	} else {
		result.CommissionsPaid = len(commissions.Commissions)
	}

	result.NewBalance, err = m.store.GetBalance(ctx, userId, models.BalanceInvestable)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func insufficientBalance(balance decimal.Decimal, plan *models.Plan) error {
	return models.NewSettlementError(models.CodeInsufficientBalance,
		fmt.Sprintf("investable balance %s is below plan price %s", balance.StringFixed(2), plan.Price.StringFixed(2)))
}
