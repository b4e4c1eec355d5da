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

package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/metrics"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// RateSource resolves the level to percentage table for a commission type.
type RateSource interface {
	Rates(ctx context.Context, commissionType models.CommissionType, at time.Time) (models.RateTable, error)
}

// Store is what the engine needs from persistence.
type Store interface {
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetAncestors(ctx context.Context, userId string) ([]models.Referral, error)
	CreditCommissions(ctx context.Context, params store.CreditCommissionsParams) ([]models.Commission, error)
	ListCommissionsBySource(ctx context.Context, sourceType models.ReferenceType, sourceId string) ([]models.Commission, error)
}

type Engine struct {
	store   Store
	rates   RateSource
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewEngine(s Store, rates RateSource, clk clock.Clock, m *metrics.Metrics) *Engine {
	return &Engine{store: s, rates: rates, clock: clk, metrics: m}
}

// event is one commission-triggering fact.
type event struct {
	fromUserId string
	cycleId    string
	sourceType models.ReferenceType
	sourceId   string
	kind       models.CommissionType
	ledgerType models.LedgerType
	base       decimal.Decimal
	at         time.Time
}

// ProcessPurchase pays purchase commissions for a newly created cycle.
func (e *Engine) ProcessPurchase(ctx context.Context, cycle *models.Cycle) (*models.CommissionResult, error) {
	kind := models.CommissionSubsequentPurchase
	if cycle.IsFirstPurchase {
		kind = models.CommissionFirstPurchase
	}
	return e.fanOut(ctx, event{
		fromUserId: cycle.UserId,
		cycleId:    cycle.Id,
		sourceType: models.ReferenceCycle,
		sourceId:   cycle.Id,
		kind:       kind,
		ledgerType: models.LedgerCommission,
		base:       cycle.Amount,
		at:         e.clock.Now(),
	})
}

// ProcessResidual pays residual commissions on one daily earning.
func (e *Engine) ProcessResidual(ctx context.Context, earning *models.Earning) (*models.CommissionResult, error) {
	return e.fanOut(ctx, event{
		fromUserId: earning.UserId,
		cycleId:    earning.CycleId,
		sourceType: models.ReferenceEarning,
		sourceId:   earning.Id,
		kind:       models.CommissionResidual,
		ledgerType: models.LedgerCommissionResidual,
		base:       earning.Amount,
		at:         e.clock.Now(),
	})
}

// Plan computes the credits for an event without writing anything.
// The walk stops at the first level without an ancestor or without a configured rate.
func Plan(ancestors []models.Referral, rates models.RateTable, base decimal.Decimal) []store.CommissionCredit {
	byLevel := make(map[int]string, len(ancestors))
	for _, a := range ancestors {
		byLevel[a.Level] = a.UserId
	}

	var credits []store.CommissionCredit
	for level := 1; level <= models.MaxReferralDepth; level++ {
		beneficiary, ok := byLevel[level]
		if !ok {
			break
		}
		pct, ok := rates.Rate(level)
		if !ok {
			break
		}

		amount := base.Mul(pct).Div(hundred).Round(2)
		if !amount.IsPositive() {
			continue
		}
		credits = append(credits, store.CommissionCredit{
			Beneficiary: beneficiary,
			Level:       level,
			Percentage:  pct,
			Amount:      amount,
		})
	}
	return credits
}

func describe(kind models.CommissionType, credit store.CommissionCredit, fromName string) string {
	switch kind {
	case models.CommissionFirstPurchase:
		return fmt.Sprintf("Commission %s%% - level %d - first purchase by %s", credit.Percentage.String(), credit.Level, fromName)
	case models.CommissionSubsequentPurchase:
		return fmt.Sprintf("Commission %s%% - level %d - purchase by %s", credit.Percentage.String(), credit.Level, fromName)
	default:
		return fmt.Sprintf("Residual commission %s%% - level %d - daily income of %s", credit.Percentage.String(), credit.Level, fromName)
	}
}

func (e *Engine) fanOut(ctx context.Context, ev event) (*models.CommissionResult, error) {
	result := &models.CommissionResult{TotalPaid: decimal.Zero}

	ancestors, err := e.store.GetAncestors(ctx, ev.fromUserId)
	if err != nil {
		return nil, fmt.Errorf("failed to load ancestors: %w", err)
	}
	if len(ancestors) == 0 {
		return result, nil
	}

	rates, err := e.rates.Rates(ctx, ev.kind, ev.at)
	if err != nil {
		return nil, err
	}

	credits := Plan(ancestors, rates, ev.base)
	if len(credits) == 0 {
		return result, nil
	}

	from, err := e.store.GetUserById(ctx, ev.fromUserId)
	if err != nil {
		return nil, err
	}
	for i := range credits {
		credits[i].Description = describe(ev.kind, credits[i], from.Name)
	}

	commissions, err := e.store.CreditCommissions(ctx, store.CreditCommissionsParams{
		FromUserId: ev.fromUserId,
		CycleId:    ev.cycleId,
		SourceType: ev.sourceType,
		SourceId:   ev.sourceId,
		Type:       ev.kind,
		LedgerType: ev.ledgerType,
		BaseAmount: ev.base,
		Credits:    credits,
		At:         ev.at,
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		zap.L().Info("Commissions already paid for source, skipping",
			zap.String("source_type", string(ev.sourceType)),
			zap.String("source_id", ev.sourceId))
		existing, err := e.store.ListCommissionsBySource(ctx, ev.sourceType, ev.sourceId)
		if err != nil {
			return nil, err
		}
		result.Duplicate = true
		result.Commissions = existing
		for _, c := range existing {
			result.TotalPaid = result.TotalPaid.Add(c.Amount)
		}
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Commissions = commissions
	for _, c := range commissions {
		result.TotalPaid = result.TotalPaid.Add(c.Amount)
	}
	e.metrics.Commissions(ev.kind, len(commissions))

	zap.L().Info("Commission fan-out complete",
		zap.String("type", string(ev.kind)),
		zap.String("source_id", ev.sourceId),
		zap.Int("levels", len(commissions)),
		zap.String("total", result.TotalPaid.String()))
	return result, nil
}
