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
	"time"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/lock"
	"pix-settlement-go/internal/metrics"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	SweepDailyPayments = "daily-payments"
	minPaymentInterval = 24 * time.Hour
)

// DailyStats summarizes one daily payment sweep.
type DailyStats struct {
	Processed        int             `json:"processed"`
	Skipped          int             `json:"skipped"`
	Completed        int             `json:"completed"`
	Errors           int             `json:"errors"`
	CommissionErrors int             `json:"commission_errors"`
	EarningsPaid     decimal.Decimal `json:"earnings_paid"`
	ResidualsPaid    decimal.Decimal `json:"residuals_paid"`
	UsersBenefited   int             `json:"users_benefited"`
}

type outcome int

const (
	outcomePaid outcome = iota
	outcomeSkipped
	outcomeCompleted
)

// DailyProcessor credits one day of income to every eligible DAILY cycle.
type DailyProcessor struct {
	store     store.CycleStore
	engine    CommissionEngine
	finalizer *Finalizer
	clock     clock.Clock
	location  *time.Location
	locker    lock.Locker
	metrics   *metrics.Metrics
}

func NewDailyProcessor(s store.CycleStore, engine CommissionEngine, finalizer *Finalizer, clk clock.Clock,
	loc *time.Location, locker lock.Locker, m *metrics.Metrics) *DailyProcessor {
	if locker == nil {
		locker = lock.Noop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DailyProcessor{
		store:     s,
		engine:    engine,
		finalizer: finalizer,
		clock:     clk,
		location:  loc,
		locker:    locker,
		metrics:   m,
	}
}

// Run sweeps all active cycles. A failing cycle is logged and counted; the sweep continues.
func (p *DailyProcessor) Run(ctx context.Context) (*DailyStats, error) {
	release, err := p.locker.Acquire(ctx, SweepDailyPayments)
	if err != nil {
		return nil, err
	}
	defer release()

	stats := &DailyStats{EarningsPaid: decimal.Zero, ResidualsPaid: decimal.Zero}
	benefited := make(map[string]struct{})

	active, err := p.store.ListActiveCycles(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to list active cycles: %w", err)
	}
	zap.L().Info("Starting daily payment sweep",
		zap.Int("active_cycles", len(active)),
		zap.String("date", clock.LocalDate(p.clock.Now(), p.location)))

	for i := range active {
		cycle := &active[i]
		if cycle.Type != models.PlanDaily {
			continue
		}

		result, err := p.processCycle(ctx, cycle, stats, benefited)
		if err != nil {
			zap.L().Error("Failed to process cycle",
				zap.String("cycle_id", cycle.Id),
				zap.String("user_id", cycle.UserId),
				zap.Error(err))
			stats.Errors++
			p.metrics.SweepItem(SweepDailyPayments, "error")
			continue
		}

		switch result {
		case outcomePaid:
			stats.Processed++
			p.metrics.SweepItem(SweepDailyPayments, "paid")
		case outcomeCompleted:
			stats.Completed++
			p.metrics.SweepItem(SweepDailyPayments, "completed")
		default:
			stats.Skipped++
			p.metrics.SweepItem(SweepDailyPayments, "skipped")
		}
	}

	stats.UsersBenefited = len(benefited)
	p.metrics.SweepFinished(SweepDailyPayments, p.clock.Now())

	zap.L().Info("Daily payment sweep complete",
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("completed", stats.Completed),
		zap.Int("errors", stats.Errors),
		zap.String("earnings_paid", stats.EarningsPaid.String()),
		zap.String("residuals_paid", stats.ResidualsPaid.String()),
		zap.Int("users_benefited", stats.UsersBenefited))
	return stats, nil
}

func (p *DailyProcessor) processCycle(ctx context.Context, cycle *models.Cycle, stats *DailyStats, benefited map[string]struct{}) (outcome, error) {
	if cycle.DaysPaid >= cycle.DurationDays {
		return p.complete(ctx, cycle)
	}

	now := p.clock.Now()
	today := clock.LocalDate(now, p.location)

	paid, err := p.store.HasEarningForDate(ctx, cycle.Id, today)
	if err != nil {
		return outcomeSkipped, err
	}
	if paid {
		return outcomeSkipped, nil
	}

	since := cycle.StartedAt
	if cycle.LastPaidAt != nil {
		since = *cycle.LastPaidAt
	}
	if now.Sub(since) < minPaymentInterval {
		return outcomeSkipped, nil
	}

	earning, updated, err := p.store.PayDailyEarning(ctx, store.PayDailyEarningParams{
		CycleId:       cycle.Id,
		ReferenceDate: today,
		PaidAt:        now,
	})
	if errors.Is(err, store.ErrAlreadyPaidToday) || errors.Is(err, store.ErrCycleNotActive) {
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, err
	}

	stats.EarningsPaid = stats.EarningsPaid.Add(earning.Amount)
	benefited[earning.UserId] = struct{}{}

	residual, err := p.engine.ProcessResidual(ctx, earning)
	if err != nil {
		zap.L().Error("Residual commissions failed, earning kept",
			zap.String("earning_id", earning.Id),
			zap.String("cycle_id", cycle.Id),
			zap.Error(err))
		stats.CommissionErrors++
	} else {
		stats.ResidualsPaid = stats.ResidualsPaid.Add(residual.TotalPaid)
		for _, c := range residual.Commissions {
			benefited[c.UserId] = struct{}{}
		}
	}

	if updated.DaysPaid >= updated.DurationDays {
		result, err := p.complete(ctx, updated)
		if err != nil {
			return result, err
		}
		stats.Processed++
		return result, nil
	}
	return outcomePaid, nil
}

func (p *DailyProcessor) complete(ctx context.Context, cycle *models.Cycle) (outcome, error) {
	_, _, err := p.finalizer.Finalize(ctx, cycle)
	if errors.Is(err, store.ErrCycleNotActive) {
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, fmt.Errorf("unable to finalize cycle: %w", err)
	}
	return outcomeCompleted, nil
}
