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
	"time"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanCycle(row rowScanner) (*models.Cycle, error) {
	var c models.Cycle
	var lastPaidAt, finishedAt sql.NullTime
	err := row.Scan(&c.Id, &c.UserId, &c.PlanId, &c.Amount, &c.Type, &c.DurationDays, &c.DailyIncome, &c.TotalReturn,
		&c.StartedAt, &c.EndsAt, &c.Status, &c.DaysPaid, &c.TotalPaid, &c.IsFirstPurchase, &lastPaidAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	c.LastPaidAt = nullTime(lastPaidAt)
	c.FinishedAt = nullTime(finishedAt)
	return &c, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// CreateCycle debits the plan price from the investable balance and opens the cycle atomically.
func (s *Service) CreateCycle(ctx context.Context, params store.CreateCycleParams) (*models.Cycle, error) {
	plan := params.Plan
	cycle := &models.Cycle{
		Id:           uuid.New().String(),
		UserId:       params.UserId,
		PlanId:       plan.Id,
		Amount:       plan.Price,
		Type:         plan.Type,
		DurationDays: plan.DurationDays,
		DailyIncome:  plan.DailyIncome,
		TotalReturn:  plan.TotalReturn,
		StartedAt:    params.StartedAt,
		EndsAt:       params.StartedAt.AddDate(0, 0, plan.DurationDays),
		Status:       models.CycleActive,
	}

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		if plan.MaxPurchases > 0 {
			var active int
			if err := ltx.tx.QueryRowContext(ctx, queryCountActivePlanCycles, params.UserId, plan.Id).Scan(&active); err != nil {
				return fmt.Errorf("failed to count active cycles: %w", err)
			}
			if active >= plan.MaxPurchases {
				return fmt.Errorf("%w: %d active cycles of plan %s", store.ErrPurchaseLimit, active, plan.Id)
			}
		}

		var owned int
		if err := ltx.tx.QueryRowContext(ctx, queryCountUserCycles, params.UserId).Scan(&owned); err != nil {
			return fmt.Errorf("failed to count user cycles: %w", err)
		}
		cycle.IsFirstPurchase = owned == 0

		_, err := s.post(ctx, ltx, PostParams{
			UserId:        params.UserId,
			BalanceType:   models.BalanceInvestable,
			Type:          models.LedgerInvestment,
			Operation:     models.OperationDebit,
			Amount:        plan.Price,
			ReferenceType: models.ReferenceCycle,
			ReferenceId:   cycle.Id,
			Description:   fmt.Sprintf("Purchase of plan %s", plan.Name),
			At:            params.StartedAt,
		})
		if err != nil {
			return err
		}

		_, err = ltx.tx.ExecContext(ctx, queryInsertCycle,
			cycle.Id, cycle.UserId, cycle.PlanId, cycle.Amount, cycle.Type, cycle.DurationDays,
			cycle.DailyIncome, cycle.TotalReturn, cycle.StartedAt, cycle.EndsAt, cycle.Status,
			cycle.DaysPaid, cycle.TotalPaid, cycle.IsFirstPurchase, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to insert cycle: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Cycle created",
		zap.String("cycle_id", cycle.Id),
		zap.String("user_id", cycle.UserId),
		zap.String("plan_id", cycle.PlanId),
		zap.String("amount", cycle.Amount.String()),
		zap.Bool("first_purchase", cycle.IsFirstPurchase))
	return cycle, nil
}

func (s *Service) GetCycle(ctx context.Context, cycleId string) (*models.Cycle, error) {
	cycle, err := scanCycle(s.db.QueryRowContext(ctx, queryGetCycle, cycleId))
	if err != nil {
		return nil, notFound(err, "cycle", cycleId)
	}
	return cycle, nil
}

func (s *Service) listCycles(ctx context.Context, query string, args ...any) ([]models.Cycle, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query cycles: %w", err)
	}
	defer closeRows(rows)

	var cycles []models.Cycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan cycle row: %w", err)
		}
		cycles = append(cycles, *cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle rows: %w", err)
	}
	return cycles, nil
}

func (s *Service) ListActiveCycles(ctx context.Context) ([]models.Cycle, error) {
	cycles, err := s.listCycles(ctx, queryListActiveCycles)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("Retrieved active cycles", zap.Int("count", len(cycles)))
	return cycles, nil
}

func (s *Service) ListUserCycles(ctx context.Context, userId string) ([]models.Cycle, error) {
	return s.listCycles(ctx, queryListUserCycles, userId)
}

func (s *Service) CountUserCycles(ctx context.Context, userId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountUserCycles, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user cycles: %w", err)
	}
	return count, nil
}

func (s *Service) HasEarningForDate(ctx context.Context, cycleId, referenceDate string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryHasEarningForDate, cycleId, referenceDate).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check earnings: %w", err)
	}
	return count > 0, nil
}

// ListCycleEarnings returns the daily credits of a cycle in date order.
func (s *Service) ListCycleEarnings(ctx context.Context, cycleId string) ([]models.Earning, error) {
	rows, err := s.db.QueryContext(ctx, queryListCycleEarnings, cycleId)
	if err != nil {
		return nil, fmt.Errorf("unable to query earnings: %w", err)
	}
	defer closeRows(rows)

	var earnings []models.Earning
	for rows.Next() {
		earning, err := scanEarning(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan earning row: %w", err)
		}
		earnings = append(earnings, *earning)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earning rows: %w", err)
	}
	return earnings, nil
}

func scanEarning(row rowScanner) (*models.Earning, error) {
	var e models.Earning
	if err := row.Scan(&e.Id, &e.CycleId, &e.UserId, &e.Amount, &e.ReferenceDate, &e.Type, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// PayDailyEarning credits one day of income. The earnings unique key and the days_paid guard
// make a second credit for the same cycle and date impossible.
func (s *Service) PayDailyEarning(ctx context.Context, params store.PayDailyEarningParams) (*models.Earning, *models.Cycle, error) {
	var earning *models.Earning
	var cycle *models.Cycle

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		var err error
		cycle, err = scanCycle(ltx.tx.QueryRowContext(ctx, queryGetCycle, params.CycleId))
		if err != nil {
			return notFound(err, "cycle", params.CycleId)
		}
		if cycle.Status != models.CycleActive {
			return fmt.Errorf("%w: cycle %s is %s", store.ErrCycleNotActive, cycle.Id, cycle.Status)
		}
		if cycle.DaysPaid >= cycle.DurationDays {
			return fmt.Errorf("%w: cycle %s already paid %d of %d days", store.ErrCycleNotActive, cycle.Id, cycle.DaysPaid, cycle.DurationDays)
		}

		earning = &models.Earning{
			Id:            uuid.New().String(),
			CycleId:       cycle.Id,
			UserId:        cycle.UserId,
			Amount:        cycle.DailyIncome,
			ReferenceDate: params.ReferenceDate,
			Type:          models.EarningTypeDaily,
			CreatedAt:     params.PaidAt,
		}

		_, err = ltx.tx.ExecContext(ctx, queryInsertEarning, earning.Id, earning.CycleId, earning.UserId,
			earning.Amount, earning.ReferenceDate, earning.Type, earning.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: cycle %s on %s", store.ErrAlreadyPaidToday, cycle.Id, params.ReferenceDate)
			}
			return fmt.Errorf("failed to insert earning: %w", err)
		}

		_, err = s.post(ctx, ltx, PostParams{
			UserId:        cycle.UserId,
			BalanceType:   models.BalanceWithdrawable,
			Type:          models.LedgerEarning,
			Operation:     models.OperationCredit,
			Amount:        earning.Amount,
			ReferenceType: models.ReferenceEarning,
			ReferenceId:   earning.Id,
			Description:   fmt.Sprintf("Daily income day %d/%d", cycle.DaysPaid+1, cycle.DurationDays),
			At:            params.PaidAt,
		})
		if err != nil {
			return err
		}

		totalPaid := cycle.TotalPaid.Add(earning.Amount)
		result, err := ltx.tx.ExecContext(ctx, queryRecordCyclePayment, totalPaid, params.PaidAt, cycle.Id, cycle.DaysPaid)
		if err != nil {
			return fmt.Errorf("failed to update cycle: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("cycle update failed - %w", store.ErrConcurrentModification)
		}

		cycle.DaysPaid++
		cycle.TotalPaid = totalPaid
		paidAt := params.PaidAt
		cycle.LastPaidAt = &paidAt
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Daily earning credited",
		zap.String("cycle_id", cycle.Id),
		zap.String("user_id", cycle.UserId),
		zap.String("amount", earning.Amount.String()),
		zap.Int("days_paid", cycle.DaysPaid),
		zap.String("reference_date", earning.ReferenceDate))
	return earning, cycle, nil
}

// FinalizeCycle credits any shortfall against the expected total and closes the cycle.
// A ledger entry is always written, with a zero amount when nothing is owed.
func (s *Service) FinalizeCycle(ctx context.Context, params store.FinalizeCycleParams) (*models.Cycle, *models.LedgerEntry, error) {
	var cycle *models.Cycle
	var entry *models.LedgerEntry

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		var err error
		cycle, err = scanCycle(ltx.tx.QueryRowContext(ctx, queryGetCycle, params.CycleId))
		if err != nil {
			return notFound(err, "cycle", params.CycleId)
		}
		if cycle.Status != models.CycleActive {
			return fmt.Errorf("%w: cycle %s is %s", store.ErrCycleNotActive, cycle.Id, cycle.Status)
		}

		shortfall := cycle.Shortfall()
		entry, err = s.post(ctx, ltx, PostParams{
			UserId:        cycle.UserId,
			BalanceType:   models.BalanceWithdrawable,
			Type:          models.LedgerEarning,
			Operation:     models.OperationCredit,
			Amount:        shortfall,
			ReferenceType: models.ReferenceCycle,
			ReferenceId:   cycle.Id,
			Description:   params.Description,
			At:            params.FinishedAt,
		})
		if err != nil {
			return err
		}

		totalPaid := cycle.TotalPaid.Add(shortfall)
		result, err := ltx.tx.ExecContext(ctx, queryFinishCycle, totalPaid, params.FinishedAt, cycle.Id)
		if err != nil {
			return fmt.Errorf("failed to finish cycle: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("%w: cycle %s", store.ErrCycleNotActive, cycle.Id)
		}

		cycle.Status = models.CycleFinished
		cycle.TotalPaid = totalPaid
		finishedAt := params.FinishedAt
		cycle.FinishedAt = &finishedAt
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Cycle finalized",
		zap.String("cycle_id", cycle.Id),
		zap.String("user_id", cycle.UserId),
		zap.String("credited", entry.Amount.String()),
		zap.String("total_paid", cycle.TotalPaid.String()))
	return cycle, entry, nil
}
