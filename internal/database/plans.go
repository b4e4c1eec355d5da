package database

import (
	"context"
	"fmt"

	"pix-settlement-go/internal/models"

	"go.uber.org/zap"
)

func scanPlan(row rowScanner) (*models.Plan, error) {
	var plan models.Plan
	err := row.Scan(&plan.Id, &plan.Name, &plan.Price, &plan.Type, &plan.DurationDays,
		&plan.DailyIncome, &plan.TotalReturn, &plan.MaxPurchases, &plan.Active, &plan.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// UpsertPlan creates the plan or replaces its terms. Existing cycles keep the terms they were bought with.
func (s *Service) UpsertPlan(ctx context.Context, plan models.Plan) error {
	_, err := s.db.ExecContext(ctx, queryUpsertPlan, plan.Id, plan.Name, plan.Price, plan.Type, plan.DurationDays,
		plan.DailyIncome, plan.TotalReturn, plan.MaxPurchases, plan.Active, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("unable to upsert plan %s: %w", plan.Id, err)
	}

	zap.L().Info("Plan saved",
		zap.String("plan_id", plan.Id),
		zap.String("type", string(plan.Type)),
		zap.String("price", plan.Price.String()),
		zap.Bool("active", plan.Active))
	return nil
}

func (s *Service) GetPlan(ctx context.Context, planId string) (*models.Plan, error) {
	plan, err := scanPlan(s.db.QueryRowContext(ctx, queryGetPlan, planId))
	if err != nil {
		return nil, notFound(err, "plan", planId)
	}
	return plan, nil
}

func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	rows, err := s.db.QueryContext(ctx, queryListPlans)
	if err != nil {
		return nil, fmt.Errorf("unable to query plans: %w", err)
	}
	defer closeRows(rows)

	var plans []models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan plan row: %w", err)
		}
		if activeOnly && !plan.Active {
			continue
		}
		plans = append(plans, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan rows: %w", err)
	}

	return plans, nil
}
