package database

import (
	"context"
	"fmt"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanCommission(row rowScanner) (*models.Commission, error) {
	var c models.Commission
	err := row.Scan(&c.Id, &c.UserId, &c.FromUserId, &c.CycleId, &c.SourceType, &c.SourceId, &c.Level,
		&c.Amount, &c.PurchaseAmount, &c.Percentage, &c.Type, &c.Description, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreditCommissions writes every level of one fan-out, each with its ledger credit, in a single transaction.
// A second fan-out for the same source fails with store.ErrDuplicateTransaction and changes nothing.
func (s *Service) CreditCommissions(ctx context.Context, params store.CreditCommissionsParams) ([]models.Commission, error) {
	commissions := make([]models.Commission, 0, len(params.Credits))

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		for _, credit := range params.Credits {
			commission := models.Commission{
				Id:             uuid.New().String(),
				UserId:         credit.Beneficiary,
				FromUserId:     params.FromUserId,
				CycleId:        params.CycleId,
				SourceType:     params.SourceType,
				SourceId:       params.SourceId,
				Level:          credit.Level,
				Amount:         credit.Amount,
				PurchaseAmount: params.BaseAmount,
				Percentage:     credit.Percentage,
				Type:           params.Type,
				Description:    credit.Description,
				CreatedAt:      params.At,
			}

			_, err := ltx.tx.ExecContext(ctx, queryInsertCommission,
				commission.Id, commission.UserId, commission.FromUserId, commission.CycleId,
				commission.SourceType, commission.SourceId, commission.Level, commission.Amount,
				commission.PurchaseAmount, commission.Percentage, commission.Type, commission.Description,
				commission.CreatedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: commission for %s %s level %d", store.ErrDuplicateTransaction,
						params.SourceType, params.SourceId, credit.Level)
				}
				return fmt.Errorf("failed to insert commission: %w", err)
			}

			_, err = s.post(ctx, ltx, PostParams{
				UserId:        credit.Beneficiary,
				BalanceType:   models.BalanceWithdrawable,
				Type:          params.LedgerType,
				Operation:     models.OperationCredit,
				Amount:        credit.Amount,
				ReferenceType: models.ReferenceCommission,
				ReferenceId:   commission.Id,
				Description:   credit.Description,
				At:            params.At,
			})
			if err != nil {
				return err
			}

			commissions = append(commissions, commission)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Commissions credited",
		zap.String("source_type", string(params.SourceType)),
		zap.String("source_id", params.SourceId),
		zap.String("from_user_id", params.FromUserId),
		zap.Int("levels", len(commissions)))
	return commissions, nil
}

func (s *Service) listCommissions(ctx context.Context, query string, args ...any) ([]models.Commission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query commissions: %w", err)
	}
	defer closeRows(rows)

	var commissions []models.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan commission row: %w", err)
		}
		commissions = append(commissions, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commission rows: %w", err)
	}
	return commissions, nil
}

func (s *Service) ListCommissionsBySource(ctx context.Context, sourceType models.ReferenceType, sourceId string) ([]models.Commission, error) {
	return s.listCommissions(ctx, queryListCommissionsBySource, sourceType, sourceId)
}

func (s *Service) ListUserCommissions(ctx context.Context, userId string) ([]models.Commission, error) {
	return s.listCommissions(ctx, queryListUserCommissions, userId)
}

// CyclesMissingCommissions returns purchases by referred users that never produced a commission.
func (s *Service) CyclesMissingCommissions(ctx context.Context) ([]models.Cycle, error) {
	return s.listCycles(ctx, queryCyclesMissingCommissions)
}

// EarningsMissingResidual returns daily credits of referred users that never produced a residual commission.
func (s *Service) EarningsMissingResidual(ctx context.Context) ([]models.Earning, error) {
	rows, err := s.db.QueryContext(ctx, queryEarningsMissingResidual)
	if err != nil {
		return nil, fmt.Errorf("unable to query earnings: %w", err)
	}
	defer closeRows(rows)

	var earnings []models.Earning
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan earning row: %w", err)
		}
		earnings = append(earnings, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earning rows: %w", err)
	}
	return earnings, nil
}
