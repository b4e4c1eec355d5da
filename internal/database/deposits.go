package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanDeposit(row rowScanner) (*models.Deposit, error) {
	var d models.Deposit
	var paidAt sql.NullTime
	err := row.Scan(&d.Id, &d.UserId, &d.Amount, &d.Status, &d.TransactionId, &d.OrderId, &d.Identifier,
		&d.QrCode, &d.QrCodeBase64, &d.QrCodeImage, &d.OrderUrl, &d.ErrorMessage, &d.ExpiresAt, &paidAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.PaidAt = nullTime(paidAt)
	return &d, nil
}

// CreateDeposit stores a PENDING deposit before any gateway call so a charge is never orphaned.
func (s *Service) CreateDeposit(ctx context.Context, params store.CreateDepositParams) (*models.Deposit, error) {
	id := uuid.New().String()
	deposit := &models.Deposit{
		Id:         id,
		UserId:     params.UserId,
		Amount:     params.Amount,
		Status:     models.DepositPending,
		Identifier: "DEP-" + id,
		ExpiresAt:  params.ExpiresAt,
		CreatedAt:  params.CreatedAt,
	}

	_, err := s.db.ExecContext(ctx, queryInsertDeposit,
		deposit.Id, deposit.UserId, deposit.Amount, deposit.Status, "", "", deposit.Identifier,
		"", "", "", "", "", deposit.ExpiresAt, nil, deposit.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert deposit: %w", err)
	}

	zap.L().Info("Deposit created",
		zap.String("deposit_id", deposit.Id),
		zap.String("user_id", deposit.UserId),
		zap.String("amount", deposit.Amount.String()))
	return deposit, nil
}

func (s *Service) UpdateDepositGateway(ctx context.Context, params store.DepositGatewayParams) error {
	_, err := s.db.ExecContext(ctx, queryUpdateDepositGateway, params.TransactionId, params.OrderId,
		params.QrCode, params.QrCodeBase64, params.QrCodeImage, params.OrderUrl, params.RawResponse, params.DepositId)
	if err != nil {
		return fmt.Errorf("failed to update deposit %s: %w", params.DepositId, err)
	}
	return nil
}

// SetDepositStatus changes status without any balance effect. PAID deposits are never moved.
func (s *Service) SetDepositStatus(ctx context.Context, depositId string, status models.DepositStatus, errorMessage string) error {
	if status == models.DepositPaid {
		return fmt.Errorf("%w: use SettleDeposit to mark deposit %s paid", store.ErrInvalidStatus, depositId)
	}

	result, err := s.db.ExecContext(ctx, querySetDepositStatus, status, errorMessage, depositId)
	if err != nil {
		return fmt.Errorf("failed to update deposit status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: deposit %s is missing or already paid", store.ErrInvalidStatus, depositId)
	}

	zap.L().Info("Deposit status updated", zap.String("deposit_id", depositId), zap.String("status", string(status)))
	return nil
}

func (s *Service) GetDeposit(ctx context.Context, depositId string) (*models.Deposit, error) {
	deposit, err := scanDeposit(s.db.QueryRowContext(ctx, queryGetDeposit, depositId))
	if err != nil {
		return nil, notFound(err, "deposit", depositId)
	}
	return deposit, nil
}

// FindDepositForNotification resolves a deposit by transaction id, then order id, then our identifier.
func (s *Service) FindDepositForNotification(ctx context.Context, keys store.NotificationKeys) (*models.Deposit, error) {
	lookups := []struct {
		query string
		value string
	}{
		{queryGetDepositByTransactionId, keys.TransactionId},
		{queryGetDepositByOrderId, keys.OrderId},
		{queryGetDepositByIdentifier, keys.Identifier},
	}

	for _, lookup := range lookups {
		if lookup.value == "" {
			continue
		}
		deposit, err := scanDeposit(s.db.QueryRowContext(ctx, lookup.query, lookup.value))
		if err == nil {
			return deposit, nil
		}
		if err = notFound(err, "deposit", lookup.value); !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: no deposit matches transaction %q order %q identifier %q",
		store.ErrNotFound, keys.TransactionId, keys.OrderId, keys.Identifier)
}

// SettleDeposit marks the deposit PAID and credits the investable balance exactly once.
// credited is false when the deposit was already PAID.
func (s *Service) SettleDeposit(ctx context.Context, depositId string, paidAt time.Time) (*models.Deposit, bool, error) {
	var deposit *models.Deposit
	credited := false

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		var err error
		deposit, err = scanDeposit(ltx.tx.QueryRowContext(ctx, queryGetDeposit, depositId))
		if err != nil {
			return notFound(err, "deposit", depositId)
		}
		if deposit.Status == models.DepositPaid {
			return nil
		}

		result, err := ltx.tx.ExecContext(ctx, queryMarkDepositPaid, paidAt, depositId)
		if err != nil {
			return fmt.Errorf("failed to mark deposit paid: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		} else if n == 0 {
			return nil
		}

		_, err = s.post(ctx, ltx, PostParams{
			UserId:        deposit.UserId,
			BalanceType:   models.BalanceInvestable,
			Type:          models.LedgerDeposit,
			Operation:     models.OperationCredit,
			Amount:        deposit.Amount,
			ReferenceType: models.ReferenceDeposit,
			ReferenceId:   deposit.Id,
			Description:   "PIX deposit",
			At:            paidAt,
		})
		if err != nil {
			return err
		}

		deposit.Status = models.DepositPaid
		deposit.PaidAt = &paidAt
		credited = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if credited {
		zap.L().Info("Deposit settled",
			zap.String("deposit_id", deposit.Id),
			zap.String("user_id", deposit.UserId),
			zap.String("amount", deposit.Amount.String()))
	} else {
		zap.L().Info("Deposit already settled, skipping", zap.String("deposit_id", deposit.Id))
	}
	return deposit, credited, nil
}

// ListPendingDeposits returns every PENDING deposit, oldest expiry first.
func (s *Service) ListPendingDeposits(ctx context.Context) ([]models.Deposit, error) {
	rows, err := s.db.QueryContext(ctx, queryListPendingDeposits)
	if err != nil {
		return nil, fmt.Errorf("unable to query deposits: %w", err)
	}
	defer closeRows(rows)

	var deposits []models.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan deposit row: %w", err)
		}
		deposits = append(deposits, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit rows: %w", err)
	}
	return deposits, nil
}
