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
	"time"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PostParams describes one balance movement. Amount is a non-negative magnitude; Operation gives the sign.
type PostParams struct {
	UserId        string
	BalanceType   models.BalanceType
	Type          models.LedgerType
	Operation     models.Operation
	Amount        decimal.Decimal
	ReferenceType models.ReferenceType
	ReferenceId   string
	Description   string
	At            time.Time
}

// Post applies a single ledger entry inside tx: balance projection, immutable entry,
// user lifetime totals and the double-entry journal all move together.
func (s *SubledgerService) Post(ctx context.Context, tx *sql.Tx, params PostParams) (*models.LedgerEntry, error) {
	if params.Amount.IsNegative() {
		return nil, fmt.Errorf("ledger amount must not be negative, got %s", params.Amount.String())
	}
	if params.Operation != models.OperationCredit && params.Operation != models.OperationDebit {
		return nil, fmt.Errorf("unknown ledger operation %q", params.Operation)
	}

	zap.L().Debug("Posting ledger entry",
		zap.String("user_id", params.UserId),
		zap.String("balance_type", string(params.BalanceType)),
		zap.String("type", string(params.Type)),
		zap.String("operation", string(params.Operation)),
		zap.String("amount", params.Amount.String()),
		zap.String("reference_id", params.ReferenceId))

	var accountId string
	var currentBalance decimal.Decimal
	var version int64

	err := tx.QueryRowContext(ctx, queryGetAccountBalance, params.UserId, params.BalanceType).Scan(&accountId, &currentBalance, &version)
	if errors.Is(err, sql.ErrNoRows) {
		// Create new account balance record
		accountId = uuid.New().String()
		currentBalance = decimal.Zero
		version = 1

		_, err = tx.ExecContext(ctx, queryInsertAccountBalance, accountId, params.UserId, params.BalanceType, decimal.Zero, version, params.At)
		if err != nil {
			return nil, fmt.Errorf("failed to create account balance: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	}

	entry := &models.LedgerEntry{
		Id:            uuid.New().String(),
		UserId:        params.UserId,
		BalanceType:   params.BalanceType,
		Type:          params.Type,
		Operation:     params.Operation,
		Amount:        params.Amount,
		BalanceBefore: currentBalance,
		ReferenceType: params.ReferenceType,
		ReferenceId:   params.ReferenceId,
		Description:   params.Description,
		CreatedAt:     params.At,
	}
	entry.BalanceAfter = currentBalance.Add(entry.SignedAmount())

	if entry.BalanceAfter.IsNegative() {
		return nil, fmt.Errorf("%w: %s balance %s cannot cover %s", store.ErrInsufficientBalance,
			params.BalanceType, currentBalance.String(), params.Amount.String())
	}

	_, err = tx.ExecContext(ctx, queryInsertLedgerEntry,
		entry.Id, entry.UserId, entry.BalanceType, entry.Type, entry.Operation,
		entry.Amount, entry.BalanceBefore, entry.BalanceAfter,
		entry.ReferenceType, entry.ReferenceId, entry.Description, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	// Update account balance (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance, entry.BalanceAfter, entry.Id, params.At, params.UserId, params.BalanceType, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := s.applyUserTotals(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to update user totals: %w", err)
	}

	if err := s.addJournalEntries(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to add journal entries: %w", err)
	}

	zap.L().Info("Ledger entry posted",
		zap.String("entry_id", entry.Id),
		zap.String("user_id", entry.UserId),
		zap.String("balance_type", string(entry.BalanceType)),
		zap.String("type", string(entry.Type)),
		zap.String("old_balance", entry.BalanceBefore.String()),
		zap.String("new_balance", entry.BalanceAfter.String()))

	return entry, nil
}

// totalsDelta maps a ledger entry onto the lifetime counters on users.
func totalsDelta(entry *models.LedgerEntry) (invested, earned, withdrawn decimal.Decimal) {
	switch {
	case entry.Type == models.LedgerInvestment && entry.Operation == models.OperationDebit:
		invested = entry.Amount
	case entry.Operation == models.OperationCredit && isEarningType(entry.Type):
		earned = entry.Amount
	case entry.Type == models.LedgerWithdrawal && entry.Operation == models.OperationDebit:
		withdrawn = entry.Amount
	case entry.Type == models.LedgerRefund && entry.Operation == models.OperationCredit:
		withdrawn = entry.Amount.Neg()
	}
	return invested, earned, withdrawn
}

func isEarningType(t models.LedgerType) bool {
	switch t {
	case models.LedgerEarning, models.LedgerCommission, models.LedgerCommissionResidual, models.LedgerDailyReward:
		return true
	}
	return false
}

func (s *SubledgerService) applyUserTotals(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry) error {
	invested, earned, withdrawn := totalsDelta(entry)
	if invested.IsZero() && earned.IsZero() && withdrawn.IsZero() {
		return nil
	}

	var totalInvested, totalEarned, totalWithdrawn decimal.Decimal
	err := tx.QueryRowContext(ctx, queryGetUserTotals, entry.UserId).Scan(&totalInvested, &totalEarned, &totalWithdrawn)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrUserNotFound, entry.UserId)
	} else if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, queryAddUserTotals,
		totalInvested.Add(invested), totalEarned.Add(earned), totalWithdrawn.Add(withdrawn),
		entry.CreatedAt, entry.UserId)
	return err
}

type journalLine struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// addJournalEntries records the entry against the user's wallet and the platform account it offsets.
// A user credit is a platform liability increase; a user debit releases it.
func (s *SubledgerService) addJournalEntries(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry) error {
	userAccount := fmt.Sprintf("%s_%s", entry.UserId, entry.BalanceType)
	platformAccount := fmt.Sprintf("platform_%s", entry.Type)

	var lines []journalLine
	switch entry.Operation {
	case models.OperationCredit:
		lines = []journalLine{
			{"platform", platformAccount, entry.Amount, decimal.Zero},
			{"user_wallet", userAccount, decimal.Zero, entry.Amount},
		}
	case models.OperationDebit:
		lines = []journalLine{
			{"user_wallet", userAccount, entry.Amount, decimal.Zero},
			{"platform", platformAccount, decimal.Zero, entry.Amount},
		}
	}

	for _, line := range lines {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), entry.Id, line.accountType, line.accountId,
			line.debitAmount, line.creditAmount, entry.CreatedAt)
		if err != nil {
			return err
		}
	}

	return nil
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := row.Scan(&entry.Id, &entry.UserId, &entry.BalanceType, &entry.Type, &entry.Operation,
		&entry.Amount, &entry.BalanceBefore, &entry.BalanceAfter,
		&entry.ReferenceType, &entry.ReferenceId, &entry.Description, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetLedgerHistory returns paginated ledger entries for a user, newest first
func (s *Service) GetLedgerHistory(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting ledger history",
		zap.String("user_id", userId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetLedgerHistory, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger history: %w", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return entries, nil
}

// GetLedgerTotals recomputes balances and lifetime totals from the ledger alone.
func (s *Service) GetLedgerTotals(ctx context.Context, userId string) (*store.LedgerTotals, error) {
	rows, err := s.db.QueryContext(ctx, queryGetLedgerTypeSums, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer closeRows(rows)

	totals := &store.LedgerTotals{}
	for rows.Next() {
		entry := models.LedgerEntry{UserId: userId}
		if err := rows.Scan(&entry.BalanceType, &entry.Type, &entry.Operation, &entry.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		switch entry.BalanceType {
		case models.BalanceInvestable:
			totals.Investable = totals.Investable.Add(entry.SignedAmount())
		case models.BalanceWithdrawable:
			totals.Withdrawable = totals.Withdrawable.Add(entry.SignedAmount())
		}

		invested, earned, withdrawn := totalsDelta(&entry)
		totals.TotalInvested = totals.TotalInvested.Add(invested)
		totals.TotalEarned = totals.TotalEarned.Add(earned)
		totals.TotalWithdrawn = totals.TotalWithdrawn.Add(withdrawn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return totals, nil
}

// CountLedgerByReference reports how many entries point at a business object.
func (s *Service) CountLedgerByReference(ctx context.Context, refType models.ReferenceType, refId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountLedgerByReference, refType, refId).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}
