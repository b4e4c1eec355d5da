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

package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/gateway"
	"pix-settlement-go/internal/metrics"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/settings"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	store.WithdrawalStore
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetBalance(ctx context.Context, userId string, balanceType models.BalanceType) (decimal.Decimal, error)
	CountUserCycles(ctx context.Context, userId string) (int, error)
}

// Request is a user's payout order.
type Request struct {
	UserId     string          `json:"-"`
	Amount     decimal.Decimal `json:"amount"`
	PixKey     string          `json:"pix_key"`
	PixKeyType string          `json:"pix_key_type"`
	Cpf        string          `json:"cpf"`
}

// Processor validates withdrawal requests, reserves the funds and hands payouts to the gateway.
type Processor struct {
	store       Store
	gateway     gateway.Gateway
	settings    *settings.Provider
	clock       clock.Clock
	location    *time.Location
	metrics     *metrics.Metrics
	callbackURL string
}

func NewProcessor(s Store, gw gateway.Gateway, provider *settings.Provider, clk clock.Clock, loc *time.Location,
	m *metrics.Metrics, callbackURL string) *Processor {
	if loc == nil {
		loc = time.UTC
	}
	return &Processor{
		store:       s,
		gateway:     gw,
		settings:    provider,
		clock:       clk,
		location:    loc,
		metrics:     m,
		callbackURL: callbackURL,
	}
}

func reject(code, message string) error {
	return models.NewSettlementError(code, message)
}

// Request runs every validation, creates the withdrawal with its debit, then attempts
// the payout when the amount is within the automatic limit. A gateway failure is
// recorded on the withdrawal and never reverses the debit.
func (p *Processor) Request(ctx context.Context, req Request) (*models.Withdrawal, error) {
	w, err := p.request(ctx, req)
	var se *models.SettlementError
	switch {
	case err == nil:
		p.metrics.WithdrawalRequest("accepted")
	case errors.As(err, &se):
		p.metrics.WithdrawalRequest("rejected")
		zap.L().Info("Withdrawal rejected",
			zap.String("user_id", req.UserId),
			zap.String("amount", req.Amount.String()),
			zap.String("code", se.Code))
	default:
		p.metrics.WithdrawalRequest("error")
	}
	return w, err
}

func (p *Processor) request(ctx context.Context, req Request) (*models.Withdrawal, error) {
	now := p.clock.Now()
	cfg, err := p.settings.Withdraw(ctx, now)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, reject(models.CodeValidation, "amount must be positive")
	}

	user, err := p.store.GetUserById(ctx, req.UserId)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, reject(models.CodeNotFound, fmt.Sprintf("user %s not found", req.UserId))
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequireCycle {
		count, err := p.store.CountUserCycles(ctx, user.Id)
		if err != nil {
			return nil, err
		}
		if count < 1 {
			return nil, reject(models.CodeNoCycles, "at least one cycle is required before withdrawing")
		}
	}

	if open, reason := windowOpen(cfg.Window, now, p.location); !open {
		return nil, reject(models.CodeWindowClosed, reason)
	}

	today := clock.LocalDate(now, p.location)
	count, err := p.store.CountWithdrawalsForDate(ctx, user.Id, today)
	if err != nil {
		return nil, err
	}
	if cfg.DailyLimit > 0 && count >= cfg.DailyLimit {
		return nil, dailyLimit(cfg.DailyLimit)
	}

	amount := req.Amount.Round(2)
	if amount.LessThan(cfg.MinAmount) {
		return nil, reject(models.CodeAmountTooLow,
			fmt.Sprintf("minimum withdrawal is R$ %s", cfg.MinAmount.StringFixed(2)))
	}

	available, err := p.store.GetBalance(ctx, user.Id, models.BalanceWithdrawable)
	if err != nil {
		return nil, err
	}
	if available.LessThan(amount) {
		return nil, insufficient(available, amount)
	}

	if err := ValidatePixKey(req.PixKey, req.PixKeyType); err != nil {
		return nil, reject(models.CodeInvalidPixKey, err.Error())
	}
	if err := ValidateCpf(req.Cpf); err != nil {
		return nil, reject(models.CodeInvalidDocument, err.Error())
	}

	fee := amount.Mul(cfg.FeePercent).Round(2)
	withdrawal, err := p.store.CreateWithdrawal(ctx, store.CreateWithdrawalParams{
		UserId:        user.Id,
		Amount:        amount,
		FeeAmount:     fee,
		NetAmount:     amount.Sub(fee),
		PixKey:        strings.TrimSpace(req.PixKey),
		PixKeyType:    strings.ToLower(req.PixKeyType),
		Cpf:           digits(req.Cpf),
		RequestedDate: today,
		RequestedAt:   now,
		DailyLimit:    cfg.DailyLimit,
	})
	if errors.Is(err, store.ErrInsufficientBalance) {
		// another request spent the balance after the pre-check
		return nil, insufficient(available, amount)
	}
	if errors.Is(err, store.ErrDailyLimit) {
		return nil, dailyLimit(cfg.DailyLimit)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoProcessMax.IsPositive() && amount.GreaterThan(cfg.AutoProcessMax) {
		zap.L().Info("Withdrawal above automatic limit, waiting for approval",
			zap.String("withdrawal_id", withdrawal.Id),
			zap.String("amount", amount.String()),
			zap.String("auto_process_max", cfg.AutoProcessMax.String()))
		return withdrawal, nil
	}

	return p.handoff(ctx, withdrawal, user)
}

func dailyLimit(limit int) error {
	return reject(models.CodeDailyLimitReached, fmt.Sprintf("daily limit of %d withdrawal(s) reached", limit))
}

func insufficient(available, amount decimal.Decimal) error {
	return reject(models.CodeInsufficientBalance,
		fmt.Sprintf("insufficient balance: available %s, requested %s", available.StringFixed(2), amount.StringFixed(2)))
}

// handoff sends the net amount to the gateway and records the outcome. Balances are never touched.
func (p *Processor) handoff(ctx context.Context, w *models.Withdrawal, user *models.User) (*models.Withdrawal, error) {
	result := p.gateway.CreateTransfer(ctx, gateway.TransferRequest{
		Identifier:  fmt.Sprintf("withdraw_%s_%d", w.Id, p.clock.Now().Unix()),
		Amount:      w.NetAmount,
		PixKey:      w.PixKey,
		PixKeyType:  w.PixKeyType,
		OwnerName:   NormalizeOwnerName(user.Name),
		OwnerCpf:    FormatCpf(w.Cpf),
		CallbackURL: p.callbackURL,
	})

	params := store.WithdrawalHandoffParams{
		WithdrawalId:     w.Id,
		Status:           w.Status,
		TransactionId:    w.TransactionId,
		ProviderResponse: result.Raw,
	}
	if result.Success {
		params.Status = models.WithdrawalProcessing
		params.TransactionId = result.Data.TransactionId
	} else {
		params.ErrorMessage = result.Error
		zap.L().Warn("PIX transfer failed, withdrawal kept for manual processing",
			zap.String("withdrawal_id", w.Id),
			zap.String("error", result.Error))
	}

	if err := p.store.RecordWithdrawalHandoff(ctx, params); err != nil {
		return nil, err
	}

	w.Status = params.Status
	w.TransactionId = params.TransactionId
	w.ErrorMessage = params.ErrorMessage
	w.ProviderResponse = params.ProviderResponse
	return w, nil
}

// ListUserWithdrawals returns a user's withdrawals, newest first.
func (p *Processor) ListUserWithdrawals(ctx context.Context, userId string) ([]models.Withdrawal, error) {
	return p.store.ListUserWithdrawals(ctx, userId)
}
