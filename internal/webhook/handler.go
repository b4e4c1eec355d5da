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

package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/metrics"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/settings"
	"pix-settlement-go/internal/store"

	"go.uber.org/zap"
)

const withdrawalIdentifierPrefix = "withdraw_"

type Store interface {
	store.WebhookStore
	FindDepositForNotification(ctx context.Context, keys store.NotificationKeys) (*models.Deposit, error)
	SettleDeposit(ctx context.Context, depositId string, paidAt time.Time) (*models.Deposit, bool, error)
	SetDepositStatus(ctx context.Context, depositId string, status models.DepositStatus, errorMessage string) error
	GetWithdrawal(ctx context.Context, withdrawalId string) (*models.Withdrawal, error)
	FindWithdrawalByTransactionId(ctx context.Context, transactionId string) (*models.Withdrawal, error)
	TransitionWithdrawal(ctx context.Context, params store.TransitionWithdrawalParams) (*models.Withdrawal, error)
	RecordWithdrawalHandoff(ctx context.Context, params store.WithdrawalHandoffParams) error
}

// Handler settles gateway notifications at most once per unique payload.
type Handler struct {
	store    Store
	settings *settings.Provider
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func NewHandler(s Store, provider *settings.Provider, clk clock.Clock, m *metrics.Metrics) *Handler {
	return &Handler{store: s, settings: provider, clock: clk, metrics: m}
}

// Handle records and processes one delivery. A repeated payload is acknowledged without
// reprocessing. Notifications that cannot be matched or mapped are recorded as failed and
// returned without an error; only internal failures return one.
func (h *Handler) Handle(ctx context.Context, payload []byte) (*models.WebhookOutcome, error) {
	notification, err := Parse(payload)
	if err != nil {
		h.metrics.WebhookEvent("invalid")
		return nil, models.NewSettlementError(models.CodeValidation, err.Error())
	}
	hash, err := Hash(payload)
	if err != nil {
		h.metrics.WebhookEvent("invalid")
		return nil, models.NewSettlementError(models.CodeValidation, err.Error())
	}

	event, created, err := h.store.RecordWebhookEvent(ctx, store.RecordWebhookParams{
		Hash:       hash,
		Payload:    string(payload),
		ExternalId: notification.ExternalId,
		EventName:  notification.StatusRaw,
		ReceivedAt: h.clock.Now(),
	})
	if err != nil {
		h.metrics.WebhookEvent("error")
		return nil, err
	}

	zap.L().Info("Webhook received",
		zap.String("event_id", event.Id),
		zap.String("external_id", notification.ExternalId),
		zap.String("status", notification.StatusRaw),
		zap.Bool("duplicate", !created))

	if !created {
		h.metrics.WebhookEvent("duplicate")
		return &models.WebhookOutcome{
			EventId:      event.Id,
			Duplicate:    true,
			Status:       event.Status,
			DepositId:    event.DepositId,
			WithdrawalId: event.WithdrawalId,
		}, nil
	}

	return h.process(ctx, event, notification)
}

// Reprocess re-runs a stored event that is still received or failed.
func (h *Handler) Reprocess(ctx context.Context, eventId string) (*models.WebhookOutcome, error) {
	event, err := h.store.GetWebhookEvent(ctx, eventId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NewSettlementError(models.CodeNotFound, fmt.Sprintf("webhook event %s not found", eventId))
	}
	if err != nil {
		return nil, err
	}
	if event.Status == models.WebhookProcessed {
		return nil, models.NewSettlementError(models.CodeInvalidStatus, fmt.Sprintf("webhook event %s is already processed", eventId))
	}

	notification, err := Parse([]byte(event.Payload))
	if err != nil {
		return nil, models.NewSettlementError(models.CodeValidation, err.Error())
	}

	zap.L().Info("Reprocessing webhook event", zap.String("event_id", event.Id), zap.String("status", string(event.Status)))
	return h.process(ctx, event, notification)
}

// ReprocessStats summarizes a reprocessing sweep.
type ReprocessStats struct {
	Checked   int `json:"checked"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// ReprocessPending re-runs every received or failed event, continuing past failures.
func (h *Handler) ReprocessPending(ctx context.Context) (*ReprocessStats, error) {
	stats := &ReprocessStats{}
	for _, status := range []models.WebhookStatus{models.WebhookReceived, models.WebhookFailed} {
		events, err := h.store.ListWebhookEventsByStatus(ctx, status)
		if err != nil {
			return nil, err
		}

		for _, event := range events {
			stats.Checked++
			outcome, err := h.Reprocess(ctx, event.Id)
			if err != nil {
				zap.L().Error("Failed to reprocess webhook event", zap.String("event_id", event.Id), zap.Error(err))
				stats.Errors++
				continue
			}
			if outcome.Status == models.WebhookProcessed {
				stats.Processed++
			} else {
				stats.Failed++
			}
		}
	}

	zap.L().Info("Webhook reprocessing complete",
		zap.Int("checked", stats.Checked),
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
		zap.Int("errors", stats.Errors))
	return stats, nil
}

func (h *Handler) process(ctx context.Context, event *models.WebhookEvent, n *Notification) (*models.WebhookOutcome, error) {
	outcome := &models.WebhookOutcome{EventId: event.Id}
	now := h.clock.Now()

	statusMap, err := h.settings.StatusMap(ctx, now)
	if err != nil {
		return nil, h.internal(ctx, outcome, err)
	}

	deposit, err := h.store.FindDepositForNotification(ctx, store.NotificationKeys{
		TransactionId: n.ExternalId,
		OrderId:       n.OrderId,
		Identifier:    n.CorrelationId,
	})
	if errors.Is(err, store.ErrNotFound) {
		withdrawal, werr := h.findWithdrawal(ctx, n)
		if werr != nil {
			return nil, h.internal(ctx, outcome, werr)
		}
		if withdrawal == nil {
			return h.fail(ctx, outcome, "deposit not found")
		}
		outcome.WithdrawalId = withdrawal.Id
		return h.settleWithdrawal(ctx, outcome, withdrawal, n, statusMap)
	}
	if err != nil {
		return nil, h.internal(ctx, outcome, err)
	}
	outcome.DepositId = deposit.Id

	if n.StatusRaw == "" {
		return h.fail(ctx, outcome, "status missing from payload")
	}
	mapped, ok := statusMap.Lookup(n.StatusRaw)
	if !ok {
		zap.L().Warn("Unknown provider status", zap.String("status", n.StatusRaw), zap.String("deposit_id", deposit.Id))
		return h.fail(ctx, outcome, fmt.Sprintf("unknown status: %s", n.StatusRaw))
	}
	outcome.Mapped = string(mapped)

	if n.Amount.Valid && !n.Amount.Decimal.Equal(deposit.Amount) {
		zap.L().Warn("Notification amount differs from deposit",
			zap.String("deposit_id", deposit.Id),
			zap.String("notified", n.Amount.Decimal.String()),
			zap.String("expected", deposit.Amount.String()))
	}

	switch {
	case mapped == models.DepositPaid:
		_, credited, err := h.store.SettleDeposit(ctx, deposit.Id, now)
		if err != nil {
			return nil, h.internal(ctx, outcome, err)
		}
		outcome.Credited = credited
	case deposit.Status == models.DepositPaid:
		zap.L().Info("Deposit already paid, ignoring later status",
			zap.String("deposit_id", deposit.Id),
			zap.String("status", string(mapped)))
	case deposit.Status != mapped:
		err := h.store.SetDepositStatus(ctx, deposit.Id, mapped, "")
		if err != nil && !errors.Is(err, store.ErrInvalidStatus) {
			return nil, h.internal(ctx, outcome, err)
		}
	}

	return h.succeed(ctx, outcome)
}

// findWithdrawal matches a payout notification by gateway transaction id or by the
// identifier sent with the transfer.
func (h *Handler) findWithdrawal(ctx context.Context, n *Notification) (*models.Withdrawal, error) {
	if n.ExternalId != "" {
		w, err := h.store.FindWithdrawalByTransactionId(ctx, n.ExternalId)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	if rest, found := strings.CutPrefix(n.CorrelationId, withdrawalIdentifierPrefix); found {
		id, _, _ := strings.Cut(rest, "_")
		w, err := h.store.GetWithdrawal(ctx, id)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (h *Handler) settleWithdrawal(ctx context.Context, outcome *models.WebhookOutcome, w *models.Withdrawal,
	n *Notification, statusMap models.StatusMap) (*models.WebhookOutcome, error) {
	mapped, ok := statusMap.Lookup(n.StatusRaw)
	if !ok {
		return h.fail(ctx, outcome, fmt.Sprintf("unknown status: %s", n.StatusRaw))
	}
	outcome.Mapped = string(mapped)

	switch mapped {
	case models.DepositPaid:
		if w.Status == models.WithdrawalPaid {
			break
		}
		_, err := h.store.TransitionWithdrawal(ctx, store.TransitionWithdrawalParams{
			WithdrawalId:  w.Id,
			From:          []models.WithdrawalStatus{models.WithdrawalRequested, models.WithdrawalApproved, models.WithdrawalProcessing},
			To:            models.WithdrawalPaid,
			TransactionId: n.ExternalId,
			At:            h.clock.Now(),
		})
		if errors.Is(err, store.ErrInvalidStatus) {
			return h.fail(ctx, outcome, fmt.Sprintf("withdrawal %s is %s and cannot be paid", w.Id, w.Status))
		}
		if err != nil {
			return nil, h.internal(ctx, outcome, err)
		}
	case models.DepositCancelled, models.DepositExpired:
		// no automatic refund, an operator decides
		err := h.store.RecordWithdrawalHandoff(ctx, store.WithdrawalHandoffParams{
			WithdrawalId:     w.Id,
			Status:           w.Status,
			TransactionId:    w.TransactionId,
			ErrorMessage:     fmt.Sprintf("gateway reported %s", n.StatusRaw),
			ProviderResponse: w.ProviderResponse,
		})
		if err != nil {
			return nil, h.internal(ctx, outcome, err)
		}
	}

	zap.L().Info("Withdrawal notification handled",
		zap.String("withdrawal_id", w.Id),
		zap.String("status", n.StatusRaw))
	return h.succeed(ctx, outcome)
}

func (h *Handler) succeed(ctx context.Context, outcome *models.WebhookOutcome) (*models.WebhookOutcome, error) {
	outcome.Status = models.WebhookProcessed
	if err := h.update(ctx, outcome); err != nil {
		return nil, err
	}
	h.metrics.WebhookEvent("processed")
	return outcome, nil
}

func (h *Handler) fail(ctx context.Context, outcome *models.WebhookOutcome, reason string) (*models.WebhookOutcome, error) {
	zap.L().Warn("Webhook event failed", zap.String("event_id", outcome.EventId), zap.String("reason", reason))
	outcome.Status = models.WebhookFailed
	outcome.Error = reason
	if err := h.update(ctx, outcome); err != nil {
		return nil, err
	}
	h.metrics.WebhookEvent("failed")
	return outcome, nil
}

// internal marks the event failed so it can be reprocessed, then returns cause.
func (h *Handler) internal(ctx context.Context, outcome *models.WebhookOutcome, cause error) error {
	zap.L().Error("Webhook processing error", zap.String("event_id", outcome.EventId), zap.Error(cause))
	outcome.Status = models.WebhookFailed
	outcome.Error = cause.Error()
	if err := h.update(ctx, outcome); err != nil {
		zap.L().Error("Failed to record webhook failure", zap.String("event_id", outcome.EventId), zap.Error(err))
	}
	h.metrics.WebhookEvent("error")
	return cause
}

func (h *Handler) update(ctx context.Context, outcome *models.WebhookOutcome) error {
	return h.store.UpdateWebhookEvent(ctx, store.WebhookUpdateParams{
		EventId:      outcome.EventId,
		Status:       outcome.Status,
		DepositId:    outcome.DepositId,
		WithdrawalId: outcome.WithdrawalId,
		ErrorMessage: outcome.Error,
		At:           h.clock.Now(),
	})
}
