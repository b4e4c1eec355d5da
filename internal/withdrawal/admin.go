package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"go.uber.org/zap"
)

func (p *Processor) transition(ctx context.Context, params store.TransitionWithdrawalParams) (*models.Withdrawal, error) {
	params.At = p.clock.Now()
	w, err := p.store.TransitionWithdrawal(ctx, params)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, reject(models.CodeNotFound, fmt.Sprintf("withdrawal %s not found", params.WithdrawalId))
	case errors.Is(err, store.ErrInvalidStatus):
		return nil, reject(models.CodeInvalidStatus, err.Error())
	case err != nil:
		return nil, err
	}
	return w, nil
}

// Approve marks a REQUESTED withdrawal as approved for payout.
func (p *Processor) Approve(ctx context.Context, withdrawalId string) (*models.Withdrawal, error) {
	return p.transition(ctx, store.TransitionWithdrawalParams{
		WithdrawalId: withdrawalId,
		From:         []models.WithdrawalStatus{models.WithdrawalRequested},
		To:           models.WithdrawalApproved,
	})
}

// Reject refunds the full amount to the withdrawable balance.
func (p *Processor) Reject(ctx context.Context, withdrawalId, reason string) (*models.Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, reject(models.CodeValidation, "a rejection reason is required")
	}
	return p.transition(ctx, store.TransitionWithdrawalParams{
		WithdrawalId: withdrawalId,
		From:         []models.WithdrawalStatus{models.WithdrawalRequested, models.WithdrawalApproved},
		To:           models.WithdrawalRejected,
		Reason:       reason,
		Refund:       true,
	})
}

// MarkPaid records a payout settled outside the automatic flow.
func (p *Processor) MarkPaid(ctx context.Context, withdrawalId, transactionId string) (*models.Withdrawal, error) {
	return p.transition(ctx, store.TransitionWithdrawalParams{
		WithdrawalId:  withdrawalId,
		From:          []models.WithdrawalStatus{models.WithdrawalRequested, models.WithdrawalApproved, models.WithdrawalProcessing},
		To:            models.WithdrawalPaid,
		TransactionId: transactionId,
	})
}

// Process hands a REQUESTED or APPROVED withdrawal to the gateway regardless of the automatic limit.
func (p *Processor) Process(ctx context.Context, withdrawalId string) (*models.Withdrawal, error) {
	w, err := p.store.GetWithdrawal(ctx, withdrawalId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject(models.CodeNotFound, fmt.Sprintf("withdrawal %s not found", withdrawalId))
	}
	if err != nil {
		return nil, err
	}
	if w.Status != models.WithdrawalRequested && w.Status != models.WithdrawalApproved {
		return nil, reject(models.CodeInvalidStatus, fmt.Sprintf("withdrawal %s is %s and cannot be processed", w.Id, w.Status))
	}

	user, err := p.store.GetUserById(ctx, w.UserId)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Processing withdrawal", zap.String("withdrawal_id", w.Id), zap.String("status", string(w.Status)))
	return p.handoff(ctx, w, user)
}

func (p *Processor) Stats(ctx context.Context) ([]store.WithdrawalStat, error) {
	return p.store.WithdrawalStats(ctx)
}
