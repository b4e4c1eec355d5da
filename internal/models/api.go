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

package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Machine-readable error codes returned to API callers
const (
	CodeNoCycles             = "NO_CYCLES"
	CodeWindowClosed         = "WITHDRAW_WINDOW_CLOSED"
	CodeDailyLimitReached    = "DAILY_LIMIT_REACHED"
	CodeAmountTooLow         = "AMOUNT_TOO_LOW"
	CodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	CodeInvalidPixKey        = "INVALID_PIX_KEY"
	CodeInvalidDocument      = "INVALID_DOCUMENT"
	CodeValidation           = "VALIDATION_ERROR"
	CodePlanNotFound         = "PLAN_NOT_FOUND"
	CodePlanInactive         = "PLAN_INACTIVE"
	CodePurchaseLimitReached = "PURCHASE_LIMIT_REACHED"
	CodeMinDeposit           = "MIN_DEPOSIT_ERROR"
	CodePixGeneration        = "PIX_GENERATION_ERROR"
	CodeAlreadyClaimedToday  = "ALREADY_CLAIMED_TODAY"
	CodeInvalidStatus        = "INVALID_STATUS"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

// SettlementError is a caller-facing failure with a stable code.
// No side effects have been performed when one is returned.
type SettlementError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SettlementError) Error() string {
	return e.Code + ": " + e.Message
}

func NewSettlementError(code, message string) *SettlementError {
	return &SettlementError{Code: code, Message: message}
}

// AsSettlementError unwraps err into a *SettlementError when it carries one.
func AsSettlementError(err error) (*SettlementError, bool) {
	var se *SettlementError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// UserBalances is the API view of both balances of one user
type UserBalances struct {
	UserId         string          `json:"user_id"`
	Investable     decimal.Decimal `json:"investable"`
	Withdrawable   decimal.Decimal `json:"withdrawable"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
}

// PurchaseResult describes a completed plan purchase
type PurchaseResult struct {
	Cycle            *Cycle          `json:"cycle"`
	NewBalance       decimal.Decimal `json:"new_balance"`
	CommissionsPaid  int             `json:"commissions_paid"`
	CommissionsError string          `json:"commissions_error,omitempty"`
}

// CommissionResult summarizes one fan-out run
type CommissionResult struct {
	Commissions []Commission    `json:"commissions"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Duplicate   bool            `json:"duplicate,omitempty"`
}

// WebhookOutcome tells the gateway-facing layer what happened to a delivery
type WebhookOutcome struct {
	EventId      string        `json:"event_id"`
	Duplicate    bool          `json:"duplicate"`
	Status       WebhookStatus `json:"status"`
	DepositId    string        `json:"deposit_id,omitempty"`
	WithdrawalId string        `json:"withdrawal_id,omitempty"`
	Mapped       string        `json:"mapped_status,omitempty"`
	Credited     bool          `json:"credited"`
	Error        string        `json:"error,omitempty"`
}

// RewardResult describes a daily reward claim
type RewardResult struct {
	Reward     *DailyReward    `json:"reward"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Streak     int             `json:"streak"`
}
