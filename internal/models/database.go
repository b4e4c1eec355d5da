package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceType identifies one of the two independent balances a user holds.
type BalanceType string

const (
	BalanceInvestable   BalanceType = "investable"
	BalanceWithdrawable BalanceType = "withdrawable"
)

type LedgerType string

const (
	LedgerInvestment         LedgerType = "INVESTMENT"
	LedgerEarning            LedgerType = "EARNING"
	LedgerCommission         LedgerType = "COMMISSION"
	LedgerCommissionResidual LedgerType = "COMMISSION_RESIDUAL"
	LedgerDeposit            LedgerType = "DEPOSIT"
	LedgerWithdrawal         LedgerType = "WITHDRAWAL"
	LedgerDailyReward        LedgerType = "DAILY_REWARD"
	LedgerRefund             LedgerType = "REFUND"
)

type Operation string

const (
	OperationCredit Operation = "CREDIT"
	OperationDebit  Operation = "DEBIT"
)

// ReferenceType names the entity a ledger entry or commission originates from.
type ReferenceType string

const (
	ReferenceCycle       ReferenceType = "CYCLE"
	ReferenceEarning     ReferenceType = "EARNING"
	ReferenceCommission  ReferenceType = "COMMISSION"
	ReferenceDeposit     ReferenceType = "DEPOSIT"
	ReferenceWithdrawal  ReferenceType = "WITHDRAWAL"
	ReferenceDailyReward ReferenceType = "DAILY_REWARD"
)

// User represents a platform account holder
type User struct {
	Id             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Email          string          `db:"email" json:"email"`
	Cpf            string          `db:"cpf" json:"cpf,omitempty"`
	ReferralCode   string          `db:"referral_code" json:"referral_code"`
	ReferredBy     string          `db:"referred_by" json:"referred_by,omitempty"`
	TotalInvested  decimal.Decimal `db:"total_invested" json:"total_invested"`
	TotalEarned    decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalWithdrawn decimal.Decimal `db:"total_withdrawn" json:"total_withdrawn"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// AccountBalance represents current balance state (hot data)
type AccountBalance struct {
	Id          string          `db:"id" json:"id"`
	UserId      string          `db:"user_id" json:"user_id"`
	BalanceType BalanceType     `db:"balance_type" json:"balance_type"`
	Balance     decimal.Decimal `db:"balance" json:"balance"`
	LastEntryId string          `db:"last_entry_id" json:"last_entry_id,omitempty"`
	Version     int64           `db:"version" json:"version"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// LedgerEntry is an immutable record of a single balance movement (cold data)
type LedgerEntry struct {
	Id            string          `db:"id" json:"id"`
	UserId        string          `db:"user_id" json:"user_id"`
	BalanceType   BalanceType     `db:"balance_type" json:"balance_type"`
	Type          LedgerType      `db:"type" json:"type"`
	Operation     Operation       `db:"operation" json:"operation"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	ReferenceType ReferenceType   `db:"reference_type" json:"reference_type"`
	ReferenceId   string          `db:"reference_id" json:"reference_id"`
	Description   string          `db:"description" json:"description"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// SignedAmount returns the amount with the sign of its operation.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Operation == OperationDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

type PlanType string

const (
	PlanDaily    PlanType = "DAILY"
	PlanEndCycle PlanType = "END_CYCLE"
)

// Plan is a purchasable cycle template
type Plan struct {
	Id           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Type         PlanType        `db:"type" json:"type"`
	DurationDays int             `db:"duration_days" json:"duration_days"`
	DailyIncome  decimal.Decimal `db:"daily_income" json:"daily_income"`
	TotalReturn  decimal.Decimal `db:"total_return" json:"total_return"`
	MaxPurchases int             `db:"max_purchases" json:"max_purchases"`
	Active       bool            `db:"active" json:"active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type CycleStatus string

const (
	CycleActive    CycleStatus = "ACTIVE"
	CycleFinished  CycleStatus = "FINISHED"
	CycleCancelled CycleStatus = "CANCELLED"
)

// Cycle is a purchased instance of a Plan
type Cycle struct {
	Id              string          `db:"id" json:"id"`
	UserId          string          `db:"user_id" json:"user_id"`
	PlanId          string          `db:"plan_id" json:"plan_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Type            PlanType        `db:"type" json:"type"`
	DurationDays    int             `db:"duration_days" json:"duration_days"`
	DailyIncome     decimal.Decimal `db:"daily_income" json:"daily_income"`
	TotalReturn     decimal.Decimal `db:"total_return" json:"total_return"`
	StartedAt       time.Time       `db:"started_at" json:"started_at"`
	EndsAt          time.Time       `db:"ends_at" json:"ends_at"`
	Status          CycleStatus     `db:"status" json:"status"`
	DaysPaid        int             `db:"days_paid" json:"days_paid"`
	TotalPaid       decimal.Decimal `db:"total_paid" json:"total_paid"`
	IsFirstPurchase bool            `db:"is_first_purchase" json:"is_first_purchase"`
	LastPaidAt      *time.Time      `db:"last_paid_at" json:"last_paid_at,omitempty"`
	FinishedAt      *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// ExpectedTotal is what the cycle owes its owner over its whole life.
func (c *Cycle) ExpectedTotal() decimal.Decimal {
	if c.Type == PlanEndCycle {
		return c.TotalReturn
	}
	return c.DailyIncome.Mul(decimal.NewFromInt(int64(c.DurationDays)))
}

// Shortfall is the part of ExpectedTotal not yet credited, never negative.
func (c *Cycle) Shortfall() decimal.Decimal {
	remaining := c.ExpectedTotal().Sub(c.TotalPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsDue reports whether the cycle meets either finalization criterion.
func (c *Cycle) IsDue(now time.Time) bool {
	return c.DaysPaid >= c.DurationDays || c.EndsAt.Before(now)
}

const EarningTypeDaily = "DAILY"

// Earning is one daily credit applied to a cycle
type Earning struct {
	Id            string          `db:"id" json:"id"`
	CycleId       string          `db:"cycle_id" json:"cycle_id"`
	UserId        string          `db:"user_id" json:"user_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	ReferenceDate string          `db:"reference_date" json:"reference_date"`
	Type          string          `db:"type" json:"type"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type CommissionType string

const (
	CommissionFirstPurchase      CommissionType = "FIRST_PURCHASE"
	CommissionSubsequentPurchase CommissionType = "SUBSEQUENT_PURCHASE"
	CommissionResidual           CommissionType = "RESIDUAL"
)

// Commission is a credit paid to an ancestor for a descendant's purchase or earning
type Commission struct {
	Id             string          `db:"id" json:"id"`
	UserId         string          `db:"user_id" json:"user_id"`
	FromUserId     string          `db:"from_user_id" json:"from_user_id"`
	CycleId        string          `db:"cycle_id" json:"cycle_id"`
	SourceType     ReferenceType   `db:"source_type" json:"source_type"`
	SourceId       string          `db:"source_id" json:"source_id"`
	Level          int             `db:"level" json:"level"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	PurchaseAmount decimal.Decimal `db:"purchase_amount" json:"purchase_amount"`
	Percentage     decimal.Decimal `db:"percentage" json:"percentage"`
	Type           CommissionType  `db:"type" json:"type"`
	Description    string          `db:"description" json:"description"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Referral is a materialized ancestor edge, written once at registration
type Referral struct {
	Id             string    `db:"id" json:"id"`
	UserId         string    `db:"user_id" json:"user_id"`
	ReferredUserId string    `db:"referred_user_id" json:"referred_user_id"`
	Level          int       `db:"level" json:"level"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type DepositStatus string

const (
	DepositPending   DepositStatus = "PENDING"
	DepositPaid      DepositStatus = "PAID"
	DepositExpired   DepositStatus = "EXPIRED"
	DepositCancelled DepositStatus = "CANCELLED"
)

// Deposit is an inbound PIX payment
type Deposit struct {
	Id            string          `db:"id" json:"id"`
	UserId        string          `db:"user_id" json:"user_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        DepositStatus   `db:"status" json:"status"`
	TransactionId string          `db:"transaction_id" json:"transaction_id,omitempty"`
	OrderId       string          `db:"order_id" json:"order_id,omitempty"`
	Identifier    string          `db:"identifier" json:"identifier"`
	QrCode        string          `db:"qr_code" json:"qr_code,omitempty"`
	QrCodeBase64  string          `db:"qr_code_base64" json:"qr_code_base64,omitempty"`
	QrCodeImage   string          `db:"qr_code_image" json:"qr_code_image,omitempty"`
	OrderUrl      string          `db:"order_url" json:"order_url,omitempty"`
	ErrorMessage  string          `db:"error_message" json:"error_message,omitempty"`
	ExpiresAt     time.Time       `db:"expires_at" json:"expires_at"`
	PaidAt        *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type WebhookStatus string

const (
	WebhookReceived  WebhookStatus = "received"
	WebhookProcessed WebhookStatus = "processed"
	WebhookFailed    WebhookStatus = "failed"
)

// WebhookEvent is the idempotency record for one unique gateway payload
type WebhookEvent struct {
	Id           string        `db:"id" json:"id"`
	Hash         string        `db:"hash" json:"hash"`
	Payload      string        `db:"payload" json:"-"`
	ExternalId   string        `db:"external_id" json:"external_id,omitempty"`
	EventName    string        `db:"event_name" json:"event_name,omitempty"`
	Status       WebhookStatus `db:"status" json:"status"`
	DepositId    string        `db:"deposit_id" json:"deposit_id,omitempty"`
	WithdrawalId string        `db:"withdrawal_id" json:"withdrawal_id,omitempty"`
	ErrorMessage string        `db:"error_message" json:"error_message,omitempty"`
	ReceivedAt   time.Time     `db:"received_at" json:"received_at"`
	ProcessedAt  *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
}

type WithdrawalStatus string

const (
	WithdrawalRequested  WithdrawalStatus = "REQUESTED"
	WithdrawalApproved   WithdrawalStatus = "APPROVED"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalPaid       WithdrawalStatus = "PAID"
	WithdrawalRejected   WithdrawalStatus = "REJECTED"
	WithdrawalCancelled  WithdrawalStatus = "CANCELLED"
)

// Withdrawal is a payout request; the full amount is debited at request time
type Withdrawal struct {
	Id               string           `db:"id" json:"id"`
	UserId           string           `db:"user_id" json:"user_id"`
	Amount           decimal.Decimal  `db:"amount" json:"amount"`
	FeeAmount        decimal.Decimal  `db:"fee_amount" json:"fee_amount"`
	NetAmount        decimal.Decimal  `db:"net_amount" json:"net_amount"`
	PixKey           string           `db:"pix_key" json:"pix_key"`
	PixKeyType       string           `db:"pix_key_type" json:"pix_key_type"`
	Cpf              string           `db:"cpf" json:"cpf"`
	Status           WithdrawalStatus `db:"status" json:"status"`
	TransactionId    string           `db:"transaction_id" json:"transaction_id,omitempty"`
	ErrorMessage     string           `db:"error_message" json:"error_message,omitempty"`
	ProviderResponse string           `db:"provider_response" json:"-"`
	RequestedDate    string           `db:"requested_date" json:"requested_date"`
	RequestedAt      time.Time        `db:"requested_at" json:"requested_at"`
	ApprovedAt       *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	PaidAt           *time.Time       `db:"paid_at" json:"paid_at,omitempty"`
	RejectedAt       *time.Time       `db:"rejected_at" json:"rejected_at,omitempty"`
}

// DailyReward is one claimed daily bonus
type DailyReward struct {
	Id        string          `db:"id" json:"id"`
	UserId    string          `db:"user_id" json:"user_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	ClaimDate string          `db:"claim_date" json:"claim_date"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
