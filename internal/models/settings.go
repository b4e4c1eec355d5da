package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Versioned settings keys
const (
	SettingFirstPurchaseRates      = "commission.first_purchase"
	SettingSubsequentPurchaseRates = "commission.subsequent_purchase"
	SettingResidualRates           = "commission.residual"
	SettingWithdraw                = "withdraw.settings"
	SettingDeposit                 = "deposit.settings"
	SettingReward                  = "reward.settings"
	SettingWebhookStatusMap        = "webhook.status_map"
)

// MaxReferralDepth is the number of ancestor levels that earn commissions.
const MaxReferralDepth = 3

// RateTable maps a 1-indexed referral level to a percentage.
type RateTable map[int]decimal.Decimal

// Rate returns the percentage for level and whether the level is configured.
func (r RateTable) Rate(level int) (decimal.Decimal, bool) {
	pct, ok := r[level]
	return pct, ok
}

// WithdrawWindow is a weekly allowlist plus a daily [Start, End) clock range.
type WithdrawWindow struct {
	Days  []string `json:"days"`
	Start string   `json:"start"`
	End   string   `json:"end"`
}

type WithdrawSettings struct {
	Window         WithdrawWindow  `json:"window"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	FeePercent     decimal.Decimal `json:"fee_percent"`
	DailyLimit     int             `json:"daily_limit"`
	AutoProcessMax decimal.Decimal `json:"auto_process_max"`
	RequireCycle   bool            `json:"require_cycle"`
}

type DepositSettings struct {
	MinAmount     decimal.Decimal `json:"min_amount"`
	ExpiryMinutes int             `json:"expiry_minutes"`
}

// Expiry is how long a PIX charge stays payable.
func (d DepositSettings) Expiry() time.Duration {
	return time.Duration(d.ExpiryMinutes) * time.Minute
}

type RewardSettings struct {
	Amount decimal.Decimal `json:"amount"`
}

// StatusMap translates provider status strings to deposit statuses.
type StatusMap map[string]DepositStatus

// Lookup matches case-insensitively after trimming.
func (m StatusMap) Lookup(raw string) (DepositStatus, bool) {
	status, ok := m[strings.ToUpper(strings.TrimSpace(raw))]
	return status, ok
}

func DefaultFirstPurchaseRates() RateTable {
	return RateTable{1: decimal.NewFromInt(15), 2: decimal.NewFromInt(2), 3: decimal.NewFromInt(1)}
}

func DefaultSubsequentPurchaseRates() RateTable {
	return RateTable{1: decimal.NewFromInt(8), 2: decimal.NewFromInt(2), 3: decimal.NewFromInt(1)}
}

func DefaultResidualRates() RateTable {
	return RateTable{
		1: decimal.RequireFromString("2.50"),
		2: decimal.RequireFromString("0.50"),
		3: decimal.RequireFromString("0.15"),
	}
}

func DefaultWithdrawSettings() WithdrawSettings {
	return WithdrawSettings{
		Window: WithdrawWindow{
			Days:  []string{"mon", "tue", "wed", "thu", "fri"},
			Start: "10:00",
			End:   "17:00",
		},
		MinAmount:      decimal.NewFromInt(50),
		FeePercent:     decimal.RequireFromString("0.10"),
		DailyLimit:     1,
		AutoProcessMax: decimal.NewFromInt(300),
	}
}

func DefaultDepositSettings() DepositSettings {
	return DepositSettings{MinAmount: decimal.NewFromInt(50), ExpiryMinutes: 30}
}

func DefaultRewardSettings() RewardSettings {
	return RewardSettings{Amount: decimal.RequireFromString("0.50")}
}

func DefaultStatusMap() StatusMap {
	return StatusMap{
		"OK":               DepositPaid,
		"COMPLETED":        DepositPaid,
		"APPROVED":         DepositPaid,
		"SUCCESS":          DepositPaid,
		"TRANSACTION_PAID": DepositPaid,
		"PAID":             DepositPaid,
		"PENDING":          DepositPending,
		"WAITING_PAYMENT":  DepositPending,
		"FAILED":           DepositCancelled,
		"REJECTED":         DepositCancelled,
		"CANCELED":         DepositCancelled,
		"CANCELLED":        DepositCancelled,
		"EXPIRED":          DepositExpired,
	}
}
