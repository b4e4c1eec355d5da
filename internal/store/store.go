package store

import (
	"context"
	"errors"
	"time"

	"pix-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across the backend and the domain packages.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrUserNotFound           = errors.New("user not found")
	ErrNotFound               = errors.New("record not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrCycleNotActive         = errors.New("cycle is not active")
	ErrAlreadyPaidToday       = errors.New("cycle already credited for this date")
	ErrAlreadyClaimed         = errors.New("daily reward already claimed for this date")
	ErrInvalidStatus          = errors.New("invalid status transition")
	ErrPurchaseLimit          = errors.New("purchase limit reached for plan")
	ErrDailyLimit             = errors.New("daily withdrawal limit reached")
)

// CreateUserParams registers an account; Ancestors is ordered from level 1 upward.
type CreateUserParams struct {
	Name         string
	Email        string
	Cpf          string
	ReferralCode string
	ReferredBy   string
	Ancestors    []string
	CreatedAt    time.Time
}

// CreateCycleParams purchases plan for a user, debiting the investable balance.
type CreateCycleParams struct {
	UserId    string
	Plan      models.Plan
	StartedAt time.Time
}

// CommissionCredit is one level of a commission fan-out.
type CommissionCredit struct {
	Beneficiary string
	Level       int
	Percentage  decimal.Decimal
	Amount      decimal.Decimal
	Description string
}

// CreditCommissionsParams writes every level of one triggering event atomically.
type CreditCommissionsParams struct {
	FromUserId string
	CycleId    string
	SourceType models.ReferenceType
	SourceId   string
	Type       models.CommissionType
	LedgerType models.LedgerType
	BaseAmount decimal.Decimal
	Credits    []CommissionCredit
	At         time.Time
}

type PayDailyEarningParams struct {
	CycleId       string
	ReferenceDate string
	PaidAt        time.Time
}

type FinalizeCycleParams struct {
	CycleId     string
	Description string
	FinishedAt  time.Time
}

type CreateDepositParams struct {
	UserId    string
	Amount    decimal.Decimal
	ExpiresAt time.Time
	CreatedAt time.Time
}

// DepositGatewayParams stores what the gateway returned for a charge.
type DepositGatewayParams struct {
	DepositId     string
	TransactionId string
	OrderId       string
	QrCode        string
	QrCodeBase64  string
	QrCodeImage   string
	OrderUrl      string
	RawResponse   string
}

// NotificationKeys are the identifiers a gateway notification may carry, in lookup order.
type NotificationKeys struct {
	TransactionId string
	OrderId       string
	Identifier    string
}

type RecordWebhookParams struct {
	Hash       string
	Payload    string
	ExternalId string
	EventName  string
	ReceivedAt time.Time
}

type WebhookUpdateParams struct {
	EventId      string
	Status       models.WebhookStatus
	DepositId    string
	WithdrawalId string
	ErrorMessage string
	At           time.Time
}

type CreateWithdrawalParams struct {
	UserId        string
	Amount        decimal.Decimal
	FeeAmount     decimal.Decimal
	NetAmount     decimal.Decimal
	PixKey        string
	PixKeyType    string
	Cpf           string
	RequestedDate string
	RequestedAt   time.Time
	// DailyLimit caps open withdrawals per RequestedDate. Zero means no cap.
	DailyLimit int
}

// WithdrawalHandoffParams records the outcome of a gateway payout attempt.
type WithdrawalHandoffParams struct {
	WithdrawalId     string
	Status           models.WithdrawalStatus
	TransactionId    string
	ErrorMessage     string
	ProviderResponse string
}

// TransitionWithdrawalParams moves a withdrawal between statuses.
// When Refund is set the full amount is credited back to the withdrawable balance.
type TransitionWithdrawalParams struct {
	WithdrawalId  string
	From          []models.WithdrawalStatus
	To            models.WithdrawalStatus
	TransactionId string
	Reason        string
	Refund        bool
	At            time.Time
}

// WithdrawalStat aggregates withdrawals in one status.
type WithdrawalStat struct {
	Status models.WithdrawalStatus `json:"status"`
	Count  int                     `json:"count"`
	Amount decimal.Decimal         `json:"amount"`
}

type ClaimRewardParams struct {
	UserId    string
	Amount    decimal.Decimal
	ClaimDate string
	At        time.Time
}

// LedgerTotals are ledger-derived sums for one user.
type LedgerTotals struct {
	Investable     decimal.Decimal
	Withdrawable   decimal.Decimal
	TotalInvested  decimal.Decimal
	TotalEarned    decimal.Decimal
	TotalWithdrawn decimal.Decimal
}

// LedgerObserver is notified after a transaction carrying ledger entries commits.
type LedgerObserver interface {
	EntriesCommitted(ctx context.Context, entries []models.LedgerEntry)
}

type UserStore interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	GetAncestors(ctx context.Context, userId string) ([]models.Referral, error)
	GetReferralEdges(ctx context.Context) (map[string]string, error)
}

type BalanceStore interface {
	GetBalance(ctx context.Context, userId string, balanceType models.BalanceType) (decimal.Decimal, error)
	GetUserBalances(ctx context.Context, userId string) (*models.UserBalances, error)
	GetAllUserBalances(ctx context.Context, userId string) ([]models.AccountBalance, error)
	GetLedgerHistory(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error)
	GetLedgerTotals(ctx context.Context, userId string) (*LedgerTotals, error)
}

type PlanStore interface {
	UpsertPlan(ctx context.Context, plan models.Plan) error
	GetPlan(ctx context.Context, planId string) (*models.Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
}

type CycleStore interface {
	CreateCycle(ctx context.Context, params CreateCycleParams) (*models.Cycle, error)
	GetCycle(ctx context.Context, cycleId string) (*models.Cycle, error)
	ListActiveCycles(ctx context.Context) ([]models.Cycle, error)
	ListUserCycles(ctx context.Context, userId string) ([]models.Cycle, error)
	CountUserCycles(ctx context.Context, userId string) (int, error)
	HasEarningForDate(ctx context.Context, cycleId, referenceDate string) (bool, error)
	PayDailyEarning(ctx context.Context, params PayDailyEarningParams) (*models.Earning, *models.Cycle, error)
	FinalizeCycle(ctx context.Context, params FinalizeCycleParams) (*models.Cycle, *models.LedgerEntry, error)
}

type CommissionStore interface {
	CreditCommissions(ctx context.Context, params CreditCommissionsParams) ([]models.Commission, error)
	ListCommissionsBySource(ctx context.Context, sourceType models.ReferenceType, sourceId string) ([]models.Commission, error)
	ListUserCommissions(ctx context.Context, userId string) ([]models.Commission, error)
	CyclesMissingCommissions(ctx context.Context) ([]models.Cycle, error)
	EarningsMissingResidual(ctx context.Context) ([]models.Earning, error)
}

type DepositStore interface {
	CreateDeposit(ctx context.Context, params CreateDepositParams) (*models.Deposit, error)
	UpdateDepositGateway(ctx context.Context, params DepositGatewayParams) error
	SetDepositStatus(ctx context.Context, depositId string, status models.DepositStatus, errorMessage string) error
	GetDeposit(ctx context.Context, depositId string) (*models.Deposit, error)
	FindDepositForNotification(ctx context.Context, keys NotificationKeys) (*models.Deposit, error)
	SettleDeposit(ctx context.Context, depositId string, paidAt time.Time) (*models.Deposit, bool, error)
	ListPendingDeposits(ctx context.Context) ([]models.Deposit, error)
}

type WebhookStore interface {
	RecordWebhookEvent(ctx context.Context, params RecordWebhookParams) (*models.WebhookEvent, bool, error)
	UpdateWebhookEvent(ctx context.Context, params WebhookUpdateParams) error
	GetWebhookEvent(ctx context.Context, eventId string) (*models.WebhookEvent, error)
	ListWebhookEventsByStatus(ctx context.Context, status models.WebhookStatus) ([]models.WebhookEvent, error)
}

type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*models.Withdrawal, error)
	CountWithdrawalsForDate(ctx context.Context, userId, date string) (int, error)
	GetWithdrawal(ctx context.Context, withdrawalId string) (*models.Withdrawal, error)
	FindWithdrawalByTransactionId(ctx context.Context, transactionId string) (*models.Withdrawal, error)
	ListUserWithdrawals(ctx context.Context, userId string) ([]models.Withdrawal, error)
	RecordWithdrawalHandoff(ctx context.Context, params WithdrawalHandoffParams) error
	TransitionWithdrawal(ctx context.Context, params TransitionWithdrawalParams) (*models.Withdrawal, error)
	WithdrawalStats(ctx context.Context) ([]WithdrawalStat, error)
}

type RewardStore interface {
	ClaimDailyReward(ctx context.Context, params ClaimRewardParams) (*models.DailyReward, error)
	ListRewardDates(ctx context.Context, userId string, limit int) ([]string, error)
}

// SettingsStore is a key to JSON value store where every write is a new version.
type SettingsStore interface {
	PutSetting(ctx context.Context, key string, value any, effectiveFrom time.Time) error
	GetSetting(ctx context.Context, key string, at time.Time, out any) (bool, error)
}

// SettlementStore is the contract the SQLite backend satisfies.
type SettlementStore interface {
	UserStore
	BalanceStore
	PlanStore
	CycleStore
	CommissionStore
	DepositStore
	WebhookStore
	WithdrawalStore
	RewardStore
	SettingsStore
	Close()
}
