package reconcile

import (
	"context"
	"fmt"
	"slices"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/referral"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetBalance(ctx context.Context, userId string, balanceType models.BalanceType) (decimal.Decimal, error)
	GetLedgerTotals(ctx context.Context, userId string) (*store.LedgerTotals, error)
	GetAncestors(ctx context.Context, userId string) ([]models.Referral, error)
	GetReferralEdges(ctx context.Context) (map[string]string, error)
	CyclesMissingCommissions(ctx context.Context) ([]models.Cycle, error)
	EarningsMissingResidual(ctx context.Context) ([]models.Earning, error)
}

// CommissionEngine re-runs a fan-out. Repeating one that already happened is a no-op.
type CommissionEngine interface {
	ProcessPurchase(ctx context.Context, cycle *models.Cycle) (*models.CommissionResult, error)
	ProcessResidual(ctx context.Context, earning *models.Earning) (*models.CommissionResult, error)
}

// Mismatch is one cached figure that disagrees with the ledger.
type Mismatch struct {
	UserId string          `json:"user_id"`
	Field  string          `json:"field"`
	Cached decimal.Decimal `json:"cached"`
	Ledger decimal.Decimal `json:"ledger"`
}

func (m Mismatch) Difference() decimal.Decimal {
	return m.Cached.Sub(m.Ledger)
}

// ReferralMismatch is a stored ancestor chain that differs from the one derived from referred_by.
type ReferralMismatch struct {
	UserId   string   `json:"user_id"`
	Stored   []string `json:"stored"`
	Expected []string `json:"expected"`
}

type Report struct {
	UsersChecked        int                `json:"users_checked"`
	Balances            []Mismatch         `json:"balances"`
	Totals              []Mismatch         `json:"totals"`
	MissingCommissions  []string           `json:"missing_commissions"`
	MissingResiduals    []string           `json:"missing_residuals"`
	Referrals           []ReferralMismatch `json:"referrals"`
	GraphError          string             `json:"graph_error,omitempty"`
	CommissionsRepaired int                `json:"commissions_repaired"`
	RepairErrors        int                `json:"repair_errors"`
}

// Clean reports whether nothing needs attention.
func (r *Report) Clean() bool {
	return len(r.Balances) == 0 && len(r.Totals) == 0 && len(r.MissingCommissions) == 0 &&
		len(r.MissingResiduals) == 0 && len(r.Referrals) == 0 && r.GraphError == ""
}

type Reconciler struct {
	store  Store
	engine CommissionEngine
}

func New(s Store, engine CommissionEngine) *Reconciler {
	return &Reconciler{store: s, engine: engine}
}

// Run compares every cached balance and total with the ledger, looks for purchases and daily
// earnings that never paid their commissions, and checks stored referral chains. With repair set,
// the missing commissions are paid and the gaps rechecked.
func (r *Reconciler) Run(ctx context.Context, repair bool) (*Report, error) {
	report := &Report{}

	users, err := r.store.GetUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if err := r.checkUser(ctx, &user, report); err != nil {
			return nil, err
		}
		report.UsersChecked++
	}

	if err := r.checkReferrals(ctx, users, report); err != nil {
		return nil, err
	}

	cycles, earnings, err := r.gaps(ctx, report)
	if err != nil {
		return nil, err
	}

	if repair && (len(cycles) > 0 || len(earnings) > 0) {
		r.repair(ctx, cycles, earnings, report)
		report.MissingCommissions = nil
		report.MissingResiduals = nil
		if _, _, err := r.gaps(ctx, report); err != nil {
			return nil, err
		}
	}

	zap.L().Info("Reconciliation complete",
		zap.Int("users", report.UsersChecked),
		zap.Int("balance_mismatches", len(report.Balances)),
		zap.Int("total_mismatches", len(report.Totals)),
		zap.Int("missing_commissions", len(report.MissingCommissions)),
		zap.Int("missing_residuals", len(report.MissingResiduals)),
		zap.Int("referral_mismatches", len(report.Referrals)),
		zap.Int("repaired", report.CommissionsRepaired))
	return report, nil
}

func (r *Reconciler) checkUser(ctx context.Context, user *models.User, report *Report) error {
	totals, err := r.store.GetLedgerTotals(ctx, user.Id)
	if err != nil {
		return fmt.Errorf("failed to sum ledger of user %s: %w", user.Id, err)
	}

	for _, b := range []struct {
		balanceType models.BalanceType
		ledger      decimal.Decimal
	}{
		{models.BalanceInvestable, totals.Investable},
		{models.BalanceWithdrawable, totals.Withdrawable},
	} {
		cached, err := r.store.GetBalance(ctx, user.Id, b.balanceType)
		if err != nil {
			return err
		}
		if !cached.Equal(b.ledger) {
			zap.L().Warn("Balance differs from ledger",
				zap.String("user_id", user.Id),
				zap.String("balance_type", string(b.balanceType)),
				zap.String("cached", cached.String()),
				zap.String("ledger", b.ledger.String()))
			report.Balances = append(report.Balances, Mismatch{UserId: user.Id, Field: string(b.balanceType), Cached: cached, Ledger: b.ledger})
		}
	}

	for _, t := range []Mismatch{
		{UserId: user.Id, Field: "total_invested", Cached: user.TotalInvested, Ledger: totals.TotalInvested},
		{UserId: user.Id, Field: "total_earned", Cached: user.TotalEarned, Ledger: totals.TotalEarned},
		{UserId: user.Id, Field: "total_withdrawn", Cached: user.TotalWithdrawn, Ledger: totals.TotalWithdrawn},
	} {
		if !t.Cached.Equal(t.Ledger) {
			report.Totals = append(report.Totals, t)
		}
	}
	return nil
}

func (r *Reconciler) checkReferrals(ctx context.Context, users []models.User, report *Report) error {
	edges, err := r.store.GetReferralEdges(ctx)
	if err != nil {
		return err
	}
	graph, err := referral.BuildGraph(edges)
	if err != nil {
		zap.L().Error("Referral graph is inconsistent", zap.Error(err))
		report.GraphError = err.Error()
		return nil
	}

	for _, user := range users {
		referrals, err := r.store.GetAncestors(ctx, user.Id)
		if err != nil {
			return err
		}
		stored := make([]string, 0, len(referrals))
		for _, ref := range referrals {
			stored = append(stored, ref.UserId)
		}

		expected := graph.Ancestors(user.Id)
		if !slices.Equal(stored, expected) {
			report.Referrals = append(report.Referrals, ReferralMismatch{UserId: user.Id, Stored: stored, Expected: expected})
		}
	}
	return nil
}

func (r *Reconciler) gaps(ctx context.Context, report *Report) ([]models.Cycle, []models.Earning, error) {
	cycles, err := r.store.CyclesMissingCommissions(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range cycles {
		report.MissingCommissions = append(report.MissingCommissions, c.Id)
	}

	earnings, err := r.store.EarningsMissingResidual(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range earnings {
		report.MissingResiduals = append(report.MissingResiduals, e.Id)
	}
	return cycles, earnings, nil
}

func (r *Reconciler) repair(ctx context.Context, cycles []models.Cycle, earnings []models.Earning, report *Report) {
	record := func(kind, id string, result *models.CommissionResult, err error) {
		if err != nil {
			zap.L().Error("Commission repair failed", zap.String(kind, id), zap.Error(err))
			report.RepairErrors++
			return
		}
		if !result.Duplicate {
			report.CommissionsRepaired += len(result.Commissions)
		}
	}

	for i := range cycles {
		result, err := r.engine.ProcessPurchase(ctx, &cycles[i])
		record("cycle_id", cycles[i].Id, result, err)
	}
	for i := range earnings {
		result, err := r.engine.ProcessResidual(ctx, &earnings[i])
		record("earning_id", earnings[i].Id, result, err)
	}
}
