package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"pix-settlement-go/internal/common"
	"pix-settlement-go/internal/config"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/reconcile"

	"go.uber.org/zap"
)

func printMismatches(title string, mismatches []reconcile.Mismatch) {
	if len(mismatches) == 0 {
		return
	}
	fmt.Printf("\n┌─ %s: %d\n", title, len(mismatches))
	for i, m := range mismatches {
		fmt.Printf("%s %s %-16s cached %12s  ledger %12s  diff %12s\n",
			common.BoxPrefix(i == len(mismatches)-1), m.UserId, m.Field,
			common.FormatBRL(m.Cached), common.FormatBRL(m.Ledger), common.FormatBRL(m.Difference()))
	}
}

// mirrorDrift compares each local sub-ledger with its Formance mirror account.
func mirrorDrift(ctx context.Context, services *common.Services) ([]reconcile.Mismatch, error) {
	users, err := services.DbService.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var drift []reconcile.Mismatch
	for _, user := range users {
		for _, balanceType := range []models.BalanceType{models.BalanceInvestable, models.BalanceWithdrawable} {
			local, err := services.DbService.GetBalance(ctx, user.Id, balanceType)
			if err != nil {
				return nil, err
			}
			mirrored, err := services.Mirror.Balance(ctx, user.Id, balanceType)
			if err != nil {
				return nil, err
			}
			if !local.Equal(mirrored) {
				drift = append(drift, reconcile.Mismatch{UserId: user.Id, Field: string(balanceType), Cached: local, Ledger: mirrored})
			}
		}
	}
	return drift, nil
}

func printIds(title string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Printf("\n┌─ %s: %d\n", title, len(ids))
	for i, id := range ids {
		fmt.Printf("%s %s\n", common.BoxPrefix(i == len(ids)-1), id)
	}
}

func printReport(report *reconcile.Report) {
	fmt.Printf("Users checked: %d\n", report.UsersChecked)
	printMismatches("Balance mismatches", report.Balances)
	printMismatches("Total mismatches", report.Totals)
	printIds("Purchases without commissions", report.MissingCommissions)
	printIds("Daily earnings without residuals", report.MissingResiduals)

	if len(report.Referrals) > 0 {
		fmt.Printf("\n┌─ Referral chain mismatches: %d\n", len(report.Referrals))
		for i, r := range report.Referrals {
			fmt.Printf("%s %s stored [%s] expected [%s]\n", common.BoxPrefix(i == len(report.Referrals)-1),
				r.UserId, strings.Join(r.Stored, ", "), strings.Join(r.Expected, ", "))
		}
	}
	if report.GraphError != "" {
		fmt.Printf("\nReferral graph error: %s\n", report.GraphError)
	}
	if report.CommissionsRepaired > 0 || report.RepairErrors > 0 {
		fmt.Printf("\nCommission fan-outs repaired: %d (errors: %d)\n", report.CommissionsRepaired, report.RepairErrors)
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	repairFlag := flag.Bool("repair", false, "Pay missing commissions and residuals")
	mirrorFlag := flag.Bool("mirror", false, "Also compare balances with the Formance mirror")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("RECONCILIATION REPORT", common.DefaultWidth)
	report, err := services.Reconciler.Run(ctx, *repairFlag)
	if err != nil {
		logger.Fatal("Reconciliation failed", zap.Error(err))
	}
	printReport(report)

	clean := report.Clean()
	if *mirrorFlag {
		if services.Mirror == nil {
			logger.Warn("Formance mirror is disabled, skipping mirror comparison")
		} else {
			drift, err := mirrorDrift(ctx, services)
			if err != nil {
				logger.Error("Mirror comparison failed", zap.Error(err))
				clean = false
			}
			printMismatches("Formance mirror drift (ledger column is the mirror)", drift)
			clean = clean && len(drift) == 0
		}
	}

	if clean {
		common.PrintFooter("CLEAN: ledger, cached balances and referral chains agree", common.DefaultWidth)
		return
	}
	common.PrintFooter("ATTENTION: discrepancies found", common.DefaultWidth)
	services.Close()
	loggerCleanup()
	os.Exit(2)
}
