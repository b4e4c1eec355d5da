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

package main

import (
	"context"
	"flag"
	"fmt"

	"pix-settlement-go/internal/common"
	"pix-settlement-go/internal/config"
	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// balanceReport accumulates platform-wide totals while users are printed.
type balanceReport struct {
	db      *database.Service
	history int
	verify  bool

	usersQueried int
	usersFunded  int
	mismatches   int
	investable   decimal.Decimal
	withdrawable decimal.Decimal
	rows         []*models.UserBalances
}

func shortId(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

func printSubledgers(balances []models.AccountBalance, hasHistory bool) {
	for i, b := range balances {
		fmt.Printf("%s %-13s %16s  v%-4d last %s at %s\n",
			common.BoxPrefix(i == len(balances)-1 && !hasHistory),
			b.BalanceType,
			common.FormatBRL(b.Balance),
			b.Version,
			shortId(b.LastEntryId),
			b.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func printHistory(entries []models.LedgerEntry) {
	fmt.Println("├─ Recent movements")
	for i, e := range entries {
		fmt.Printf("%s %s %-12s %-20s %14s -> %s\n",
			common.BoxPrefix(i == len(entries)-1),
			e.CreatedAt.Format("01-02 15:04"),
			e.BalanceType,
			e.Type,
			common.FormatBRL(e.SignedAmount()),
			common.FormatBRL(e.BalanceAfter))
	}
}

func (r *balanceReport) user(ctx context.Context, user common.UserInfo, quiet bool) error {
	totals, err := r.db.GetUserBalances(ctx, user.Id)
	if err != nil {
		return fmt.Errorf("failed to get totals: %w", err)
	}

	r.usersQueried++
	r.investable = r.investable.Add(totals.Investable)
	r.withdrawable = r.withdrawable.Add(totals.Withdrawable)
	if totals.Investable.IsPositive() || totals.Withdrawable.IsPositive() {
		r.usersFunded++
	}
	if quiet {
		r.rows = append(r.rows, totals)
		return nil
	}

	balances, err := r.db.GetAllUserBalances(ctx, user.Id)
	if err != nil {
		return fmt.Errorf("failed to get sub-ledgers: %w", err)
	}
	if len(balances) == 0 {
		return nil
	}

	if r.verify {
		for _, b := range balances {
			if err := r.db.ReconcileBalance(ctx, user.Id, b.BalanceType); err != nil {
				r.mismatches++
				zap.L().Warn("Sub-ledger does not match its ledger",
					zap.String("user_id", user.Id),
					zap.String("balance_type", string(b.BalanceType)),
					zap.Error(err))
			}
		}
	}

	var entries []models.LedgerEntry
	if r.history > 0 {
		if entries, err = r.db.GetLedgerHistory(ctx, user.Id, r.history, 0); err != nil {
			return fmt.Errorf("failed to get ledger history: %w", err)
		}
	}

	fmt.Printf("\n┌─ %s <%s>  code %s", user.Name, user.Email, user.ReferralCode)
	if user.ReferredBy != "" {
		fmt.Printf("  referred by %s", shortId(user.ReferredBy))
	}
	fmt.Printf("\n│  invested %s  earned %s  withdrawn %s\n",
		common.FormatBRL(totals.TotalInvested), common.FormatBRL(totals.TotalEarned), common.FormatBRL(totals.TotalWithdrawn))
	common.PrintBoxSeparator(78)
	printSubledgers(balances, len(entries) > 0)
	if len(entries) > 0 {
		printHistory(entries)
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Only report this user (email, referral code or id)")
	historyFlag := flag.Int("history", 0, "Print the last N ledger movements per user")
	jsonFlag := flag.Bool("json", false, "Print balances as JSON instead of the tree report")
	verifyFlag := flag.Bool("verify", false, "Check every sub-ledger against the sum of its ledger entries")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	users, err := common.SelectUsers(ctx, dbService, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to initialize users", zap.Error(err))
	}

	report := &balanceReport{db: dbService, history: *historyFlag, verify: *verifyFlag}
	if !*jsonFlag {
		common.PrintHeader("BALANCES BY SUB-LEDGER", common.DefaultWidth)
	}

	for _, user := range users {
		if err := report.user(ctx, user, *jsonFlag); err != nil {
			zap.L().Error("Failed to report user", zap.String("user_id", user.Id), zap.Error(err))
		}
	}

	if *jsonFlag {
		common.PrintStats(report.rows)
		return
	}

	common.PrintFooter(fmt.Sprintf("%d of %d users funded | investable %s | withdrawable %s",
		report.usersFunded, report.usersQueried,
		common.FormatBRL(report.investable), common.FormatBRL(report.withdrawable)), common.DefaultWidth)

	if report.mismatches > 0 {
		zap.L().Error("Sub-ledger verification failed, run reconcile", zap.Int("mismatches", report.mismatches))
	}
}
