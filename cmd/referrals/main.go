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

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/common"
	"pix-settlement-go/internal/config"
	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/referral"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type reportStats struct {
	totalUsers          int
	totalCommissions    int
	usersWithCommission int
	totalPaid           decimal.Decimal
}

func downline(graph *referral.Graph, userId string) string {
	out := ""
	for level := 1; level <= models.MaxReferralDepth; level++ {
		if level > 1 {
			out += "  "
		}
		out += fmt.Sprintf("L%d %d", level, len(graph.Descendants(userId, level)))
	}
	return out
}

func printUserHeader(user common.UserInfo, ancestors []models.Referral, graph *referral.Graph, commissionCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s  Referral code: %s\n", user.Id, user.ReferralCode)
	chain := "none"
	if len(ancestors) > 0 {
		chain = ""
		for i, a := range ancestors {
			if i > 0 {
				chain += " → "
			}
			chain += fmt.Sprintf("L%d %s", a.Level, a.UserId)
		}
	}
	fmt.Printf("│  Upline: %s\n", chain)
	fmt.Printf("│  Downline: %s\n", downline(graph, user.Id))
	fmt.Printf("│  Commissions received: %d\n", commissionCount)
	common.PrintBoxSeparator(98)
}

func printCommission(c models.Commission, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-20s L%d %14s (%s of %s) from %s\n",
		symbol, c.Type, c.Level, common.FormatBRL(c.Amount), common.FormatPercent(c.Percentage), common.FormatBRL(c.PurchaseAmount), c.FromUserId)

	if c.Description != "" {
		detailSymbol := common.BoxDetailPrefix(isLast)
		fmt.Printf("%s   %s\n", detailSymbol, c.Description)
	}
}

func processUser(ctx context.Context, user common.UserInfo, dbService *database.Service, graph *referral.Graph) (int, decimal.Decimal, error) {
	ancestors, err := dbService.GetAncestors(ctx, user.Id)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to get ancestors: %w", err)
	}
	commissions, err := dbService.ListUserCommissions(ctx, user.Id)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to get commissions: %w", err)
	}

	printUserHeader(user, ancestors, graph, len(commissions))
	paid := decimal.Zero
	for i, c := range commissions {
		printCommission(c, i == len(commissions)-1)
		paid = paid.Add(c.Amount)
	}

	return len(commissions), paid, nil
}

func processUsersAndGenerateReport(ctx context.Context, users []common.UserInfo, dbService *database.Service, graph *referral.Graph, logger *zap.Logger) reportStats {
	stats := reportStats{totalPaid: decimal.Zero}

	for _, user := range users {
		stats.totalUsers++

		count, paid, err := processUser(ctx, user, dbService, graph)
		if err != nil {
			logger.Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}

		if count > 0 {
			stats.usersWithCommission++
			stats.totalCommissions += count
			stats.totalPaid = stats.totalPaid.Add(paid)
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Only report this user (email, referral code or id)")
	flag.Parse()

	logger.Info("Starting referral query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	users, err := common.SelectUsers(ctx, dbService, *userFlag)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	graph, err := referral.NewService(dbService, clock.RealClock{}).LoadGraph(ctx)
	if err != nil {
		logger.Fatal("Failed to load referral graph", zap.Error(err))
	}

	common.PrintHeader("REFERRAL COMMISSIONS REPORT", common.WideWidth)

	stats := processUsersAndGenerateReport(ctx, users, dbService, graph, logger)

	summary := fmt.Sprintf("SUMMARY: %d users earned %d commissions totalling %s (%d users queried)",
		stats.usersWithCommission, stats.totalCommissions, common.FormatBRL(stats.totalPaid), stats.totalUsers)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Referral query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_commissions", stats.usersWithCommission),
		zap.String("total_paid", stats.totalPaid.String()))
}
