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
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/withdrawal"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	action     string
	email      string
	amount     decimal.Decimal
	pixKey     string
	pixKeyType string
	cpf        string
	id         string
	reason     string
	txId       string
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	actionFlag := flag.String("action", "request", "request, approve, reject, pay, process or stats")
	emailFlag := flag.String("email", "", "User email (request)")
	amountFlag := flag.String("amount", "", "Amount to withdraw in BRL (request)")
	pixKeyFlag := flag.String("pix-key", "", "Destination PIX key (request)")
	pixKeyTypeFlag := flag.String("pix-key-type", "cpf", "PIX key type: cpf, cnpj, email, phone or random (request)")
	cpfFlag := flag.String("cpf", "", "Beneficiary CPF (request)")
	idFlag := flag.String("id", "", "Withdrawal id (approve, reject, pay, process)")
	reasonFlag := flag.String("reason", "", "Rejection reason (reject)")
	txFlag := flag.String("tx", "", "Provider transaction id (pay)")
	flag.Parse()

	req := &withdrawalRequest{
		action:     *actionFlag,
		email:      *emailFlag,
		pixKey:     *pixKeyFlag,
		pixKeyType: *pixKeyTypeFlag,
		cpf:        *cpfFlag,
		id:         *idFlag,
		reason:     *reasonFlag,
		txId:       *txFlag,
	}

	switch req.action {
	case "request":
		if req.email == "" || *amountFlag == "" || req.pixKey == "" || req.cpf == "" {
			return nil, fmt.Errorf("request requires --email, --amount, --pix-key and --cpf")
		}
		amount, err := decimal.NewFromString(*amountFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid amount format: %w", err)
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("amount must be greater than zero")
		}
		req.amount = amount
	case "approve", "process", "pay":
		if req.id == "" {
			return nil, fmt.Errorf("%s requires --id", req.action)
		}
	case "reject":
		if req.id == "" || req.reason == "" {
			return nil, fmt.Errorf("reject requires --id and --reason")
		}
	case "stats":
	default:
		return nil, fmt.Errorf("unknown action %q", req.action)
	}

	return req, nil
}

func verifyBalance(ctx context.Context, services *common.Services, user *models.User, amount decimal.Decimal) (decimal.Decimal, error) {
	balance, err := services.DbService.GetBalance(ctx, user.Id, models.BalanceWithdrawable)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get withdrawable balance: %w", err)
	}

	if balance.LessThan(amount) {
		return balance, fmt.Errorf("insufficient balance: current=%s, requested=%s, shortfall=%s",
			balance.StringFixed(2), amount.StringFixed(2), amount.Sub(balance).StringFixed(2))
	}

	zap.L().Info("Balance verification successful",
		zap.String("user", user.Email),
		zap.String("balance", balance.String()))
	return balance, nil
}

func printWithdrawalSummary(user *models.User, w *models.Withdrawal) {
	fmt.Println()
	common.PrintHeader("WITHDRAWAL", common.DefaultWidth)
	if user != nil {
		fmt.Printf("User:         %s (%s)\n", user.Name, user.Email)
	}
	fmt.Printf("ID:           %s\n", w.Id)
	fmt.Printf("Status:       %s\n", w.Status)
	fmt.Printf("Amount:       %s\n", common.FormatBRL(w.Amount))
	fmt.Printf("Fee:          %s\n", common.FormatBRL(w.FeeAmount))
	fmt.Printf("Net payout:   %s\n", common.FormatBRL(w.NetAmount))
	fmt.Printf("PIX key:      %s (%s)\n", w.PixKey, w.PixKeyType)
	if w.TransactionId != "" {
		fmt.Printf("Transaction:  %s\n", w.TransactionId)
	}
	if w.ErrorMessage != "" {
		fmt.Printf("Note:         %s\n", w.ErrorMessage)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func printStats(stats []withdrawalStat) {
	common.PrintHeader("WITHDRAWAL STATS", common.DefaultWidth)
	for i, s := range stats {
		fmt.Printf("%s %-10s count %5d  amount R$ %12s\n", common.BoxPrefix(i == len(stats)-1), s.status, s.count, s.amount)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

type withdrawalStat struct {
	status string
	count  int
	amount string
}

func requestWithdrawal(ctx context.Context, services *common.Services, req *withdrawalRequest) {
	user, err := services.DbService.GetUserByEmail(ctx, req.email)
	if err != nil {
		zap.L().Fatal("User not found", zap.String("email", req.email), zap.Error(err))
	}

	currentBalance, err := verifyBalance(ctx, services, user, req.amount)
	if err != nil {
		zap.L().Fatal("Balance verification failed", zap.Error(err))
	}

	zap.L().Info("Requesting withdrawal",
		zap.String("user_id", user.Id),
		zap.String("amount", req.amount.String()),
		zap.String("balance", currentBalance.String()))

	w, err := services.Withdrawals.Request(ctx, withdrawal.Request{
		UserId:     user.Id,
		Amount:     req.amount,
		PixKey:     req.pixKey,
		PixKeyType: req.pixKeyType,
		Cpf:        req.cpf,
	})
	if err != nil {
		if se, ok := models.AsSettlementError(err); ok {
			zap.L().Fatal("Withdrawal rejected", zap.String("code", se.Code), zap.String("message", se.Message))
		}
		zap.L().Fatal("Withdrawal failed", zap.Error(err))
	}
	printWithdrawalSummary(user, w)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var w *models.Withdrawal
	switch req.action {
	case "request":
		requestWithdrawal(ctx, services, req)
		return
	case "stats":
		stats, err := services.Withdrawals.Stats(ctx)
		if err != nil {
			zap.L().Fatal("Failed to load stats", zap.Error(err))
		}
		rows := make([]withdrawalStat, 0, len(stats))
		for _, s := range stats {
			rows = append(rows, withdrawalStat{status: string(s.Status), count: s.Count, amount: s.Amount.StringFixed(2)})
		}
		printStats(rows)
		return
	case "approve":
		w, err = services.Withdrawals.Approve(ctx, req.id)
	case "reject":
		w, err = services.Withdrawals.Reject(ctx, req.id, req.reason)
	case "pay":
		w, err = services.Withdrawals.MarkPaid(ctx, req.id, req.txId)
	case "process":
		w, err = services.Withdrawals.Process(ctx, req.id)
	}
	if err != nil {
		if se, ok := models.AsSettlementError(err); ok {
			zap.L().Fatal("Withdrawal action rejected", zap.String("action", req.action),
				zap.String("code", se.Code), zap.String("message", se.Message))
		}
		zap.L().Fatal("Withdrawal action failed", zap.String("action", req.action), zap.Error(err))
	}
	printWithdrawalSummary(nil, w)
}
