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
	"errors"
	"flag"
	"fmt"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/common"
	"pix-settlement-go/internal/config"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/referral"
	"pix-settlement-go/internal/store"
	"pix-settlement-go/internal/withdrawal"

	"go.uber.org/zap"
)

func printAncestors(ctx context.Context, users store.UserStore, userId string) {
	ancestors, err := users.GetAncestors(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to load referral chain", zap.String("user_id", userId), zap.Error(err))
		return
	}
	if len(ancestors) == 0 {
		fmt.Println("Referral chain: none (root user)")
		return
	}

	fmt.Println("Referral chain:")
	for i, a := range ancestors {
		name := a.UserId
		if ancestor, err := users.GetUserById(ctx, a.UserId); err == nil {
			name = fmt.Sprintf("%s (%s)", ancestor.Name, ancestor.Email)
		}
		fmt.Printf("%s level %d: %s\n", common.BoxPrefix(i == len(ancestors)-1), a.Level, name)
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	// Parse command line flags
	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	cpfFlag := flag.String("cpf", "", "User's CPF (optional)")
	referrerFlag := flag.String("referrer", "", "Referrer user id or referral code (optional)")
	flag.Parse()

	// Validate required flags
	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if *cpfFlag != "" {
		if err := withdrawal.ValidateCpf(*cpfFlag); err != nil {
			zap.L().Fatal("Invalid CPF", zap.Error(err))
		}
	}

	zap.L().Info("Starting user creation process",
		zap.String("name", *nameFlag),
		zap.String("email", *emailFlag),
		zap.String("referrer", *referrerFlag))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	user, err := referral.NewService(dbService, clock.RealClock{}).Register(ctx, referral.RegisterParams{
		Name:     *nameFlag,
		Email:    *emailFlag,
		Cpf:      *cpfFlag,
		Referrer: *referrerFlag,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
		}
		if se, ok := models.AsSettlementError(err); ok {
			zap.L().Fatal("Invalid user", zap.String("code", se.Code), zap.String("message", se.Message))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:            %s\n", user.Id)
	fmt.Printf("Name:          %s\n", user.Name)
	fmt.Printf("Email:         %s\n", user.Email)
	fmt.Printf("Referral code: %s\n", user.ReferralCode)
	printAncestors(ctx, dbService, user.Id)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("User created successfully", zap.String("id", user.Id))
}
