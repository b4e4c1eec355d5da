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

// Package gateway talks to the PIX payment provider. Every call returns a Result;
// transport and provider failures are reported in it rather than as Go errors.
package gateway

import (
	"context"

	"pix-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result is the uniform outcome of a gateway call.
type Result[T any] struct {
	Success bool
	Data    *T
	Error   string
	Raw     string
}

func ok[T any](data *T, raw string) Result[T] {
	return Result[T]{Success: true, Data: data, Raw: raw}
}

func failed[T any](message, raw string) Result[T] {
	return Result[T]{Error: message, Raw: raw}
}

type Customer struct {
	Name     string
	Email    string
	Document string
}

type ChargeRequest struct {
	Amount      decimal.Decimal
	Description string
	Customer    Customer
	Reference   string
	CallbackURL string
}

// Charge is a created PIX collection.
type Charge struct {
	TransactionId string
	OrderId       string
	Status        string
	QrCode        string
	QrCodeBase64  string
	QrCodeImage   string
	OrderUrl      string
}

type TransferRequest struct {
	Identifier  string
	Amount      decimal.Decimal
	PixKey      string
	PixKeyType  string
	OwnerName   string
	OwnerCpf    string
	CallbackURL string
}

// Transfer is an accepted PIX payout.
type Transfer struct {
	TransactionId string
	Status        string
}

type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) Result[Charge]
	CreateTransfer(ctx context.Context, req TransferRequest) Result[Transfer]
}

// New returns the mock gateway when cfg.Mock is set, the HTTP client otherwise.
func New(cfg models.GatewayConfig) (Gateway, error) {
	if cfg.Mock {
		zap.L().Warn("PIX gateway running in mock mode, no real charges or payouts will be made")
		return NewMock(), nil
	}
	return NewClient(cfg)
}
