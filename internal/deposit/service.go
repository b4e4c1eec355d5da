package deposit

import (
	"context"
	"errors"
	"fmt"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/gateway"
	"pix-settlement-go/internal/metrics"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/settings"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const SweepExpire = "expire-deposits"

type Store interface {
	store.DepositStore
	GetUserById(ctx context.Context, userId string) (*models.User, error)
}

type Service struct {
	store       Store
	gateway     gateway.Gateway
	settings    *settings.Provider
	clock       clock.Clock
	metrics     *metrics.Metrics
	callbackURL string
}

func NewService(s Store, gw gateway.Gateway, provider *settings.Provider, clk clock.Clock, m *metrics.Metrics, callbackURL string) *Service {
	return &Service{store: s, gateway: gw, settings: provider, clock: clk, metrics: m, callbackURL: callbackURL}
}

// Create stores a PENDING deposit and requests its PIX charge. A gateway failure cancels the
// deposit and returns PIX_GENERATION_ERROR.
func (s *Service) Create(ctx context.Context, userId string, amount decimal.Decimal) (*models.Deposit, error) {
	now := s.clock.Now()
	cfg, err := s.settings.Deposit(ctx, now)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(cfg.MinAmount) {
		return nil, models.NewSettlementError(models.CodeMinDeposit,
			fmt.Sprintf("minimum deposit is R$ %s", cfg.MinAmount.StringFixed(2)))
	}

	user, err := s.store.GetUserById(ctx, userId)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, models.NewSettlementError(models.CodeNotFound, fmt.Sprintf("user %s not found", userId))
	}
	if err != nil {
		return nil, err
	}

	deposit, err := s.store.CreateDeposit(ctx, store.CreateDepositParams{
		UserId:    userId,
		Amount:    amount.Round(2),
		ExpiresAt: now.Add(cfg.Expiry()),
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	result := s.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		Amount:      deposit.Amount,
		Description: fmt.Sprintf("Deposit - %s", user.Name),
		Customer: gateway.Customer{
			Name:     user.Name,
			Email:    user.Email,
			Document: user.Cpf,
		},
		Reference:   deposit.Identifier,
		CallbackURL: s.callbackURL,
	})
	if !result.Success {
		zap.L().Error("PIX charge failed, cancelling deposit",
			zap.String("deposit_id", deposit.Id),
			zap.String("user_id", userId),
			zap.String("error", result.Error))
		if err := s.store.SetDepositStatus(ctx, deposit.Id, models.DepositCancelled, result.Error); err != nil {
			zap.L().Error("Failed to cancel deposit", zap.String("deposit_id", deposit.Id), zap.Error(err))
		}
		return nil, models.NewSettlementError(models.CodePixGeneration, result.Error)
	}

	charge := result.Data
	err = s.store.UpdateDepositGateway(ctx, store.DepositGatewayParams{
		DepositId:     deposit.Id,
		TransactionId: charge.TransactionId,
		OrderId:       charge.OrderId,
		QrCode:        charge.QrCode,
		QrCodeBase64:  charge.QrCodeBase64,
		QrCodeImage:   charge.QrCodeImage,
		OrderUrl:      charge.OrderUrl,
		RawResponse:   result.Raw,
	})
	if err != nil {
		return nil, err
	}

	return s.store.GetDeposit(ctx, deposit.Id)
}

func (s *Service) Get(ctx context.Context, depositId string) (*models.Deposit, error) {
	deposit, err := s.store.GetDeposit(ctx, depositId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NewSettlementError(models.CodeNotFound, fmt.Sprintf("deposit %s not found", depositId))
	}
	return deposit, err
}

// ExpireStats summarizes one expiry sweep.
type ExpireStats struct {
	Checked int `json:"checked"`
	Expired int `json:"expired"`
	Errors  int `json:"errors"`
}

// ExpireStale moves PENDING deposits past their expiry to EXPIRED. Balances are untouched.
func (s *Service) ExpireStale(ctx context.Context) (*ExpireStats, error) {
	now := s.clock.Now()
	pending, err := s.store.ListPendingDeposits(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ExpireStats{}
	for _, d := range pending {
		stats.Checked++
		if !d.ExpiresAt.Before(now) {
			continue
		}

		err := s.store.SetDepositStatus(ctx, d.Id, models.DepositExpired, "")
		if errors.Is(err, store.ErrInvalidStatus) {
			// settled between the listing and now
			s.metrics.SweepItem(SweepExpire, "skipped")
			continue
		}
		if err != nil {
			zap.L().Error("Failed to expire deposit", zap.String("deposit_id", d.Id), zap.Error(err))
			stats.Errors++
			s.metrics.SweepItem(SweepExpire, "error")
			continue
		}
		stats.Expired++
		s.metrics.SweepItem(SweepExpire, "expired")
	}

	s.metrics.SweepFinished(SweepExpire, now)
	zap.L().Info("Deposit expiry sweep complete",
		zap.Int("checked", stats.Checked),
		zap.Int("expired", stats.Expired),
		zap.Int("errors", stats.Errors))
	return stats, nil
}
