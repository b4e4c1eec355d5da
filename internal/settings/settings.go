// Package settings resolves versioned business configuration, falling back to built-in defaults.
package settings

import (
	"context"
	"fmt"
	"time"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"
)

type Provider struct {
	store store.SettingsStore
}

func NewProvider(s store.SettingsStore) *Provider {
	return &Provider{store: s}
}

func (p *Provider) load(ctx context.Context, key string, at time.Time, out any) error {
	if p == nil || p.store == nil {
		return nil
	}
	if _, err := p.store.GetSetting(ctx, key, at, out); err != nil {
		return fmt.Errorf("unable to load setting %s: %w", key, err)
	}
	return nil
}

// Rates returns the rate table for a commission type in effect at time at.
func (p *Provider) Rates(ctx context.Context, commissionType models.CommissionType, at time.Time) (models.RateTable, error) {
	var key string
	var rates models.RateTable
	switch commissionType {
	case models.CommissionFirstPurchase:
		key, rates = models.SettingFirstPurchaseRates, models.DefaultFirstPurchaseRates()
	case models.CommissionSubsequentPurchase:
		key, rates = models.SettingSubsequentPurchaseRates, models.DefaultSubsequentPurchaseRates()
	case models.CommissionResidual:
		key, rates = models.SettingResidualRates, models.DefaultResidualRates()
	default:
		return nil, fmt.Errorf("unknown commission type %q", commissionType)
	}

	var stored models.RateTable
	if err := p.load(ctx, key, at, &stored); err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}
	return rates, nil
}

func (p *Provider) Withdraw(ctx context.Context, at time.Time) (models.WithdrawSettings, error) {
	s := models.DefaultWithdrawSettings()
	err := p.load(ctx, models.SettingWithdraw, at, &s)
	return s, err
}

func (p *Provider) Deposit(ctx context.Context, at time.Time) (models.DepositSettings, error) {
	s := models.DefaultDepositSettings()
	err := p.load(ctx, models.SettingDeposit, at, &s)
	return s, err
}

func (p *Provider) Reward(ctx context.Context, at time.Time) (models.RewardSettings, error) {
	s := models.DefaultRewardSettings()
	err := p.load(ctx, models.SettingReward, at, &s)
	return s, err
}

func (p *Provider) StatusMap(ctx context.Context, at time.Time) (models.StatusMap, error) {
	var stored models.StatusMap
	if err := p.load(ctx, models.SettingWebhookStatusMap, at, &stored); err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return models.DefaultStatusMap(), nil
	}
	return stored, nil
}
