package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Amounts are read as strings so they never pass through float64.

type WindowConfig struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
}

type WithdrawConfig struct {
	Window         WindowConfig `yaml:"window"`
	MinAmount      string       `yaml:"min_amount"`
	FeePercent     string       `yaml:"fee_percent"`
	DailyLimit     int          `yaml:"daily_limit"`
	AutoProcessMax string       `yaml:"auto_process_max"`
	RequireCycle   bool         `yaml:"require_cycle"`
}

type DepositConfig struct {
	MinAmount     string `yaml:"min_amount"`
	ExpiryMinutes int    `yaml:"expiry_minutes"`
}

type RewardConfig struct {
	Amount string `yaml:"amount"`
}

type CommissionConfig struct {
	FirstPurchase      map[int]string `yaml:"first_purchase"`
	SubsequentPurchase map[int]string `yaml:"subsequent_purchase"`
	Residual           map[int]string `yaml:"residual"`
}

// SettingsConfig mirrors settlement.yaml. Missing sections are left untouched in the store.
type SettingsConfig struct {
	EffectiveFrom    string            `yaml:"effective_from"`
	Commission       *CommissionConfig `yaml:"commission"`
	Withdraw         *WithdrawConfig   `yaml:"withdraw"`
	Deposit          *DepositConfig    `yaml:"deposit"`
	Reward           *RewardConfig     `yaml:"reward"`
	WebhookStatusMap map[string]string `yaml:"webhook_status_map"`
}

type PlanConfig struct {
	Id           string `yaml:"id"`
	Name         string `yaml:"name"`
	Price        string `yaml:"price"`
	Type         string `yaml:"type"`
	DurationDays int    `yaml:"duration_days"`
	DailyIncome  string `yaml:"daily_income"`
	TotalReturn  string `yaml:"total_return"`
	MaxPurchases int    `yaml:"max_purchases"`
	Active       *bool  `yaml:"active"`
}

type PlansConfig struct {
	Plans []PlanConfig `yaml:"plans"`
}

func readYaml(file string, out any) error {
	var path string
	if filepath.IsAbs(file) {
		path = file
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, file)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", file, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unable to parse %s: %w", file, err)
	}
	return nil
}

func LoadSettingsConfig(file string) (*SettingsConfig, error) {
	var config SettingsConfig
	if err := readYaml(file, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadPlans parses and validates plans.yaml.
func LoadPlans(file string) ([]models.Plan, error) {
	var config PlansConfig
	if err := readYaml(file, &config); err != nil {
		return nil, err
	}

	plans := make([]models.Plan, 0, len(config.Plans))
	for i, pc := range config.Plans {
		plan, err := pc.toPlan()
		if err != nil {
			return nil, fmt.Errorf("plan at index %d: %w", i, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s cannot be negative", field)
	}
	return amount, nil
}

func (pc PlanConfig) toPlan() (models.Plan, error) {
	if pc.Id == "" {
		return models.Plan{}, fmt.Errorf("missing id")
	}
	if pc.Name == "" {
		return models.Plan{}, fmt.Errorf("plan %s missing name", pc.Id)
	}
	if pc.DurationDays <= 0 {
		return models.Plan{}, fmt.Errorf("plan %s duration_days must be positive", pc.Id)
	}

	planType := models.PlanType(strings.ToUpper(pc.Type))
	if planType != models.PlanDaily && planType != models.PlanEndCycle {
		return models.Plan{}, fmt.Errorf("plan %s has unknown type %q", pc.Id, pc.Type)
	}

	price, err := parseAmount("price", pc.Price)
	if err != nil {
		return models.Plan{}, err
	}
	if !price.IsPositive() {
		return models.Plan{}, fmt.Errorf("plan %s price must be positive", pc.Id)
	}
	dailyIncome, err := parseAmount("daily_income", pc.DailyIncome)
	if err != nil {
		return models.Plan{}, err
	}
	totalReturn, err := parseAmount("total_return", pc.TotalReturn)
	if err != nil {
		return models.Plan{}, err
	}

	active := true
	if pc.Active != nil {
		active = *pc.Active
	}

	return models.Plan{
		Id:           pc.Id,
		Name:         pc.Name,
		Price:        price,
		Type:         planType,
		DurationDays: pc.DurationDays,
		DailyIncome:  dailyIncome,
		TotalReturn:  totalReturn,
		MaxPurchases: pc.MaxPurchases,
		Active:       active,
	}, nil
}

func toRateTable(rates map[int]string) (models.RateTable, error) {
	table := make(models.RateTable, len(rates))
	for level, raw := range rates {
		if level < 1 || level > models.MaxReferralDepth {
			return nil, fmt.Errorf("rate level %d outside 1..%d", level, models.MaxReferralDepth)
		}
		pct, err := parseAmount(fmt.Sprintf("level %d rate", level), raw)
		if err != nil {
			return nil, err
		}
		table[level] = pct
	}
	return table, nil
}

// Versions converts the file into the settings versions it describes, keyed by setting key.
func (c *SettingsConfig) Versions() (map[string]any, error) {
	versions := make(map[string]any)

	if c.Commission != nil {
		for key, rates := range map[string]map[int]string{
			models.SettingFirstPurchaseRates:      c.Commission.FirstPurchase,
			models.SettingSubsequentPurchaseRates: c.Commission.SubsequentPurchase,
			models.SettingResidualRates:           c.Commission.Residual,
		} {
			if len(rates) == 0 {
				continue
			}
			table, err := toRateTable(rates)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			versions[key] = table
		}
	}

	if w := c.Withdraw; w != nil {
		settings := models.WithdrawSettings{
			Window:       models.WithdrawWindow{Days: w.Window.Days, Start: w.Window.Start, End: w.Window.End},
			DailyLimit:   w.DailyLimit,
			RequireCycle: w.RequireCycle,
		}
		var err error
		if settings.MinAmount, err = parseAmount("withdraw.min_amount", w.MinAmount); err != nil {
			return nil, err
		}
		if settings.FeePercent, err = parseAmount("withdraw.fee_percent", w.FeePercent); err != nil {
			return nil, err
		}
		if settings.FeePercent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("withdraw.fee_percent must be a fraction below 1")
		}
		if settings.AutoProcessMax, err = parseAmount("withdraw.auto_process_max", w.AutoProcessMax); err != nil {
			return nil, err
		}
		for _, hm := range []string{w.Window.Start, w.Window.End} {
			if _, err := time.Parse("15:04", hm); err != nil {
				return nil, fmt.Errorf("invalid withdraw window time %q", hm)
			}
		}
		versions[models.SettingWithdraw] = settings
	}

	if d := c.Deposit; d != nil {
		minAmount, err := parseAmount("deposit.min_amount", d.MinAmount)
		if err != nil {
			return nil, err
		}
		versions[models.SettingDeposit] = models.DepositSettings{MinAmount: minAmount, ExpiryMinutes: d.ExpiryMinutes}
	}

	if r := c.Reward; r != nil {
		amount, err := parseAmount("reward.amount", r.Amount)
		if err != nil {
			return nil, err
		}
		versions[models.SettingReward] = models.RewardSettings{Amount: amount}
	}

	if len(c.WebhookStatusMap) > 0 {
		statusMap := make(models.StatusMap, len(c.WebhookStatusMap))
		for raw, mapped := range c.WebhookStatusMap {
			status := models.DepositStatus(strings.ToUpper(mapped))
			switch status {
			case models.DepositPaid, models.DepositPending, models.DepositCancelled, models.DepositExpired:
			default:
				return nil, fmt.Errorf("webhook_status_map %s maps to unknown status %q", raw, mapped)
			}
			statusMap[strings.ToUpper(strings.TrimSpace(raw))] = status
		}
		versions[models.SettingWebhookStatusMap] = statusMap
	}

	return versions, nil
}

// ApplySettings writes every version in the file, effective from effective_from or now.
func ApplySettings(ctx context.Context, s store.SettingsStore, c *SettingsConfig, now time.Time) (int, error) {
	effectiveFrom := now
	if c.EffectiveFrom != "" {
		parsed, err := time.Parse(time.RFC3339, c.EffectiveFrom)
		if err != nil {
			return 0, fmt.Errorf("invalid effective_from %q: %w", c.EffectiveFrom, err)
		}
		effectiveFrom = parsed
	}

	versions, err := c.Versions()
	if err != nil {
		return 0, err
	}
	for key, value := range versions {
		if err := s.PutSetting(ctx, key, value, effectiveFrom); err != nil {
			return 0, fmt.Errorf("failed to store setting %s: %w", key, err)
		}
	}
	return len(versions), nil
}

func ApplyPlans(ctx context.Context, s store.PlanStore, plans []models.Plan, now time.Time) error {
	for _, plan := range plans {
		if plan.CreatedAt.IsZero() {
			plan.CreatedAt = now
		}
		if err := s.UpsertPlan(ctx, plan); err != nil {
			return fmt.Errorf("failed to upsert plan %s: %w", plan.Id, err)
		}
	}
	return nil
}
