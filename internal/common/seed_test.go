package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/settings"

	"github.com/shopspring/decimal"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadPlans(t *testing.T) {
	path := writeFile(t, "plans.yaml", `
plans:
  - id: starter
    name: Starter
    price: "100"
    type: daily
    duration_days: 30
    daily_income: "5.25"
  - id: vault
    name: Vault
    price: "1000"
    type: END_CYCLE
    duration_days: 60
    total_return: "1600"
    max_purchases: 1
    active: false
`)

	plans, err := LoadPlans(path)
	if err != nil {
		t.Fatalf("LoadPlans failed: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("Expected 2 plans, got %d", len(plans))
	}
	if plans[0].Type != models.PlanDaily || !plans[0].DailyIncome.Equal(decimal.RequireFromString("5.25")) || !plans[0].Active {
		t.Errorf("Unexpected starter plan %+v", plans[0])
	}
	if plans[1].Type != models.PlanEndCycle || plans[1].Active || plans[1].MaxPurchases != 1 {
		t.Errorf("Unexpected vault plan %+v", plans[1])
	}
}

func TestLoadPlansRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", "plans:\n  - name: X\n    price: \"1\"\n    type: DAILY\n    duration_days: 1\n"},
		{"unknown type", "plans:\n  - id: x\n    name: X\n    price: \"1\"\n    type: WEEKLY\n    duration_days: 1\n"},
		{"zero price", "plans:\n  - id: x\n    name: X\n    price: \"0\"\n    type: DAILY\n    duration_days: 1\n"},
		{"bad amount", "plans:\n  - id: x\n    name: X\n    price: \"ten\"\n    type: DAILY\n    duration_days: 1\n"},
		{"no duration", "plans:\n  - id: x\n    name: X\n    price: \"1\"\n    type: DAILY\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadPlans(writeFile(t, "plans.yaml", tt.body)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestApplySettingsStoresVersions(t *testing.T) {
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer db.Close()

	path := writeFile(t, "settlement.yaml", `
effective_from: "2025-01-01T00:00:00Z"
commission:
  residual:
    1: "3"
withdraw:
  window:
    days: [sat, sun]
    start: "08:00"
    end: "12:00"
  min_amount: "20"
  fee_percent: "0.05"
  daily_limit: 2
  auto_process_max: "0"
reward:
  amount: "1.25"
webhook_status_map:
  done: paid
`)

	cfg, err := LoadSettingsConfig(path)
	if err != nil {
		t.Fatalf("LoadSettingsConfig failed: %v", err)
	}

	ctx := context.Background()
	n, err := ApplySettings(ctx, db, cfg, time.Now())
	if err != nil {
		t.Fatalf("ApplySettings failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 setting versions, got %d", n)
	}

	p := settings.NewProvider(db)
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	rates, err := p.Rates(ctx, models.CommissionResidual, at)
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if rate, ok := rates.Rate(1); !ok || !rate.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected residual level 1 rate 3, got %s", rate.String())
	}

	w, err := p.Withdraw(ctx, at)
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if w.DailyLimit != 2 || w.Window.Start != "08:00" || !w.FeePercent.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Unexpected withdraw settings %+v", w)
	}

	statusMap, err := p.StatusMap(ctx, at)
	if err != nil {
		t.Fatalf("StatusMap failed: %v", err)
	}
	if status, ok := statusMap.Lookup("done"); !ok || status != models.DepositPaid {
		t.Errorf("Expected DONE to map to PAID, got %q", status)
	}
}

func TestSettingsVersionsRejectBadValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  SettingsConfig
	}{
		{"rate level out of range", SettingsConfig{Commission: &CommissionConfig{Residual: map[int]string{4: "1"}}}},
		{"fee not a fraction", SettingsConfig{Withdraw: &WithdrawConfig{FeePercent: "10", Window: WindowConfig{Start: "10:00", End: "17:00"}}}},
		{"bad window time", SettingsConfig{Withdraw: &WithdrawConfig{Window: WindowConfig{Start: "25:00", End: "17:00"}}}},
		{"unknown mapped status", SettingsConfig{WebhookStatusMap: map[string]string{"OK": "SETTLED"}}},
		{"negative reward", SettingsConfig{Reward: &RewardConfig{Amount: "-1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.Versions(); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	if err != nil || loc != time.UTC {
		t.Errorf("Expected UTC for empty timezone, got %v, %v", loc, err)
	}
	if _, err := LoadLocation("Not/AZone"); err == nil {
		t.Error("Expected error for unknown timezone")
	}
}
