package settings

import (
	"context"
	"testing"
	"time"

	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestProviderFallsBackToDefaults(t *testing.T) {
	p := NewProvider(nil)
	ctx := context.Background()

	rates, err := p.Rates(ctx, models.CommissionFirstPurchase, time.Now())
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if rate, ok := rates.Rate(1); !ok || !rate.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected default level 1 rate 15, got %s", rate.String())
	}

	w, err := p.Withdraw(ctx, time.Now())
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if w.DailyLimit != 1 || !w.MinAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Unexpected default withdraw settings %+v", w)
	}
}

func TestProviderReadsStoredVersion(t *testing.T) {
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	custom := models.DefaultWithdrawSettings()
	custom.DailyLimit = 3
	custom.RequireCycle = true
	if err := db.PutSetting(ctx, models.SettingWithdraw, custom, from); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}
	if err := db.PutSetting(ctx, models.SettingWebhookStatusMap, models.StatusMap{"DONE": models.DepositPaid}, from); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}

	p := NewProvider(db)
	w, err := p.Withdraw(ctx, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if w.DailyLimit != 3 || !w.RequireCycle {
		t.Errorf("Expected stored settings, got %+v", w)
	}

	statusMap, err := p.StatusMap(ctx, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("StatusMap failed: %v", err)
	}
	if status, ok := statusMap.Lookup(" done "); !ok || status != models.DepositPaid {
		t.Errorf("Expected DONE to map to PAID, got %s %v", status, ok)
	}

	before, err := p.Withdraw(ctx, from.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if before.DailyLimit != 1 {
		t.Errorf("Expected defaults before the first version, got %+v", before)
	}
}
