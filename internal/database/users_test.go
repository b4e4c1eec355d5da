package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestCreateUser_StoresAncestors(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	root := createTestUser(t, service, "root@example.com")
	mid := createTestUser(t, service, "mid@example.com", root.Id)
	leaf := createTestUser(t, service, "leaf@example.com", mid.Id, root.Id)

	ancestors, err := service.GetAncestors(ctx, leaf.Id)
	if err != nil {
		t.Fatalf("GetAncestors failed: %v", err)
	}
	if len(ancestors) != 2 {
		t.Fatalf("Expected 2 ancestors, got %d", len(ancestors))
	}
	if ancestors[0].UserId != mid.Id || ancestors[0].Level != 1 {
		t.Errorf("Expected level 1 to be %s, got %+v", mid.Id, ancestors[0])
	}
	if ancestors[1].UserId != root.Id || ancestors[1].Level != 2 {
		t.Errorf("Expected level 2 to be %s, got %+v", root.Id, ancestors[1])
	}

	edges, err := service.GetReferralEdges(ctx)
	if err != nil {
		t.Fatalf("GetReferralEdges failed: %v", err)
	}
	if edges[leaf.Id] != mid.Id || edges[root.Id] != "" {
		t.Errorf("Unexpected edges %v", edges)
	}

	byCode, err := service.GetUserByReferralCode(ctx, "REF-mid@example.com")
	if err != nil {
		t.Fatalf("GetUserByReferralCode failed: %v", err)
	}
	if byCode.Id != mid.Id {
		t.Errorf("Expected %s, got %s", mid.Id, byCode.Id)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUser(t, service, "a@example.com")
	_, err := service.CreateUser(context.Background(), store.CreateUserParams{
		Name:         "Other",
		Email:        "a@example.com",
		ReferralCode: "OTHER",
		CreatedAt:    testNow,
	})
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction, got %v", err)
	}

	_, err = service.GetUserById(context.Background(), "missing")
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestSettingsVersioning(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	v1 := models.DefaultFirstPurchaseRates()
	v2 := models.RateTable{1: decimal.NewFromInt(20)}

	if err := service.PutSetting(ctx, models.SettingFirstPurchaseRates, v1, testNow); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}
	if err := service.PutSetting(ctx, models.SettingFirstPurchaseRates, v2, testNow.Add(24*time.Hour)); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}

	var before models.RateTable
	found, err := service.GetSetting(ctx, models.SettingFirstPurchaseRates, testNow.Add(time.Hour), &before)
	if err != nil || !found {
		t.Fatalf("GetSetting failed: found=%v err=%v", found, err)
	}
	if rate, _ := before.Rate(1); !rate.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected version 1 rate 15, got %s", rate.String())
	}

	var after models.RateTable
	if _, err := service.GetSetting(ctx, models.SettingFirstPurchaseRates, testNow.Add(48*time.Hour), &after); err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if rate, _ := after.Rate(1); !rate.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected version 2 rate 20, got %s", rate.String())
	}

	var none models.RateTable
	found, err = service.GetSetting(ctx, models.SettingFirstPurchaseRates, testNow.Add(-time.Hour), &none)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if found {
		t.Errorf("Expected no version before the first effective date")
	}
}
