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

func createTestDeposit(t *testing.T, s *Service, userId, amount string) *models.Deposit {
	t.Helper()
	deposit, err := s.CreateDeposit(context.Background(), store.CreateDepositParams{
		UserId:    userId,
		Amount:    decimal.RequireFromString(amount),
		ExpiresAt: testNow.Add(30 * time.Minute),
		CreatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	return deposit
}

func TestSettleDeposit_CreditsOnce(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")
	deposit := createTestDeposit(t, service, user.Id, "50")

	if deposit.Identifier != "DEP-"+deposit.Id {
		t.Errorf("Unexpected identifier %s", deposit.Identifier)
	}

	settled, credited, err := service.SettleDeposit(ctx, deposit.Id, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("SettleDeposit failed: %v", err)
	}
	if !credited || settled.Status != models.DepositPaid {
		t.Errorf("Expected first settlement to credit, got credited=%v status=%s", credited, settled.Status)
	}

	_, credited, err = service.SettleDeposit(ctx, deposit.Id, testNow.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Second SettleDeposit failed: %v", err)
	}
	if credited {
		t.Errorf("Expected second settlement to be a no-op")
	}

	balance, err := service.GetBalance(ctx, user.Id, models.BalanceInvestable)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected investable 50, got %s", balance.String())
	}

	if err := service.SetDepositStatus(ctx, deposit.Id, models.DepositExpired, ""); !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("Expected paid deposit to refuse status change, got %v", err)
	}
}

func TestFindDepositForNotification(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "a@example.com")
	deposit := createTestDeposit(t, service, user.Id, "75")

	err := service.UpdateDepositGateway(ctx, store.DepositGatewayParams{
		DepositId:     deposit.Id,
		TransactionId: "tx-123",
		OrderId:       "order-9",
		QrCode:        "000201...",
	})
	if err != nil {
		t.Fatalf("UpdateDepositGateway failed: %v", err)
	}

	tests := []struct {
		name string
		keys store.NotificationKeys
	}{
		{"transaction id", store.NotificationKeys{TransactionId: "tx-123"}},
		{"order id", store.NotificationKeys{TransactionId: "unknown", OrderId: "order-9"}},
		{"identifier", store.NotificationKeys{Identifier: deposit.Identifier}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := service.FindDepositForNotification(ctx, tt.keys)
			if err != nil {
				t.Fatalf("FindDepositForNotification failed: %v", err)
			}
			if found.Id != deposit.Id {
				t.Errorf("Expected deposit %s, got %s", deposit.Id, found.Id)
			}
		})
	}

	_, err = service.FindDepositForNotification(ctx, store.NotificationKeys{TransactionId: "nope"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecordWebhookEvent_DeduplicatesByHash(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	params := store.RecordWebhookParams{Hash: "abc", Payload: `{"status":"APPROVED"}`, ExternalId: "tx-1", ReceivedAt: testNow}

	first, created, err := service.RecordWebhookEvent(ctx, params)
	if err != nil {
		t.Fatalf("RecordWebhookEvent failed: %v", err)
	}
	if !created {
		t.Fatalf("Expected first delivery to be created")
	}

	err = service.UpdateWebhookEvent(ctx, store.WebhookUpdateParams{EventId: first.Id, Status: models.WebhookProcessed, DepositId: "d1", At: testNow})
	if err != nil {
		t.Fatalf("UpdateWebhookEvent failed: %v", err)
	}

	second, created, err := service.RecordWebhookEvent(ctx, params)
	if err != nil {
		t.Fatalf("Second RecordWebhookEvent failed: %v", err)
	}
	if created {
		t.Errorf("Expected duplicate delivery not to create a new event")
	}
	if second.Id != first.Id || second.Status != models.WebhookProcessed {
		t.Errorf("Expected stored processed event, got %s %s", second.Id, second.Status)
	}

	processed, err := service.ListWebhookEventsByStatus(ctx, models.WebhookProcessed)
	if err != nil {
		t.Fatalf("ListWebhookEventsByStatus failed: %v", err)
	}
	if len(processed) != 1 || processed[0].ProcessedAt == nil {
		t.Errorf("Expected one processed event with processed_at set, got %+v", processed)
	}
}
