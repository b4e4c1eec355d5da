package webhook

import (
	"context"
	"testing"
	"time"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/referral"
	"pix-settlement-go/internal/settings"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *database.Service
	handler *Handler
	user    *models.User
}

func setupHandler(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	clk := clock.Fixed{T: testNow}
	user, err := referral.NewService(db, clk).Register(context.Background(), referral.RegisterParams{
		Name: "Payer", Email: "payer@example.com",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return &fixture{db: db, handler: NewHandler(db, settings.NewProvider(db), clk, nil), user: user}
}

func (f *fixture) deposit(t *testing.T, amount int64, transactionId string) *models.Deposit {
	t.Helper()
	ctx := context.Background()
	d, err := f.db.CreateDeposit(ctx, store.CreateDepositParams{
		UserId: f.user.Id, Amount: decimal.NewFromInt(amount),
		ExpiresAt: testNow.Add(30 * time.Minute), CreatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	if err := f.db.UpdateDepositGateway(ctx, store.DepositGatewayParams{
		DepositId: d.Id, TransactionId: transactionId, OrderId: "ord-" + transactionId,
	}); err != nil {
		t.Fatalf("UpdateDepositGateway failed: %v", err)
	}
	d.TransactionId = transactionId
	return d
}

func (f *fixture) investable(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.db.GetBalance(context.Background(), f.user.Id, models.BalanceInvestable)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return b
}

func (f *fixture) depositStatus(t *testing.T, id string) models.DepositStatus {
	t.Helper()
	d, err := f.db.GetDeposit(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDeposit failed: %v", err)
	}
	return d.Status
}

func TestDuplicateDeliveryCreditsOnce(t *testing.T) {
	f := setupHandler(t)
	ctx := context.Background()
	d := f.deposit(t, 50, "tx-50")

	payload := []byte(`{"transactionId":"tx-50","status":"APPROVED","amount":50}`)

	first, err := f.handler.Handle(ctx, payload)
	if err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	if first.Duplicate || !first.Credited || first.Status != models.WebhookProcessed || first.DepositId != d.Id {
		t.Errorf("Unexpected first outcome: %+v", first)
	}

	second, err := f.handler.Handle(ctx, payload)
	if err != nil {
		t.Fatalf("Second delivery failed: %v", err)
	}
	if !second.Duplicate || second.Credited || second.EventId != first.EventId {
		t.Errorf("Unexpected second outcome: %+v", second)
	}

	if got := f.investable(t); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected investable 50, got %s", got)
	}
	if status := f.depositStatus(t, d.Id); status != models.DepositPaid {
		t.Errorf("Expected PAID, got %s", status)
	}

	processed, err := f.db.ListWebhookEventsByStatus(ctx, models.WebhookProcessed)
	if err != nil {
		t.Fatalf("ListWebhookEventsByStatus failed: %v", err)
	}
	if len(processed) != 1 {
		t.Errorf("Expected exactly one processed event, got %d", len(processed))
	}
}

func TestDistinctPaidPayloadsCreditOnce(t *testing.T) {
	f := setupHandler(t)
	ctx := context.Background()
	d := f.deposit(t, 80, "tx-80")

	for _, payload := range []string{
		`{"transactionId":"tx-80","status":"PAID"}`,
		`{"transactionId":"tx-80","status":"COMPLETED"}`,
		`{"order":{"id":"ord-tx-80"},"event":"OK"}`,
		`{"identifier":"DEP-` + d.Id + `","status":"SUCCESS"}`,
	} {
		if _, err := f.handler.Handle(ctx, []byte(payload)); err != nil {
			t.Fatalf("Handle(%s) failed: %v", payload, err)
		}
	}

	if got := f.investable(t); !got.Equal(decimal.NewFromInt(80)) {
		t.Errorf("Expected a single 80 credit, got %s", got)
	}
	count, err := f.db.CountLedgerByReference(ctx, models.ReferenceDeposit, d.Id)
	if err != nil {
		t.Fatalf("CountLedgerByReference failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", count)
	}
}

func TestNonPaidStatusesAndTerminalPaid(t *testing.T) {
	f := setupHandler(t)
	ctx := context.Background()
	d := f.deposit(t, 60, "tx-60")

	outcome, err := f.handler.Handle(ctx, []byte(`{"transactionId":"tx-60","status":"EXPIRED"}`))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if outcome.Mapped != string(models.DepositExpired) || f.depositStatus(t, d.Id) != models.DepositExpired {
		t.Errorf("Expected EXPIRED deposit, got outcome %+v", outcome)
	}
	if !f.investable(t).IsZero() {
		t.Errorf("Non-paid status must not credit")
	}

	if _, err := f.handler.Handle(ctx, []byte(`{"transactionId":"tx-60","status":"PAID"}`)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if _, err := f.handler.Handle(ctx, []byte(`{"transactionId":"tx-60","status":"CANCELLED"}`)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if status := f.depositStatus(t, d.Id); status != models.DepositPaid {
		t.Errorf("PAID must be terminal, got %s", status)
	}
	if got := f.investable(t); !got.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected investable 60, got %s", got)
	}
}

func TestUnmatchedAndUnknownStatusAreRecordedAsFailed(t *testing.T) {
	f := setupHandler(t)
	ctx := context.Background()
	f.deposit(t, 70, "tx-70")

	outcome, err := f.handler.Handle(ctx, []byte(`{"transactionId":"nobody","status":"PAID"}`))
	if err != nil {
		t.Fatalf("Unmatched delivery must not error: %v", err)
	}
	if outcome.Status != models.WebhookFailed || outcome.Error != "deposit not found" {
		t.Errorf("Unexpected outcome: %+v", outcome)
	}

	outcome, err = f.handler.Handle(ctx, []byte(`{"transactionId":"tx-70","status":"SETTLED_MAYBE"}`))
	if err != nil {
		t.Fatalf("Unknown status must not error: %v", err)
	}
	if outcome.Status != models.WebhookFailed || outcome.Error != "unknown status: SETTLED_MAYBE" {
		t.Errorf("Unexpected outcome: %+v", outcome)
	}

	failed, err := f.db.ListWebhookEventsByStatus(ctx, models.WebhookFailed)
	if err != nil {
		t.Fatalf("ListWebhookEventsByStatus failed: %v", err)
	}
	if len(failed) != 2 {
		t.Errorf("Expected 2 failed events, got %d", len(failed))
	}
	if !f.investable(t).IsZero() {
		t.Errorf("Failed events must not credit")
	}
}

func TestReprocessAfterStatusMapUpdate(t *testing.T) {
	f := setupHandler(t)
	ctx := context.Background()
	d := f.deposit(t, 90, "tx-90")

	outcome, err := f.handler.Handle(ctx, []byte(`{"transactionId":"tx-90","status":"LIQUIDATED"}`))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if outcome.Status != models.WebhookFailed {
		t.Fatalf("Expected failed event, got %+v", outcome)
	}

	statusMap := models.DefaultStatusMap()
	statusMap["LIQUIDATED"] = models.DepositPaid
	if err := f.db.PutSetting(ctx, models.SettingWebhookStatusMap, statusMap, testNow.Add(-time.Minute)); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}

	stats, err := f.handler.ReprocessPending(ctx)
	if err != nil {
		t.Fatalf("ReprocessPending failed: %v", err)
	}
	if stats.Checked != 1 || stats.Processed != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if f.depositStatus(t, d.Id) != models.DepositPaid || !f.investable(t).Equal(decimal.NewFromInt(90)) {
		t.Errorf("Reprocessing must settle the deposit")
	}

	_, err = f.handler.Reprocess(ctx, outcome.EventId)
	if se, ok := models.AsSettlementError(err); !ok || se.Code != models.CodeInvalidStatus {
		t.Errorf("Expected INVALID_STATUS for a processed event, got %v", err)
	}
}

func TestWithdrawalNotificationMarksPaid(t *testing.T) {
	f := setupHandler(t)
	ctx := context.Background()

	_, err := f.db.CreditCommissions(ctx, store.CreditCommissionsParams{
		FromUserId: f.user.Id, SourceType: models.ReferenceEarning, SourceId: uuid.New().String(),
		Type: models.CommissionResidual, LedgerType: models.LedgerCommissionResidual,
		BaseAmount: decimal.NewFromInt(100), At: testNow,
		Credits: []store.CommissionCredit{{Beneficiary: f.user.Id, Level: 1, Percentage: decimal.NewFromInt(100), Amount: decimal.NewFromInt(100)}},
	})
	if err != nil {
		t.Fatalf("CreditCommissions failed: %v", err)
	}

	w, err := f.db.CreateWithdrawal(ctx, store.CreateWithdrawalParams{
		UserId: f.user.Id, Amount: decimal.NewFromInt(100), FeeAmount: decimal.NewFromInt(10), NetAmount: decimal.NewFromInt(90),
		PixKey: "payer@example.com", PixKeyType: "email", Cpf: "12345678909",
		RequestedDate: "2025-03-10", RequestedAt: testNow,
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}
	if err := f.db.RecordWithdrawalHandoff(ctx, store.WithdrawalHandoffParams{
		WithdrawalId: w.Id, Status: models.WithdrawalProcessing, TransactionId: "wd-1",
	}); err != nil {
		t.Fatalf("RecordWithdrawalHandoff failed: %v", err)
	}

	outcome, err := f.handler.Handle(ctx, []byte(`{"transactionId":"wd-1","status":"COMPLETED"}`))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if outcome.WithdrawalId != w.Id || outcome.Status != models.WebhookProcessed {
		t.Errorf("Unexpected outcome: %+v", outcome)
	}

	got, err := f.db.GetWithdrawal(ctx, w.Id)
	if err != nil {
		t.Fatalf("GetWithdrawal failed: %v", err)
	}
	if got.Status != models.WithdrawalPaid || got.PaidAt == nil {
		t.Errorf("Expected PAID withdrawal, got %+v", got)
	}

	withdrawable, _ := f.db.GetBalance(ctx, f.user.Id, models.BalanceWithdrawable)
	if !withdrawable.IsZero() {
		t.Errorf("Payout notification must not move balances, got %s", withdrawable)
	}
}

func TestWithdrawalFailureByIdentifierKeepsFunds(t *testing.T) {
	f := setupHandler(t)
	ctx := context.Background()

	_, err := f.db.CreditCommissions(ctx, store.CreditCommissionsParams{
		FromUserId: f.user.Id, SourceType: models.ReferenceEarning, SourceId: uuid.New().String(),
		Type: models.CommissionResidual, LedgerType: models.LedgerCommissionResidual,
		BaseAmount: decimal.NewFromInt(60), At: testNow,
		Credits: []store.CommissionCredit{{Beneficiary: f.user.Id, Level: 1, Percentage: decimal.NewFromInt(100), Amount: decimal.NewFromInt(60)}},
	})
	if err != nil {
		t.Fatalf("CreditCommissions failed: %v", err)
	}
	w, err := f.db.CreateWithdrawal(ctx, store.CreateWithdrawalParams{
		UserId: f.user.Id, Amount: decimal.NewFromInt(60), FeeAmount: decimal.NewFromInt(6), NetAmount: decimal.NewFromInt(54),
		PixKey: "payer@example.com", PixKeyType: "email", Cpf: "12345678909",
		RequestedDate: "2025-03-10", RequestedAt: testNow,
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	payload := `{"clientIdentifier":"withdraw_` + w.Id + `_1741608000","status":"FAILED"}`
	outcome, err := f.handler.Handle(ctx, []byte(payload))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if outcome.WithdrawalId != w.Id {
		t.Fatalf("Expected withdrawal match, got %+v", outcome)
	}

	got, _ := f.db.GetWithdrawal(ctx, w.Id)
	if got.Status != models.WithdrawalRequested || got.ErrorMessage != "gateway reported FAILED" {
		t.Errorf("Expected error recorded without status change, got %+v", got)
	}
}

func TestInvalidPayload(t *testing.T) {
	f := setupHandler(t)
	_, err := f.handler.Handle(context.Background(), []byte(`not json`))
	if se, ok := models.AsSettlementError(err); !ok || se.Code != models.CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR, got %v", err)
	}
}
