package withdrawal

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/gateway"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/referral"
	"pix-settlement-go/internal/settings"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Monday, inside the default 10:00-17:00 window.
var testNow = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

type fixture struct {
	db        *database.Service
	gateway   *gateway.Mock
	processor *Processor
	user      *models.User
}

func setupProcessor(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	clk := clock.Fixed{T: now}
	user, err := referral.NewService(db, clk).Register(context.Background(), referral.RegisterParams{
		Name: "José da Silva!", Email: "jose@example.com", Cpf: "12345678909",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	mock := gateway.NewMock()
	return &fixture{
		db:        db,
		gateway:   mock,
		processor: NewProcessor(db, mock, settings.NewProvider(db), clk, time.UTC, nil, "https://example.com/hook"),
		user:      user,
	}
}

func (f *fixture) fund(t *testing.T, amount string) {
	t.Helper()
	value := decimal.RequireFromString(amount)
	_, err := f.db.CreditCommissions(context.Background(), store.CreditCommissionsParams{
		FromUserId: f.user.Id, SourceType: models.ReferenceEarning, SourceId: uuid.New().String(),
		Type: models.CommissionResidual, LedgerType: models.LedgerCommissionResidual,
		BaseAmount: value, At: testNow,
		Credits: []store.CommissionCredit{{Beneficiary: f.user.Id, Level: 1, Percentage: decimal.NewFromInt(100), Amount: value}},
	})
	if err != nil {
		t.Fatalf("CreditCommissions failed: %v", err)
	}
}

func (f *fixture) withdrawable(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.db.GetBalance(context.Background(), f.user.Id, models.BalanceWithdrawable)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return b
}

func (f *fixture) configure(t *testing.T, mutate func(*models.WithdrawSettings)) {
	t.Helper()
	cfg := models.DefaultWithdrawSettings()
	mutate(&cfg)
	if err := f.db.PutSetting(context.Background(), models.SettingWithdraw, cfg, testNow.Add(-24*time.Hour)); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}
}

func (f *fixture) request(amount string) Request {
	return Request{
		UserId:     f.user.Id,
		Amount:     decimal.RequireFromString(amount),
		PixKey:     "jose@example.com",
		PixKeyType: "email",
		Cpf:        "123.456.789-09",
	}
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	se, ok := models.AsSettlementError(err)
	if !ok {
		t.Fatalf("Expected %s, got %v", code, err)
	}
	if se.Code != code {
		t.Errorf("Expected %s, got %s (%s)", code, se.Code, se.Message)
	}
}

func TestRequestAboveBalanceHasNoSideEffects(t *testing.T) {
	f := setupProcessor(t, testNow)
	ctx := context.Background()
	f.fund(t, "150")

	_, err := f.processor.Request(ctx, f.request("200"))
	expectCode(t, err, models.CodeInsufficientBalance)

	withdrawals, err := f.processor.ListUserWithdrawals(ctx, f.user.Id)
	if err != nil {
		t.Fatalf("ListUserWithdrawals failed: %v", err)
	}
	if len(withdrawals) != 0 {
		t.Errorf("Expected no withdrawal rows, got %d", len(withdrawals))
	}
	history, err := f.db.GetLedgerHistory(ctx, f.user.Id, 10, 0)
	if err != nil {
		t.Fatalf("GetLedgerHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected only the funding entry, got %d", len(history))
	}
	if got := f.withdrawable(t); !got.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected balance 150, got %s", got)
	}
}

func TestRequestHandsOffToGateway(t *testing.T) {
	f := setupProcessor(t, testNow)
	ctx := context.Background()
	f.fund(t, "150")

	w, err := f.processor.Request(ctx, f.request("100"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if w.Status != models.WithdrawalProcessing || w.TransactionId == "" {
		t.Errorf("Expected PROCESSING with a transaction id, got %+v", w)
	}
	if !w.FeeAmount.Equal(decimal.NewFromInt(10)) || !w.NetAmount.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Expected fee 10 and net 90, got %s and %s", w.FeeAmount, w.NetAmount)
	}
	if got := f.withdrawable(t); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected the full amount debited, balance 50, got %s", got)
	}

	if len(f.gateway.Transfers) != 1 {
		t.Fatalf("Expected one transfer, got %d", len(f.gateway.Transfers))
	}
	transfer := f.gateway.Transfers[0]
	if !strings.HasPrefix(transfer.Identifier, "withdraw_"+w.Id+"_") {
		t.Errorf("Unexpected identifier %q", transfer.Identifier)
	}
	if !transfer.Amount.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Expected net amount sent, got %s", transfer.Amount)
	}
	if transfer.OwnerName != "Jose da Silva" || transfer.OwnerCpf != "123.456.789-09" {
		t.Errorf("Unexpected beneficiary %q %q", transfer.OwnerName, transfer.OwnerCpf)
	}

	stored, err := f.db.GetWithdrawal(ctx, w.Id)
	if err != nil {
		t.Fatalf("GetWithdrawal failed: %v", err)
	}
	if stored.Status != models.WithdrawalProcessing || stored.Cpf != "12345678909" {
		t.Errorf("Unexpected stored withdrawal %+v", stored)
	}
}

func TestGatewayFailureKeepsDebit(t *testing.T) {
	f := setupProcessor(t, testNow)
	ctx := context.Background()
	f.fund(t, "150")
	f.gateway.FailTransfers = "provider offline"

	w, err := f.processor.Request(ctx, f.request("100"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if w.Status != models.WithdrawalRequested || w.ErrorMessage != "provider offline" {
		t.Errorf("Expected REQUESTED with error, got %+v", w)
	}
	if got := f.withdrawable(t); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Gateway failure must not refund, got %s", got)
	}
}

func TestAboveAutomaticLimitWaitsForAdmin(t *testing.T) {
	f := setupProcessor(t, testNow)
	ctx := context.Background()
	f.fund(t, "500")

	w, err := f.processor.Request(ctx, f.request("400"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if w.Status != models.WithdrawalRequested || len(f.gateway.Transfers) != 0 {
		t.Fatalf("Expected REQUESTED without a transfer, got %+v", w)
	}

	approved, err := f.processor.Approve(ctx, w.Id)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != models.WithdrawalApproved || approved.ApprovedAt == nil {
		t.Errorf("Unexpected approved withdrawal %+v", approved)
	}

	processed, err := f.processor.Process(ctx, w.Id)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if processed.Status != models.WithdrawalProcessing || len(f.gateway.Transfers) != 1 {
		t.Errorf("Expected PROCESSING after hand-off, got %+v", processed)
	}

	_, err = f.processor.Process(ctx, w.Id)
	expectCode(t, err, models.CodeInvalidStatus)

	paid, err := f.processor.MarkPaid(ctx, w.Id, "")
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if paid.Status != models.WithdrawalPaid || paid.PaidAt == nil || paid.TransactionId != processed.TransactionId {
		t.Errorf("Unexpected paid withdrawal %+v", paid)
	}
}

func TestRejectRefunds(t *testing.T) {
	f := setupProcessor(t, testNow)
	ctx := context.Background()
	f.fund(t, "500")

	w, err := f.processor.Request(ctx, f.request("400"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if got := f.withdrawable(t); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Expected 100 after debit, got %s", got)
	}

	_, err = f.processor.Reject(ctx, w.Id, " ")
	expectCode(t, err, models.CodeValidation)

	rejected, err := f.processor.Reject(ctx, w.Id, "key owner mismatch")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.WithdrawalRejected || rejected.ErrorMessage != "key owner mismatch" {
		t.Errorf("Unexpected rejected withdrawal %+v", rejected)
	}
	if got := f.withdrawable(t); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected full refund to 500, got %s", got)
	}

	_, err = f.processor.Reject(ctx, w.Id, "again")
	expectCode(t, err, models.CodeInvalidStatus)
	if got := f.withdrawable(t); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Second reject must not refund again, got %s", got)
	}

	_, err = f.processor.Approve(ctx, uuid.New().String())
	expectCode(t, err, models.CodeNotFound)

	stats, err := f.processor.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Status != models.WithdrawalRejected || stats[0].Count != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestValidationOrder(t *testing.T) {
	saturday := time.Date(2025, 3, 15, 15, 0, 0, 0, time.UTC)
	early := time.Date(2025, 3, 10, 9, 59, 0, 0, time.UTC)
	closing := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		now       time.Time
		configure func(*models.WithdrawSettings)
		mutate    func(*Request)
		code      string
	}{
		{name: "no cycles", now: testNow, configure: func(s *models.WithdrawSettings) { s.RequireCycle = true },
			mutate: func(r *Request) { r.Amount = decimal.NewFromInt(1000) }, code: models.CodeNoCycles},
		{name: "weekend", now: saturday, mutate: func(r *Request) { r.Amount = decimal.NewFromInt(1000) }, code: models.CodeWindowClosed},
		{name: "before opening", now: early, code: models.CodeWindowClosed},
		{name: "at closing", now: closing, code: models.CodeWindowClosed},
		{name: "below minimum", now: testNow, mutate: func(r *Request) { r.Amount = decimal.RequireFromString("49.99") }, code: models.CodeAmountTooLow},
		{name: "balance before key", now: testNow, mutate: func(r *Request) { r.Amount = decimal.NewFromInt(1000); r.PixKey = "bad" }, code: models.CodeInsufficientBalance},
		{name: "bad key", now: testNow, mutate: func(r *Request) { r.PixKey = "not-an-email" }, code: models.CodeInvalidPixKey},
		{name: "unknown key type", now: testNow, mutate: func(r *Request) { r.PixKeyType = "iban" }, code: models.CodeInvalidPixKey},
		{name: "bad cpf", now: testNow, mutate: func(r *Request) { r.Cpf = "1234" }, code: models.CodeInvalidDocument},
		{name: "negative", now: testNow, mutate: func(r *Request) { r.Amount = decimal.NewFromInt(-5) }, code: models.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupProcessor(t, tt.now)
			f.fund(t, "150")
			if tt.configure != nil {
				f.configure(t, tt.configure)
			}
			req := f.request("100")
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			_, err := f.processor.Request(context.Background(), req)
			expectCode(t, err, tt.code)
			if got := f.withdrawable(t); !got.Equal(decimal.NewFromInt(150)) {
				t.Errorf("Rejected request changed the balance to %s", got)
			}
		})
	}
}

func TestDailyLimit(t *testing.T) {
	f := setupProcessor(t, testNow)
	ctx := context.Background()
	f.fund(t, "300")

	if _, err := f.processor.Request(ctx, f.request("100")); err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	_, err := f.processor.Request(ctx, f.request("100"))
	expectCode(t, err, models.CodeDailyLimitReached)
}

func TestWindowUsesConfiguredTimezone(t *testing.T) {
	// 12:00 UTC is 09:00 in Sao Paulo
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := models.DefaultWithdrawSettings()

	if open, _ := windowOpen(cfg.Window, now, time.UTC); !open {
		t.Errorf("Expected window open at 12:00 UTC")
	}
	if open, reason := windowOpen(cfg.Window, now, time.FixedZone("BRT", -3*60*60)); open {
		t.Errorf("Expected window closed at 09:00 BRT")
	} else if !strings.Contains(reason, "09:00") {
		t.Errorf("Unexpected reason %q", reason)
	}
}

func TestWindowComparesClockTimes(t *testing.T) {
	window := models.WithdrawWindow{Days: []string{"Mon"}, Start: "9:00", End: "18:00"}
	tests := []struct {
		hour, minute int
		want         bool
	}{
		{8, 59, false},
		{9, 0, true},
		{10, 30, true},
		{17, 59, true},
		{18, 0, false},
	}

	for _, tt := range tests {
		now := time.Date(2025, 3, 10, tt.hour, tt.minute, 0, 0, time.UTC)
		if open, reason := windowOpen(window, now, time.UTC); open != tt.want {
			t.Errorf("windowOpen at %02d:%02d = %v (%s), want %v", tt.hour, tt.minute, open, reason, tt.want)
		}
	}

	broken := models.WithdrawWindow{Days: []string{"Mon"}, Start: "nine", End: "18:00"}
	if open, _ := windowOpen(broken, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), time.UTC); open {
		t.Errorf("Expected an unparseable window to stay closed")
	}
}

func TestConcurrentRequestsCannotOverdraw(t *testing.T) {
	f := setupProcessor(t, testNow)
	ctx := context.Background()
	f.fund(t, "100")
	f.configure(t, func(s *models.WithdrawSettings) { s.DailyLimit = 5 })

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.processor.Request(ctx, f.request("100"))
		}(i)
	}
	wg.Wait()

	successes, rejected := 0, 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		if se, ok := models.AsSettlementError(err); ok && se.Code == models.CodeInsufficientBalance {
			rejected++
		} else {
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if successes != 1 || rejected != 1 {
		t.Errorf("Expected one success and one rejection, got %d and %d", successes, rejected)
	}
	if got := f.withdrawable(t); !got.IsZero() {
		t.Errorf("Expected zero balance, got %s", got)
	}
}

// countBarrier holds every caller of CountWithdrawalsForDate until all of them have counted,
// so each request passes the pre-check before any withdrawal is inserted.
type countBarrier struct {
	*database.Service
	counted sync.WaitGroup
}

func (b *countBarrier) CountWithdrawalsForDate(ctx context.Context, userId, date string) (int, error) {
	count, err := b.Service.CountWithdrawalsForDate(ctx, userId, date)
	b.counted.Done()
	b.counted.Wait()
	return count, err
}

func TestConcurrentRequestsCannotExceedDailyLimit(t *testing.T) {
	f := setupProcessor(t, testNow)
	ctx := context.Background()
	f.fund(t, "200")
	f.configure(t, func(s *models.WithdrawSettings) { s.DailyLimit = 1 })

	barrier := &countBarrier{Service: f.db}
	barrier.counted.Add(2)
	processor := NewProcessor(barrier, f.gateway, settings.NewProvider(f.db), clock.Fixed{T: testNow}, time.UTC, nil, "https://example.com/hook")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = processor.Request(ctx, f.request("100"))
		}(i)
	}
	wg.Wait()

	successes, limited := 0, 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		if se, ok := models.AsSettlementError(err); ok && se.Code == models.CodeDailyLimitReached {
			limited++
		} else {
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if successes != 1 || limited != 1 {
		t.Errorf("Expected one success and one daily limit rejection, got %d and %d", successes, limited)
	}

	count, err := f.db.CountWithdrawalsForDate(ctx, f.user.Id, clock.LocalDate(testNow, time.UTC))
	if err != nil {
		t.Fatalf("CountWithdrawalsForDate failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 withdrawal today, got %d", count)
	}
	if got := f.withdrawable(t); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected 100 left, got %s", got)
	}
}

func TestValidatePixKey(t *testing.T) {
	tests := []struct {
		key, keyType string
		valid        bool
	}{
		{"123.456.789-09", "cpf", true},
		{"1234567890", "cpf", false},
		{"12.345.678/0001-90", "cnpj", true},
		{"user@example.com", "email", true},
		{"user@", "email", false},
		{"(11) 98765-4321", "phone", true},
		{"+55 11 98765-4321", "phone", true},
		{"98765-4321", "phone", false},
		{"123e4567-e89b-12d3-a456-426614174000", "random", true},
		{"123e4567-e89b-12d3-a456-426614174000", "evp", true},
		{"short-key", "random", false},
		{"anything", "iban", false},
	}

	for _, tt := range tests {
		err := ValidatePixKey(tt.key, tt.keyType)
		if (err == nil) != tt.valid {
			t.Errorf("ValidatePixKey(%q, %q) = %v, want valid=%v", tt.key, tt.keyType, err, tt.valid)
		}
	}
}

func TestBeneficiaryFormatting(t *testing.T) {
	names := map[string]string{
		"José da Silva!":      "Jose da Silva",
		"  Ana   Maria  ":     "Ana Maria",
		"Conceição O'Neil 3º": "Conceicao ONeil",
		"1234 !!":             "Cliente",
	}
	for in, want := range names {
		if got := NormalizeOwnerName(in); got != want {
			t.Errorf("NormalizeOwnerName(%q) = %q, want %q", in, got, want)
		}
	}

	if got := FormatCpf("12345678909"); got != "123.456.789-09" {
		t.Errorf("FormatCpf = %q", got)
	}
	if err := ValidateCpf("123.456.789-09"); err != nil {
		t.Errorf("Expected punctuated CPF to be valid: %v", err)
	}
	for _, cpf := range []string{"", "1234567890", "123.456.789-0x", "123456789012"} {
		if err := ValidateCpf(cpf); err == nil {
			t.Errorf("Expected ValidateCpf(%q) to fail", cpf)
		}
	}
}
