package formance

import (
	"context"
	"math/big"
	"testing"

	"pix-settlement-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

func TestRoute(t *testing.T) {
	credit := &models.LedgerEntry{
		UserId: "u1", BalanceType: models.BalanceWithdrawable,
		Type: models.LedgerCommissionResidual, Operation: models.OperationCredit,
	}
	source, destination := route(credit)
	if source != "platform:commission_residual" || destination != "users:u1:withdrawable" {
		t.Errorf("credit routed %s -> %s", source, destination)
	}

	debit := &models.LedgerEntry{
		UserId: "u1", BalanceType: models.BalanceInvestable,
		Type: models.LedgerInvestment, Operation: models.OperationDebit,
	}
	source, destination = route(debit)
	if source != "users:u1:investable" || destination != "platform:investment" {
		t.Errorf("debit routed %s -> %s", source, destination)
	}
}

func TestPostingVars(t *testing.T) {
	entry := &models.LedgerEntry{
		Id: "e1", UserId: "u1", BalanceType: models.BalanceWithdrawable,
		Type: models.LedgerWithdrawal, Operation: models.OperationDebit,
		Amount:        decimal.RequireFromString("100.5"),
		BalanceAfter:  decimal.RequireFromString("49.5"),
		ReferenceType: models.ReferenceWithdrawal, ReferenceId: "w1",
	}

	vars := postingVars(entry)
	want := map[string]string{
		"asset":          "BRL/2",
		"amount":         "10050",
		"source":         "users:u1:withdrawable",
		"destination":    "platform:withdrawal",
		"entry_type":     "WITHDRAWAL",
		"reference_type": "WITHDRAWAL",
		"reference_id":   "w1",
		"balance_after":  "49.50",
	}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("vars[%s] = %q, want %q", k, vars[k], v)
		}
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"BRL/2": {Input: big.NewInt(15000), Output: big.NewInt(2550)},
	}
	if got := bigIntToDecimal(volumeBalance(vols, "BRL/2")); !got.Equal(decimal.RequireFromString("124.50")) {
		t.Errorf("expected 124.50, got %s", got)
	}
	if got := bigIntToDecimal(volumeBalance(vols, "USD/2")); !got.IsZero() {
		t.Errorf("expected 0 for a missing asset, got %s", got)
	}
}

func TestPostSkipsZeroAmounts(t *testing.T) {
	// a zero-amount entry must not reach the client
	m := &Mirror{}
	if err := m.Post(context.Background(), &models.LedgerEntry{Id: "e0", Amount: decimal.Zero}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
}
