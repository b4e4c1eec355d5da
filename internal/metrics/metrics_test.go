package metrics

import (
	"context"
	"testing"
	"time"

	"pix-settlement-go/internal/models"

	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
)

func counterValue(t *testing.T, m *Metrics, metricName string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != metricName {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, expected map[string]string) bool {
	actual := make(map[string]string, len(metric.GetLabel()))
	for _, lp := range metric.GetLabel() {
		actual[lp.GetName()] = lp.GetValue()
	}
	for k, v := range expected {
		if actual[k] != v {
			return false
		}
	}
	return true
}

func TestMetricsRecordsPerInstance(t *testing.T) {
	m := New()
	other := New()

	m.SweepItem("daily_payments", "processed")
	m.SweepItem("daily_payments", "processed")
	m.WebhookEvent("duplicate")
	m.Commissions(models.CommissionResidual, 3)
	m.EntriesCommitted(context.Background(), []models.LedgerEntry{
		{Type: models.LedgerDeposit, Operation: models.OperationCredit, Amount: decimal.NewFromInt(50)},
	})
	m.SweepFinished("daily_payments", time.Unix(1700000000, 0))

	if got := counterValue(t, m, "pix_settlement_sweep_items_total", map[string]string{"sweep": "daily_payments", "result": "processed"}); got != 2 {
		t.Errorf("Expected 2 processed items, got %v", got)
	}
	if got := counterValue(t, m, "pix_settlement_commissions_total", map[string]string{"type": "RESIDUAL"}); got != 3 {
		t.Errorf("Expected 3 residual commissions, got %v", got)
	}
	if got := counterValue(t, m, "pix_settlement_ledger_entries_total", map[string]string{"type": "DEPOSIT", "operation": "CREDIT"}); got != 1 {
		t.Errorf("Expected 1 ledger entry, got %v", got)
	}
	if got := counterValue(t, other, "pix_settlement_webhook_events_total", map[string]string{"result": "duplicate"}); got != 0 {
		t.Errorf("Expected separate registries, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SweepItem("x", "y")
	m.WithdrawalRequest("ok")
	m.EntriesCommitted(context.Background(), nil)
}
