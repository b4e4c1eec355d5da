package metrics

import (
	"context"
	"net/http"
	"time"

	"pix-settlement-go/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pix_settlement"

// Metrics owns its registry so several instances can coexist in one process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sweepItemsTotal    *prometheus.CounterVec
	sweepLastRunUnix   *prometheus.GaugeVec
	webhookEventsTotal *prometheus.CounterVec
	withdrawalsTotal   *prometheus.CounterVec
	ledgerEntriesTotal *prometheus.CounterVec
	commissionsTotal   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sweepItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_items_total",
				Help:      "Items handled by batch sweeps partitioned by sweep and result.",
			},
			[]string{"sweep", "result"},
		),
		sweepLastRunUnix: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sweep_last_run_unix",
				Help:      "Unix time of the most recent completed sweep.",
			},
			[]string{"sweep"},
		),
		webhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Gateway notifications partitioned by outcome.",
			},
			[]string{"result"},
		),
		withdrawalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "withdrawal_requests_total",
				Help:      "Withdrawal requests partitioned by result code.",
			},
			[]string{"result"},
		),
		ledgerEntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_entries_total",
				Help:      "Committed ledger entries by type and operation.",
			},
			[]string{"type", "operation"},
		),
		commissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commissions_total",
				Help:      "Commission records written by commission type.",
			},
			[]string{"type"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SweepItem(sweep, result string) {
	if m == nil {
		return
	}
	m.sweepItemsTotal.WithLabelValues(sweep, result).Inc()
}

func (m *Metrics) SweepFinished(sweep string, at time.Time) {
	if m == nil {
		return
	}
	m.sweepLastRunUnix.WithLabelValues(sweep).Set(float64(at.Unix()))
}

func (m *Metrics) WebhookEvent(result string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) WithdrawalRequest(result string) {
	if m == nil {
		return
	}
	m.withdrawalsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Commissions(commissionType models.CommissionType, count int) {
	if m == nil || count == 0 {
		return
	}
	m.commissionsTotal.WithLabelValues(string(commissionType)).Add(float64(count))
}

// EntriesCommitted counts ledger entries; it is registered as a ledger observer on the database service.
func (m *Metrics) EntriesCommitted(_ context.Context, entries []models.LedgerEntry) {
	if m == nil {
		return
	}
	for _, e := range entries {
		m.ledgerEntriesTotal.WithLabelValues(string(e.Type), string(e.Operation)).Inc()
	}
}
