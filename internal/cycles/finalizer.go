package cycles

import (
	"context"
	"errors"
	"fmt"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/lock"
	"pix-settlement-go/internal/metrics"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	SweepFinalize           = "finalize-cycles"
	finalizationDescription = "Cycle finalization credit"
)

// FinalizeStats summarizes one finalizer sweep.
type FinalizeStats struct {
	Checked   int             `json:"checked"`
	Finalized int             `json:"finalized"`
	Skipped   int             `json:"skipped"`
	Errors    int             `json:"errors"`
	Credited  decimal.Decimal `json:"credited"`
}

// Finalizer closes every ACTIVE cycle that met its duration or passed its end date.
type Finalizer struct {
	store   store.CycleStore
	clock   clock.Clock
	locker  lock.Locker
	metrics *metrics.Metrics
}

func NewFinalizer(s store.CycleStore, clk clock.Clock, locker lock.Locker, m *metrics.Metrics) *Finalizer {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Finalizer{store: s, clock: clk, locker: locker, metrics: m}
}

// Finalize closes one cycle. A cycle that is no longer ACTIVE reports store.ErrCycleNotActive.
func (f *Finalizer) Finalize(ctx context.Context, cycle *models.Cycle) (*models.Cycle, *models.LedgerEntry, error) {
	return f.store.FinalizeCycle(ctx, store.FinalizeCycleParams{
		CycleId:     cycle.Id,
		Description: finalizationDescription,
		FinishedAt:  f.clock.Now(),
	})
}

func (f *Finalizer) Run(ctx context.Context) (*FinalizeStats, error) {
	release, err := f.locker.Acquire(ctx, SweepFinalize)
	if err != nil {
		return nil, err
	}
	defer release()

	now := f.clock.Now()
	stats := &FinalizeStats{Credited: decimal.Zero}

	active, err := f.store.ListActiveCycles(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to list active cycles: %w", err)
	}
	zap.L().Info("Starting cycle finalization sweep", zap.Int("active_cycles", len(active)))

	for i := range active {
		cycle := &active[i]
		stats.Checked++
		if !cycle.IsDue(now) {
			continue
		}

		_, entry, err := f.Finalize(ctx, cycle)
		if errors.Is(err, store.ErrCycleNotActive) {
			stats.Skipped++
			f.metrics.SweepItem(SweepFinalize, "skipped")
			continue
		}
		if err != nil {
			zap.L().Error("Failed to finalize cycle", zap.String("cycle_id", cycle.Id), zap.Error(err))
			stats.Errors++
			f.metrics.SweepItem(SweepFinalize, "error")
			continue
		}

		stats.Finalized++
		stats.Credited = stats.Credited.Add(entry.Amount)
		f.metrics.SweepItem(SweepFinalize, "finalized")
	}

	f.metrics.SweepFinished(SweepFinalize, f.clock.Now())
	zap.L().Info("Cycle finalization sweep complete",
		zap.Int("checked", stats.Checked),
		zap.Int("finalized", stats.Finalized),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.String("credited", stats.Credited.String()))
	return stats, nil
}
