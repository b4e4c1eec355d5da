package common

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/commission"
	"pix-settlement-go/internal/cycles"
	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/deposit"
	"pix-settlement-go/internal/formance"
	"pix-settlement-go/internal/gateway"
	"pix-settlement-go/internal/lock"
	"pix-settlement-go/internal/metrics"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/reconcile"
	"pix-settlement-go/internal/referral"
	"pix-settlement-go/internal/rewards"
	"pix-settlement-go/internal/scheduler"
	"pix-settlement-go/internal/settings"
	"pix-settlement-go/internal/webhook"
	"pix-settlement-go/internal/withdrawal"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services holds every component wired against one database.
type Services struct {
	DbService   *database.Service
	Metrics     *metrics.Metrics
	Settings    *settings.Provider
	Gateway     gateway.Gateway
	Locker      lock.Locker
	Mirror      *formance.Mirror
	Clock       clock.Clock
	Location    *time.Location
	Referrals   *referral.Service
	Commissions *commission.Engine
	Cycles      *cycles.Manager
	Finalizer   *cycles.Finalizer
	Daily       *cycles.DailyProcessor
	Deposits    *deposit.Service
	Webhooks    *webhook.Handler
	Withdrawals *withdrawal.Processor
	Rewards     *rewards.Service
	Reconciler  *reconcile.Reconciler
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	services, err := Wire(ctx, dbService, cfg, clock.RealClock{})
	if err != nil {
		dbService.Close()
		return nil, err
	}
	return services, nil
}

// Wire builds the components on top of an open database. Ledger observers (metrics and,
// when enabled, the Formance mirror) are registered here.
func Wire(ctx context.Context, dbService *database.Service, cfg *models.Config, clk clock.Clock) (*Services, error) {
	loc, err := LoadLocation(cfg.Settlement.Timezone)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.New(cfg.Gateway)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	dbService.AddObserver(m)

	var mirror *formance.Mirror
	if cfg.Formance.Enabled {
		mirror, err = formance.NewMirror(ctx, cfg.Formance)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize formance mirror: %w", err)
		}
		dbService.AddObserver(mirror)
	}

	provider := settings.NewProvider(dbService)
	locker := lock.New(cfg.Redis)
	engine := commission.NewEngine(dbService, provider, clk, m)
	finalizer := cycles.NewFinalizer(dbService, clk, locker, m)

	zap.L().Info("Services initialized",
		zap.String("timezone", loc.String()),
		zap.Bool("gateway_mock", cfg.Gateway.Mock),
		zap.Bool("redis_lock", cfg.Redis.Addr != ""),
		zap.Bool("formance_mirror", mirror != nil))

	return &Services{
		DbService:   dbService,
		Metrics:     m,
		Settings:    provider,
		Gateway:     gw,
		Locker:      locker,
		Mirror:      mirror,
		Clock:       clk,
		Location:    loc,
		Referrals:   referral.NewService(dbService, clk),
		Commissions: engine,
		Cycles:      cycles.NewManager(dbService, engine, clk),
		Finalizer:   finalizer,
		Daily:       cycles.NewDailyProcessor(dbService, engine, finalizer, clk, loc, locker, m),
		Deposits:    deposit.NewService(dbService, gw, provider, clk, m, cfg.Gateway.CallbackURL),
		Webhooks:    webhook.NewHandler(dbService, provider, clk, m),
		Withdrawals: withdrawal.NewProcessor(dbService, gw, provider, clk, loc, m, cfg.Gateway.CallbackURL),
		Rewards:     rewards.NewService(dbService, provider, clk, loc),
		Reconciler:  reconcile.New(dbService, engine),
	}, nil
}

// InitializeDatabaseOnly initializes just the database service
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// LoadLocation resolves the business timezone; an empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

// Sweep names, shared by the CLIs, the admin endpoint and the scheduler.
const (
	SweepExpireDeposits    = "expire-deposits"
	SweepReprocessWebhooks = "reprocess-webhooks"
	SweepDailyPayments     = "daily-payments"
	SweepFinalizeCycles    = "finalize-cycles"
	SweepReconcile         = "reconcile"
)

// Sweeps lists the scheduled batch jobs in run order. Deposits and webhooks settle before
// the daily payments so a cycle bought today is visible to the sweep that pays it.
func (cs *Services) Sweeps() []scheduler.Sweep {
	return []scheduler.Sweep{
		{Name: SweepExpireDeposits, Run: func(ctx context.Context) (any, error) { return cs.Deposits.ExpireStale(ctx) }},
		{Name: SweepReprocessWebhooks, Run: func(ctx context.Context) (any, error) { return cs.Webhooks.ReprocessPending(ctx) }},
		{Name: SweepDailyPayments, Run: func(ctx context.Context) (any, error) { return cs.Daily.Run(ctx) }},
		{Name: SweepFinalizeCycles, Run: func(ctx context.Context) (any, error) { return cs.Finalizer.Run(ctx) }},
	}
}

// CleanupSweeps run on the slow cadence. The reconciliation report never repairs on its own.
func (cs *Services) CleanupSweeps() []scheduler.Sweep {
	return []scheduler.Sweep{
		{Name: SweepReconcile, Run: func(ctx context.Context) (any, error) { return cs.Reconciler.Run(ctx, false) }},
	}
}

// Sweep finds a scheduled sweep by name.
func (cs *Services) Sweep(name string) (scheduler.Sweep, bool) {
	for _, sweep := range cs.Sweeps() {
		if sweep.Name == name {
			return sweep, true
		}
	}
	return scheduler.Sweep{}, false
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
