package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pix-settlement-go/internal/api"
	"pix-settlement-go/internal/common"
	"pix-settlement-go/internal/config"
	"pix-settlement-go/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting PIX settlement server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if cfg.Server.AdminToken == "" {
		zap.L().Warn("ADMIN_TOKEN not set, admin endpoints are disabled")
	}

	server := api.NewServer(cfg.Server, services)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	var sweeps *scheduler.Scheduler
	if cfg.Scheduler.Interval > 0 {
		sweeps = scheduler.New(scheduler.Config{
			Interval:        cfg.Scheduler.Interval,
			CleanupInterval: cfg.Scheduler.CleanupInterval,
			Sweeps:          services.Sweeps(),
			Cleanup:         services.CleanupSweeps(),
		})
		if err := sweeps.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start sweep scheduler", zap.Error(err))
		}
	} else {
		zap.L().Info("SWEEP_INTERVAL not set, sweeps must be triggered externally")
	}

	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping server...")
	case err := <-serverErr:
		if err != nil {
			zap.L().Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("HTTP server shutdown failed", zap.Error(err))
		}
		if sweeps != nil {
			sweeps.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Server stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
