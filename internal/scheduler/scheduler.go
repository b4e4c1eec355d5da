/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scheduler runs the settlement sweeps on a timer inside the server process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweep is one idempotent batch job. Stats is whatever summary the job returns.
type Sweep struct {
	Name string
	Run  func(ctx context.Context) (any, error)
}

// Config contains configuration for Scheduler
type Config struct {
	Interval        time.Duration
	CleanupInterval time.Duration
	// Sweeps run every Interval, in order.
	Sweeps []Sweep
	// Cleanup runs every CleanupInterval.
	Cleanup []Sweep
}

// Scheduler repeatedly runs the configured sweeps until stopped
type Scheduler struct {
	interval        time.Duration
	cleanupInterval time.Duration
	sweeps          []Sweep
	cleanup         []Sweep

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		interval:        cfg.Interval,
		cleanupInterval: cfg.CleanupInterval,
		sweeps:          cfg.Sweeps,
		cleanup:         cfg.Cleanup,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start runs every sweep once, then keeps running them in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", s.interval)
	}
	if len(s.sweeps) == 0 {
		return fmt.Errorf("no sweeps to schedule")
	}

	go s.pollLoop(ctx)
	if s.cleanupInterval > 0 && len(s.cleanup) > 0 {
		go s.cleanupLoop(ctx)
	}

	zap.L().Info("Sweep scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("cleanup_interval", s.cleanupInterval),
		zap.Int("sweeps", len(s.sweeps)))
	return nil
}

// Stop waits for the sweep in progress to finish
func (s *Scheduler) Stop() {
	zap.L().Info("Stopping sweep scheduler")
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Sweep scheduler stopped")
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	RunAll(ctx, s.sweeps)

	for {
		select {
		case <-ticker.C:
			RunAll(ctx, s.sweeps)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			RunAll(ctx, s.cleanup)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunAll runs sweeps in order. A failing sweep is logged and the rest still run.
// It returns the number of sweeps that failed.
func RunAll(ctx context.Context, sweeps []Sweep) int {
	failed := 0
	for _, sweep := range sweeps {
		if ctx.Err() != nil {
			return failed
		}

		start := time.Now()
		stats, err := sweep.Run(ctx)
		if err != nil {
			failed++
			zap.L().Error("Sweep failed", zap.String("sweep", sweep.Name), zap.Error(err))
			continue
		}
		zap.L().Info("Sweep finished",
			zap.String("sweep", sweep.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Any("stats", stats))
	}
	return failed
}
