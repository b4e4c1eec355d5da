package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func countingSweep(name string, counter *atomic.Int32, err error) Sweep {
	return Sweep{
		Name: name,
		Run: func(ctx context.Context) (any, error) {
			counter.Add(1)
			return nil, err
		},
	}
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	var first, second atomic.Int32
	failed := RunAll(context.Background(), []Sweep{
		countingSweep("broken", &first, errors.New("boom")),
		countingSweep("healthy", &second, nil),
	})

	if failed != 1 {
		t.Errorf("Expected 1 failed sweep, got %d", failed)
	}
	if first.Load() != 1 || second.Load() != 1 {
		t.Errorf("Expected both sweeps to run once, got %d and %d", first.Load(), second.Load())
	}
}

func TestRunAllStopsOnCancelledContext(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	RunAll(ctx, []Sweep{countingSweep("skipped", &runs, nil)})
	if runs.Load() != 0 {
		t.Errorf("Expected no runs after cancellation, got %d", runs.Load())
	}
}

func TestSchedulerRunsRepeatedlyUntilStopped(t *testing.T) {
	var sweeps, cleanups atomic.Int32
	s := New(Config{
		Interval:        5 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
		Sweeps:          []Sweep{countingSweep("sweep", &sweeps, nil)},
		Cleanup:         []Sweep{countingSweep("cleanup", &cleanups, nil)},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for (sweeps.Load() < 3 || cleanups.Load() < 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if sweeps.Load() < 3 {
		t.Errorf("Expected at least 3 sweep runs, got %d", sweeps.Load())
	}
	if cleanups.Load() < 1 {
		t.Errorf("Expected at least 1 cleanup run, got %d", cleanups.Load())
	}

	after := sweeps.Load()
	time.Sleep(20 * time.Millisecond)
	if sweeps.Load() != after {
		t.Errorf("Expected no runs after Stop, got %d more", sweeps.Load()-after)
	}
}

func TestStartRejectsBadConfig(t *testing.T) {
	if err := New(Config{}).Start(context.Background()); err == nil {
		t.Error("Expected error for zero interval")
	}
	if err := New(Config{Interval: time.Second}).Start(context.Background()); err == nil {
		t.Error("Expected error for empty sweep list")
	}
}
