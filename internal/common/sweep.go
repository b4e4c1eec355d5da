package common

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pix-settlement-go/internal/config"

	"go.uber.org/zap"
)

// RunSweepCommand is the body of the single-sweep CLIs: load config, wire services,
// run the named sweep once and print its stats. It returns the process exit code.
func RunSweepCommand(name string) int {
	ctx := context.Background()

	_, loggerCleanup := InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Error("Failed to load config", zap.Error(err))
		return 1
	}

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Error("Failed to initialize services", zap.Error(err))
		return 1
	}
	defer services.Close()

	sweep, ok := services.Sweep(name)
	if !ok {
		zap.L().Error("Unknown sweep", zap.String("sweep", name))
		return 1
	}

	PrintHeader(strings.ToUpper(strings.ReplaceAll(name, "-", " ")), DefaultWidth)
	start := time.Now()
	stats, err := sweep.Run(ctx)
	if err != nil {
		zap.L().Error("Sweep failed", zap.String("sweep", name), zap.Error(err))
		PrintFooter(fmt.Sprintf("FAILED: %v", err), DefaultWidth)
		return 1
	}

	PrintStats(stats)
	PrintFooter(fmt.Sprintf("Finished in %s", time.Since(start).Round(time.Millisecond)), DefaultWidth)
	return 0
}

// PrintStats prints a sweep summary as indented JSON.
func PrintStats(stats any) {
	encoded, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", stats)
		return
	}
	fmt.Println(string(encoded))
}
