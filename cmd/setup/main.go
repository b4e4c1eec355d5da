package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"pix-settlement-go/internal/common"
	"pix-settlement-go/internal/config"
	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/models"

	"go.uber.org/zap"
)

// seedSettings stores one new version of every setting described in the file
func seedSettings(ctx context.Context, dbService *database.Service, file string, dryRun bool) error {
	zap.L().Info("Loading settlement settings", zap.String("file", file))
	settingsConfig, err := common.LoadSettingsConfig(file)
	if err != nil {
		return err
	}

	if dryRun {
		versions, err := settingsConfig.Versions()
		if err != nil {
			return err
		}
		for key, value := range versions {
			encoded, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", key, err)
			}
			fmt.Printf("%s:\n%s\n", key, encoded)
		}
		return nil
	}

	count, err := common.ApplySettings(ctx, dbService, settingsConfig, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("✓ Stored %d setting versions from %s\n", count, file)
	return nil
}

// seedPlans upserts every plan in the file; plans missing from it are left untouched
func seedPlans(ctx context.Context, dbService *database.Service, file string, dryRun bool) error {
	zap.L().Info("Loading plans", zap.String("file", file))
	plans, err := common.LoadPlans(file)
	if err != nil {
		return err
	}

	for i, plan := range plans {
		fmt.Printf("%s %-12s %-10s price %10s  %3d days  daily %8s  total %10s  max %d  active %v\n",
			common.BoxPrefix(i == len(plans)-1), plan.Id, plan.Type, plan.Price.StringFixed(2), plan.DurationDays,
			plan.DailyIncome.StringFixed(2), plan.TotalReturn.StringFixed(2), plan.MaxPurchases, plan.Active)
	}
	if dryRun {
		return nil
	}

	if err := common.ApplyPlans(ctx, dbService, plans, time.Now().UTC()); err != nil {
		return err
	}
	fmt.Printf("✓ Upserted %d plans from %s\n", len(plans), file)
	return nil
}

func printActivePlans(ctx context.Context, dbService *database.Service) {
	plans, err := dbService.ListPlans(ctx, true)
	if err != nil {
		zap.L().Error("Failed to list plans", zap.Error(err))
		return
	}
	fmt.Printf("Active plans: %d\n", len(plans))
	for _, plan := range plans {
		suffix := ""
		if plan.Type == models.PlanEndCycle {
			suffix = fmt.Sprintf(" (pays %s at the end)", plan.TotalReturn.StringFixed(2))
		}
		fmt.Printf("  - %s: %s%s\n", plan.Id, plan.Name, suffix)
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	settingsFlag := flag.String("settings", cfg.Settlement.SettingsFile, "Path to the settlement settings YAML")
	plansFlag := flag.String("plans", cfg.Settlement.PlansFile, "Path to the plans YAML")
	skipSettings := flag.Bool("skip-settings", false, "Do not store settings")
	skipPlans := flag.Bool("skip-plans", false, "Do not upsert plans")
	dryRun := flag.Bool("dry-run", false, "Validate and print without writing")
	flag.Parse()

	// Opening the database creates the schema
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	common.PrintHeader("SETTLEMENT SETUP", common.DefaultWidth)
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if *dryRun {
		fmt.Println("Dry run: nothing will be written")
	}

	if !*skipSettings {
		if err := seedSettings(ctx, dbService, *settingsFlag, *dryRun); err != nil {
			zap.L().Fatal("Failed to seed settings", zap.Error(err))
		}
	}
	if !*skipPlans {
		if err := seedPlans(ctx, dbService, *plansFlag, *dryRun); err != nil {
			zap.L().Fatal("Failed to seed plans", zap.Error(err))
		}
	}

	printActivePlans(ctx, dbService)
	common.PrintFooter("Setup complete", common.DefaultWidth)
	zap.L().Info("Setup complete")
}
