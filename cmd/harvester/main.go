package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/app"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/config"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("harvester starting", "config", map[string]any{
		"app_env":         cfg.Env,
		"version":         cfg.Version,
		"http_addr":       cfg.HTTPAddr,
		"storage_type":    cfg.StorageType,
		"seen_store":      cfg.SeenStore,
		"sweep_schedule":  cfg.SweepSchedule,
		"batch_schedule":  cfg.BatchSchedule,
		"timezone":        cfg.Location.String(),
		"discovery":       cfg.DiscoveryEnabled,
		"api_key_enabled": cfg.APIKey != "",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.NewHarvester(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize harvester", "error", err)
		return err
	}

	if err := harvester.Run(ctx); err != nil {
		return fmt.Errorf("harvester run: %w", err)
	}

	return nil
}
