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
	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scholarctl: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "scholarctl",
		Short:         "Operate the scholarship harvester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warn")

	root.AddCommand(
		batchCommand(),
		sweepCommand(),
		submitCommand(),
		searchCommand(),
		linksCommand(),
		discoverCommand(),
		jobsCommand(),
	)
	return root
}

// withOperator loads config, opens the runtime and runs fn against it.
func withOperator(cmd *cobra.Command, fn func(ctx context.Context, op *app.Operator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !verbose {
		cfg.LogLevel = "warn"
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx := cmd.Context()
	op, err := app.NewOperator(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer op.Close()

	return fn(ctx, op)
}
