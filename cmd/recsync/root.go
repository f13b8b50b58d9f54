package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/config"
	"github.com/stream-sync/recsync/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "recsync",
	Short:         "Recording sync operator tool",
	Long:          "Runs the recording sync sweeps by hand, migrates the schema and mints operator tokens.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; SIGINT and SIGTERM cancel the running sweep.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, migrateCmd, tokenCmd)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Log), nil
}
