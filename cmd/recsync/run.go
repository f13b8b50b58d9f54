package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/app"
	"github.com/stream-sync/recsync/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:       "run <job>",
	Short:     "Run one sweep now",
	Long:      "Runs a single sweep once and exits. Jobs: " + strings.Join(pipeline.JobNames, ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: pipeline.JobNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		job, ok := a.Pipeline.Job(args[0])
		if !ok {
			return fmt.Errorf("unknown job %q", args[0])
		}
		if !job(ctx) {
			log.Warn("sweep finished with failures", zap.String("job", args[0]))
			return fmt.Errorf("%s finished with failures", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", args[0])
		return nil
	},
}
