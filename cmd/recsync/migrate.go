package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stream-sync/recsync/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		pool, err := database.NewPostgresPool(cmd.Context(), cfg.Database, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}
