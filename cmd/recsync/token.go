package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stream-sync/recsync/internal/auth"
	"github.com/stream-sync/recsync/internal/models"
)

var (
	tokenOperator string
	tokenRole     string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token for the admin API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		svc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
		tok, err := svc.Generate(tokenOperator, models.Role(tokenRole))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "", "operator name stored in the token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(models.RoleViewer), "admin or viewer")
	_ = tokenCmd.MarkFlagRequired("operator")
}
