package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/schema"
	"github.com/Koteika1156/PSU-DB-LAB/internal/store/postgres"
)

func newResetCmd(load loader) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all normalized data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errs.Configf("reset", "refusing to delete data without --yes")
			}
			cfg, err := load(config.RoleAdmin, nil)
			if err != nil {
				return err
			}

			pool, err := postgres.Open(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := schema.Reset(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d tables\n", len(schema.Tables))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
