package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/source"
)

func newSeedCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Recreate the SQLite source table with the sample records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Only the sqlite section matters here; the admin role checks
			// nothing beyond the always-defaulted database name.
			cfg, err := load(config.RoleAdmin, nil)
			if err != nil {
				return err
			}
			if cfg.SQLite.Path == "" || cfg.SQLite.Table == "" {
				return errs.Configf("seed", "sqlite.path and sqlite.table are required")
			}

			db, err := source.OpenWritable(cfg.SQLite.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := source.Seed(cmd.Context(), db, cfg.SQLite.Table, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d records into %s:%s\n",
				len(source.Samples), cfg.SQLite.Path, cfg.SQLite.Table)
			return nil
		},
	}
}
