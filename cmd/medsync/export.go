package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/exporter"
	"github.com/Koteika1156/PSU-DB-LAB/internal/metrics"
	"github.com/Koteika1156/PSU-DB-LAB/internal/source"
)

func newExportCmd(load loader) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Send every row of the source table to the importer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(config.RoleExporter, func(c *config.Config) {
				if table != "" {
					c.SQLite.Table = table
				}
			})
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			rows, err := source.Open(cfg.SQLite.Path)
			if err != nil {
				return err
			}
			defer rows.Close()

			codec, err := exporter.NewCodec(cfg)
			if err != nil {
				return err
			}
			sender, err := exporter.NewSender(ctx, cfg)
			if err != nil {
				return err
			}
			defer sender.Close()

			e := exporter.New(rows, codec, sender, exporter.Options{
				Table:     cfg.SQLite.Table,
				Scheme:    exporter.SchemeFor(cfg),
				Interval:  cfg.SendInterval(),
				Transport: cfg.Mode,
			}, metrics.New())

			stats, err := e.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d of %d rows (%d failed)\n", stats.Sent, stats.Read, stats.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "source table (default: sqlite.table)")
	return cmd
}
