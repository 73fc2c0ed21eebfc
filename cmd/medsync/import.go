package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/importer"
	"github.com/Koteika1156/PSU-DB-LAB/internal/metrics"
	"github.com/Koteika1156/PSU-DB-LAB/internal/normalize"
	"github.com/Koteika1156/PSU-DB-LAB/internal/store/memstore"
	"github.com/Koteika1156/PSU-DB-LAB/internal/store/postgres"
	"github.com/Koteika1156/PSU-DB-LAB/internal/web"
)

func newImportCmd(load loader) *cobra.Command {
	var store string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Receive records and normalize them until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(config.RoleImporter, func(c *config.Config) {
				if store != "" {
					c.Store = store
				}
			})
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var (
				target normalize.Store
				checks = map[string]web.Checker{}
			)
			switch cfg.Store {
			case config.StoreMemory:
				mem := memstore.New()
				target, checks["store"] = mem, mem
			default:
				pool, err := postgres.Open(ctx, cfg.Postgres)
				if err != nil {
					return err
				}
				defer pool.Close()
				pg := postgres.New(pool)
				target, checks["store"] = pg, pg
			}

			m := metrics.New()
			imp, err := importer.New(cfg, target, m)
			if err != nil {
				return err
			}

			checks["receiver"] = web.CheckFunc(imp.Health)

			g, ctx := errgroup.WithContext(ctx)
			if cfg.HTTP.Addr != "" {
				ops := web.NewServer(cfg.HTTP, checks, m.Handler())
				g.Go(func() error {
					if err := ops.ListenAndServe(ctx); err != nil {
						return fmt.Errorf("ops server: %w", err)
					}
					return nil
				})
			}
			g.Go(func() error { return imp.Run(ctx) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&store, "store", "", "normalized store: postgres or memory (default: store)")
	return cmd
}

