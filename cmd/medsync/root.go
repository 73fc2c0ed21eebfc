package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/logging"
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "config.yaml"

// loader builds the validated configuration for a command. adjust, when
// non-nil, applies flag overrides before validation.
type loader func(role config.Role, adjust func(*config.Config)) (*config.Config, error)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "medsync",
		Short:         "Synchronize flat clinical records into a normalized database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default: ./config.yaml when present)")

	load := func(role config.Role, adjust func(*config.Config)) (*config.Config, error) {
		path := cfgFile
		if path == "" && config.Exists(defaultConfigFile) {
			path = defaultConfigFile
		}

		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		if adjust != nil {
			adjust(cfg)
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

		if err := cfg.Validate(role); err != nil {
			return nil, err
		}
		slog.Debug("configuration loaded", "file", path, "config", cfg.String())
		return cfg, nil
	}

	root.AddCommand(
		newExportCmd(load),
		newImportCmd(load),
		newSetupDBCmd(load),
		newSeedCmd(load),
		newReportCmd(load),
		newResetCmd(load),
	)
	return root
}
