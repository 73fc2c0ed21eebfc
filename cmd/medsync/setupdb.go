package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/envelope"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/schema"
	"github.com/Koteika1156/PSU-DB-LAB/internal/store/postgres"
)

func newSetupDBCmd(load loader) *cobra.Command {
	var (
		keys      bool
		keyBits   int
		skipTable bool
	)

	cmd := &cobra.Command{
		Use:   "setup-db",
		Short: "Create the normalized tables, optionally generating the importer key pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(config.RoleAdmin, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if keys {
				priv, pub := cfg.Crypto.ImporterPrivkeyPath, cfg.Crypto.ImporterPubkeyPath
				if priv == "" || pub == "" {
					return errs.Configf("setup-db", "crypto.importer_privkey_path and crypto.importer_pubkey_path are required with --keys")
				}
				key, err := envelope.GenerateKeyPair(keyBits)
				if err != nil {
					return err
				}
				if err := envelope.WriteKeyPair(key, priv, pub); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %d-bit key pair: %s, %s\n", key.N.BitLen(), priv, pub)
			}

			if skipTable {
				return nil
			}

			pool, err := postgres.Open(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := schema.Apply(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintf(out, "database schema ready: %s\n", cfg.Postgres.DatabaseName())
			return nil
		},
	}
	cmd.Flags().BoolVar(&keys, "keys", false, "generate the importer RSA key pair at the configured paths")
	cmd.Flags().IntVar(&keyBits, "key-bits", envelope.DefaultKeyBits, "RSA modulus size for --keys")
	cmd.Flags().BoolVar(&skipTable, "keys-only", false, "with --keys, do not touch the database")
	return cmd
}
