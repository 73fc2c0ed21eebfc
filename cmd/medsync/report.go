package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/report"
	"github.com/Koteika1156/PSU-DB-LAB/internal/store/postgres"
)

func newReportCmd(load loader) *cobra.Command {
	var (
		filter report.Filter
		out    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the appointment report as XLSX or CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmtKind, err := report.ParseFormat(format)
			if err != nil {
				return errs.Config("report", err)
			}
			if out == "" {
				out = "report." + string(fmtKind)
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

			rows, err := report.Query(cmd.Context(), pool, filter)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := report.Write(w, fmtKind, rows); err != nil {
				return err
			}
			if out != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", len(rows), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Department, "department", "", "only this department")
	cmd.Flags().StringVar(&filter.Doctor, "doctor", "", "only this doctor (full name)")
	cmd.Flags().StringVar(&filter.Patient, "patient", "", "only this patient (full name)")
	cmd.Flags().StringVar(&filter.AppointmentDate, "date", "", "only appointments on this day (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default report.<format>)")
	cmd.Flags().StringVar(&format, "format", string(report.FormatXLSX), "report format: xlsx or csv")
	return cmd
}
