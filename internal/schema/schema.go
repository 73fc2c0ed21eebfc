// Package schema creates and clears the normalized tables.
package schema

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

//go:embed schema.sql
var DDL string

// Tables lists the normalized tables, dependents first.
var Tables = []string{
	"appointment_diagnoses",
	"appointments",
	"diagnoses",
	"doctors",
	"patients",
	"departments",
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Apply creates any missing tables and indexes.
func Apply(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, DDL); err != nil {
		return errs.Persistence("schema.Apply", err)
	}
	slog.Info("schema applied", "tables", len(Tables))
	return nil
}

// ResetSQL truncates every normalized table and restarts its id sequence.
func ResetSQL() string {
	quoted := make([]string, len(Tables))
	for i, t := range Tables {
		quoted[i] = pgx.Identifier{t}.Sanitize()
	}
	return fmt.Sprintf("TRUNCATE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// Reset deletes all normalized data.
// This is a destructive operation - use with caution.
func Reset(ctx context.Context, db Execer) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	if _, err := db.Exec(ctx, ResetSQL()); err != nil {
		return errs.Persistence("schema.Reset", err)
	}
	slog.Warn("normalized tables reset", "tables", strings.Join(Tables, ","))
	return nil
}
