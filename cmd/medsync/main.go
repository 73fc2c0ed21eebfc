// Command medsync moves clinical records from a SQLite source table into
// the normalized PostgreSQL schema over a socket or a durable queue.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", slog.Any("error", errs.Loggable(err)))
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process status: 2 for bad
// configuration, 3 when a peer (broker, socket, database) is unreachable at
// startup, 1 for anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errs.Is(err, errs.KindConfig):
		return 2
	case errs.IsFatal(err):
		return 3
	default:
		return 1
	}
}
