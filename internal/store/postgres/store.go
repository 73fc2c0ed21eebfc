package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/normalize"
)

// Store runs normalization transactions on a connection pool. Each
// transaction checks out its own connection and returns it when done, so
// concurrent socket workers never share a session. Duplicate prevention
// under races rests on the schema's unique constraints.
type Store struct {
	pool *pgxpool.Pool
}

var _ normalize.Store = (*Store)(nil)

// New returns a store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn in a transaction, committing on success and rolling back on
// any error or panic.
func (s *Store) InTx(ctx context.Context, fn func(tx normalize.Tx) error) error {
	const op = "postgres.InTx"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Persistence(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.Persistence(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx DBTX
}

func (t *pgTx) ResolveOrCreate(ctx context.Context, e normalize.Entity) (int64, error) {
	const op = "postgres.ResolveOrCreate"

	sql, args, err := upsertSQL(e)
	if err != nil {
		return 0, errs.Persistence(op, err)
	}

	var id int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, errs.Persistence(op, fmt.Errorf("%s: %w", e.Table, err))
	}
	return id, nil
}

func (t *pgTx) Link(ctx context.Context, l normalize.Link) error {
	const op = "postgres.Link"

	sql, args, err := linkSQL(l)
	if err != nil {
		return errs.Persistence(op, err)
	}
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return errs.Persistence(op, fmt.Errorf("%s: %w", l.Table, err))
	}
	return nil
}

var _ DBTX = (pgx.Tx)(nil)
