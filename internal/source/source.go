// Package source reads denormalized records from the exporter's SQLite file.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent validates and quotes a table name.
func quoteIdent(name string) (string, error) {
	if !identRegex.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return `"` + name + `"`, nil
}

// Reader streams rows from a SQLite database.
type Reader struct {
	db *sql.DB
}

// Open opens an existing SQLite file.
func Open(path string) (*Reader, error) {
	const op = "source.Open"
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Configf(op, "source database %s not found (run `medsync seed` first)", path)
		}
		return nil, errs.Config(op, err)
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, errs.Config(op, err)
	}
	return &Reader{db: db}, nil
}

// NewReader wraps an already open database.
func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Each calls fn for every row of table, keyed by column name. Rows are read
// lazily; iteration stops at the first error from fn.
func (r *Reader) Each(ctx context.Context, table string, fn func(row map[string]any) error) error {
	const op = "source.Each"

	quoted, err := quoteIdent(table)
	if err != nil {
		return errs.Config(op, err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT * FROM "+quoted)
	if err != nil {
		return errs.Wrapf(err, "query %s", table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return errs.Wrap(err, "read columns")
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return errs.Wrapf(err, "scan %s", table)
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
