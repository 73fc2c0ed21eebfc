// Package memstore is an in-process normalize.Store.
//
// Tables are maps of rows with a unique index over the natural key columns,
// mirroring the constraints of the Postgres schema. Transactions are
// serialized by a store-wide lock and rolled back with an undo log. It backs
// the engine tests and `import --store memory` dry runs.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Koteika1156/PSU-DB-LAB/internal/normalize"
)

// ErrInjected is returned by operations on a table set with FailOn.
var ErrInjected = errors.New("memstore: injected failure")

type table struct {
	nextID int64
	rows   map[int64]map[string]any
	index  map[string]int64 // natural key -> id
	links  map[string]map[string]any
}

func newTable() *table {
	return &table{
		rows:  make(map[int64]map[string]any),
		index: make(map[string]int64),
		links: make(map[string]map[string]any),
	}
}

// Store holds all tables.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
	fail   map[string]error
}

var _ normalize.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string]*table),
		fail:   make(map[string]error),
	}
}

// FailOn makes every later operation on tableName fail with err
// (ErrInjected when err is nil). Passing an empty table clears all failures.
func (s *Store) FailOn(tableName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tableName == "" {
		s.fail = make(map[string]error)
		return
	}
	if err == nil {
		err = ErrInjected
	}
	s.fail[tableName] = err
}

// Ping always succeeds; it lets the store back the health endpoint.
func (s *Store) Ping(context.Context) error { return nil }

// InTx runs fn under the store lock and undoes its writes if it fails.
func (s *Store) InTx(ctx context.Context, fn func(tx normalize.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Count returns the number of rows in tableName.
func (s *Store) Count(tableName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return 0
	}
	return len(t.rows) + len(t.links)
}

// Row returns a copy of the row with the given id, or nil.
func (s *Store) Row(tableName string, id int64) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	row, ok := t.rows[id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

type memTx struct {
	s    *Store
	undo []func()
}

func (tx *memTx) table(name string) *table {
	t, ok := tx.s.tables[name]
	if !ok {
		t = newTable()
		tx.s.tables[name] = t
		tx.undo = append(tx.undo, func() { delete(tx.s.tables, name) })
	}
	return t
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memTx) ResolveOrCreate(ctx context.Context, e normalize.Entity) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := tx.s.fail[e.Table]; err != nil {
		return 0, fmt.Errorf("resolve %s: %w", e.Table, err)
	}
	if len(e.Keys) == 0 {
		return 0, fmt.Errorf("resolve %s: no key columns", e.Table)
	}

	t := tx.table(e.Table)
	key := canonical(e.Keys)

	if id, ok := t.index[key]; ok {
		row := t.rows[id]
		incoming := values(e)
		for _, col := range e.Overwrite {
			tx.set(row, col, incoming[col])
		}
		for _, col := range e.Fill {
			if v := incoming[col]; !isNull(v) {
				tx.set(row, col, v)
			}
		}
		return id, nil
	}

	t.nextID++
	id := t.nextID
	row := values(e)
	row["id"] = id
	t.rows[id] = row
	t.index[key] = id
	tx.undo = append(tx.undo, func() {
		delete(t.rows, id)
		delete(t.index, key)
		t.nextID--
	})
	return id, nil
}

func (tx *memTx) set(row map[string]any, col string, v any) {
	prev, had := row[col]
	row[col] = v
	tx.undo = append(tx.undo, func() {
		if had {
			row[col] = prev
		} else {
			delete(row, col)
		}
	})
}

func (tx *memTx) Link(ctx context.Context, l normalize.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.s.fail[l.Table]; err != nil {
		return fmt.Errorf("link %s: %w", l.Table, err)
	}

	t := tx.table(l.Table)
	key := canonical(l.Columns)
	if _, ok := t.links[key]; ok {
		return nil
	}
	row := make(map[string]any, len(l.Columns))
	for _, c := range l.Columns {
		row[c.Name] = c.Value
	}
	t.links[key] = row
	tx.undo = append(tx.undo, func() { delete(t.links, key) })
	return nil
}

func values(e normalize.Entity) map[string]any {
	row := make(map[string]any, len(e.Keys)+len(e.Extras)+1)
	for _, c := range e.Keys {
		row[c.Name] = c.Value
	}
	for _, c := range e.Extras {
		row[c.Name] = c.Value
	}
	return row
}

// canonical renders columns as a stable index key.
func canonical(cols []normalize.Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Name + "=" + render(c.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, "\x1f")
}

func render(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00"
	case string:
		return "s:" + x
	case int64:
		return fmt.Sprintf("i:%d", x)
	case int:
		return fmt.Sprintf("i:%d", x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case pgtype.Text:
		if !x.Valid {
			return "\x00"
		}
		return "s:" + x.String
	case pgtype.Int8:
		if !x.Valid {
			return "\x00"
		}
		return fmt.Sprintf("i:%d", x.Int64)
	case pgtype.Date:
		if !x.Valid {
			return "\x00"
		}
		return "d:" + x.Time.Format("2006-01-02")
	case pgtype.Timestamp:
		if !x.Valid {
			return "\x00"
		}
		return "t:" + x.Time.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

func isNull(v any) bool {
	return render(v) == "\x00"
}
