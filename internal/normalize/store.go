package normalize

import "context"

// Column is a named value bound into a statement.
type Column struct {
	Name  string
	Value any
}

// Entity describes one resolve-or-create call.
//
// Keys form the natural key and must match a unique constraint on Table.
// Extras are inserted with a new row. On a key collision the existing row
// is kept and its id returned, after applying Overwrite (set to the incoming
// value) and Fill (set to the incoming value only when it is not NULL).
type Entity struct {
	Table     string
	Keys      []Column
	Extras    []Column
	Overwrite []string
	Fill      []string
}

// Link describes an association row that is created at most once.
type Link struct {
	Table   string
	Columns []Column
}

// Tx is the unit of work handed to Store.InTx callbacks.
type Tx interface {
	// ResolveOrCreate returns the id of the row identified by e.Keys,
	// inserting it first when absent. It is atomic with respect to
	// concurrent callers resolving the same key.
	ResolveOrCreate(ctx context.Context, e Entity) (int64, error)

	// Link inserts the association; an existing identical row is a no-op.
	Link(ctx context.Context, l Link) error
}

// Store runs fn in one transaction: committed when fn returns nil, rolled
// back completely otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
