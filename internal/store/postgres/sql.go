package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Koteika1156/PSU-DB-LAB/internal/normalize"
)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

func names(cols []normalize.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = ident(c.Name)
	}
	return out
}

// upsertSQL renders a resolve-or-create statement:
//
//	INSERT INTO t (k1, k2, x1) VALUES ($1, $2, $3)
//	ON CONFLICT (k1, k2) DO UPDATE SET ...
//	RETURNING id
//
// DO UPDATE (rather than DO NOTHING) makes RETURNING yield the id of the
// existing row. Without refresh columns the first key is set to itself.
func upsertSQL(e normalize.Entity) (string, []any, error) {
	if e.Table == "" || len(e.Keys) == 0 {
		return "", nil, fmt.Errorf("entity %q has no key columns", e.Table)
	}

	table := ident(e.Table)
	cols := append(append([]normalize.Column{}, e.Keys...), e.Extras...)

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = c.Value
	}

	var set []string
	for _, c := range e.Overwrite {
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
	}
	for _, c := range e.Fill {
		set = append(set, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", ident(c), ident(c), table, ident(c)))
	}
	if len(set) == 0 {
		k := ident(e.Keys[0].Name)
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", k, k))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		table,
		strings.Join(names(cols), ", "),
		placeholders(1, len(cols)),
		strings.Join(names(e.Keys), ", "),
		strings.Join(set, ", "),
		ident("id"),
	)
	return sql, args, nil
}

// linkSQL renders an insert that ignores an existing identical row.
func linkSQL(l normalize.Link) (string, []any, error) {
	if l.Table == "" || len(l.Columns) == 0 {
		return "", nil, fmt.Errorf("link %q has no columns", l.Table)
	}

	args := make([]any, len(l.Columns))
	for i, c := range l.Columns {
		args[i] = c.Value
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		ident(l.Table),
		strings.Join(names(l.Columns), ", "),
		placeholders(1, len(l.Columns)),
	)
	return sql, args, nil
}
