// Package report renders the appointment report from the normalized tables.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// Header is the first row of every report.
var Header = []string{"Пациент", "Дата рождения", "Врач", "Специализация", "Отделение", "Дата приёма", "Жалобы"}

// Filter narrows the report. Empty fields do not filter.
// AppointmentDate is a calendar day, YYYY-MM-DD.
type Filter struct {
	Department      string
	Doctor          string
	Patient         string
	AppointmentDate string
}

// Row is one appointment line of the report.
type Row struct {
	Patient         string
	BirthDate       string
	Doctor          string
	Specialization  string
	Department      string
	AppointmentDate string
	Complaints      string
}

func (r Row) values() []string {
	return []string{
		r.Patient, r.BirthDate, r.Doctor, r.Specialization,
		r.Department, r.AppointmentDate, r.Complaints,
	}
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const baseQuery = `SELECT p.full_name,
       TO_CHAR(p.birth_date, 'YYYY-MM-DD'),
       d.full_name,
       d.specialization,
       COALESCE(dep.name, ''),
       TO_CHAR(a.appointment_date, 'YYYY-MM-DD HH24:MI'),
       COALESCE(a.complaints, '')
FROM appointments a
JOIN patients p ON a.patient_id = p.id
JOIN doctors d ON a.doctor_id = d.id
LEFT JOIN departments dep ON dep.id = COALESCE(a.department_id, d.department_id)`

// buildQuery returns the report statement for f with positional arguments.
func buildQuery(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(expr, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", expr, len(args)))
	}
	add("dep.name", f.Department)
	add("d.full_name", f.Doctor)
	add("p.full_name", f.Patient)
	add("TO_CHAR(a.appointment_date, 'YYYY-MM-DD')", f.AppointmentDate)

	sql := baseQuery
	if len(conds) > 0 {
		sql += "\nWHERE " + strings.Join(conds, " AND ")
	}
	sql += "\nORDER BY a.appointment_date, a.id"
	return sql, args
}

// Query returns the report rows matching f ordered by appointment date.
func Query(ctx context.Context, db Querier, f Filter) ([]Row, error) {
	const op = "report.Query"

	sql, args := buildQuery(f)
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errs.Persistence(op, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Row])
	if err != nil {
		return nil, errs.Persistence(op, err)
	}
	return out, nil
}

// WriteCSV writes Header followed by rows.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
