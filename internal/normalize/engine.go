// Package normalize resolves the entities of a flat record and links them.
//
// Every entity is addressed by its natural key through one primitive,
// Tx.ResolveOrCreate, so replaying a record any number of times, from any
// transport, yields the same rows. A record is applied in one transaction;
// any failure rolls back everything created for it.
package normalize

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/record"
)

// Result holds the ids resolved for one record. DepartmentID and
// DiagnosisID are zero when the record named none.
type Result struct {
	PatientID     int64
	DoctorID      int64
	DepartmentID  int64
	DiagnosisID   int64
	AppointmentID int64
}

// Engine applies flat records to a Store.
type Engine struct {
	store Store
}

// NewEngine returns an engine writing to store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// fields parsed and checked before a transaction is opened.
type prepared struct {
	rec         record.FlatRecord
	birthDate   pgtype.Date
	appointment pgtype.Timestamp
}

func prepare(r record.FlatRecord) (prepared, error) {
	const op = "normalize.Apply"
	r = r.Normalized()

	for _, f := range []struct{ name, value string }{
		{"patient_full_name", r.PatientFullName},
		{"patient_birth_date", r.PatientBirthDate},
		{"doctor_full_name", r.DoctorFullName},
		{"appointment_date", r.AppointmentDate},
	} {
		if f.value == "" {
			return prepared{}, errs.Protocolf(op, "record is missing %s", f.name)
		}
	}

	birth := record.ToPgDate(r.PatientBirthDate)
	if !birth.Valid {
		return prepared{}, errs.Protocolf(op, "patient_birth_date: unrecognized date %q", r.PatientBirthDate)
	}
	at := record.ToPgTimestamp(r.AppointmentDate)
	if !at.Valid {
		return prepared{}, errs.Protocolf(op, "appointment_date: unrecognized timestamp %q", r.AppointmentDate)
	}
	return prepared{rec: r, birthDate: birth, appointment: at}, nil
}

// Apply resolves department, patient, doctor, diagnosis and appointment for
// r, then links appointment and diagnosis. Complaints of an existing
// appointment are replaced; its department is replaced when r names one.
func (e *Engine) Apply(ctx context.Context, r record.FlatRecord) (Result, error) {
	p, err := prepare(r)
	if err != nil {
		return Result{}, err
	}
	rec := p.rec

	var res Result
	err = e.store.InTx(ctx, func(tx Tx) error {
		res = Result{}

		var deptRef pgtype.Int8
		if rec.DepartmentName != "" {
			id, err := tx.ResolveOrCreate(ctx, department(rec.DepartmentName))
			if err != nil {
				return errs.Wrap(err, "resolve department")
			}
			res.DepartmentID = id
			deptRef = pgtype.Int8{Int64: id, Valid: true}
		}

		id, err := tx.ResolveOrCreate(ctx, patient(rec.PatientFullName, p.birthDate))
		if err != nil {
			return errs.Wrap(err, "resolve patient")
		}
		res.PatientID = id

		id, err = tx.ResolveOrCreate(ctx, doctor(rec.DoctorFullName, rec.DoctorSpecialization, deptRef))
		if err != nil {
			return errs.Wrap(err, "resolve doctor")
		}
		res.DoctorID = id

		if rec.DiagnosisName != "" {
			id, err = tx.ResolveOrCreate(ctx, diagnosis(rec.DiagnosisName))
			if err != nil {
				return errs.Wrap(err, "resolve diagnosis")
			}
			res.DiagnosisID = id
		}

		id, err = tx.ResolveOrCreate(ctx, appointment(res.PatientID, res.DoctorID, p.appointment,
			deptRef, record.ToPgText(rec.Complaints)))
		if err != nil {
			return errs.Wrap(err, "resolve appointment")
		}
		res.AppointmentID = id

		if res.DiagnosisID != 0 {
			if err := tx.Link(ctx, appointmentDiagnosis(res.AppointmentID, res.DiagnosisID)); err != nil {
				return errs.Wrap(err, "link diagnosis")
			}
		}
		return nil
	})
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.Persistence("normalize.Apply", err)
		}
		return Result{}, err
	}
	return res, nil
}
