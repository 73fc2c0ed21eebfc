package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/record"
)

// Samples are the demonstration records written by Seed.
var Samples = []record.FlatRecord{
	{
		PatientFullName: "Иванов Иван Иванович", PatientBirthDate: "1985-04-12",
		DoctorFullName: "Сидоров Сергей Петрович", DoctorSpecialization: "Терапевт",
		DepartmentName: "Терапевтическое отделение", AppointmentDate: "2025-09-10 10:00",
		Complaints: "Кашель, температура", DiagnosisName: "ОРВИ",
	},
	{
		PatientFullName: "Смирнов Иван Иванович", PatientBirthDate: "1992-07-21",
		DoctorFullName: "Кузнецова Елена Васильевна", DoctorSpecialization: "Хирург",
		DepartmentName: "Хирургическое отделение", AppointmentDate: "2025-09-10 12:30",
		Complaints: "Боль в правом боку", DiagnosisName: "Аппендицит",
	},
	{
		PatientFullName: "Иванов Иван Иванович", PatientBirthDate: "1985-04-12",
		DoctorFullName: "Сидоров Сергей Петрович", DoctorSpecialization: "Терапевт",
		DepartmentName: "Терапевтическое отделение", AppointmentDate: "2025-09-15 11:00",
		Complaints: "Плановый осмотр", DiagnosisName: "Здоров",
	},
	{
		PatientFullName: "Васильев Евгений Семёнович", PatientBirthDate: "1978-11-30",
		DoctorFullName: "Орлова Анна Михайловна", DoctorSpecialization: "Кардиолог",
		DepartmentName: "Кардиологическое отделение", AppointmentDate: "2025-09-11 09:00",
		Complaints: "Боль в груди", DiagnosisName: "Стенокардия",
	},
	{
		PatientFullName: "Петрова Анна Игоревна", PatientBirthDate: "1992-07-21",
		DoctorFullName: "Кузнецова Елена Васильевна", DoctorSpecialization: "Хирург",
		DepartmentName: "Хирургическое отделение", AppointmentDate: "2025-09-17 15:00",
		Complaints: "Послеоперационный осмотр", DiagnosisName: "Восстановление",
	},
}

// OpenWritable opens (creating if needed) a SQLite file for seeding.
func OpenWritable(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, errs.Config("source.OpenWritable", err)
	}
	return db, nil
}

// Seed recreates table and fills it with records (Samples when nil).
func Seed(ctx context.Context, db *sql.DB, table string, records []record.FlatRecord) error {
	quoted, err := quoteIdent(table)
	if err != nil {
		return errs.Config("source.Seed", err)
	}
	if records == nil {
		records = Samples
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(err, "begin")
	}
	defer tx.Rollback()

	defs := make([]string, len(record.Columns))
	for i, c := range record.Columns {
		defs[i] = c + " TEXT"
	}
	stmts := []string{
		"DROP TABLE IF EXISTS " + quoted,
		fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(defs, ", ")),
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return errs.Wrapf(err, "prepare %s", table)
		}
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(record.Columns)), ", ")
	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoted, strings.Join(record.Columns, ", "), marks))
	if err != nil {
		return errs.Wrap(err, "prepare insert")
	}
	defer insert.Close()

	for _, r := range records {
		if _, err := insert.ExecContext(ctx, r.Values()...); err != nil {
			return errs.Wrap(err, "insert record")
		}
	}

	return tx.Commit()
}
