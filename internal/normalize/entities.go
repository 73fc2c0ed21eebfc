package normalize

import "github.com/jackc/pgx/v5/pgtype"

// Table names of the normalized schema.
const (
	TablePatients             = "patients"
	TableDoctors              = "doctors"
	TableDepartments          = "departments"
	TableDiagnoses            = "diagnoses"
	TableAppointments         = "appointments"
	TableAppointmentDiagnoses = "appointment_diagnoses"
)

func department(name string) Entity {
	return Entity{
		Table: TableDepartments,
		Keys:  []Column{{"name", name}},
	}
}

func patient(fullName string, birthDate pgtype.Date) Entity {
	return Entity{
		Table: TablePatients,
		Keys: []Column{
			{"full_name", fullName},
			{"birth_date", birthDate},
		},
		Overwrite: []string{"full_name"},
	}
}

func doctor(fullName, specialization string, departmentID pgtype.Int8) Entity {
	return Entity{
		Table: TableDoctors,
		Keys: []Column{
			{"full_name", fullName},
			{"specialization", specialization},
		},
		Extras:    []Column{{"department_id", departmentID}},
		Overwrite: []string{"full_name"},
		Fill:      []string{"department_id"},
	}
}

func diagnosis(name string) Entity {
	return Entity{
		Table: TableDiagnoses,
		Keys:  []Column{{"name", name}},
	}
}

func appointment(patientID, doctorID int64, at pgtype.Timestamp, departmentID pgtype.Int8, complaints pgtype.Text) Entity {
	return Entity{
		Table: TableAppointments,
		Keys: []Column{
			{"patient_id", patientID},
			{"doctor_id", doctorID},
			{"appointment_date", at},
		},
		Extras: []Column{
			{"department_id", departmentID},
			{"complaints", complaints},
		},
		Overwrite: []string{"complaints"},
		Fill:      []string{"department_id"},
	}
}

func appointmentDiagnosis(appointmentID, diagnosisID int64) Link {
	return Link{
		Table: TableAppointmentDiagnoses,
		Columns: []Column{
			{"appointment_id", appointmentID},
			{"diagnosis_id", diagnosisID},
		},
	}
}
