// Package record defines the flat clinical record exchanged between the
// exporter and importer, and the conversions used to store its fields.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlatRecord is one denormalized row of the source table.
// DepartmentName and DiagnosisName may be empty.
type FlatRecord struct {
	PatientFullName      string `json:"patient_full_name"`
	PatientBirthDate     string `json:"patient_birth_date"`
	DoctorFullName       string `json:"doctor_full_name"`
	DoctorSpecialization string `json:"doctor_specialization"`
	DepartmentName       string `json:"department_name"`
	AppointmentDate      string `json:"appointment_date"`
	Complaints           string `json:"complaints"`
	DiagnosisName        string `json:"diagnosis_name"`
}

// Columns lists the source columns in wire order.
var Columns = []string{
	"patient_full_name",
	"patient_birth_date",
	"doctor_full_name",
	"doctor_specialization",
	"department_name",
	"appointment_date",
	"complaints",
	"diagnosis_name",
}

// Values returns the fields in Columns order.
func (r FlatRecord) Values() []any {
	return []any{
		r.PatientFullName,
		r.PatientBirthDate,
		r.DoctorFullName,
		r.DoctorSpecialization,
		r.DepartmentName,
		r.AppointmentDate,
		r.Complaints,
		r.DiagnosisName,
	}
}

// UnmarshalJSON accepts any JSON object. Known keys holding non-string
// scalars (numbers, booleans) are kept in their textual form; null is empty.
func (r *FlatRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record is not a JSON object")
	}

	fields := map[string]*string{
		"patient_full_name":     &r.PatientFullName,
		"patient_birth_date":    &r.PatientBirthDate,
		"doctor_full_name":      &r.DoctorFullName,
		"doctor_specialization": &r.DoctorSpecialization,
		"department_name":       &r.DepartmentName,
		"appointment_date":      &r.AppointmentDate,
		"complaints":            &r.Complaints,
		"diagnosis_name":        &r.DiagnosisName,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		*dst = s
	}
	return nil
}

func scalarString(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var anyVal any
	if err := json.Unmarshal(v, &anyVal); err != nil {
		return "", err
	}
	switch x := anyVal.(type) {
	case nil:
		return "", nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("unsupported value %s", string(v))
	}
}

// FromRow builds a record from a source row keyed by column name.
func FromRow(row map[string]any) FlatRecord {
	get := func(key string) string {
		switch v := row[key].(type) {
		case nil:
			return ""
		case string:
			return v
		case []byte:
			return string(v)
		case time.Time:
			return v.Format("2006-01-02 15:04:05")
		default:
			return fmt.Sprint(v)
		}
	}
	return FlatRecord{
		PatientFullName:      get("patient_full_name"),
		PatientBirthDate:     get("patient_birth_date"),
		DoctorFullName:       get("doctor_full_name"),
		DoctorSpecialization: get("doctor_specialization"),
		DepartmentName:       get("department_name"),
		AppointmentDate:      get("appointment_date"),
		Complaints:           get("complaints"),
		DiagnosisName:        get("diagnosis_name"),
	}
}

// Normalized returns a copy with surrounding whitespace trimmed from every
// field, so natural keys compare equal regardless of padding.
func (r FlatRecord) Normalized() FlatRecord {
	return FlatRecord{
		PatientFullName:      strings.TrimSpace(r.PatientFullName),
		PatientBirthDate:     strings.TrimSpace(r.PatientBirthDate),
		DoctorFullName:       strings.TrimSpace(r.DoctorFullName),
		DoctorSpecialization: strings.TrimSpace(r.DoctorSpecialization),
		DepartmentName:       strings.TrimSpace(r.DepartmentName),
		AppointmentDate:      strings.TrimSpace(r.AppointmentDate),
		Complaints:           strings.TrimSpace(r.Complaints),
		DiagnosisName:        strings.TrimSpace(r.DiagnosisName),
	}
}
