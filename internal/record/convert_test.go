package record

import (
	"encoding/json"
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseTimestamp Tests
// ----------------------------------------------------------------------------

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "minutes with space",
			input: "2025-09-10 10:00",
			want:  time.Date(2025, 9, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "iso with T",
			input: "2025-09-10T12:30:15",
			want:  time.Date(2025, 9, 10, 12, 30, 15, 0, time.UTC),
		},
		{
			name:  "seconds with space",
			input: "2025-09-11 09:00:05",
			want:  time.Date(2025, 9, 11, 9, 0, 5, 0, time.UTC),
		},
		{
			name:  "date only",
			input: "2025-09-17",
			want:  time.Date(2025, 9, 17, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 with offset keeps wall time",
			input: "2025-09-10T10:00:00+03:00",
			want:  time.Date(2025, 9, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 utc",
			input: "2025-09-10T10:00:00Z",
			want:  time.Date(2025, 9, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "surrounding whitespace",
			input: "  2025-09-10 10:00 ",
			want:  time.Date(2025, 9, 10, 10, 0, 0, 0, time.UTC),
		},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "next tuesday", wantErr: true},
		{name: "day first", input: "10.09.2025 10:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTimestamp(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToPg* Tests
// ----------------------------------------------------------------------------

func TestToPgDate(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		wantDate  string
	}{
		{"1985-04-12", true, "1985-04-12"},
		{"12.04.1985", true, "1985-04-12"},
		{"1985-04-12 00:00:00", true, "1985-04-12"},
		{"", false, ""},
		{"April", false, ""},
	}

	for _, tt := range tests {
		got := ToPgDate(tt.input)
		if got.Valid != tt.wantValid {
			t.Errorf("ToPgDate(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			continue
		}
		if tt.wantValid && got.Time.Format("2006-01-02") != tt.wantDate {
			t.Errorf("ToPgDate(%q) = %s, want %s", tt.input, got.Time.Format("2006-01-02"), tt.wantDate)
		}
	}
}

func TestToPgText(t *testing.T) {
	if got := ToPgText("   "); got.Valid {
		t.Errorf("ToPgText(blank).Valid = true, want false")
	}
	if got := ToPgText(" ОРВИ "); !got.Valid || got.String != "ОРВИ" {
		t.Errorf("ToPgText() = %+v, want trimmed valid text", got)
	}
}

func TestParseTimestamp_OffsetDoesNotChangeKey(t *testing.T) {
	zoned, err := ParseTimestamp("2025-09-10T10:00:00+03:00")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := ParseTimestamp("2025-09-10 10:00")
	if err != nil {
		t.Fatal(err)
	}
	if !zoned.Equal(plain) || zoned.Location() != time.UTC {
		t.Errorf("zoned = %v, plain = %v, want the same UTC wall time", zoned, plain)
	}
}

func TestToPgTimestamp(t *testing.T) {
	if got := ToPgTimestamp("2025-09-10 10:00"); !got.Valid || got.Time.Hour() != 10 {
		t.Errorf("ToPgTimestamp() = %+v, want valid 10:00", got)
	}
	if got := ToPgTimestamp("soon"); got.Valid {
		t.Errorf("ToPgTimestamp(soon).Valid = true, want false")
	}
}

// ----------------------------------------------------------------------------
// FlatRecord Tests
// ----------------------------------------------------------------------------

func TestFlatRecordUnmarshal_TolerantOfShape(t *testing.T) {
	input := `{"patient_full_name":"Петрова Анна Игоревна","patient_birth_date":null,
		"complaints":42,"extra":"ignored","diagnosis_name":true}`

	var r FlatRecord
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if r.PatientFullName != "Петрова Анна Игоревна" {
		t.Errorf("PatientFullName = %q", r.PatientFullName)
	}
	if r.PatientBirthDate != "" {
		t.Errorf("PatientBirthDate = %q, want empty for null", r.PatientBirthDate)
	}
	if r.Complaints != "42" {
		t.Errorf("Complaints = %q, want %q", r.Complaints, "42")
	}
	if r.DiagnosisName != "true" {
		t.Errorf("DiagnosisName = %q, want %q", r.DiagnosisName, "true")
	}
}

func TestFlatRecordUnmarshal_RejectsNonObjects(t *testing.T) {
	for _, input := range []string{`[1,2]`, `null`, `"text"`, `{"complaints":{"nested":1}}`} {
		var r FlatRecord
		if err := json.Unmarshal([]byte(input), &r); err == nil {
			t.Errorf("Unmarshal(%s) expected error", input)
		}
	}
}

func TestFromRow(t *testing.T) {
	row := map[string]any{
		"id":                    int64(3),
		"patient_full_name":     "Смирнов Иван Иванович",
		"patient_birth_date":    []byte("1992-07-21"),
		"doctor_full_name":      "Кузнецова Елена Васильевна",
		"doctor_specialization": "Хирург",
		"department_name":       nil,
		"appointment_date":      "2025-09-10 12:30",
	}

	r := FromRow(row)
	if r.PatientBirthDate != "1992-07-21" {
		t.Errorf("PatientBirthDate = %q", r.PatientBirthDate)
	}
	if r.DepartmentName != "" {
		t.Errorf("DepartmentName = %q, want empty", r.DepartmentName)
	}
	if r.AppointmentDate != "2025-09-10 12:30" {
		t.Errorf("AppointmentDate = %q", r.AppointmentDate)
	}
}

func TestValuesFollowColumns(t *testing.T) {
	r := FlatRecord{
		PatientFullName:      "a",
		PatientBirthDate:     "b",
		DoctorFullName:       "c",
		DoctorSpecialization: "d",
		DepartmentName:       "e",
		AppointmentDate:      "f",
		Complaints:           "g",
		DiagnosisName:        "h",
	}
	vals := r.Values()
	if len(vals) != len(Columns) {
		t.Fatalf("len(Values) = %d, want %d", len(vals), len(Columns))
	}
	// FromRow keyed by Columns must give back the same record.
	row := make(map[string]any, len(Columns))
	for i, c := range Columns {
		row[c] = vals[i]
	}
	if got := FromRow(row); got != r {
		t.Errorf("FromRow(Values) = %+v, want %+v", got, r)
	}
}
