package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildQueryWithoutFilter(t *testing.T) {
	sql, args := buildQuery(Filter{})
	assert.NotContains(t, sql, "WHERE")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY a.appointment_date, a.id"))
	assert.Empty(t, args)
}

func TestBuildQueryNumbersPlaceholders(t *testing.T) {
	sql, args := buildQuery(Filter{
		Doctor:          "Сидоров Сергей Петрович",
		AppointmentDate: " 2025-09-10 ",
	})
	assert.Contains(t, sql, "WHERE d.full_name = $1 AND TO_CHAR(a.appointment_date, 'YYYY-MM-DD') = $2")
	assert.Equal(t, []any{"Сидоров Сергей Петрович", "2025-09-10"}, args)
}

func TestBuildQueryAllFilters(t *testing.T) {
	_, args := buildQuery(Filter{
		Department:      "Терапевтическое отделение",
		Doctor:          "Сидоров Сергей Петрович",
		Patient:         "Иванов Иван Иванович",
		AppointmentDate: "2025-09-11",
	})
	assert.Len(t, args, 4)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Row{{
		Patient:         "Иванов Иван Иванович",
		BirthDate:       "1985-04-12",
		Doctor:          "Сидоров Сергей Петрович",
		Specialization:  "Терапевт",
		Department:      "Терапевтическое отделение",
		AppointmentDate: "2025-09-10 10:00",
		Complaints:      "Кашель, температура",
	}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Equal(t, `Иванов Иван Иванович,1985-04-12,Сидоров Сергей Петрович,Терапевт,Терапевтическое отделение,2025-09-10 10:00,"Кашель, температура"`, lines[1])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, strings.Join(Header, ",")+"\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	rows := []Row{
		{
			Patient:         "Иванов Иван Иванович",
			BirthDate:       "1985-04-12",
			Doctor:          "Сидоров Сергей Петрович",
			Specialization:  "Терапевт",
			Department:      "Терапевтическое отделение",
			AppointmentDate: "2025-09-10 10:00",
			Complaints:      "Кашель, температура",
		},
		{
			Patient:         "Петрова Анна Игоревна",
			BirthDate:       "1990-01-05",
			Doctor:          "Кузнецова Елена Васильевна",
			Specialization:  "Хирург",
			AppointmentDate: "2025-09-11 09:00",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Header, got[0])
	assert.Equal(t, rows[0].values(), got[1])
	// Trailing empty cells are trimmed by GetRows.
	assert.Equal(t, []string{"Петрова Анна Игоревна", "1990-01-05", "Кузнецова Елена Васильевна", "Хирург", "", "2025-09-11 09:00"}, got[2])
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Equal(t, [][]string{Header}, got)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"xlsx": FormatXLSX, " CSV ": FormatCSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestWriteCSVFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, nil))
	assert.Equal(t, strings.Join(Header, ",")+"\n", buf.String())
}
