package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/record"
)

func seeded(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hospital_denormalized.db")

	db, err := OpenWritable(path)
	require.NoError(t, err)
	require.NoError(t, Seed(context.Background(), db, "hospital_records", nil))
	require.NoError(t, db.Close())
	return path
}

func TestSeedAndEach(t *testing.T) {
	r, err := Open(seeded(t))
	require.NoError(t, err)
	defer r.Close()

	var got []record.FlatRecord
	err = r.Each(context.Background(), "hospital_records", func(row map[string]any) error {
		got = append(got, record.FromRow(row))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Samples, got)
}

func TestSeedIsRepeatable(t *testing.T) {
	path := seeded(t)

	db, err := OpenWritable(path)
	require.NoError(t, err)
	require.NoError(t, Seed(context.Background(), db, "hospital_records", Samples[:2]))
	require.NoError(t, db.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	n := 0
	require.NoError(t, r.Each(context.Background(), "hospital_records", func(map[string]any) error {
		n++
		return nil
	}))
	assert.Equal(t, 2, n)
}

func TestEachStopsOnCallbackError(t *testing.T) {
	r, err := Open(seeded(t))
	require.NoError(t, err)
	defer r.Close()

	stop := errors.New("stop")
	n := 0
	err = r.Each(context.Background(), "hospital_records", func(map[string]any) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestEachRejectsUnsafeTableName(t *testing.T) {
	r, err := Open(seeded(t))
	require.NoError(t, err)
	defer r.Close()

	err = r.Each(context.Background(), "hospital_records; DROP TABLE x", func(map[string]any) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
}
