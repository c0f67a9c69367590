package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	// A second run against the same schema is a no-op.
	require.NoError(t, db.migrateUp())
}

func TestOptionRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	v, err := db.Option("detection_distance")
	require.NoError(t, err)
	assert.Equal(t, "", v, "unset option reads as empty")

	require.NoError(t, db.SetOption("detection_distance", "1000"))
	v, err = db.Option("detection_distance")
	require.NoError(t, err)
	assert.Equal(t, "1000", v)

	// Overwrite.
	require.NoError(t, db.SetOption("detection_distance", "1200"))
	v, err = db.Option("detection_distance")
	require.NoError(t, err)
	assert.Equal(t, "1200", v)
}

func TestInsertAndListLaps(t *testing.T) {
	db := setupTestDB(t)

	lap := &Lap{Pilot: "ada", LapNumber: 1, TimestampMS: 1700000000000}
	require.NoError(t, db.InsertLap(lap))
	assert.NotEmpty(t, lap.ID, "insert assigns an ID")

	require.NoError(t, db.InsertLap(&Lap{Pilot: "grace", LapNumber: 1, TimestampMS: 1700000005000}))

	laps, err := db.ListLaps()
	require.NoError(t, err)
	require.Len(t, laps, 2)
	assert.Equal(t, "ada", laps[0].Pilot)
	assert.False(t, laps[0].Deleted)
	assert.False(t, laps[0].CreatedAt.IsZero())
}

func TestMarkLapInvalid(t *testing.T) {
	db := setupTestDB(t)

	lap := &Lap{Pilot: "ada", LapNumber: 1, TimestampMS: 1700000000000}
	require.NoError(t, db.InsertLap(lap))

	require.NoError(t, db.MarkLapInvalid(lap.ID, "no detection within 0.50s"))

	laps, err := db.ListLaps()
	require.NoError(t, err)
	require.Len(t, laps, 1)
	assert.True(t, laps[0].Deleted)
	require.NotNil(t, laps[0].DeleteReason)
	assert.Equal(t, "no detection within 0.50s", *laps[0].DeleteReason)
}

func TestMarkLapInvalidUnknownID(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, db.MarkLapInvalid("no-such-lap", "reason"))
}
