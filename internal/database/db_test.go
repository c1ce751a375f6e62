package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meterscraper/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func startAt(hour int) time.Time {
	return time.Date(2024, 1, 1, hour, 0, 0, 0, time.UTC)
}

func sampleReading() models.MeterReading {
	usage := 10.0
	cost := 5.0
	return models.MeterReading{
		Start:         "2024-01-01T00:00:00.000Z",
		AccountNumber: "123",
		Meter:         "M1",
		CCF:           "10",
		Amount:        "$5.00",
		UOM:           "CCF",
		Usage:         &usage,
		Cost:          &cost,
	}
}

func TestUpsertReadingIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	r := sampleReading()
	require.NoError(t, db.UpsertReading(&r))
	require.NoError(t, db.UpsertReading(&r))

	readings, err := db.ListReadings("")
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "123", readings[0].AccountNumber)
	require.NotNil(t, readings[0].Usage)
	assert.Equal(t, 10.0, *readings[0].Usage)
}

func TestUpsertReadingReplacesConflictingRow(t *testing.T) {
	db := openTestDB(t)

	r := sampleReading()
	require.NoError(t, db.UpsertReading(&r))

	updated := sampleReading()
	newUsage := 12.0
	updated.Usage = &newUsage
	updated.CCF = "12"
	require.NoError(t, db.UpsertReading(&updated))

	got, err := db.GetReading("123", "M1", "2024-01-01T00:00:00.000Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "12", got.CCF)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 12.0, *got.Usage)
}

func TestUpsertReadingKeepsNilNumerics(t *testing.T) {
	db := openTestDB(t)

	r := sampleReading()
	r.Usage = nil
	r.Cost = nil
	require.NoError(t, db.UpsertReading(&r))

	got, err := db.GetReading("123", "M1", "2024-01-01T00:00:00.000Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Usage)
	assert.Nil(t, got.Cost)
}

func TestGetReadingMissingReturnsNil(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetReading("nope", "M1", "2024-01-01T00:00:00.000Z")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkUploadedAndPublished(t *testing.T) {
	db := openTestDB(t)

	r := sampleReading()
	require.NoError(t, db.UpsertReading(&r))

	pending, err := db.ListUnuploaded()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, db.MarkUploaded(pending[0].ID))
	pending, err = db.ListUnuploaded()
	require.NoError(t, err)
	assert.Empty(t, pending)

	unpublished, err := db.ListUnpublished()
	require.NoError(t, err)
	require.Len(t, unpublished, 1)

	require.NoError(t, db.MarkPublished(unpublished[0].ID))
	unpublished, err = db.ListUnpublished()
	require.NoError(t, err)
	assert.Empty(t, unpublished)
}

func TestListReadingsFiltersByAccount(t *testing.T) {
	db := openTestDB(t)

	first := sampleReading()
	require.NoError(t, db.UpsertReading(&first))

	second := sampleReading()
	second.AccountNumber = "456"
	second.Meter = "M2"
	require.NoError(t, db.UpsertReading(&second))

	readings, err := db.ListReadings("456")
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "M2", readings[0].Meter)

	all, err := db.ListReadings("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMeterTotals(t *testing.T) {
	db := openTestDB(t)

	for i, ccf := range []float64{1, 2, 3} {
		r := sampleReading()
		r.Start = models.FormatStart(startAt(i))
		r.Usage = &ccf
		r.Cost = nil
		require.NoError(t, db.UpsertReading(&r))
	}

	totals, err := db.MeterTotals("123")
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "M1", totals[0].Meter)
	assert.Equal(t, 3, totals[0].Readings)
	assert.Equal(t, 6.0, totals[0].TotalUsage)
	assert.Equal(t, 0.0, totals[0].TotalCost)
}
