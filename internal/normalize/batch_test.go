package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meterscraper/pkg/models"
)

func TestBuildBatchEndToEnd(t *testing.T) {
	rows := []RawRow{
		{
			"Account Number": " 123 ",
			"Meter":          "M1",
			"Start":          "2024-01-01T00:00:00Z",
			"CCF":            "10",
			"$":              "$5.00",
		},
	}

	batch, skipped := BuildBatch(rows, Config{})
	require.Len(t, batch, 1)
	assert.Equal(t, 0, skipped)

	got := batch[0]
	assert.Equal(t, "2024-01-01T00:00:00.000Z", got.Start)
	assert.Equal(t, "123", got.AccountNumber)
	assert.Equal(t, "M1", got.Meter)
	assert.Equal(t, "10", got.CCF)
	assert.Equal(t, "$5.00", got.Amount)
	assert.Equal(t, "CCF", got.UOM)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 10.0, *got.Usage)
	require.NotNil(t, got.Cost)
	assert.Equal(t, 5.0, *got.Cost)
}

func TestBuildBatchSkipsRowsMissingKeyFields(t *testing.T) {
	rows := []RawRow{
		{"Account Number": "123", "Start": "2024-01-01T00:00:00Z", "CCF": "1"}, // no meter
		{"Account Number": "123", "Meter": "M1", "Start": "2024-01-01T00:00:00Z", "CCF": "2"},
		{"Account Number": "123", "Meter": "M1", "Start": "garbage", "CCF": "3"}, // bad start
	}

	batch, skipped := BuildBatch(rows, Config{})
	require.Len(t, batch, 1)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, "M1", batch[0].Meter)
}

func TestBuildBatchPreservesInputOrder(t *testing.T) {
	rows := []RawRow{
		{"Account Number": "A", "Meter": "M1", "Start": "2024-01-01T00:00:00Z"},
		{"Account Number": "A", "Meter": "M2", "Start": "2024-01-01T01:00:00Z"},
		{"Account Number": "A", "Meter": "M3", "Start": "2024-01-01T02:00:00Z"},
	}

	batch, skipped := BuildBatch(rows, Config{})
	require.Len(t, batch, 3)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, "M1", batch[0].Meter)
	assert.Equal(t, "M2", batch[1].Meter)
	assert.Equal(t, "M3", batch[2].Meter)
}

func TestBuildBatchIsDeterministic(t *testing.T) {
	rows := []RawRow{
		{"Account Number": "A", "Meter": "M1", "Start": "2024-01-01T00:00:00Z", "CCF": "1", "$": "$1.00"},
		{"Meter": "M1", "Start": "2024-01-01T01:00:00Z"}, // skipped, no account
		{"Account Number": "A", "Meter": "M1", "Start": "2024-01-01T02:00:00Z", "CCF": "", "$": "bad"},
	}

	first, firstSkipped := BuildBatch(rows, Config{})
	second, secondSkipped := BuildBatch(rows, Config{})

	assert.Equal(t, firstSkipped, secondSkipped)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assertReadingEqual(t, first[i], second[i])
	}
}

func TestBuildBatchKeepsDuplicateKeys(t *testing.T) {
	// Overlapping export windows produce repeated composite keys; the
	// batch carries them all and lets the destination upsert collapse them.
	row := RawRow{"Account Number": "A", "Meter": "M1", "Start": "2024-01-01T00:00:00Z", "CCF": "7"}
	batch, skipped := BuildBatch([]RawRow{row, row, row}, Config{})

	assert.Equal(t, 0, skipped)
	assert.Len(t, batch, 3)
}

func assertReadingEqual(t *testing.T, a, b models.MeterReading) {
	t.Helper()
	assert.Equal(t, a.Start, b.Start)
	assert.Equal(t, a.AccountNumber, b.AccountNumber)
	assert.Equal(t, a.Meter, b.Meter)
	assert.Equal(t, a.CCF, b.CCF)
	assert.Equal(t, a.Amount, b.Amount)
	assert.Equal(t, a.UOM, b.UOM)
	if assert.Equal(t, a.Usage == nil, b.Usage == nil) && a.Usage != nil {
		assert.Equal(t, *a.Usage, *b.Usage)
	}
	if assert.Equal(t, a.Cost == nil, b.Cost == nil) && a.Cost != nil {
		assert.Equal(t, *a.Cost, *b.Cost)
	}
}
