package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeResolvesColumnsCaseInsensitive(t *testing.T) {
	exact := RawRow{
		"Account Number": "123",
		"Meter":          "M1",
		"Start":          "2024-01-01T00:00:00Z",
		"CCF":            "10",
	}
	messy := RawRow{
		"  ACCOUNT NUMBER ": " 123 ",
		"meter":             "M1",
		" Start ":           " 2024-01-01T00:00:00Z ",
		"ccf":               " 10 ",
	}

	want, err := Normalize(exact, Config{})
	require.NoError(t, err)
	got, err := Normalize(messy, Config{})
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestNormalizeRejectsMissingKeyFields(t *testing.T) {
	base := RawRow{
		"Account Number": "123",
		"Meter":          "M1",
		"Start":          "1/2/2024 3:15:00 PM",
	}

	tests := []struct {
		name    string
		drop    string
		wantErr error
	}{
		{"no account", "Account Number", ErrMissingAccount},
		{"no meter", "Meter", ErrMissingMeter},
		{"no start", "Start", ErrMissingStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := RawRow{}
			for k, v := range base {
				if k != tt.drop {
					row[k] = v
				}
			}
			_, err := Normalize(row, Config{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalizeUnparseableStartIsRejected(t *testing.T) {
	row := RawRow{
		"Account Number": "123",
		"Meter":          "M1",
		"Start":          "not a date",
	}
	_, err := Normalize(row, Config{})
	assert.ErrorIs(t, err, ErrMissingStart)
}

func TestNormalizeAppliesConfiguredFallbacks(t *testing.T) {
	row := RawRow{"Start": "2024-01-01T00:00:00Z"}
	cfg := Config{DefaultAccount: "FALLBACK-ACCT", DefaultMeter: "FALLBACK-METER"}

	reading, err := Normalize(row, cfg)
	require.NoError(t, err)

	assert.Equal(t, "FALLBACK-ACCT", reading.AccountNumber)
	assert.Equal(t, "FALLBACK-METER", reading.Meter)
}

func TestNormalizeColumnValueBeatsFallback(t *testing.T) {
	row := RawRow{
		"Account": "real-account",
		"Meter":   "real-meter",
		"Start":   "2024-01-01T00:00:00Z",
	}
	cfg := Config{DefaultAccount: "FALLBACK-ACCT", DefaultMeter: "FALLBACK-METER"}

	reading, err := Normalize(row, cfg)
	require.NoError(t, err)

	assert.Equal(t, "real-account", reading.AccountNumber)
	assert.Equal(t, "real-meter", reading.Meter)
}

func TestNormalizeAlternateHeaderVocabulary(t *testing.T) {
	// The other observed producer path: "account"/"meter id" headers.
	row := RawRow{
		"Account":    "A-9",
		"Meter Id":   "M-9",
		"Start Date": "01/02/2024",
		"Usage":      "3.5",
	}

	reading, err := Normalize(row, Config{})
	require.NoError(t, err)

	assert.Equal(t, "A-9", reading.AccountNumber)
	assert.Equal(t, "M-9", reading.Meter)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), reading.Start)
	require.NotNil(t, reading.Usage)
	assert.Equal(t, 3.5, *reading.Usage)
}

func TestNormalizeCostStripsCurrencySymbol(t *testing.T) {
	for _, raw := range []string{"12.5", "$12.50"} {
		row := RawRow{
			"Account Number": "123",
			"Meter":          "M1",
			"Start":          "2024-01-01T00:00:00Z",
			"$":              raw,
		}
		reading, err := Normalize(row, Config{})
		require.NoError(t, err)
		require.NotNil(t, reading.Cost, "cost %q", raw)
		assert.Equal(t, 12.5, *reading.Cost, "cost %q", raw)
	}
}

func TestNormalizeEmptyUsageIsAbsent(t *testing.T) {
	row := RawRow{
		"Account Number": "123",
		"Meter":          "M1",
		"Start":          "2024-01-01T00:00:00Z",
		"CCF":            "",
	}
	reading, err := Normalize(row, Config{})
	require.NoError(t, err)
	assert.Nil(t, reading.Usage)
}

func TestNormalizeZeroUsageIsValid(t *testing.T) {
	row := RawRow{
		"Account Number": "123",
		"Meter":          "M1",
		"Start":          "2024-01-01T00:00:00Z",
		"CCF":            "0",
	}
	reading, err := Normalize(row, Config{})
	require.NoError(t, err)
	require.NotNil(t, reading.Usage)
	assert.Equal(t, 0.0, *reading.Usage)
}

func TestNormalizeUnparseableNumericIsAbsentNotFatal(t *testing.T) {
	row := RawRow{
		"Account Number": "123",
		"Meter":          "M1",
		"Start":          "2024-01-01T00:00:00Z",
		"CCF":            "ten",
		"$":              "NaN",
	}
	reading, err := Normalize(row, Config{})
	require.NoError(t, err)
	assert.Nil(t, reading.Usage)
	assert.Nil(t, reading.Cost)
}

func TestNormalizeCopiesDescriptiveFields(t *testing.T) {
	row := RawRow{
		"Account Number":      "123",
		"Meter":               "M1",
		"Start":               "2024-01-01T00:00:00Z",
		"Name":                "Main Building",
		"Location":            "4417",
		"Address":             "700 Minnesota Ave",
		"Estimated Indicator": "E",
	}
	reading, err := Normalize(row, Config{})
	require.NoError(t, err)

	assert.Equal(t, "Main Building", reading.Name)
	assert.Equal(t, "4417", reading.Location)
	assert.Equal(t, "700 Minnesota Ave", reading.Address)
	assert.Equal(t, "E", reading.EstimatedIndicator)
	assert.Equal(t, "CCF", reading.UnitOfMeasure)
}

func TestNormalizeConfiguredAliases(t *testing.T) {
	row := RawRow{
		"Acct":      "123",
		"Device":    "M1",
		"Read Time": "2024-01-01T00:00:00Z",
	}
	cfg := Config{
		AccountColumns: []string{"acct"},
		MeterColumns:   []string{"device"},
		StartColumns:   []string{"read time"},
	}
	reading, err := Normalize(row, cfg)
	require.NoError(t, err)

	assert.Equal(t, "123", reading.AccountNumber)
	assert.Equal(t, "M1", reading.Meter)
}

func TestParseStartFormats(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01T00:00:00Z", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"1/2/2024 3:15:00 PM", time.Date(2024, 1, 2, 15, 15, 0, 0, time.UTC)},
		{"01/02/2024 03:15:00 AM", time.Date(2024, 1, 2, 3, 15, 0, 0, time.UTC)},
		{"1/2/2024", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02 13:00:00", time.Date(2024, 1, 2, 13, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseStart(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.True(t, got.Equal(tt.want), "input %q: got %v want %v", tt.in, got, tt.want)
	}

	_, err := ParseStart("02-31-banana")
	assert.Error(t, err)
}

func TestCanonicalLookupFirstNonEmptyWins(t *testing.T) {
	// Two raw headers that collapse to the same canonical name; the
	// non-empty value must survive regardless of map iteration order.
	row := RawRow{
		"Meter ":  "",
		" METER ": "M1",
	}
	lookup := canonicalLookup(row)
	assert.Equal(t, "M1", lookup["meter"])
}
