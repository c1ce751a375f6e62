package models

import "time"

// StartLayout is the timestamp format the destination table expects for the
// Start column: ISO 8601 with millisecond precision, always UTC.
const StartLayout = "2006-01-02T15:04:05.000Z"

// MeterReading is one row of the hosted "Meter Readings" table.
// JSON tags match the destination column names exactly. The table is
// keyed on (Account Number, Meter, Start); the upsert replaces on conflict.
type MeterReading struct {
	ID                 int      `json:"-"`
	Start              string   `json:"Start"`
	AccountNumber      string   `json:"Account Number"`
	Name               string   `json:"Name"`
	Meter              string   `json:"Meter"`
	Location           string   `json:"Location"`
	Address            string   `json:"Address"`
	EstimatedIndicator string   `json:"Estimated Indicator"`
	CCF                string   `json:"CCF"` // raw usage string as exported
	Amount             string   `json:"$"`   // raw cost string as exported
	UOM                string   `json:"UOM"`
	Usage              *float64 `json:"Usage"`
	Cost               *float64 `json:"Cost"`
}

// FormatStart renders a timestamp in the destination Start format.
func FormatStart(t time.Time) string {
	return t.UTC().Format(StartLayout)
}
