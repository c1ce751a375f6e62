// Package normalize turns raw MyMeter CSV rows into destination-shaped
// meter readings. Column names in the portal's exports vary in case,
// whitespace, and vocabulary between releases, so all lookups go through
// a single canonical mapping built per row.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawRow is one parsed CSV row: column name to string value, as exported.
type RawRow map[string]string

// Config controls field resolution. Alias lists and the unit constant
// fall back to the portal's current vocabulary when left empty.
type Config struct {
	DefaultAccount string // used when no account column is present
	DefaultMeter   string // used when no meter column is present
	UnitOfMeasure  string

	AccountColumns []string
	MeterColumns   []string
	StartColumns   []string
	UsageColumns   []string
	CostColumns    []string
}

// Built-in candidate column names, ordered by preference. Both observed
// export vocabularies are covered.
var (
	defaultAccountColumns = []string{"account number", "account"}
	defaultMeterColumns   = []string{"meter", "meter id"}
	defaultStartColumns   = []string{"start", "start date", "start time"}
	defaultUsageColumns   = []string{"ccf", "usage", "consumption"}
	defaultCostColumns    = []string{"$", "cost", "amount"}
)

// DefaultUnitOfMeasure is the UOM constant stamped on every output row.
const DefaultUnitOfMeasure = "CCF"

// Rejection reasons. A row missing any key field is skipped; an
// unparseable start timestamp counts as a missing key field.
var (
	ErrMissingAccount = errors.New("missing account number")
	ErrMissingMeter   = errors.New("missing meter id")
	ErrMissingStart   = errors.New("missing or unparseable start timestamp")
)

// Reading is a normalized meter reading. Usage and Cost are nil when the
// source column is absent or unparseable; the raw strings are kept so the
// destination row can carry them verbatim.
type Reading struct {
	AccountNumber      string
	Meter              string
	Start              time.Time
	Usage              *float64
	Cost               *float64
	UsageRaw           string
	CostRaw            string
	Name               string
	Location           string
	Address            string
	EstimatedIndicator string
	UnitOfMeasure      string
}

// Normalize resolves a single raw row against the config. It is a pure
// function; per-row failures are returned, never fatal to a batch.
func Normalize(row RawRow, cfg Config) (Reading, error) {
	lookup := canonicalLookup(row)

	account := resolve(lookup, columnsOrDefault(cfg.AccountColumns, defaultAccountColumns))
	if account == "" {
		account = strings.TrimSpace(cfg.DefaultAccount)
	}
	if account == "" {
		return Reading{}, ErrMissingAccount
	}

	meter := resolve(lookup, columnsOrDefault(cfg.MeterColumns, defaultMeterColumns))
	if meter == "" {
		meter = strings.TrimSpace(cfg.DefaultMeter)
	}
	if meter == "" {
		return Reading{}, ErrMissingMeter
	}

	startStr := resolve(lookup, columnsOrDefault(cfg.StartColumns, defaultStartColumns))
	if startStr == "" {
		return Reading{}, ErrMissingStart
	}
	start, err := ParseStart(startStr)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrMissingStart, err)
	}

	uom := cfg.UnitOfMeasure
	if uom == "" {
		uom = DefaultUnitOfMeasure
	}

	usageRaw := resolve(lookup, columnsOrDefault(cfg.UsageColumns, defaultUsageColumns))
	costRaw := resolve(lookup, columnsOrDefault(cfg.CostColumns, defaultCostColumns))

	return Reading{
		AccountNumber:      account,
		Meter:              meter,
		Start:              start,
		Usage:              parseNumber(usageRaw),
		Cost:               parseNumber(costRaw),
		UsageRaw:           usageRaw,
		CostRaw:            costRaw,
		Name:               lookup["name"],
		Location:           lookup["location"],
		Address:            lookup["address"],
		EstimatedIndicator: lookup["estimated indicator"],
		UnitOfMeasure:      uom,
	}, nil
}

// canonicalLookup lowercases and trims every column name and trims every
// value. When two raw headers collapse to the same canonical name, the
// first non-empty value wins.
func canonicalLookup(row RawRow) map[string]string {
	lookup := make(map[string]string, len(row))
	for name, value := range row {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if existing, ok := lookup[key]; ok && existing != "" {
			continue
		}
		lookup[key] = strings.TrimSpace(value)
	}
	return lookup
}

// resolve returns the first non-empty value among the candidate columns.
// Absence is a normal outcome, reported as "".
func resolve(lookup map[string]string, candidates []string) string {
	for _, name := range candidates {
		if v := lookup[strings.ToLower(strings.TrimSpace(name))]; v != "" {
			return v
		}
	}
	return ""
}

func columnsOrDefault(configured, fallback []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return fallback
}

// startLayouts are the timestamp formats observed in portal exports,
// tried in order.
var startLayouts = []string{
	time.RFC3339,
	"1/2/2006 3:04:05 PM",
	"01/02/2006 03:04:05 PM",
	"1/2/2006 15:04",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseStart parses a CSV date/time string into an absolute instant.
func ParseStart(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

// parseNumber parses a numeric-looking string, tolerating a leading
// currency symbol and thousands separators. Empty or unparseable input
// yields nil (absent), never zero or NaN.
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
