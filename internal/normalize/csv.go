package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadRows parses a CSV export into raw rows. Headers and values are
// trimmed, empty lines are skipped, and rows with a variable number of
// fields are tolerated (short rows simply omit the trailing columns).
func ReadRows(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // header sets drift between exports
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV document")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}

		if isBlank(record) {
			continue
		}

		row := make(RawRow, len(header))
		for i, name := range header {
			if name == "" || i >= len(record) {
				continue
			}
			// Duplicate header names: first non-empty value wins, same
			// as the canonical lookup downstream
			if existing, ok := row[name]; ok && existing != "" {
				continue
			}
			row[name] = strings.TrimSpace(record[i])
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
