package normalize

import "meterscraper/pkg/models"

// BuildBatch normalizes rows in input order and maps the survivors into
// destination rows. Rows missing a key field (account, meter, start) are
// skipped and counted; they are never upserted with a null key component.
// Duplicate composite keys are passed through unchanged -- the destination
// upsert resolves conflicts.
func BuildBatch(rows []RawRow, cfg Config) ([]models.MeterReading, int) {
	batch := make([]models.MeterReading, 0, len(rows))
	skipped := 0

	for _, row := range rows {
		reading, err := Normalize(row, cfg)
		if err != nil {
			skipped++
			continue
		}
		batch = append(batch, toMeterReading(reading))
	}

	return batch, skipped
}

// toMeterReading maps a normalized reading into the fixed external schema.
func toMeterReading(r Reading) models.MeterReading {
	return models.MeterReading{
		Start:              models.FormatStart(r.Start),
		AccountNumber:      r.AccountNumber,
		Name:               r.Name,
		Meter:              r.Meter,
		Location:           r.Location,
		Address:            r.Address,
		EstimatedIndicator: r.EstimatedIndicator,
		CCF:                r.UsageRaw,
		Amount:             r.CostRaw,
		UOM:                r.UnitOfMeasure,
		Usage:              r.Usage,
		Cost:               r.Cost,
	}
}
