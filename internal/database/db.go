package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"meterscraper/pkg/models"
)

// DB wraps the local archive database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meter_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start TEXT NOT NULL,
		account_number TEXT NOT NULL,
		name TEXT,
		meter TEXT NOT NULL,
		location TEXT,
		address TEXT,
		estimated_indicator TEXT,
		ccf TEXT,
		amount TEXT,
		uom TEXT,
		usage REAL,
		cost REAL,
		created_at TEXT NOT NULL,
		uploaded INTEGER DEFAULT 0,
		published INTEGER DEFAULT 0,
		UNIQUE(account_number, meter, start)
	);
	CREATE INDEX IF NOT EXISTS idx_readings_start ON meter_readings(start);
	CREATE INDEX IF NOT EXISTS idx_readings_account ON meter_readings(account_number);
	CREATE INDEX IF NOT EXISTS idx_readings_meter ON meter_readings(meter);
	CREATE INDEX IF NOT EXISTS idx_readings_uploaded ON meter_readings(uploaded);
	CREATE INDEX IF NOT EXISTS idx_readings_published ON meter_readings(published);
	`

	_, err := db.conn.Exec(schema)
	if err != nil {
		return err
	}

	// Add columns to existing tables (migration)
	// These will fail silently if columns already exist
	db.conn.Exec(`ALTER TABLE meter_readings ADD COLUMN uploaded INTEGER DEFAULT 0`)
	db.conn.Exec(`ALTER TABLE meter_readings ADD COLUMN published INTEGER DEFAULT 0`)

	return nil
}

// UpsertReading inserts a reading, replacing any existing row with the
// same (account_number, meter, start) key. Replays of the same export
// converge to one row per key.
func (db *DB) UpsertReading(r *models.MeterReading) error {
	query := `
	INSERT INTO meter_readings
		(start, account_number, name, meter, location, address,
		 estimated_indicator, ccf, amount, uom, usage, cost, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(account_number, meter, start) DO UPDATE SET
		name = excluded.name,
		location = excluded.location,
		address = excluded.address,
		estimated_indicator = excluded.estimated_indicator,
		ccf = excluded.ccf,
		amount = excluded.amount,
		uom = excluded.uom,
		usage = excluded.usage,
		cost = excluded.cost
	`

	createdAt := time.Now().UTC().Format(time.RFC3339)

	_, err := db.conn.Exec(query,
		r.Start, r.AccountNumber, r.Name, r.Meter, r.Location, r.Address,
		r.EstimatedIndicator, r.CCF, r.Amount, r.UOM,
		nullFloat(r.Usage), nullFloat(r.Cost), createdAt)
	if err != nil {
		return fmt.Errorf("upserting reading: %w", err)
	}

	return nil
}

// UpsertBatch stores a batch of readings in input order
func (db *DB) UpsertBatch(readings []models.MeterReading) error {
	for i := range readings {
		if err := db.UpsertReading(&readings[i]); err != nil {
			return err
		}
	}
	return nil
}

const selectColumns = `
	SELECT id, start, account_number, name, meter, location, address,
	       estimated_indicator, ccf, amount, uom, usage, cost
	FROM meter_readings
`

// GetReading retrieves a reading by its composite key
func (db *DB) GetReading(account, meter, start string) (*models.MeterReading, error) {
	query := selectColumns + `WHERE account_number = ? AND meter = ? AND start = ?`

	row := db.conn.QueryRow(query, account, meter, start)
	r, err := scanReading(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying reading: %w", err)
	}
	return r, nil
}

// ListReadings retrieves readings, optionally filtered by account, ordered
// by start descending
func (db *DB) ListReadings(account string) ([]models.MeterReading, error) {
	query := selectColumns
	var args []interface{}
	if account != "" {
		query += `WHERE account_number = ? `
		args = append(args, account)
	}
	query += `ORDER BY start DESC`

	return db.queryReadings(query, args...)
}

// ListUnuploaded retrieves readings not yet sent to the hosted destination,
// ordered by start ascending so uploads replay in time order
func (db *DB) ListUnuploaded() ([]models.MeterReading, error) {
	query := selectColumns + `WHERE uploaded = 0 ORDER BY start ASC`
	return db.queryReadings(query)
}

// ListUnpublished retrieves readings not yet published to MQTT, ordered by
// start ascending
func (db *DB) ListUnpublished() ([]models.MeterReading, error) {
	query := selectColumns + `WHERE published = 0 ORDER BY start ASC`
	return db.queryReadings(query)
}

// MarkUploaded marks a reading as uploaded to the hosted destination
func (db *DB) MarkUploaded(id int) error {
	_, err := db.conn.Exec(`UPDATE meter_readings SET uploaded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking record as uploaded: %w", err)
	}
	return nil
}

// MarkPublished marks a reading as published to MQTT
func (db *DB) MarkPublished(id int) error {
	_, err := db.conn.Exec(`UPDATE meter_readings SET published = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking record as published: %w", err)
	}
	return nil
}

// MeterTotal aggregates per-meter usage and cost
type MeterTotal struct {
	Meter      string
	Readings   int
	TotalUsage float64
	TotalCost  float64
}

// MeterTotals aggregates stored readings per meter, skipping rows whose
// usage or cost never parsed
func (db *DB) MeterTotals(account string) ([]MeterTotal, error) {
	query := `
	SELECT meter, COUNT(*),
	       COALESCE(SUM(usage), 0), COALESCE(SUM(cost), 0)
	FROM meter_readings
	`
	var args []interface{}
	if account != "" {
		query += `WHERE account_number = ? `
		args = append(args, account)
	}
	query += `GROUP BY meter ORDER BY meter`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying meter totals: %w", err)
	}
	defer rows.Close()

	var totals []MeterTotal
	for rows.Next() {
		var t MeterTotal
		if err := rows.Scan(&t.Meter, &t.Readings, &t.TotalUsage, &t.TotalCost); err != nil {
			return nil, fmt.Errorf("scanning totals row: %w", err)
		}
		totals = append(totals, t)
	}

	return totals, rows.Err()
}

func (db *DB) queryReadings(query string, args ...interface{}) ([]models.MeterReading, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var results []models.MeterReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, *r)
	}

	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(row rowScanner) (*models.MeterReading, error) {
	var r models.MeterReading
	var name, location, address, estimated, ccf, amount, uom sql.NullString
	var usage, cost sql.NullFloat64

	err := row.Scan(&r.ID, &r.Start, &r.AccountNumber, &name, &r.Meter,
		&location, &address, &estimated, &ccf, &amount, &uom, &usage, &cost)
	if err != nil {
		return nil, err
	}

	r.Name = name.String
	r.Location = location.String
	r.Address = address.String
	r.EstimatedIndicator = estimated.String
	r.CCF = ccf.String
	r.Amount = amount.String
	r.UOM = uom.String
	if usage.Valid {
		v := usage.Float64
		r.Usage = &v
	}
	if cost.Valid {
		v := cost.Float64
		r.Cost = &v
	}

	return &r, nil
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
