// Package store uploads meter readings to the hosted PostgreSQL
// destination. The destination table is keyed on (account_number, meter,
// start) so re-uploading an overlapping export window converges instead
// of duplicating rows.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"meterscraper/pkg/models"
)

// Store handles upserting readings into PostgreSQL
type Store struct {
	db    *sql.DB
	table string
}

// New opens a connection to the hosted destination and pings it
func New(dsn, table string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Store{db: db, table: table}, nil
}

// CreateTable creates the destination table if it doesn't exist, with indexes
func (s *Store) CreateTable() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id                  SERIAL PRIMARY KEY,
		start               TEXT NOT NULL,
		account_number      TEXT NOT NULL,
		name                TEXT,
		meter               TEXT NOT NULL,
		location            TEXT,
		address             TEXT,
		estimated_indicator TEXT,
		ccf                 TEXT,
		amount              TEXT,
		uom                 TEXT,
		usage               DOUBLE PRECISION,
		cost                DOUBLE PRECISION,
		updated_at          TIMESTAMP NOT NULL DEFAULT NOW(),
		UNIQUE(account_number, meter, start)
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_start   ON %[1]s (start);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_account ON %[1]s (account_number);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_meter   ON %[1]s (meter);
	`, s.table)

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("creating destination table: %w", err)
	}
	return nil
}

// UpsertBatch uploads readings in a single transaction. Conflicting keys
// are updated in place, so the call is safe to repeat.
func (s *Store) UpsertBatch(readings []models.MeterReading) (err error) {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s
			(start, account_number, name, meter, location, address,
			 estimated_indicator, ccf, amount, uom, usage, cost, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (account_number, meter, start) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			address = EXCLUDED.address,
			estimated_indicator = EXCLUDED.estimated_indicator,
			ccf = EXCLUDED.ccf,
			amount = EXCLUDED.amount,
			uom = EXCLUDED.uom,
			usage = EXCLUDED.usage,
			cost = EXCLUDED.cost,
			updated_at = NOW()
	`, s.table))
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for i := range readings {
		r := &readings[i]
		_, err = stmt.Exec(
			r.Start,
			r.AccountNumber,
			r.Name,
			r.Meter,
			r.Location,
			r.Address,
			r.EstimatedIndicator,
			r.CCF,
			r.Amount,
			r.UOM,
			nullFloat(r.Usage),
			nullFloat(r.Cost),
		)
		if err != nil {
			return fmt.Errorf("upserting reading %s/%s/%s: %w", r.AccountNumber, r.Meter, r.Start, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
