package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store is the durable side of the connector: scan jobs, their checkpoints
// and the extracted deal rows, all in one sqlite database. Deal rows hang
// off their job with ON DELETE CASCADE so removing a job removes its data.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	// between concurrent run loops
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, for health checks.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func createSchema(db *sql.DB) error {
	jobTable := `
	CREATE TABLE IF NOT EXISTS scan_jobs (
		id TEXT PRIMARY KEY,
		scan_id TEXT NOT NULL UNIQUE,
		tenant_id TEXT,
		status TEXT NOT NULL,
		total_items INTEGER NOT NULL DEFAULT 0,
		processed_items INTEGER NOT NULL DEFAULT 0,
		failed_items INTEGER NOT NULL DEFAULT 0,
		config TEXT NOT NULL,
		error_message TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		updated_at DATETIME NOT NULL
	);
	`
	checkpointTable := `
	CREATE TABLE IF NOT EXISTS scan_checkpoints (
		scan_id TEXT PRIMARY KEY REFERENCES scan_jobs(scan_id) ON DELETE CASCADE,
		cursor TEXT NOT NULL DEFAULT '',
		last_batch_index INTEGER NOT NULL,
		total_so_far INTEGER NOT NULL,
		processed_so_far INTEGER NOT NULL,
		failed_so_far INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	dealTable := `
	CREATE TABLE IF NOT EXISTS deal_records (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES scan_jobs(id) ON DELETE CASCADE,
		deal_id TEXT,
		deal_name TEXT,
		amount REAL,
		deal_stage TEXT,
		close_date DATETIME,
		pipeline TEXT,
		deal_type TEXT,
		hubspot_owner_id TEXT,
		deal_stage_probability REAL,
		description TEXT,
		analytics_source TEXT,
		num_associated_contacts INTEGER NOT NULL DEFAULT 0,
		priority TEXT,
		next_step TEXT,
		forecast_amount REAL,
		forecast_probability REAL,
		hubspot_created_at DATETIME,
		hubspot_updated_at DATETIME,
		archived INTEGER NOT NULL DEFAULT 0,
		raw_properties TEXT NOT NULL,
		extracted_at DATETIME NOT NULL,
		scan_id TEXT NOT NULL,
		tenant_id TEXT,
		page_number INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_deal_records_job ON deal_records(job_id);
	`

	for _, stmt := range []string{jobTable, checkpointTable, dealTable} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}
