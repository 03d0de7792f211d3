// Package store is the SQLite rename ledger. Each obfuscation run records
// its rename map and per-file results so generated names can be traced
// back to the originals later.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the ledger's three tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id              INTEGER PRIMARY KEY,
  started_at      TIMESTAMP NOT NULL,
  input_root      TEXT NOT NULL,
  output_root     TEXT NOT NULL,
  map_digest      TEXT NOT NULL,
  files           INTEGER NOT NULL DEFAULT 0,
  symbols         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS mappings (
  run_id          INTEGER NOT NULL REFERENCES runs(id),
  original        TEXT NOT NULL,
  generated       TEXT NOT NULL,
  likely_local    BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (run_id, original)
);

CREATE TABLE IF NOT EXISTS files (
  run_id                INTEGER NOT NULL REFERENCES runs(id),
  path                  TEXT NOT NULL,
  source_hash           TEXT NOT NULL,
  output_hash           TEXT,
  changed               BOOLEAN NOT NULL DEFAULT FALSE,
  symbols_renamed       INTEGER NOT NULL DEFAULT 0,
  likely_local_rewrites INTEGER NOT NULL DEFAULT 0,
  dynamic_name_rewrites INTEGER NOT NULL DEFAULT 0,
  error                 TEXT,
  PRIMARY KEY (run_id, path)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_generated ON mappings(run_id, generated);
CREATE INDEX IF NOT EXISTS idx_files_changed ON files(run_id, changed);
`
