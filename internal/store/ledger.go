package store

import (
	"database/sql"
	"fmt"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// --- Run operations ---

// InsertRun records a run and returns its ID.
func (s *Store) InsertRun(r *Run) (int64, error) {
	return insertRun(s.db, r)
}

func insertRun(db execer, r *Run) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO runs (started_at, input_root, output_root, map_digest, files, symbols)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.StartedAt, r.InputRoot, r.OutputRoot, r.MapDigest, r.Files, r.Symbols,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

const runColumns = "id, started_at, input_root, output_root, map_digest, files, symbols"

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	err := row.Scan(&r.ID, &r.StartedAt, &r.InputRoot, &r.OutputRoot, &r.MapDigest, &r.Files, &r.Symbols)
	return r, err
}

// Runs returns every recorded run, newest first.
func (s *Store) Runs() ([]*Run, error) {
	rows, err := s.db.Query("SELECT " + runColumns + " FROM runs ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run, or nil when the ledger is empty.
func (s *Store) LatestRun() (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT " + runColumns + " FROM runs ORDER BY id DESC LIMIT 1"))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// RunByID returns the run with the given ID, or nil if there is none.
func (s *Store) RunByID(id int64) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by id: %w", err)
	}
	return r, nil
}

// --- Mapping operations ---

// InsertMappings stores the rename map of a run in one transaction.
func (s *Store) InsertMappings(runID int64, mappings []Mapping) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("insert mappings: begin: %w", err)
	}
	defer tx.Rollback()
	if err := insertMappings(tx, runID, mappings); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMappings(tx *sql.Tx, runID int64, mappings []Mapping) error {
	stmt, err := tx.Prepare("INSERT INTO mappings (run_id, original, generated, likely_local) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("insert mappings: prepare: %w", err)
	}
	defer stmt.Close()
	for _, m := range mappings {
		if _, err := stmt.Exec(runID, m.Original, m.Generated, m.LikelyLocal); err != nil {
			return fmt.Errorf("insert mapping %q: %w", m.Original, err)
		}
	}
	return nil
}

// Mappings returns the rename map of a run ordered by original name.
func (s *Store) Mappings(runID int64) ([]*Mapping, error) {
	rows, err := s.db.Query(
		"SELECT run_id, original, generated, likely_local FROM mappings WHERE run_id = ? ORDER BY original", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("mappings: %w", err)
	}
	defer rows.Close()
	var out []*Mapping
	for rows.Next() {
		m := &Mapping{}
		if err := rows.Scan(&m.RunID, &m.Original, &m.Generated, &m.LikelyLocal); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Reveal maps generated names of a run back to their originals. Names the
// run did not generate are absent from the result.
func (s *Store) Reveal(runID int64, generated ...string) (map[string]string, error) {
	out := make(map[string]string, len(generated))
	if len(generated) == 0 {
		return out, nil
	}
	args := append([]any{runID}, stringsToArgs(generated)...)
	rows, err := s.db.Query(
		"SELECT generated, original FROM mappings WHERE run_id = ? AND generated IN ("+placeholderList(len(generated))+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("reveal: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var gen, orig string
		if err := rows.Scan(&gen, &orig); err != nil {
			return nil, fmt.Errorf("scan reveal: %w", err)
		}
		out[gen] = orig
	}
	return out, rows.Err()
}

// --- File operations ---

func (s *Store) InsertFileResult(f *FileResult) error {
	return insertFileResult(s.db, f)
}

func insertFileResult(db execer, f *FileResult) error {
	_, err := db.Exec(
		`INSERT INTO files (run_id, path, source_hash, output_hash, changed,
			symbols_renamed, likely_local_rewrites, dynamic_name_rewrites, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, f.Path, f.SourceHash, nullString(f.OutputHash), f.Changed,
		f.SymbolsRenamed, f.LikelyLocalRewrites, f.DynamicNameRewrites, nullString(f.Error),
	)
	if err != nil {
		return fmt.Errorf("insert file result %q: %w", f.Path, err)
	}
	return nil
}

// FileResults returns the per-file results of a run ordered by path.
func (s *Store) FileResults(runID int64) ([]*FileResult, error) {
	rows, err := s.db.Query(
		`SELECT run_id, path, source_hash, output_hash, changed, symbols_renamed,
			likely_local_rewrites, dynamic_name_rewrites, error
		 FROM files WHERE run_id = ? ORDER BY path`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("file results: %w", err)
	}
	defer rows.Close()
	var out []*FileResult
	for rows.Next() {
		f := &FileResult{}
		var outputHash, errText sql.NullString
		if err := rows.Scan(&f.RunID, &f.Path, &f.SourceHash, &outputHash, &f.Changed, &f.SymbolsRenamed,
			&f.LikelyLocalRewrites, &f.DynamicNameRewrites, &errText); err != nil {
			return nil, fmt.Errorf("scan file result: %w", err)
		}
		f.OutputHash = outputHash.String
		f.Error = errText.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// CommitRun records a run with its mappings and file results in a single
// transaction and returns the new run ID.
func (s *Store) CommitRun(r *Run, mappings []Mapping, files []FileResult) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("commit run: begin: %w", err)
	}
	defer tx.Rollback()

	id, err := insertRun(tx, r)
	if err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	if err := insertMappings(tx, id, mappings); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	for i := range files {
		files[i].RunID = id
		if err := insertFileResult(tx, &files[i]); err != nil {
			return 0, fmt.Errorf("commit run: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}
