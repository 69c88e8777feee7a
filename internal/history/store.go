package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/restitch/internal/errdef"
)

const defaultMaxEntries = 200

// Entry is one recorded import run.
type Entry struct {
	ID           string
	RunAt        time.Time
	Root         string
	FilesScanned int
	Requests     int
	Groups       int
	Warnings     int
	Errors       int
	FidelityPct  float64
	HasFidelity  bool
	Elapsed      time.Duration
}

type Store struct {
	db         *sql.DB
	maxEntries int
}

// Open creates (or opens) the run-history database at path and ensures the
// schema exists.
func Open(path string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errdef.Wrap(errdef.CodeHistory, err, "create history directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "open history database %s", path)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS import_runs (
	id            TEXT PRIMARY KEY,
	run_at        INTEGER NOT NULL,
	root          TEXT NOT NULL,
	files_scanned INTEGER NOT NULL,
	requests      INTEGER NOT NULL,
	groups_count  INTEGER NOT NULL,
	warnings      INTEGER NOT NULL,
	errors        INTEGER NOT NULL,
	fidelity_pct  REAL,
	elapsed_ns    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_import_runs_run_at ON import_runs(run_at DESC);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.CodeHistory, err, "initialize history schema")
	}

	return &Store{db: db, maxEntries: maxEntries}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records a run and prunes the table back to the entry limit.
func (s *Store) Append(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RunAt.IsZero() {
		entry.RunAt = time.Now()
	}

	var fidelity interface{}
	if entry.HasFidelity {
		fidelity = entry.FidelityPct
	}

	_, err := s.db.Exec(
		`INSERT INTO import_runs
			(id, run_at, root, files_scanned, requests, groups_count, warnings, errors, fidelity_pct, elapsed_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.RunAt.UnixNano(),
		entry.Root,
		entry.FilesScanned,
		entry.Requests,
		entry.Groups,
		entry.Warnings,
		entry.Errors,
		fidelity,
		int64(entry.Elapsed),
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "append import run")
	}

	_, err = s.db.Exec(
		`DELETE FROM import_runs WHERE id NOT IN (
			SELECT id FROM import_runs ORDER BY run_at DESC LIMIT ?
		)`,
		s.maxEntries,
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "prune import runs")
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}
	rows, err := s.db.Query(
		`SELECT id, run_at, root, files_scanned, requests, groups_count, warnings, errors, fidelity_pct, elapsed_ns
		 FROM import_runs ORDER BY run_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "list import runs")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var runAt, elapsed int64
		var fidelity sql.NullFloat64
		if err := rows.Scan(
			&entry.ID, &runAt, &entry.Root, &entry.FilesScanned, &entry.Requests,
			&entry.Groups, &entry.Warnings, &entry.Errors, &fidelity, &elapsed,
		); err != nil {
			return nil, errdef.Wrap(errdef.CodeHistory, err, "scan import run")
		}
		entry.RunAt = time.Unix(0, runAt)
		entry.Elapsed = time.Duration(elapsed)
		if fidelity.Valid {
			entry.FidelityPct = fidelity.Float64
			entry.HasFidelity = true
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "iterate import runs")
	}
	return entries, nil
}
