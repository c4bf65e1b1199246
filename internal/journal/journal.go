// Package journal records sync runs in sqlite so past convergence
// results stay inspectable.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	run_id      TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	destination TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	needs_copy  INTEGER NOT NULL,
	conflicting INTEGER NOT NULL,
	unchanged   INTEGER NOT NULL,
	copied      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	converged   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
`

// Run is one recorded sync run.
type Run struct {
	RunID       string
	Source      string
	Destination string
	StartedAt   time.Time
	Duration    time.Duration
	NeedsCopy   int
	Conflicting int
	Unchanged   int
	Copied      int
	Failed      int
	Converged   bool
}

// Journal is the sqlite-backed run log.
type Journal struct {
	db *sql.DB
}

// Open opens the journal at path, creates dir if needed, runs migrations.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record inserts one run and returns its generated ID.
func (j *Journal) Record(r Run) (string, error) {
	id := uuid.NewString()
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO sync_runs
			(run_id, source, destination, started_at, duration_ms,
			 needs_copy, conflicting, unchanged, copied, failed, converged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, r.Source, r.Destination, r.StartedAt.Format(time.RFC3339Nano),
		r.Duration.Milliseconds(), r.NeedsCopy, r.Conflicting, r.Unchanged,
		r.Copied, r.Failed, boolToInt(r.Converged))
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// Recent returns the latest n runs, newest first.
func (j *Journal) Recent(n int) ([]Run, error) {
	rows, err := j.db.Query(`
		SELECT run_id, source, destination, started_at, duration_ms,
		       needs_copy, conflicting, unchanged, copied, failed, converged
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var durationMs int64
		var converged int
		if err := rows.Scan(&r.RunID, &r.Source, &r.Destination, &started,
			&durationMs, &r.NeedsCopy, &r.Conflicting, &r.Unchanged,
			&r.Copied, &r.Failed, &converged); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.Converged = converged != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
