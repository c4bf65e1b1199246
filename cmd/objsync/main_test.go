package main

import (
	"bytes"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objsync/objsync/internal/journal"
	"github.com/objsync/objsync/internal/syncer"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRecordRun_WritesReport(t *testing.T) {
	buf := captureLog(t)
	path := filepath.Join(t.TempDir(), "journal.db")

	recordRun(path, &syncer.Report{
		Source:      "bkt/src/",
		Destination: "bkt/dst/",
		Copied:      3,
		Converged:   true,
	})
	assert.Empty(t, buf.String())

	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Copied)
	assert.True(t, runs[0].Converged)
}

func TestRecordRun_LogsUnopenableJournal(t *testing.T) {
	buf := captureLog(t)

	// parent of the journal path is a regular file, so the directory
	// cannot be created
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	recordRun(filepath.Join(blocker, "journal.db"), &syncer.Report{})
	assert.Contains(t, buf.String(), "journal unavailable")
}

func TestRecordRun_LogsFailedInsert(t *testing.T) {
	buf := captureLog(t)
	path := filepath.Join(t.TempDir(), "journal.db")

	// pre-create a sync_runs table with a truncated schema: Open's
	// CREATE TABLE IF NOT EXISTS passes, the insert does not
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE sync_runs (run_id TEXT PRIMARY KEY, started_at TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	recordRun(path, &syncer.Report{Source: "bkt/src/", Destination: "bkt/dst/"})
	assert.Contains(t, buf.String(), "journal write failed")
}
