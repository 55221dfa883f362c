// Package journal keeps a local record of pipeline runs: which stage ran,
// when, and how many items succeeded or failed. It backs the status API's
// run history and survives process restarts when given a file path.
package journal

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	stage       TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	note        TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage, started_at);
`

// Journal records pipeline run outcomes in a local SQLite database.
type Journal struct {
	db *sql.DB
}

// Run is one recorded pipeline pass.
type Run struct {
	ID        int64
	Stage     string
	StartedAt time.Time
	Finished  time.Time
	Succeeded int
	Failed    int
	Note      string
}

// Open opens the journal at the given path. Empty path means an
// in-memory database.
func Open(path string) (*Journal, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record writes one completed run.
func (j *Journal) Record(r Run) error {
	_, err := j.db.Exec(`
		INSERT INTO runs (stage, started_at, finished_at, succeeded, failed, note)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Stage,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.Finished.UTC().Format(time.RFC3339),
		r.Succeeded, r.Failed, r.Note)
	return err
}

// LastRuns returns the n most recent runs, newest first.
func (j *Journal) LastRuns(n int) ([]Run, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := j.db.Query(`
		SELECT id, stage, started_at, finished_at, succeeded, failed, COALESCE(note, '')
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Stage, &started, &finished, &r.Succeeded, &r.Failed, &r.Note); err != nil {
			continue
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.Finished, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
