// Package journal records one row per pipeline run in a local SQLite
// database. The journal is operational telemetry only: a journal write
// failure never fails the run it describes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	bucket          TEXT NOT NULL DEFAULT '',
	doc_key         TEXT NOT NULL,
	record_key      TEXT NOT NULL DEFAULT '',
	report_key      TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	chunk_total     INTEGER NOT NULL DEFAULT 0,
	chunk_degraded  INTEGER NOT NULL DEFAULT 0,
	input_tokens    INTEGER NOT NULL DEFAULT 0,
	output_tokens   INTEGER NOT NULL DEFAULT 0,
	model           TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_doc_key ON runs (doc_key, started_at);
`

// Entry is one finished (or failed) pipeline run.
type Entry struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	Bucket        string
	DocKey        string
	RecordKey     string
	ReportKey     string
	Status        string
	ChunkTotal    int
	ChunkDegraded int
	InputTokens   int
	OutputTokens  int
	Model         string
	Error         string
}

// Journal is a SQLite-backed run log.
type Journal struct {
	db *sqlx.DB
}

func Open(dbPath string) (*Journal, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one run row.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO runs
		(started_at, finished_at, bucket, doc_key, record_key, report_key,
		 status, chunk_total, chunk_degraded, input_tokens, output_tokens, model, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.FinishedAt.UTC().Format(time.RFC3339Nano),
		e.Bucket, e.DocKey, e.RecordKey, e.ReportKey,
		e.Status, e.ChunkTotal, e.ChunkDegraded,
		e.InputTokens, e.OutputTokens, e.Model, e.Error)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// History returns the runs for one document key, newest first.
func (j *Journal) History(ctx context.Context, docKey string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `SELECT started_at, finished_at, bucket, doc_key,
		record_key, report_key, status, chunk_total, chunk_degraded,
		input_tokens, output_tokens, model, error
		FROM runs WHERE doc_key = ? ORDER BY started_at DESC LIMIT ?`, docKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the latest runs across every document, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `SELECT started_at, finished_at, bucket, doc_key,
		record_key, report_key, status, chunk_total, chunk_degraded,
		input_tokens, output_tokens, model, error
		FROM runs ORDER BY run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var startedAt, finishedAt string
		if err := rows.Scan(&startedAt, &finishedAt, &e.Bucket, &e.DocKey,
			&e.RecordKey, &e.ReportKey, &e.Status, &e.ChunkTotal, &e.ChunkDegraded,
			&e.InputTokens, &e.OutputTokens, &e.Model, &e.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
