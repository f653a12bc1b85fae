// Package store keeps a history of finished extraction runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run is not in the history.
var ErrNotFound = errors.New("store: run not found")

// Run is one finished extraction.
type Run struct {
	ID         string
	ASIN       string
	Title      string
	Author     string
	State      string
	Reason     string
	Pages      int
	Error      string
	Outputs    []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// One writer at a time; runs finish concurrently when served over HTTP.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return err
	}
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		asin TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		pages INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		outputs TEXT NOT NULL DEFAULT '[]',
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
	CREATE INDEX IF NOT EXISTS idx_runs_asin ON runs(asin);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts or replaces a run.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("store: run id is required")
	}
	outputs := run.Outputs
	if outputs == nil {
		outputs = []string{}
	}
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("store: marshal outputs: %w", err)
	}

	query := `
	INSERT INTO runs (id, asin, title, author, state, reason, pages, error, outputs, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		asin = excluded.asin,
		title = excluded.title,
		author = excluded.author,
		state = excluded.state,
		reason = excluded.reason,
		pages = excluded.pages,
		error = excluded.error,
		outputs = excluded.outputs,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.ASIN,
		run.Title,
		run.Author,
		run.State,
		run.Reason,
		run.Pages,
		run.Error,
		string(outputsJSON),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: record run %s: %w", run.ID, err)
	}
	return nil
}

const selectRun = `
	SELECT id, asin, title, author, state, reason, pages, error, outputs, started_at, finished_at
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var outputsJSON string
	err := row.Scan(
		&run.ID,
		&run.ASIN,
		&run.Title,
		&run.Author,
		&run.State,
		&run.Reason,
		&run.Pages,
		&run.Error,
		&outputsJSON,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(outputsJSON), &run.Outputs); err != nil {
		return Run{}, fmt.Errorf("store: unmarshal outputs: %w", err)
	}
	return run, nil
}

// Get returns a run by id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("store: get run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recently finished runs first. A limit of zero or
// less returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRun + ` ORDER BY finished_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
