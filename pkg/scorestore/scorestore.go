// Package scorestore persists ranking runs in a local SQLite database.
package scorestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// ErrRunNotFound is returned for an unknown run id or an empty store.
var ErrRunNotFound = errors.New("run not found")

// Kinds of score tables.
const (
	KindNodes = "nodes"
	KindItems = "items"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    label      TEXT NOT NULL DEFAULT '',
    iterations INTEGER NOT NULL DEFAULT 0,
    lost_flow  REAL NOT NULL DEFAULT 0,
    entries    INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    key    TEXT NOT NULL,
    score  REAL NOT NULL,
    PRIMARY KEY (run_id, key)
);

CREATE INDEX IF NOT EXISTS scores_by_rank ON scores (run_id, score DESC, key);
`

// Run describes one stored score table.
type Run struct {
	ID         string
	Kind       string
	Label      string
	Iterations int
	LostFlow   float64
	Entries    int
	CreatedAt  time.Time
}

// Entry is one scored key.
type Entry struct {
	Key   string
	Score float64
}

// Store is a SQLite-backed score store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("scorestore: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("scorestore: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("scorestore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores scores as a new run. run.ID and run.CreatedAt are assigned
// when empty; run.Entries is set from scores.
func (s *Store) Save(ctx context.Context, run Run, scores map[string]float64) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Entries = len(scores)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("scorestore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const insertRun = `
		INSERT INTO runs (id, kind, label, iterations, lost_flow, entries, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertRun,
		run.ID, run.Kind, run.Label, run.Iterations, run.LostFlow, run.Entries, run.CreatedAt,
	); err != nil {
		return Run{}, fmt.Errorf("scorestore: insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO scores (run_id, key, score) VALUES (?, ?, ?)")
	if err != nil {
		return Run{}, fmt.Errorf("scorestore: prepare scores: %w", err)
	}
	defer stmt.Close()
	for key, score := range scores {
		if _, err := stmt.ExecContext(ctx, run.ID, key, score); err != nil {
			return Run{}, fmt.Errorf("scorestore: insert score %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("scorestore: commit run %s: %w", run.ID, err)
	}
	return run, nil
}

// Run returns the metadata of run id.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, label, iterations, lost_flow, entries, created_at
		FROM runs WHERE id = ?`, id)
	return scanRun(row, id)
}

// Latest returns the newest run of kind, or of any kind when kind is empty.
func (s *Store) Latest(ctx context.Context, kind string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, label, iterations, lost_flow, entries, created_at
		FROM runs WHERE ? = '' OR kind = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, kind, kind)
	return scanRun(row, "latest "+kind)
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, label, iterations, lost_flow, entries, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("scorestore: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.Label, &r.Iterations, &r.LostFlow, &r.Entries, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scorestore: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Load returns every score of run id.
func (s *Store) Load(ctx context.Context, id string) (map[string]float64, error) {
	if _, err := s.Run(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT key, score FROM scores WHERE run_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("scorestore: load run %s: %w", id, err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Score); err != nil {
			return nil, fmt.Errorf("scorestore: scan score: %w", err)
		}
		scores[e.Key] = e.Score
	}
	return scores, rows.Err()
}

// Top returns the k best entries of run id, ties by key. A negative k
// returns all of them.
func (s *Store) Top(ctx context.Context, id string, k int) ([]Entry, error) {
	if _, err := s.Run(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, score FROM scores WHERE run_id = ?
		ORDER BY score DESC, key ASC LIMIT ?`, id, k)
	if err != nil {
		return nil, fmt.Errorf("scorestore: top of run %s: %w", id, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Score); err != nil {
			return nil, fmt.Errorf("scorestore: scan score: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanRun(row *sql.Row, what string) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Kind, &r.Label, &r.Iterations, &r.LostFlow, &r.Entries, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, what)
	}
	if err != nil {
		return Run{}, fmt.Errorf("scorestore: read run %s: %w", what, err)
	}
	return r, nil
}
