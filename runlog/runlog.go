// Package runlog keeps a SQLite ledger of solver runs: what was searched,
// how, and what came out.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoRuns is returned by Best when no successful run matches.
var ErrNoRuns = errors.New("runlog: no solved run recorded")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	puzzle      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	policy      TEXT NOT NULL,
	archive     TEXT NOT NULL,
	queue       TEXT NOT NULL,
	max_frame   INTEGER NOT NULL,
	found       INTEGER NOT NULL,
	frame       INTEGER NOT NULL,
	moves       INTEGER NOT NULL,
	nodes       INTEGER NOT NULL,
	trims       INTEGER NOT NULL,
	digest      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	elapsed_ms  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_puzzle ON runs (puzzle, found, frame);
`

// Run is one ledger row.
type Run struct {
	ID       string
	Puzzle   string
	Mode     string
	Policy   string
	Archive  string
	Queue    string
	MaxFrame uint32
	Found    bool
	Frame    uint32
	Moves    int
	Nodes    int
	Trims    uint64
	Digest   string
	Started  time.Time
	Elapsed  time.Duration
}

// Ledger is an open run database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("runlog: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record stores r, assigning an ID when it has none, and returns the ID.
func (l *Ledger) Record(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, puzzle, mode, policy, archive, queue, max_frame,
		                  found, frame, moves, nodes, trims, digest, started_at, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Puzzle, r.Mode, r.Policy, r.Archive, r.Queue, r.MaxFrame,
		r.Found, r.Frame, r.Moves, r.Nodes, int64(r.Trims), r.Digest,
		r.Started.UTC().Format(time.RFC3339Nano), r.Elapsed.Milliseconds())
	if err != nil {
		return "", fmt.Errorf("runlog: insert run: %w", err)
	}
	return r.ID, nil
}

// Best returns the solved run of puzzle with the lowest frame, earliest
// first on ties.
func (l *Ledger) Best(ctx context.Context, puzzle string) (Run, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, puzzle, mode, policy, archive, queue, max_frame, found, frame,
		       moves, nodes, trims, digest, started_at, elapsed_ms
		FROM runs
		WHERE puzzle = ? AND found = 1
		ORDER BY frame, started_at
		LIMIT 1`, puzzle)

	var (
		r       Run
		trims   int64
		started string
		elapsed int64
	)
	err := row.Scan(&r.ID, &r.Puzzle, &r.Mode, &r.Policy, &r.Archive, &r.Queue, &r.MaxFrame,
		&r.Found, &r.Frame, &r.Moves, &r.Nodes, &trims, &r.Digest, &started, &elapsed)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNoRuns, puzzle)
	}
	if err != nil {
		return Run{}, fmt.Errorf("runlog: query best: %w", err)
	}
	r.Trims = uint64(trims)
	r.Elapsed = time.Duration(elapsed) * time.Millisecond
	if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("runlog: bad timestamp %q: %w", started, err)
	}
	return r, nil
}

// Count is the number of recorded runs.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("runlog: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }
