package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	stream       INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	engine       TEXT NOT NULL,
	prompt_chars INTEGER NOT NULL,
	output_chars INTEGER NOT NULL,
	chunks       INTEGER NOT NULL,
	waited_ns    INTEGER NOT NULL,
	elapsed_ns   INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);
`

const selectColumns = `id, kind, stream, outcome, engine, prompt_chars, output_chars, chunks, waited_ns, elapsed_ns, error, created_at`

// SQLiteRecorder persists records in a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

var _ Recorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway in-memory database.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would be a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteRecorder{db: db}, nil
}

// Put implements Recorder.
func (s *SQLiteRecorder) Put(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Stream, r.Outcome, r.Engine,
		r.PromptChars, r.OutputChars, r.Chunks,
		int64(r.Waited), int64(r.Elapsed), r.Error, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", r.ID, err)
	}
	return nil
}

// Get implements Recorder.
func (s *SQLiteRecorder) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sessions WHERE id = ?`, id)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("querying record %s: %w", id, err)
	}
	return r, nil
}

// List implements Recorder.
func (s *SQLiteRecorder) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + selectColumns + ` FROM sessions`)
	if opts.Outcome != "" {
		query.WriteString(` WHERE outcome = ?`)
		args = append(args, opts.Outcome)
	}
	query.WriteString(` ORDER BY created_at DESC, id DESC`)
	if opts.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats implements Recorder.
func (s *SQLiteRecorder) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM sessions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning counts: %w", err)
		}
		stats.add(outcome, n)
	}
	return stats, rows.Err()
}

// Close implements Recorder.
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r               Record
		waited, elapsed int64
		created         int64
	)
	if err := row.Scan(
		&r.ID, &r.Kind, &r.Stream, &r.Outcome, &r.Engine,
		&r.PromptChars, &r.OutputChars, &r.Chunks,
		&waited, &elapsed, &r.Error, &created,
	); err != nil {
		return nil, err
	}
	r.Waited = time.Duration(waited)
	r.Elapsed = time.Duration(elapsed)
	r.CreatedAt = time.Unix(0, created)
	return &r, nil
}
