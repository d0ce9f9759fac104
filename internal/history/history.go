// Package history keeps a queryable record of every dispatched folder across
// runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smartbots/docdispatch/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	folder      TEXT NOT NULL,
	path        TEXT NOT NULL,
	recipient   TEXT NOT NULL,
	country     TEXT NOT NULL,
	emails_to   TEXT NOT NULL,
	attachments TEXT NOT NULL,
	success     INTEGER NOT NULL,
	description TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(run_id);
CREATE INDEX IF NOT EXISTS idx_executions_folder ON executions(folder);
`

// Entry is one stored execution.
type Entry struct {
	ID          int64
	RunID       string
	Folder      string
	Path        string
	Recipient   string
	Country     string
	EmailsTo    string
	Attachments string
	Success     bool
	Description string
	CreatedAt   time.Time
}

// Store is a SQLite-backed execution history. It implements report.Sink.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for history database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite supports only one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Publish stores rec.
func (s *Store) Publish(ctx context.Context, rec report.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions
			(run_id, folder, path, recipient, country, emails_to, attachments, success, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Folder,
		rec.Path,
		rec.Case.Recipient,
		rec.Case.Country,
		strings.Join(rec.Case.To, "; "),
		strings.Join(rec.Attachments, ", "),
		rec.Success,
		rec.Description,
		rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

// Query filters Recent and ForFolder results.
type Query struct {
	// Folder restricts results to one folder name when set.
	Folder string

	// FailedOnly keeps only unsuccessful executions.
	FailedOnly bool

	// Limit caps the number of entries. Zero means 50.
	Limit int
}

// Recent returns the newest executions first.
func (s *Store) Recent(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	var (
		where []string
		args  []any
	)
	if q.Folder != "" {
		where = append(where, "folder = ?")
		args = append(args, q.Folder)
	}
	if q.FailedOnly {
		where = append(where, "success = 0")
	}

	query := `SELECT id, run_id, folder, path, recipient, country, emails_to, attachments, success, description, created_at
		FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Folder, &e.Path, &e.Recipient, &e.Country,
			&e.EmailsTo, &e.Attachments, &e.Success, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Attempts returns how many times folder has been dispatched, and how many of
// those failed.
func (s *Store) Attempts(ctx context.Context, folder string) (total, failed int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		FROM executions WHERE folder = ?`, folder)
	if err := row.Scan(&total, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return total, failed, nil
}
