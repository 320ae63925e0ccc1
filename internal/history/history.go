// Package history keeps a SQLite log of download attempts.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	appid      TEXT    NOT NULL,
	success    INTEGER NOT NULL,
	source     TEXT    NOT NULL,
	details    TEXT    NOT NULL DEFAULT '',
	created_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_appid ON downloads (appid, id);
`

// Entry is one recorded download attempt.
type Entry struct {
	ID        int64     `json:"id"`
	AppID     string    `json:"appid"`
	Success   bool      `json:"success"`
	Source    string    `json:"source"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder is the write side used by the downloader.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store is a SQLite-backed download history.
type Store struct {
	db *sql.DB
}

var _ Recorder = (*Store)(nil)

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an entry. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.AppID) == "" {
		return fmt.Errorf("appid is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (appid, success, source, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.AppID, boolToInt(e.Success), e.Source, e.Details, e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

// Last returns the latest entry of appid, or nil when there is none.
func (s *Store) Last(ctx context.Context, appid string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, appid, success, source, details, created_at FROM downloads WHERE appid = ? ORDER BY id DESC LIMIT 1`,
		appid,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last download: %w", err)
	}
	return e, nil
}

// Completed reports whether the latest download of appid succeeded.
func (s *Store) Completed(ctx context.Context, appid string) (bool, error) {
	e, err := s.Last(ctx, appid)
	if err != nil || e == nil {
		return false, err
	}
	return e.Success, nil
}

// List returns the newest entries first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, appid, success, source, details, created_at FROM downloads ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Clear deletes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads`); err != nil {
		return fmt.Errorf("clear downloads: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e       Entry
		success int
		created string
	)
	if err := row.Scan(&e.ID, &e.AppID, &success, &e.Source, &e.Details, &created); err != nil {
		return nil, err
	}
	e.Success = success != 0
	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	e.CreatedAt = t
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
