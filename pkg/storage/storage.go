// Package storage persists bug reports and channel repository settings in SQLite.
package storage

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

var (
	ErrReportNotFound        = errors.New("bug report not found")
	ErrChannelConfigNotFound = errors.New("channel repository config not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS bug_reports (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id   TEXT UNIQUE NOT NULL,
	transport   TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL,
	channel_id  TEXT,
	summary     TEXT NOT NULL,
	pages       TEXT,
	steps       TEXT,
	components  TEXT,
	status      TEXT NOT NULL DEFAULT 'new',
	priority    TEXT NOT NULL DEFAULT 'medium',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bug_reports_status ON bug_reports(status);
CREATE INDEX IF NOT EXISTS idx_bug_reports_user_id ON bug_reports(user_id);
CREATE INDEX IF NOT EXISTS idx_bug_reports_created_at ON bug_reports(created_at);

CREATE TABLE IF NOT EXISTS report_sequences (
	year INTEGER PRIMARY KEY,
	last INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_repos (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id   TEXT UNIQUE NOT NULL,
	channel_name TEXT NOT NULL,
	project_name TEXT NOT NULL,
	repos        TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
`

// Store is a SQLite-backed report database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
