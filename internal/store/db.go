// Package store provides SQLite persistence for usagectl: restriction
// policies, daily usage totals, the session log, override grants and the
// device settings row.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned when a query runs against a database whose
// schema has not been created yet.
var ErrNotInitialized = errors.New("database not initialized — run 'usagectl track' or any 'usagectl restrict' command first")

// ErrInvalidInput is returned when a value is rejected at the storage
// boundary (malformed target, negative duration, level below 1). Nothing is
// written in that case.
var ErrInvalidInput = errors.New("invalid input")

// timeLayout is the timestamp format used in TIMESTAMP columns: RFC 3339 in
// UTC with fixed-width millisecond precision. Fixed width keeps the TEXT
// columns lexicographically ordered, which the range queries and purges rely
// on. Milliseconds match the precision sessions carry on the sync wire.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store provides SQLite database operations for usagectl.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the specified database path.
// Use ":memory:" for in-memory databases (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// WAL mode for better concurrency between the tracker loop and readers
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateSchema creates all tables and indexes.
func (s *Store) CreateSchema() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// mapErr translates a raw sqlite error into ErrNotInitialized when the
// schema is missing, so callers can match with errors.Is.
func mapErr(err error) error {
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}
	return err
}

// validTarget reports whether target is acceptable as a storage key. Targets
// travel through the comma-separated event spool and through "day|target"
// usage keys on the sync wire, so those separators and line breaks are
// forbidden.
func validTarget(target string) bool {
	return target != "" && !strings.ContainsAny(target, ",|\n\r")
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
