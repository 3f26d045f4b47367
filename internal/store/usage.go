package store

import (
	"fmt"
	"time"
)

// AccumulateUsage adds delta to the usage total for (day, target). The row is
// created on first use; repeated calls accumulate, they never overwrite.
// A negative delta is rejected with ErrInvalidInput: committed usage is
// monotonically non-decreasing within a day.
func (s *Store) AccumulateUsage(day, target string, delta time.Duration) error {
	if !validTarget(target) {
		return fmt.Errorf("%w: malformed target %q", ErrInvalidInput, target)
	}
	if delta < 0 {
		return fmt.Errorf("%w: negative usage delta %v for %s", ErrInvalidInput, delta, target)
	}

	query := `
		INSERT INTO usage_daily (day, target, duration_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(day, target) DO UPDATE SET
			duration_ms = duration_ms + excluded.duration_ms
	`

	if _, err := s.db.Exec(query, day, target, delta.Milliseconds()); err != nil {
		return fmt.Errorf("failed to accumulate usage for %s on %s: %w", target, day, mapErr(err))
	}
	return nil
}

// GetUsage returns the accumulated usage for (day, target), 0 if absent.
func (s *Store) GetUsage(day, target string) (time.Duration, error) {
	var ms int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(duration_ms), 0) FROM usage_daily WHERE day = ? AND target = ?`,
		day, target,
	).Scan(&ms)
	if err != nil {
		return 0, fmt.Errorf("failed to get usage for %s on %s: %w", target, day, mapErr(err))
	}
	return msToDuration(ms), nil
}

// ListUsageForDay returns all usage totals for one day, ordered by descending
// duration.
func (s *Store) ListUsageForDay(day string) ([]*UsageTotal, error) {
	rows, err := s.db.Query(
		`SELECT day, target, duration_ms FROM usage_daily WHERE day = ? ORDER BY duration_ms DESC, target`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage for %s: %w", day, mapErr(err))
	}
	defer rows.Close()

	return collectUsage(rows)
}

// ListUsage returns every stored (day, target) usage total.
func (s *Store) ListUsage() ([]*UsageTotal, error) {
	rows, err := s.db.Query(`SELECT day, target, duration_ms FROM usage_daily ORDER BY day, target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", mapErr(err))
	}
	defer rows.Close()

	return collectUsage(rows)
}

// MergeUsageBatch raises stored usage totals to the given values in a single
// transaction. A stored total is never lowered: the written value is
// max(stored, incoming). This is the write half of the reconciliation merge
// law for usage.
func (s *Store) MergeUsageBatch(totals []*UsageTotal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO usage_daily (day, target, duration_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(day, target) DO UPDATE SET
			duration_ms = MAX(duration_ms, excluded.duration_ms)
	`)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("failed to prepare statement: %w", mapErr(err))
	}
	defer stmt.Close()

	for _, u := range totals {
		if !validTarget(u.Target) || u.Duration < 0 {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("%w: usage total for %q", ErrInvalidInput, u.Target)
		}
		if _, err := stmt.Exec(u.Day, u.Target, u.Duration.Milliseconds()); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("failed to merge usage for %s on %s: %w", u.Target, u.Day, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage merge: %w", err)
	}
	return nil
}

func collectUsage(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*UsageTotal, error) {
	var totals []*UsageTotal
	for rows.Next() {
		var u UsageTotal
		var ms int64
		if err := rows.Scan(&u.Day, &u.Target, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		u.Duration = msToDuration(ms)
		totals = append(totals, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage totals: %w", err)
	}
	return totals, nil
}
