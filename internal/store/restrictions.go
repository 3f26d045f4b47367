package store

import (
	"database/sql"
	"fmt"
)

// PutRestriction inserts or replaces the restriction for a target.
// Validation failures return ErrInvalidInput without writing anything.
func (s *Store) PutRestriction(r *Restriction) error {
	if !validTarget(r.Target) {
		return fmt.Errorf("%w: malformed target %q", ErrInvalidInput, r.Target)
	}
	if r.DailyLimit < 0 {
		return fmt.Errorf("%w: negative daily limit for %s", ErrInvalidInput, r.Target)
	}
	if r.Level < 1 {
		return fmt.Errorf("%w: level %d for %s (must be >= 1)", ErrInvalidInput, r.Level, r.Target)
	}

	query := `
		INSERT OR REPLACE INTO restrictions
		(target, is_blocked, daily_limit_ms, level, last_modified, synced)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		r.Target,
		r.IsBlocked,
		r.DailyLimit.Milliseconds(),
		r.Level,
		formatTime(r.LastModified),
		r.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to put restriction for %s: %w", r.Target, mapErr(err))
	}

	return nil
}

// PutRestrictions replaces a batch of restrictions in a single transaction.
// Either all rows are written or none are.
func (s *Store) PutRestrictions(restrictions []*Restriction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO restrictions
		(target, is_blocked, daily_limit_ms, level, last_modified, synced)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("failed to prepare statement: %w", mapErr(err))
	}
	defer stmt.Close()

	for _, r := range restrictions {
		if !validTarget(r.Target) || r.DailyLimit < 0 || r.Level < 1 {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("%w: restriction for %q", ErrInvalidInput, r.Target)
		}
		if _, err := stmt.Exec(r.Target, r.IsBlocked, r.DailyLimit.Milliseconds(), r.Level, formatTime(r.LastModified), r.Synced); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("failed to put restriction for %s: %w", r.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restrictions: %w", err)
	}
	return nil
}

// GetRestriction retrieves the restriction for a target.
// Returns (nil, nil) when no restriction exists; an unrestricted target is
// not an error.
func (s *Store) GetRestriction(target string) (*Restriction, error) {
	query := `
		SELECT target, is_blocked, daily_limit_ms, level, last_modified, synced
		FROM restrictions
		WHERE target = ?
	`

	r, err := scanRestriction(s.db.QueryRow(query, target))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get restriction for %s: %w", target, mapErr(err))
	}
	return r, nil
}

// ListRestrictions returns all restrictions ordered by target.
func (s *Store) ListRestrictions() ([]*Restriction, error) {
	query := `
		SELECT target, is_blocked, daily_limit_ms, level, last_modified, synced
		FROM restrictions
		ORDER BY target
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list restrictions: %w", mapErr(err))
	}
	defer rows.Close()

	var restrictions []*Restriction
	for rows.Next() {
		r, err := scanRestriction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restriction row: %w", err)
		}
		restrictions = append(restrictions, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating restrictions: %w", err)
	}

	return restrictions, nil
}

// DeleteRestriction removes a restriction. Explicit user removal is the only
// path that deletes one.
func (s *Store) DeleteRestriction(target string) error {
	result, err := s.db.Exec(`DELETE FROM restrictions WHERE target = ?`, target)
	if err != nil {
		return fmt.Errorf("failed to delete restriction for %s: %w", target, mapErr(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no restriction for %s", target)
	}
	return nil
}

// MarkRestrictionsSynced flags every restriction as synced. Called after a
// successful snapshot push.
func (s *Store) MarkRestrictionsSynced() error {
	if _, err := s.db.Exec(`UPDATE restrictions SET synced = 1`); err != nil {
		return fmt.Errorf("failed to mark restrictions synced: %w", mapErr(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRestriction(row rowScanner) (*Restriction, error) {
	var r Restriction
	var limitMS int64
	var lastModified string

	err := row.Scan(&r.Target, &r.IsBlocked, &limitMS, &r.Level, &lastModified, &r.Synced)
	if err != nil {
		return nil, err
	}

	r.DailyLimit = msToDuration(limitMS)
	r.LastModified, err = parseTime(lastModified)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_modified for %s: %w", r.Target, err)
	}
	return &r, nil
}
