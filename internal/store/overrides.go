package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertOverride stores a granted override and returns its ID.
func (s *Store) InsertOverride(g *OverrideGrant) (int64, error) {
	if !validTarget(g.Target) {
		return 0, fmt.Errorf("%w: malformed target %q", ErrInvalidInput, g.Target)
	}

	query := `
		INSERT INTO overrides (target, day, granted_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		g.Target,
		g.Day,
		formatTime(g.GrantedAt),
		formatTime(g.ExpiresAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert override for %s: %w", g.Target, mapErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get override ID: %w", err)
	}
	return id, nil
}

// CountOverrides returns how many overrides were granted for (day, target).
// Expired grants still count: the daily budget is spent on grant, not on
// expiry.
func (s *Store) CountOverrides(day, target string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM overrides WHERE day = ? AND target = ?`,
		day, target,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count overrides for %s on %s: %w", target, day, mapErr(err))
	}
	return count, nil
}

// ActiveOverride returns the latest unexpired grant for target, or (nil, nil)
// when none is active. Expired grants are simply not returned; they are
// removed opportunistically by PurgeExpiredOverrides.
func (s *Store) ActiveOverride(target string, now time.Time) (*OverrideGrant, error) {
	query := `
		SELECT id, target, day, granted_at, expires_at
		FROM overrides
		WHERE target = ? AND expires_at > ?
		ORDER BY expires_at DESC
		LIMIT 1
	`

	var g OverrideGrant
	var granted, expires string
	err := s.db.QueryRow(query, target, formatTime(now)).Scan(&g.ID, &g.Target, &g.Day, &granted, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active override for %s: %w", target, mapErr(err))
	}

	g.GrantedAt, err = parseTime(granted)
	if err != nil {
		return nil, fmt.Errorf("failed to parse granted_at for override %d: %w", g.ID, err)
	}
	g.ExpiresAt, err = parseTime(expires)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at for override %d: %w", g.ID, err)
	}
	return &g, nil
}

// ListOverridesForDay returns all grants made on the given day.
func (s *Store) ListOverridesForDay(day string) ([]*OverrideGrant, error) {
	rows, err := s.db.Query(
		`SELECT id, target, day, granted_at, expires_at FROM overrides WHERE day = ? ORDER BY granted_at`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides for %s: %w", day, mapErr(err))
	}
	defer rows.Close()

	var grants []*OverrideGrant
	for rows.Next() {
		var g OverrideGrant
		var granted, expires string
		if err := rows.Scan(&g.ID, &g.Target, &g.Day, &granted, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan override row: %w", err)
		}
		g.GrantedAt, err = parseTime(granted)
		if err != nil {
			return nil, fmt.Errorf("failed to parse granted_at for override %d: %w", g.ID, err)
		}
		g.ExpiresAt, err = parseTime(expires)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expires_at for override %d: %w", g.ID, err)
		}
		grants = append(grants, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overrides: %w", err)
	}
	return grants, nil
}

// PurgeExpiredOverrides deletes grants that expired before cutoff. Grants
// made today are kept regardless so the daily budget count survives.
func (s *Store) PurgeExpiredOverrides(cutoff time.Time, today string) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM overrides WHERE expires_at < ? AND day != ?`,
		formatTime(cutoff), today,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge overrides: %w", mapErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
