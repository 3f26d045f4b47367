package store

import (
	"fmt"
	"strings"
	"time"
)

// AppendSession writes a closed session to the log and returns its ID.
// Sessions with negative duration are rejected; the tracker clamps them
// before they get here, so one showing up is a caller bug.
func (s *Store) AppendSession(sess *Session) (int64, error) {
	if !validTarget(sess.Target) {
		return 0, fmt.Errorf("%w: malformed target %q", ErrInvalidInput, sess.Target)
	}
	if sess.Duration < 0 {
		return 0, fmt.Errorf("%w: negative session duration %v for %s", ErrInvalidInput, sess.Duration, sess.Target)
	}

	query := `
		INSERT INTO sessions (target, start_time, end_time, duration_ms, was_blocked, synced)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		sess.Target,
		formatTime(sess.StartTime),
		formatTime(sess.EndTime),
		sess.Duration.Milliseconds(),
		sess.WasBlocked,
		sess.Synced,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append session for %s: %w", sess.Target, mapErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get session ID: %w", err)
	}
	return id, nil
}

// ListSessions returns sessions that started at or after since, newest first.
// Pass the zero time for the full retained log.
func (s *Store) ListSessions(since time.Time) ([]*Session, error) {
	query := `
		SELECT id, target, start_time, end_time, duration_ms, was_blocked, synced
		FROM sessions
		WHERE start_time >= ?
		ORDER BY start_time DESC
	`

	rows, err := s.db.Query(query, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", mapErr(err))
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListUnsyncedSessions returns sessions not yet pushed to the sync endpoint,
// oldest first.
func (s *Store) ListUnsyncedSessions() ([]*Session, error) {
	query := `
		SELECT id, target, start_time, end_time, duration_ms, was_blocked, synced
		FROM sessions
		WHERE synced = 0
		ORDER BY start_time ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced sessions: %w", mapErr(err))
	}
	defer rows.Close()

	return collectSessions(rows)
}

// MarkSessionsSynced flags the given session IDs as synced.
func (s *Store) MarkSessionsSynced(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`UPDATE sessions SET synced = 1 WHERE id IN (%s)`, placeholders)
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to mark sessions synced: %w", mapErr(err))
	}
	return nil
}

// InsertSessionsIfAbsent writes sessions that are not already present, in a
// single transaction. Presence is keyed by (target, start_time, end_time),
// the set-union identity used by reconciliation, so duplicates across devices
// coalesce naturally.
func (s *Store) InsertSessionsIfAbsent(sessions []*Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sessions (target, start_time, end_time, duration_ms, was_blocked, synced)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM sessions WHERE target = ? AND start_time = ? AND end_time = ?
		)
	`)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("failed to prepare statement: %w", mapErr(err))
	}
	defer stmt.Close()

	for _, sess := range sessions {
		if !validTarget(sess.Target) || sess.Duration < 0 {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("%w: session for %q", ErrInvalidInput, sess.Target)
		}
		start := formatTime(sess.StartTime)
		end := formatTime(sess.EndTime)
		_, err := stmt.Exec(
			sess.Target, start, end, sess.Duration.Milliseconds(), sess.WasBlocked, sess.Synced,
			sess.Target, start, end,
		)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("failed to insert session for %s: %w", sess.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sessions: %w", err)
	}
	return nil
}

// PurgeSessionsBefore deletes sessions that started before cutoff and returns
// the number removed. Storage hygiene only; usage totals are unaffected.
func (s *Store) PurgeSessionsBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE start_time < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", mapErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func collectSessions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		var sess Session
		var start, end string
		var ms int64

		err := rows.Scan(&sess.ID, &sess.Target, &start, &end, &ms, &sess.WasBlocked, &sess.Synced)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		sess.StartTime, err = parseTime(start)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start_time for session %d: %w", sess.ID, err)
		}
		sess.EndTime, err = parseTime(end)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end_time for session %d: %w", sess.ID, err)
		}
		sess.Duration = msToDuration(ms)

		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}
