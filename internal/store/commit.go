package store

import "fmt"

// CommitSession atomically appends a closed session and accumulates its
// duration into the usage total for day. Both writes land or neither does,
// so a retry after a storage failure can never double-count.
func (s *Store) CommitSession(sess *Session, day string) error {
	if !validTarget(sess.Target) {
		return fmt.Errorf("%w: malformed target %q", ErrInvalidInput, sess.Target)
	}
	if sess.Duration < 0 {
		return fmt.Errorf("%w: negative session duration %v for %s", ErrInvalidInput, sess.Duration, sess.Target)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO sessions (target, start_time, end_time, duration_ms, was_blocked, synced)
		VALUES (?, ?, ?, ?, ?, 0)
	`,
		sess.Target,
		formatTime(sess.StartTime),
		formatTime(sess.EndTime),
		sess.Duration.Milliseconds(),
		sess.WasBlocked,
	)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("failed to append session for %s: %w", sess.Target, mapErr(err))
	}

	_, err = tx.Exec(`
		INSERT INTO usage_daily (day, target, duration_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(day, target) DO UPDATE SET
			duration_ms = duration_ms + excluded.duration_ms
	`, day, sess.Target, sess.Duration.Milliseconds())
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("failed to accumulate usage for %s on %s: %w", sess.Target, day, mapErr(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session for %s: %w", sess.Target, err)
	}
	return nil
}
