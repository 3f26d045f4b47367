package store

import (
	"database/sql"
	"fmt"
	"time"
)

// settingsRowID is the primary key of the singleton settings row.
const settingsRowID = "default"

// GetSettings returns the device settings row. If none has been written yet,
// defaults are returned (level 1, overrides allowed, sync disabled) with a
// zero LastModified so any synced settings object wins the first merge.
func (s *Store) GetSettings() (*Settings, error) {
	query := `
		SELECT current_level, strict_mode, allow_override, sync_enabled, last_sync, last_modified
		FROM settings
		WHERE id = ?
	`

	var st Settings
	var lastSync sql.NullString
	var lastModified string
	err := s.db.QueryRow(query, settingsRowID).Scan(
		&st.CurrentLevel,
		&st.StrictMode,
		&st.AllowOverride,
		&st.SyncEnabled,
		&lastSync,
		&lastModified,
	)
	if err == sql.ErrNoRows {
		return &Settings{CurrentLevel: 1, AllowOverride: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", mapErr(err))
	}

	if lastSync.Valid && lastSync.String != "" {
		st.LastSync, err = parseTime(lastSync.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_sync: %w", err)
		}
	}
	st.LastModified, err = parseTime(lastModified)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings last_modified: %w", err)
	}
	return &st, nil
}

// PutSettings replaces the settings row.
func (s *Store) PutSettings(st *Settings) error {
	if st.CurrentLevel < 1 {
		return fmt.Errorf("%w: current level %d (must be >= 1)", ErrInvalidInput, st.CurrentLevel)
	}

	query := `
		INSERT OR REPLACE INTO settings
		(id, current_level, strict_mode, allow_override, sync_enabled, last_sync, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var lastSync any
	if !st.LastSync.IsZero() {
		lastSync = formatTime(st.LastSync)
	}

	_, err := s.db.Exec(query,
		settingsRowID,
		st.CurrentLevel,
		st.StrictMode,
		st.AllowOverride,
		st.SyncEnabled,
		lastSync,
		formatTime(st.LastModified),
	)
	if err != nil {
		return fmt.Errorf("failed to put settings: %w", mapErr(err))
	}
	return nil
}

// UpdateLastSync records when the last successful reconciliation pass ran.
// Deliberately leaves last_modified untouched: a sync timestamp is device
// bookkeeping, not a user edit, and must not win last-writer-wins merges.
func (s *Store) UpdateLastSync(t time.Time) error {
	result, err := s.db.Exec(
		`UPDATE settings SET last_sync = ? WHERE id = ?`,
		formatTime(t), settingsRowID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last sync time: %w", mapErr(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// No settings row yet. Create one with defaults.
		st := &Settings{CurrentLevel: 1, AllowOverride: true, LastSync: t}
		return s.PutSettings(st)
	}
	return nil
}
