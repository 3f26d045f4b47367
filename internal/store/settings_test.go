package store

import (
	"errors"
	"testing"
	"time"
)

// TestGetSettings_Defaults verifies the defaults returned before any write:
// level 1, overrides allowed, sync off, zero LastModified so any synced
// settings object wins the first merge.
func TestGetSettings_Defaults(t *testing.T) {
	st := newTestStore(t)

	got, err := st.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings() failed: %v", err)
	}
	if got.CurrentLevel != 1 {
		t.Errorf("CurrentLevel = %d, want 1", got.CurrentLevel)
	}
	if !got.AllowOverride {
		t.Error("AllowOverride = false, want true")
	}
	if got.StrictMode || got.SyncEnabled {
		t.Errorf("StrictMode/SyncEnabled = %v/%v, want false/false", got.StrictMode, got.SyncEnabled)
	}
	if !got.LastModified.IsZero() {
		t.Errorf("LastModified = %v, want zero", got.LastModified)
	}
}

// TestPutGetSettings_RoundTrip verifies the settings row survives storage.
func TestPutGetSettings_RoundTrip(t *testing.T) {
	st := newTestStore(t)

	want := &Settings{
		CurrentLevel:  3,
		StrictMode:    true,
		AllowOverride: false,
		SyncEnabled:   true,
		LastSync:      time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC),
		LastModified:  time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
	}
	if err := st.PutSettings(want); err != nil {
		t.Fatalf("PutSettings() failed: %v", err)
	}

	got, err := st.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings() failed: %v", err)
	}
	if got.CurrentLevel != 3 || !got.StrictMode || got.AllowOverride || !got.SyncEnabled {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
	if !got.LastSync.Equal(want.LastSync) {
		t.Errorf("LastSync = %v, want %v", got.LastSync, want.LastSync)
	}
	if !got.LastModified.Equal(want.LastModified) {
		t.Errorf("LastModified = %v, want %v", got.LastModified, want.LastModified)
	}
}

// TestPutSettings_RejectsLevelBelowOne verifies the level floor.
func TestPutSettings_RejectsLevelBelowOne(t *testing.T) {
	st := newTestStore(t)

	err := st.PutSettings(&Settings{CurrentLevel: 0, LastModified: time.Now()})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("PutSettings(level 0) error = %v, want ErrInvalidInput", err)
	}
}

// TestUpdateLastSync_PreservesLastModified verifies that recording a sync
// pass does not make this device look like it edited settings: last_modified
// must not move, or the bookkeeping would win last-writer-wins merges.
func TestUpdateLastSync_PreservesLastModified(t *testing.T) {
	st := newTestStore(t)

	modified := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	if err := st.PutSettings(&Settings{CurrentLevel: 2, AllowOverride: true, LastModified: modified}); err != nil {
		t.Fatalf("PutSettings() failed: %v", err)
	}

	syncTime := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	if err := st.UpdateLastSync(syncTime); err != nil {
		t.Fatalf("UpdateLastSync() failed: %v", err)
	}

	got, err := st.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings() failed: %v", err)
	}
	if !got.LastSync.Equal(syncTime) {
		t.Errorf("LastSync = %v, want %v", got.LastSync, syncTime)
	}
	if !got.LastModified.Equal(modified) {
		t.Errorf("LastModified = %v, want unchanged %v", got.LastModified, modified)
	}
}

// TestUpdateLastSync_CreatesDefaultRow verifies the first sync on a fresh
// device creates the settings row rather than silently updating nothing.
func TestUpdateLastSync_CreatesDefaultRow(t *testing.T) {
	st := newTestStore(t)

	syncTime := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	if err := st.UpdateLastSync(syncTime); err != nil {
		t.Fatalf("UpdateLastSync() failed: %v", err)
	}

	got, err := st.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings() failed: %v", err)
	}
	if !got.LastSync.Equal(syncTime) {
		t.Errorf("LastSync = %v, want %v", got.LastSync, syncTime)
	}
	if got.CurrentLevel != 1 || !got.AllowOverride {
		t.Errorf("created row = %+v, want defaults", got)
	}
}
