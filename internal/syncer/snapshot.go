// Package syncer reconciles a device's usage-control state with the other
// devices belonging to the same owner.
//
// Each pass exchanges a full Snapshot document with the sync endpoint and
// merges it with local state under deterministic per-group conflict laws:
// last-writer-wins for restrictions and settings, max for usage totals, and
// set union for sessions. No group is ever half-applied.
package syncer

import (
	"fmt"
	"strings"
	"time"

	"github.com/usagecontrol/usagectl/internal/store"
)

// Snapshot is the full exportable state of one device, exchanged as a JSON
// document with the sync endpoint. Durations and timestamps are epoch
// milliseconds on the wire.
type Snapshot struct {
	DeviceID     string           `json:"deviceId"`
	LastModified int64            `json:"lastModified"`
	Restrictions []Restriction    `json:"restrictions"`
	DailyUsage   map[string]int64 `json:"dailyUsage"`
	Settings     Settings         `json:"settings"`
	Sessions     []Session        `json:"sessions"`
}

// Restriction is the wire form of a restriction policy record.
type Restriction struct {
	Target       string `json:"target"`
	IsBlocked    bool   `json:"isBlocked"`
	DailyLimitMS int64  `json:"dailyLimit"`
	Level        int    `json:"level"`
	LastModified int64  `json:"lastModified"`
}

// Settings is the wire form of the device settings object. Merged as a whole
// by its single lastModified.
type Settings struct {
	CurrentLevel  int   `json:"currentLevel"`
	StrictMode    bool  `json:"enableStrictMode"`
	AllowOverride bool  `json:"allowEmergencyOverride"`
	SyncEnabled   bool  `json:"syncEnabled"`
	LastModified  int64 `json:"lastModified"`
}

// Session is the wire form of a closed usage session. Its identity for the
// set-union merge is (target, startTime, endTime): the content is the key,
// so duplicates across devices coalesce.
type Session struct {
	Target     string `json:"target"`
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
	DurationMS int64  `json:"duration"`
	WasBlocked bool   `json:"wasBlocked"`
}

// usageKeySep separates day from target in DailyUsage keys. Days contain "-"
// so the separator must be something a date can never contain.
const usageKeySep = "|"

// UsageKey builds the DailyUsage map key for (day, target).
func UsageKey(day, target string) string {
	return day + usageKeySep + target
}

// SplitUsageKey splits a DailyUsage key back into (day, target).
func SplitUsageKey(key string) (day, target string, ok bool) {
	day, target, ok = strings.Cut(key, usageKeySep)
	if !ok || day == "" || target == "" {
		return "", "", false
	}
	return day, target, true
}

// Build constructs the device's current Snapshot. The session group carries
// only sessions not yet pushed; everything already on the endpoint is merged
// back in from the remote snapshot by set union.
func Build(st *store.Store, deviceID string, now time.Time) (*Snapshot, error) {
	restrictions, err := st.ListRestrictions()
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	usage, err := st.ListUsage()
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	settings, err := st.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	sessions, err := st.ListUnsyncedSessions()
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	snap := &Snapshot{
		DeviceID:     deviceID,
		LastModified: now.UnixMilli(),
		DailyUsage:   make(map[string]int64, len(usage)),
		Settings: Settings{
			CurrentLevel:  settings.CurrentLevel,
			StrictMode:    settings.StrictMode,
			AllowOverride: settings.AllowOverride,
			SyncEnabled:   settings.SyncEnabled,
			LastModified:  timeToMilli(settings.LastModified),
		},
	}

	for _, r := range restrictions {
		snap.Restrictions = append(snap.Restrictions, Restriction{
			Target:       r.Target,
			IsBlocked:    r.IsBlocked,
			DailyLimitMS: r.DailyLimit.Milliseconds(),
			Level:        r.Level,
			LastModified: timeToMilli(r.LastModified),
		})
	}
	for _, u := range usage {
		snap.DailyUsage[UsageKey(u.Day, u.Target)] = u.Duration.Milliseconds()
	}
	for _, s := range sessions {
		snap.Sessions = append(snap.Sessions, Session{
			Target:     s.Target,
			StartTime:  s.StartTime.UnixMilli(),
			EndTime:    s.EndTime.UnixMilli(),
			DurationMS: s.Duration.Milliseconds(),
			WasBlocked: s.WasBlocked,
		})
	}

	return snap, nil
}

// Apply writes a merged snapshot back into local storage, one atomic write
// per field group. The local LastSync bookkeeping survives: it is device
// state, not merged state.
func Apply(st *store.Store, snap *Snapshot) error {
	var restrictions []*store.Restriction
	for _, r := range snap.Restrictions {
		restrictions = append(restrictions, &store.Restriction{
			Target:       r.Target,
			IsBlocked:    r.IsBlocked,
			DailyLimit:   time.Duration(r.DailyLimitMS) * time.Millisecond,
			Level:        r.Level,
			LastModified: milliToTime(r.LastModified),
			Synced:       true,
		})
	}
	if err := st.PutRestrictions(restrictions); err != nil {
		return fmt.Errorf("apply snapshot restrictions: %w", err)
	}

	var totals []*store.UsageTotal
	for key, ms := range snap.DailyUsage {
		day, target, ok := SplitUsageKey(key)
		if !ok {
			// Malformed keys from a foreign writer are skipped, never stored.
			continue
		}
		totals = append(totals, &store.UsageTotal{
			Day:      day,
			Target:   target,
			Duration: time.Duration(ms) * time.Millisecond,
		})
	}
	if err := st.MergeUsageBatch(totals); err != nil {
		return fmt.Errorf("apply snapshot usage: %w", err)
	}

	local, err := st.GetSettings()
	if err != nil {
		return fmt.Errorf("apply snapshot settings: %w", err)
	}
	level := snap.Settings.CurrentLevel
	if level < 1 {
		level = 1
	}
	merged := &store.Settings{
		CurrentLevel:  level,
		StrictMode:    snap.Settings.StrictMode,
		AllowOverride: snap.Settings.AllowOverride,
		SyncEnabled:   snap.Settings.SyncEnabled,
		LastSync:      local.LastSync,
		LastModified:  milliToTime(snap.Settings.LastModified),
	}
	if err := st.PutSettings(merged); err != nil {
		return fmt.Errorf("apply snapshot settings: %w", err)
	}

	var sessions []*store.Session
	for _, s := range snap.Sessions {
		sessions = append(sessions, &store.Session{
			Target:     s.Target,
			StartTime:  milliToTime(s.StartTime),
			EndTime:    milliToTime(s.EndTime),
			Duration:   time.Duration(s.DurationMS) * time.Millisecond,
			WasBlocked: s.WasBlocked,
			Synced:     true,
		})
	}
	if err := st.InsertSessionsIfAbsent(sessions); err != nil {
		return fmt.Errorf("apply snapshot sessions: %w", err)
	}

	return nil
}

func timeToMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func milliToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
