package store

import "time"

// Restriction is the per-target policy record: an explicit block flag, a
// daily time limit (0 = unlimited) and a progressive level tier.
type Restriction struct {
	Target       string
	IsBlocked    bool
	DailyLimit   time.Duration
	Level        int
	LastModified time.Time
	Synced       bool
}

// UsageTotal is the accumulated foreground time for one (day, target) pair.
type UsageTotal struct {
	Day      string
	Target   string
	Duration time.Duration
}

// Session is one contiguous interval during which a target held the
// foreground. Immutable once written.
type Session struct {
	ID         int64
	Target     string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	WasBlocked bool
	Synced     bool
}

// OverrideGrant is a time-boxed exemption from a time-limit block.
type OverrideGrant struct {
	ID        int64
	Target    string
	Day       string
	GrantedAt time.Time
	ExpiresAt time.Time
}

// Settings is the singleton per-device settings row.
type Settings struct {
	CurrentLevel  int
	StrictMode    bool
	AllowOverride bool
	SyncEnabled   bool
	LastSync      time.Time
	LastModified  time.Time
}
