package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSnapshot(deviceID string) *Snapshot {
	return &Snapshot{
		DeviceID:   deviceID,
		DailyUsage: map[string]int64{},
		Settings:   Settings{CurrentLevel: 1, AllowOverride: true, LastModified: 1000},
	}
}

func TestMerge_NilRemote_ReturnsLocal(t *testing.T) {
	local := baseSnapshot("dev-a")
	local.Restrictions = []Restriction{{Target: "news.example", LastModified: 5000}}

	merged := Merge(local, nil)
	require.NotNil(t, merged)
	assert.Equal(t, local.Restrictions, merged.Restrictions)
	assert.Equal(t, "dev-a", merged.DeviceID)
}

func TestMergeRestrictions_LastWriterWinsPerTarget(t *testing.T) {
	local := baseSnapshot("dev-a")
	local.Restrictions = []Restriction{
		{Target: "news.example", DailyLimitMS: 30 * 60 * 1000, LastModified: 2000},
		{Target: "local-only.example", IsBlocked: true, LastModified: 1000},
	}
	remote := baseSnapshot("dev-b")
	remote.Restrictions = []Restriction{
		{Target: "news.example", IsBlocked: true, LastModified: 3000},
		{Target: "remote-only.example", DailyLimitMS: 60 * 60 * 1000, LastModified: 1500},
	}

	merged := Merge(local, remote)
	require.Len(t, merged.Restrictions, 3)

	byTarget := map[string]Restriction{}
	for _, r := range merged.Restrictions {
		byTarget[r.Target] = r
	}
	assert.True(t, byTarget["news.example"].IsBlocked, "newer remote edit should win")
	assert.True(t, byTarget["local-only.example"].IsBlocked, "targets only on one side survive")
	assert.EqualValues(t, 60*60*1000, byTarget["remote-only.example"].DailyLimitMS)
}

func TestMergeRestrictions_TieBreak_RemoteWins(t *testing.T) {
	local := baseSnapshot("dev-a")
	local.Restrictions = []Restriction{{Target: "news.example", IsBlocked: false, LastModified: 2000}}
	remote := baseSnapshot("dev-b")
	remote.Restrictions = []Restriction{{Target: "news.example", IsBlocked: true, LastModified: 2000}}

	merged := Merge(local, remote)
	require.Len(t, merged.Restrictions, 1)
	assert.True(t, merged.Restrictions[0].IsBlocked, "exact timestamp tie goes to remote")
}

// Usage merges as max per (day, target) key. Summing would double-count a
// day both devices observed; max never loses tracked time either side saw.
func TestMergeUsage_MaxNeverSum(t *testing.T) {
	local := baseSnapshot("dev-a")
	local.DailyUsage = map[string]int64{
		UsageKey("2026-08-28", "news.example"):  30 * 60 * 1000,
		UsageKey("2026-08-28", "local.example"): 5 * 60 * 1000,
	}
	remote := baseSnapshot("dev-b")
	remote.DailyUsage = map[string]int64{
		UsageKey("2026-08-28", "news.example"):   45 * 60 * 1000,
		UsageKey("2026-08-28", "remote.example"): 10 * 60 * 1000,
	}

	merged := Merge(local, remote)
	assert.EqualValues(t, 45*60*1000, merged.DailyUsage[UsageKey("2026-08-28", "news.example")])
	assert.EqualValues(t, 5*60*1000, merged.DailyUsage[UsageKey("2026-08-28", "local.example")])
	assert.EqualValues(t, 10*60*1000, merged.DailyUsage[UsageKey("2026-08-28", "remote.example")])
}

func TestMergeSettings_WholeObjectLWW(t *testing.T) {
	local := baseSnapshot("dev-a")
	local.Settings = Settings{CurrentLevel: 2, StrictMode: true, LastModified: 5000}
	remote := baseSnapshot("dev-b")
	remote.Settings = Settings{CurrentLevel: 3, AllowOverride: true, LastModified: 4000}

	merged := Merge(local, remote)
	// Local is newer: the whole local object wins, no field mixing.
	assert.Equal(t, local.Settings, merged.Settings)

	remote.Settings.LastModified = 5000
	merged = Merge(local, remote)
	assert.Equal(t, remote.Settings, merged.Settings, "tie goes to remote")
}

func TestMergeSessions_SetUnionByIdentity(t *testing.T) {
	shared := Session{Target: "news.example", StartTime: 1000, EndTime: 2000, DurationMS: 1000}
	local := baseSnapshot("dev-a")
	local.Sessions = []Session{
		shared,
		{Target: "local.example", StartTime: 3000, EndTime: 4000, DurationMS: 1000},
	}
	remote := baseSnapshot("dev-b")
	remote.Sessions = []Session{
		shared, // same identity, seen by both devices
		{Target: "remote.example", StartTime: 5000, EndTime: 6000, DurationMS: 1000},
	}

	merged := Merge(local, remote)
	require.Len(t, merged.Sessions, 3, "shared session must not duplicate")

	// Deterministic order: by start time.
	assert.Equal(t, "news.example", merged.Sessions[0].Target)
	assert.Equal(t, "local.example", merged.Sessions[1].Target)
	assert.Equal(t, "remote.example", merged.Sessions[2].Target)
}

// Two devices merging each other's snapshots must converge on equal state.
func TestMerge_Commutative(t *testing.T) {
	a := baseSnapshot("dev-a")
	a.Restrictions = []Restriction{
		{Target: "news.example", DailyLimitMS: 1800000, LastModified: 2000},
		{Target: "a-only.example", IsBlocked: true, LastModified: 1000},
	}
	a.DailyUsage = map[string]int64{UsageKey("2026-08-28", "news.example"): 100}
	a.Sessions = []Session{{Target: "news.example", StartTime: 10, EndTime: 20, DurationMS: 10}}

	b := baseSnapshot("dev-b")
	b.Restrictions = []Restriction{
		{Target: "news.example", IsBlocked: true, LastModified: 3000},
		{Target: "b-only.example", DailyLimitMS: 60000, LastModified: 1500},
	}
	b.DailyUsage = map[string]int64{UsageKey("2026-08-28", "news.example"): 200}
	b.Sessions = []Session{{Target: "b.example", StartTime: 30, EndTime: 40, DurationMS: 10}}

	ab := Merge(a, b)
	ba := Merge(b, a)

	assert.Equal(t, ab.Restrictions, ba.Restrictions)
	assert.Equal(t, ab.DailyUsage, ba.DailyUsage)
	assert.Equal(t, ab.Settings, ba.Settings)
	assert.Equal(t, ab.Sessions, ba.Sessions)
}

// Re-merging an already merged snapshot must change nothing, which is what
// lets reconciliation passes repeat safely.
func TestMerge_Idempotent(t *testing.T) {
	a := baseSnapshot("dev-a")
	a.Restrictions = []Restriction{{Target: "news.example", LastModified: 2000}}
	a.DailyUsage = map[string]int64{UsageKey("2026-08-28", "news.example"): 100}
	a.Sessions = []Session{{Target: "news.example", StartTime: 10, EndTime: 20, DurationMS: 10}}

	b := baseSnapshot("dev-b")
	b.Restrictions = []Restriction{{Target: "news.example", IsBlocked: true, LastModified: 3000}}

	once := Merge(a, b)
	twice := Merge(once, b)

	assert.Equal(t, once.Restrictions, twice.Restrictions)
	assert.Equal(t, once.DailyUsage, twice.DailyUsage)
	assert.Equal(t, once.Settings, twice.Settings)
	assert.Equal(t, once.Sessions, twice.Sessions)
}

func TestUsageKey_RoundTrip(t *testing.T) {
	key := UsageKey("2026-08-28", "news.example")
	day, target, ok := SplitUsageKey(key)
	require.True(t, ok)
	assert.Equal(t, "2026-08-28", day)
	assert.Equal(t, "news.example", target)

	for _, bad := range []string{"", "no-separator", "|target", "day|"} {
		_, _, ok := SplitUsageKey(bad)
		assert.False(t, ok, "SplitUsageKey(%q) should reject", bad)
	}
}
