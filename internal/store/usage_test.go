package store

import (
	"errors"
	"testing"
	"time"
)

// TestAccumulateUsage_AddsAcrossCalls verifies repeated accumulates sum up
// rather than overwrite.
func TestAccumulateUsage_AddsAcrossCalls(t *testing.T) {
	st := newTestStore(t)
	day := "2026-08-28"

	if err := st.AccumulateUsage(day, "news.example", 10*time.Minute); err != nil {
		t.Fatalf("AccumulateUsage() failed: %v", err)
	}
	if err := st.AccumulateUsage(day, "news.example", 5*time.Minute); err != nil {
		t.Fatalf("AccumulateUsage() failed: %v", err)
	}

	got, err := st.GetUsage(day, "news.example")
	if err != nil {
		t.Fatalf("GetUsage() failed: %v", err)
	}
	if got != 15*time.Minute {
		t.Errorf("GetUsage() = %v, want 15m", got)
	}
}

// TestAccumulateUsage_NegativeDelta_Rejected verifies that committed usage is
// monotonically non-decreasing within a day.
func TestAccumulateUsage_NegativeDelta_Rejected(t *testing.T) {
	st := newTestStore(t)
	day := "2026-08-28"

	if err := st.AccumulateUsage(day, "news.example", 10*time.Minute); err != nil {
		t.Fatalf("AccumulateUsage() failed: %v", err)
	}
	if err := st.AccumulateUsage(day, "news.example", -time.Minute); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("AccumulateUsage(negative) error = %v, want ErrInvalidInput", err)
	}

	got, err := st.GetUsage(day, "news.example")
	if err != nil {
		t.Fatalf("GetUsage() failed: %v", err)
	}
	if got != 10*time.Minute {
		t.Errorf("GetUsage() after rejected delta = %v, want 10m", got)
	}
}

// TestGetUsage_Absent_ReturnsZero verifies missing rows read as zero, not an
// error: a fresh day starts at zero with no reset step.
func TestGetUsage_Absent_ReturnsZero(t *testing.T) {
	st := newTestStore(t)

	got, err := st.GetUsage("2026-08-28", "never.example")
	if err != nil {
		t.Fatalf("GetUsage() failed: %v", err)
	}
	if got != 0 {
		t.Errorf("GetUsage() = %v, want 0", got)
	}
}

// TestUsage_DayKeysIndependent verifies totals are keyed by calendar day, so
// a new day accumulates from zero while the previous day stays queryable.
func TestUsage_DayKeysIndependent(t *testing.T) {
	st := newTestStore(t)

	if err := st.AccumulateUsage("2026-08-27", "news.example", 40*time.Minute); err != nil {
		t.Fatalf("AccumulateUsage() failed: %v", err)
	}
	if err := st.AccumulateUsage("2026-08-28", "news.example", 5*time.Minute); err != nil {
		t.Fatalf("AccumulateUsage() failed: %v", err)
	}

	yesterday, _ := st.GetUsage("2026-08-27", "news.example")
	today, _ := st.GetUsage("2026-08-28", "news.example")
	if yesterday != 40*time.Minute || today != 5*time.Minute {
		t.Errorf("got yesterday=%v today=%v, want 40m and 5m", yesterday, today)
	}
}

// TestMergeUsageBatch_TakesMaxNeverSums verifies the reconciliation write
// law: the stored value becomes max(stored, incoming), never the sum, and a
// stored total is never lowered.
func TestMergeUsageBatch_TakesMaxNeverSums(t *testing.T) {
	st := newTestStore(t)
	day := "2026-08-28"

	if err := st.AccumulateUsage(day, "news.example", 30*time.Minute); err != nil {
		t.Fatalf("AccumulateUsage() failed: %v", err)
	}

	// Incoming higher value raises the total.
	err := st.MergeUsageBatch([]*UsageTotal{{Day: day, Target: "news.example", Duration: 45 * time.Minute}})
	if err != nil {
		t.Fatalf("MergeUsageBatch() failed: %v", err)
	}
	got, _ := st.GetUsage(day, "news.example")
	if got != 45*time.Minute {
		t.Errorf("after merge with higher value: GetUsage() = %v, want 45m (not 75m)", got)
	}

	// Incoming lower value is ignored.
	err = st.MergeUsageBatch([]*UsageTotal{{Day: day, Target: "news.example", Duration: 10 * time.Minute}})
	if err != nil {
		t.Fatalf("MergeUsageBatch() failed: %v", err)
	}
	got, _ = st.GetUsage(day, "news.example")
	if got != 45*time.Minute {
		t.Errorf("after merge with lower value: GetUsage() = %v, want 45m", got)
	}
}

// TestMergeUsageBatch_Idempotent verifies re-applying the same batch changes
// nothing, which is what makes reconciliation passes safely repeatable.
func TestMergeUsageBatch_Idempotent(t *testing.T) {
	st := newTestStore(t)
	batch := []*UsageTotal{
		{Day: "2026-08-28", Target: "a.example", Duration: 10 * time.Minute},
		{Day: "2026-08-28", Target: "b.example", Duration: 20 * time.Minute},
	}

	for i := 0; i < 3; i++ {
		if err := st.MergeUsageBatch(batch); err != nil {
			t.Fatalf("MergeUsageBatch() pass %d failed: %v", i, err)
		}
	}

	a, _ := st.GetUsage("2026-08-28", "a.example")
	b, _ := st.GetUsage("2026-08-28", "b.example")
	if a != 10*time.Minute || b != 20*time.Minute {
		t.Errorf("after repeated merges: a=%v b=%v, want 10m and 20m", a, b)
	}
}

// TestCommitSession_WritesSessionAndUsageTogether verifies the single
// transaction behind closing a session: the log entry and the day's total
// both land.
func TestCommitSession_WritesSessionAndUsageTogether(t *testing.T) {
	st := newTestStore(t)
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	sess := &Session{
		Target:    "news.example",
		StartTime: start,
		EndTime:   start.Add(7 * time.Minute),
		Duration:  7 * time.Minute,
	}
	if err := st.CommitSession(sess, "2026-08-28"); err != nil {
		t.Fatalf("CommitSession() failed: %v", err)
	}

	sessions, err := st.ListSessions(time.Time{})
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].Duration != 7*time.Minute || sessions[0].Synced {
		t.Errorf("session = %+v, want 7m duration and synced=false", sessions[0])
	}

	used, err := st.GetUsage("2026-08-28", "news.example")
	if err != nil {
		t.Fatalf("GetUsage() failed: %v", err)
	}
	if used != 7*time.Minute {
		t.Errorf("GetUsage() = %v, want 7m", used)
	}
}

// TestCommitSession_RejectsNegativeDuration verifies the storage boundary
// check behind the no-negative-durations invariant.
func TestCommitSession_RejectsNegativeDuration(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	sess := &Session{Target: "news.example", StartTime: now, EndTime: now.Add(-time.Minute), Duration: -time.Minute}
	if err := st.CommitSession(sess, "2026-08-28"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("CommitSession(negative) error = %v, want ErrInvalidInput", err)
	}

	sessions, _ := st.ListSessions(time.Time{})
	if len(sessions) != 0 {
		t.Errorf("rejected commit left %d sessions, want 0", len(sessions))
	}
}
