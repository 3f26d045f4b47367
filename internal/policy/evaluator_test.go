package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/store"
)

func newTestPolicy(t *testing.T) (*store.Store, *OverrideManager, *clock.Fake, *Evaluator) {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.CreateSchema())

	clk := clock.NewFake(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))
	om := NewOverrideManager(st, 5*time.Minute, 1)
	ev := NewEvaluator(st, om, clk)
	return st, om, clk, ev
}

func putRestriction(t *testing.T, st *store.Store, r *store.Restriction) {
	t.Helper()
	if r.Level == 0 {
		r.Level = 1
	}
	if r.LastModified.IsZero() {
		r.LastModified = time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	}
	require.NoError(t, st.PutRestriction(r))
}

func TestEvaluate_NoRestriction_Allows(t *testing.T) {
	_, _, _, ev := newTestPolicy(t)

	d, err := ev.Evaluate("free.example")
	require.NoError(t, err)
	require.Equal(t, Allow, d.Action)
	require.False(t, d.Blocked())
}

func TestEvaluate_ExplicitBlock_Blocks(t *testing.T) {
	st, _, _, ev := newTestPolicy(t)
	putRestriction(t, st, &store.Restriction{Target: "games.example", IsBlocked: true})

	d, err := ev.Evaluate("games.example")
	require.NoError(t, err)
	require.Equal(t, Block, d.Action)
	require.Equal(t, ReasonExplicit, d.Reason)
	require.False(t, d.OverrideAvailable, "explicit blocks never offer an override")
}

// An active override must not weaken an explicit block. Overrides exist to
// soften limit blocks only.
func TestEvaluate_ExplicitBlock_IgnoresActiveOverride(t *testing.T) {
	st, om, clk, ev := newTestPolicy(t)
	putRestriction(t, st, &store.Restriction{Target: "games.example", IsBlocked: true})

	_, err := om.Request("games.example", clk.Now())
	require.NoError(t, err)

	d, err := ev.Evaluate("games.example")
	require.NoError(t, err)
	require.Equal(t, Block, d.Action)
	require.Equal(t, ReasonExplicit, d.Reason)
}

func TestEvaluate_UnderLimit_Allows(t *testing.T) {
	st, _, clk, ev := newTestPolicy(t)
	putRestriction(t, st, &store.Restriction{Target: "news.example", DailyLimit: 30 * time.Minute})

	day := clock.DayKey(clk.Now())
	require.NoError(t, st.AccumulateUsage(day, "news.example", 29*time.Minute))

	d, err := ev.Evaluate("news.example")
	require.NoError(t, err)
	require.Equal(t, Allow, d.Action)
}

// Usage equal to the limit already blocks: the limit is a budget, not a
// threshold to cross.
func TestEvaluate_AtExactLimit_Blocks(t *testing.T) {
	st, _, clk, ev := newTestPolicy(t)
	putRestriction(t, st, &store.Restriction{Target: "news.example", DailyLimit: 30 * time.Minute})

	day := clock.DayKey(clk.Now())
	require.NoError(t, st.AccumulateUsage(day, "news.example", 30*time.Minute))

	d, err := ev.Evaluate("news.example")
	require.NoError(t, err)
	require.Equal(t, Block, d.Action)
	require.Equal(t, ReasonLimitExceeded, d.Reason)
}

func TestEvaluate_LimitExceeded_OffersOverrideWhileBudgetRemains(t *testing.T) {
	st, _, clk, ev := newTestPolicy(t)
	putRestriction(t, st, &store.Restriction{Target: "news.example", DailyLimit: 30 * time.Minute})

	day := clock.DayKey(clk.Now())
	require.NoError(t, st.AccumulateUsage(day, "news.example", time.Hour))

	d, err := ev.Evaluate("news.example")
	require.NoError(t, err)
	require.Equal(t, Block, d.Action)
	require.Equal(t, ReasonLimitExceeded, d.Reason)
	require.True(t, d.OverrideAvailable, "budget untouched, the hint should be offered")
}

func TestEvaluate_LimitExceeded_ActiveOverride_Allows(t *testing.T) {
	st, om, clk, ev := newTestPolicy(t)
	putRestriction(t, st, &store.Restriction{Target: "news.example", DailyLimit: 30 * time.Minute})

	day := clock.DayKey(clk.Now())
	require.NoError(t, st.AccumulateUsage(day, "news.example", time.Hour))

	_, err := om.Request("news.example", clk.Now())
	require.NoError(t, err)

	d, err := ev.Evaluate("news.example")
	require.NoError(t, err)
	require.Equal(t, Allow, d.Action, "active override neutralizes the limit block")
}

// Once the override expires the block returns, and with the day's budget
// spent the decision no longer offers an override.
func TestEvaluate_OverrideExpiry_BlockReturnsWithoutHint(t *testing.T) {
	st, om, clk, ev := newTestPolicy(t)
	putRestriction(t, st, &store.Restriction{Target: "news.example", DailyLimit: 30 * time.Minute})

	day := clock.DayKey(clk.Now())
	require.NoError(t, st.AccumulateUsage(day, "news.example", time.Hour))

	_, err := om.Request("news.example", clk.Now())
	require.NoError(t, err)

	clk.Advance(6 * time.Minute) // past the 5 minute grant

	d, err := ev.Evaluate("news.example")
	require.NoError(t, err)
	require.Equal(t, Block, d.Action)
	require.Equal(t, ReasonLimitExceeded, d.Reason)
	require.False(t, d.OverrideAvailable, "budget spent, no further override today")
}

// Usage merged in from another device counts against the local limit the
// same as locally tracked usage.
func TestEvaluate_MergedRemoteUsage_CountsTowardLimit(t *testing.T) {
	st, _, clk, ev := newTestPolicy(t)
	putRestriction(t, st, &store.Restriction{Target: "news.example", DailyLimit: 30 * time.Minute})

	day := clock.DayKey(clk.Now())
	require.NoError(t, st.MergeUsageBatch([]*store.UsageTotal{
		{Day: day, Target: "news.example", Duration: 45 * time.Minute},
	}))

	d, err := ev.Evaluate("news.example")
	require.NoError(t, err)
	require.Equal(t, Block, d.Action)
}
