package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usagecontrol/usagectl/internal/store"
)

func TestRequest_GrantExpiresAfterDuration(t *testing.T) {
	_, om, clk, _ := newTestPolicy(t)
	now := clk.Now()

	g, err := om.Request("news.example", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(5*time.Minute), g.ExpiresAt)

	active, err := om.IsActive("news.example", now.Add(4*time.Minute))
	require.NoError(t, err)
	require.True(t, active)

	active, err = om.IsActive("news.example", now.Add(6*time.Minute))
	require.NoError(t, err)
	require.False(t, active)
}

func TestRequest_SecondGrantSameDay_Denied(t *testing.T) {
	_, om, clk, _ := newTestPolicy(t)
	now := clk.Now()

	_, err := om.Request("news.example", now)
	require.NoError(t, err)

	_, err = om.Request("news.example", now.Add(10*time.Minute))
	require.Error(t, err)
	require.True(t, IsDenied(err))

	var de *DeniedError
	require.True(t, errors.As(err, &de))
	require.Equal(t, DenyDailyLimit, de.Reason)
}

// The budget is per target: spending it on one target leaves others intact.
func TestRequest_BudgetIsPerTarget(t *testing.T) {
	_, om, clk, _ := newTestPolicy(t)
	now := clk.Now()

	_, err := om.Request("news.example", now)
	require.NoError(t, err)

	_, err = om.Request("social.example", now)
	require.NoError(t, err)
}

// A new calendar day resets the budget without any explicit reset step.
func TestRequest_NewDayNewBudget(t *testing.T) {
	_, om, clk, _ := newTestPolicy(t)

	_, err := om.Request("news.example", clk.Now())
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	_, err = om.Request("news.example", clk.Now())
	require.NoError(t, err)
}

func TestRequest_DeniedWhenDisabledInSettings(t *testing.T) {
	st, om, clk, _ := newTestPolicy(t)
	require.NoError(t, st.PutSettings(&store.Settings{
		CurrentLevel:  1,
		AllowOverride: false,
		LastModified:  clk.Now(),
	}))

	_, err := om.Request("news.example", clk.Now())
	require.Error(t, err)

	var de *DeniedError
	require.True(t, errors.As(err, &de))
	require.Equal(t, DenyDisabled, de.Reason)
}

func TestAvailable_TracksBudgetAndSettings(t *testing.T) {
	st, om, clk, _ := newTestPolicy(t)
	now := clk.Now()

	ok, err := om.Available("news.example", now)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = om.Request("news.example", now)
	require.NoError(t, err)

	ok, err = om.Available("news.example", now)
	require.NoError(t, err)
	require.False(t, ok, "budget spent")

	require.NoError(t, st.PutSettings(&store.Settings{
		CurrentLevel:  1,
		AllowOverride: false,
		LastModified:  now,
	}))
	ok, err = om.Available("other.example", now)
	require.NoError(t, err)
	require.False(t, ok, "disabled in settings")
}
