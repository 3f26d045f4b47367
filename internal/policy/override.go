package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/store"
)

// Defaults for override grants. Both are configurable via config.
const (
	DefaultOverrideDuration = 5 * time.Minute
	DefaultOverridesPerDay  = 1
)

// Denial reasons carried by DeniedError.
const (
	DenyDailyLimit = "daily_override_limit"
	DenyDisabled   = "overrides_disabled"
)

// DeniedError is returned when an override request is refused.
type DeniedError struct {
	Target string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("override denied for %s: %s", e.Target, e.Reason)
}

// IsDenied reports whether err is an override denial, unwrapping as needed.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

// OverrideManager grants time-boxed exemptions from time-limit blocks,
// enforcing a per-day per-target budget.
type OverrideManager struct {
	store    *store.Store
	duration time.Duration
	perDay   int
}

// NewOverrideManager creates a manager granting overrides of the given
// duration, at most perDay per target per calendar day. Non-positive values
// fall back to the defaults.
func NewOverrideManager(st *store.Store, duration time.Duration, perDay int) *OverrideManager {
	if duration <= 0 {
		duration = DefaultOverrideDuration
	}
	if perDay <= 0 {
		perDay = DefaultOverridesPerDay
	}
	return &OverrideManager{store: st, duration: duration, perDay: perDay}
}

// Request grants an override for target if the day's budget allows it.
// The budget is spent at grant time; an expired grant is not refunded.
func (m *OverrideManager) Request(target string, now time.Time) (*store.OverrideGrant, error) {
	settings, err := m.store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("request override for %s: %w", target, err)
	}
	if !settings.AllowOverride {
		return nil, &DeniedError{Target: target, Reason: DenyDisabled}
	}

	day := clock.DayKey(now)

	count, err := m.store.CountOverrides(day, target)
	if err != nil {
		return nil, fmt.Errorf("request override for %s: %w", target, err)
	}
	if count >= m.perDay {
		return nil, &DeniedError{Target: target, Reason: DenyDailyLimit}
	}

	grant := &store.OverrideGrant{
		Target:    target,
		Day:       day,
		GrantedAt: now,
		ExpiresAt: now.Add(m.duration),
	}
	id, err := m.store.InsertOverride(grant)
	if err != nil {
		return nil, fmt.Errorf("request override for %s: %w", target, err)
	}
	grant.ID = id
	return grant, nil
}

// IsActive reports whether target has an unexpired grant at now. Expired
// grants are lazily treated as absent.
func (m *OverrideManager) IsActive(target string, now time.Time) (bool, error) {
	g, err := m.store.ActiveOverride(target, now)
	if err != nil {
		return false, err
	}
	return g != nil, nil
}

// Available reports whether a new grant could still be issued for target
// today. Used as the UI affordance hint on limit blocks.
func (m *OverrideManager) Available(target string, now time.Time) (bool, error) {
	settings, err := m.store.GetSettings()
	if err != nil {
		return false, err
	}
	if !settings.AllowOverride {
		return false, nil
	}

	count, err := m.store.CountOverrides(clock.DayKey(now), target)
	if err != nil {
		return false, err
	}
	return count < m.perDay, nil
}
