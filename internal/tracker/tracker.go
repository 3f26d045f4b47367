// Package tracker turns raw foreground-change events into committed usage
// sessions and enforcement decisions.
//
// The tracker is a two-state machine: Idle, or Active on exactly one target.
// Every transition away from an active target closes its session (one append
// to the session log plus one accumulate into the day's usage total) before
// policy is evaluated for the incoming target. The tracker is not safe for
// concurrent use; the monitor feeds it from a single goroutine, which is the
// serialization point for all core state mutation on a device.
package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/policy"
	"github.com/usagecontrol/usagectl/internal/store"
)

// IdleTarget is the spool marker for "no target has the foreground"
// (screen off, browser closed, device sleep).
const IdleTarget = "-"

// ErrInvalidTarget is returned for targets the tracker refuses to open a
// session on.
var ErrInvalidTarget = errors.New("invalid target")

// Tracker maintains the currently open session and commits closed ones.
type Tracker struct {
	store  *store.Store
	policy *policy.Evaluator

	current        string    // "" when idle
	startedAt      time.Time
	currentBlocked bool      // decision at open time, recorded on the session
	highWater      time.Time // latest timestamp seen, for clamping
}

// New creates a Tracker committing into st and evaluating policy with ev.
func New(st *store.Store, ev *policy.Evaluator) *Tracker {
	return &Tracker{store: st, policy: ev}
}

// Active returns the open session's target and start time, if any.
func (t *Tracker) Active() (target string, since time.Time, ok bool) {
	return t.current, t.startedAt, t.current != ""
}

// OnForegroundChange handles "target took the foreground at ts".
//
// Repeated events for the already-active target are de-duplicated: no session
// churn, the policy decision is simply re-evaluated. Out-of-order timestamps
// are clamped forward to the latest time already seen, so a committed
// duration is never negative.
//
// If committing the outgoing session fails, that session stays open and the
// error is returned; the caller retries the same event after the storage
// issue clears. Usage is never dropped to make progress.
func (t *Tracker) OnForegroundChange(target string, ts time.Time) (policy.Decision, error) {
	if target == "" || target == IdleTarget || strings.ContainsAny(target, ",|\n\r") {
		return policy.Decision{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	ts = t.clamp(ts)

	if target == t.current {
		return t.policy.Evaluate(target)
	}

	if t.current != "" {
		if err := t.closeSession(ts); err != nil {
			return policy.Decision{}, err
		}
	}

	decision, err := t.policy.Evaluate(target)
	if err != nil {
		return policy.Decision{}, err
	}

	t.current = target
	t.startedAt = ts
	t.currentBlocked = decision.Blocked()
	return decision, nil
}

// OnIdle handles "the foreground went away at ts" (screen off, tab closed).
// Closes the open session, if any, and leaves the tracker Idle.
func (t *Tracker) OnIdle(ts time.Time) error {
	ts = t.clamp(ts)
	if t.current == "" {
		return nil
	}
	return t.closeSession(ts)
}

// OnTeardown flushes the open session using the teardown timestamp and
// leaves the tracker inert. Called on daemon shutdown.
func (t *Tracker) OnTeardown(ts time.Time) error {
	return t.OnIdle(ts)
}

// closeSession commits the open session: one atomic write covering the
// session-log append and the usage accumulate for the day the session
// started. The in-memory session is cleared only after the commit succeeds.
func (t *Tracker) closeSession(end time.Time) error {
	duration := end.Sub(t.startedAt)
	if duration < 0 {
		duration = 0
	}

	sess := &store.Session{
		Target:     t.current,
		StartTime:  t.startedAt,
		EndTime:    end,
		Duration:   duration,
		WasBlocked: t.currentBlocked,
	}
	if err := t.store.CommitSession(sess, clock.DayKey(t.startedAt)); err != nil {
		return fmt.Errorf("close session for %s: %w", t.current, err)
	}

	t.current = ""
	t.startedAt = time.Time{}
	t.currentBlocked = false
	return nil
}

// clamp enforces non-decreasing event timestamps. A stale timestamp is
// raised to the high-water mark rather than rejected, which bounds any
// resulting session duration at zero.
//
// Timestamps are truncated to milliseconds on ingest: that is the precision
// sessions carry on the sync wire, and keeping storage at the same precision
// makes the (target, start, end) session identity stable across devices.
func (t *Tracker) clamp(ts time.Time) time.Time {
	ts = ts.Truncate(time.Millisecond)
	if ts.Before(t.highWater) {
		return t.highWater
	}
	t.highWater = ts
	return ts
}
