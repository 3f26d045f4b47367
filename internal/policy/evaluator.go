// Package policy decides whether a target may hold the foreground right now.
//
// The evaluator is a pure read over the restriction and usage stores; the
// override manager is the only part that writes (it spends the daily
// override budget).
package policy

import (
	"fmt"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/store"
)

// Action is the enforcement outcome for a target.
type Action int

const (
	// Allow lets the target stay in the foreground.
	Allow Action = iota
	// Block tells the presentation layer to show the blocking screen.
	Block
)

// Block reasons. An explicit block is unconditional; a limit block can be
// neutralized by an active override grant.
const (
	ReasonExplicit      = "explicit"
	ReasonLimitExceeded = "limit_exceeded"
)

// Decision is the enforcement output consumed by the presentation layer.
// OverrideAvailable is a UI affordance hint: true only on a limit_exceeded
// block while the day's override budget for the target is not exhausted.
type Decision struct {
	Action            Action
	Reason            string
	OverrideAvailable bool
}

// Blocked reports whether the decision blocks the target.
func (d Decision) Blocked() bool { return d.Action == Block }

// Evaluator evaluates blocking policy for targets.
type Evaluator struct {
	store     *store.Store
	overrides *OverrideManager
	clk       clock.Clock
}

// NewEvaluator creates an Evaluator reading from st, consulting om for
// override grants, and taking the current time from clk.
func NewEvaluator(st *store.Store, om *OverrideManager, clk clock.Clock) *Evaluator {
	return &Evaluator{store: st, overrides: om, clk: clk}
}

// Evaluate decides the enforcement action for target.
//
// Order matters: an explicit block always wins, independent of time limits
// and of any active override grant. Overrides only neutralize limit blocks.
func (e *Evaluator) Evaluate(target string) (Decision, error) {
	r, err := e.store.GetRestriction(target)
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate %s: %w", target, err)
	}
	if r == nil {
		return Decision{Action: Allow}, nil
	}

	if r.IsBlocked {
		return Decision{Action: Block, Reason: ReasonExplicit}, nil
	}

	if r.DailyLimit > 0 {
		now := e.clk.Now()
		used, err := e.store.GetUsage(clock.DayKey(now), target)
		if err != nil {
			return Decision{}, fmt.Errorf("evaluate %s: %w", target, err)
		}
		if used >= r.DailyLimit {
			active, err := e.overrides.IsActive(target, now)
			if err != nil {
				return Decision{}, fmt.Errorf("evaluate %s: %w", target, err)
			}
			if active {
				return Decision{Action: Allow}, nil
			}
			available, err := e.overrides.Available(target, now)
			if err != nil {
				return Decision{}, fmt.Errorf("evaluate %s: %w", target, err)
			}
			return Decision{
				Action:            Block,
				Reason:            ReasonLimitExceeded,
				OverrideAvailable: available,
			}, nil
		}
	}

	return Decision{Action: Allow}, nil
}
