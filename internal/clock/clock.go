// Package clock provides wall-clock access and local day-boundary math.
//
// All daily usage counters and override budgets are keyed by the local
// calendar day, so every component that needs "today" goes through DayKey
// rather than formatting times itself.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time. Production code uses System; tests
// substitute a Fake to drive day boundaries and grant expiry deterministically.
type Clock interface {
	Now() time.Time
}

// System reads the real system clock.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// DayKey returns the local calendar day of t as "YYYY-MM-DD".
func DayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// NextMidnight returns the first instant of the local day after t.
func NextMidnight(t time.Time) time.Time {
	t = t.Local()
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// Fake is a manually advanced Clock for tests.
type Fake struct {
	mu sync.Mutex
	t  time.Time
}

// NewFake creates a Fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{t: t}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// Set jumps the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}
