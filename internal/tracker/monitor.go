package tracker

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/store"
)

// Default monitor intervals.
const (
	DefaultDrainInterval = 30 * time.Second
	DefaultRetention     = 30 * 24 * time.Hour
)

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	SpoolPath  string
	OffsetPath string
	// DrainInterval is the fallback polling interval. fsnotify normally
	// triggers a drain the moment the hook appends an event; the ticker
	// covers filesystems where change notification is unreliable.
	DrainInterval time.Duration
	// Retention bounds how long closed sessions are kept before the nightly
	// purge removes them.
	Retention time.Duration
	// SyncInterval and SyncFn schedule periodic reconciliation passes.
	// SyncFn nil disables them.
	SyncInterval time.Duration
	SyncFn       func() error
}

// Monitor owns the daemon's event loop. It drains the foreground-event spool
// into the Tracker and runs the scheduled maintenance work (the midnight
// day-boundary tick, session purge and periodic sync) from one goroutine,
// so nothing ever observes a half-committed session close.
type Monitor struct {
	store   *store.Store
	tracker *Tracker
	clk     clock.Clock
	opts    MonitorOptions

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a Monitor. The spool directory is created if missing so
// the fsnotify watch can be established before the hook writes anything.
func NewMonitor(st *store.Store, tr *Tracker, clk clock.Clock, opts MonitorOptions) (*Monitor, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if tr == nil {
		return nil, fmt.Errorf("tracker cannot be nil")
	}
	if opts.SpoolPath == "" || opts.OffsetPath == "" {
		return nil, fmt.Errorf("spool and offset paths are required")
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = DefaultDrainInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Monitor{
		store:   st,
		tracker: tr,
		clk:     clk,
		opts:    opts,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start drains any backlog already in the spool, then begins watching it.
func (m *Monitor) Start() error {
	spoolDir := filepath.Dir(m.opts.SpoolPath)
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	if err := m.drain(); err != nil {
		log.Printf("monitor: initial spool drain: %v", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	// Watch the directory, not the file: the spool may not exist yet, and
	// hooks may rotate it via rename.
	if err := fsw.Add(spoolDir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}
	m.fsw = fsw

	m.wg.Add(1)
	go m.run()

	return nil
}

// run is the daemon event loop. Everything that mutates tracker or store
// state on this device goes through here, in arrival order.
func (m *Monitor) run() {
	defer m.wg.Done()

	drainTicker := time.NewTicker(m.opts.DrainInterval)
	defer drainTicker.Stop()

	midnight := time.NewTimer(time.Until(clock.NextMidnight(m.clk.Now())))
	defer midnight.Stop()

	var syncCh <-chan time.Time
	if m.opts.SyncFn != nil && m.opts.SyncInterval > 0 {
		syncTicker := time.NewTicker(m.opts.SyncInterval)
		defer syncTicker.Stop()
		syncCh = syncTicker.C
	}

	for {
		select {
		case ev, ok := <-m.fsw.Events:
			if !ok {
				return
			}
			if ev.Name == m.opts.SpoolPath && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := m.drain(); err != nil {
					log.Printf("monitor: spool drain: %v", err)
				}
			}

		case err, ok := <-m.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("monitor: watch error: %v", err)

		case <-drainTicker.C:
			if err := m.drain(); err != nil {
				log.Printf("monitor: spool drain: %v", err)
			}

		case <-midnight.C:
			m.dayBoundary()
			midnight.Reset(time.Until(clock.NextMidnight(m.clk.Now())))

		case <-syncCh:
			if err := m.opts.SyncFn(); err != nil {
				// Best-effort: a failed pass changes nothing locally and is
				// retried on the next tick.
				log.Printf("monitor: sync pass: %v", err)
			}

		case <-m.stopCh:
			if err := m.drain(); err != nil {
				log.Printf("monitor: final spool drain: %v", err)
			}
			if err := m.tracker.OnTeardown(m.clk.Now()); err != nil {
				log.Printf("monitor: teardown flush: %v", err)
			}
			return
		}
	}
}

// drain feeds pending spool events to the tracker.
func (m *Monitor) drain() error {
	return DrainSpool(m.tracker, m.opts.SpoolPath, m.opts.OffsetPath)
}

// dayBoundary runs the midnight maintenance. Usage totals need no reset:
// they are keyed by calendar day, so the new day simply starts at zero while
// history stays queryable. What does need work is storage hygiene: sessions
// past the retention window and override grants from previous days.
func (m *Monitor) dayBoundary() {
	now := m.clk.Now()

	if n, err := m.store.PurgeSessionsBefore(now.Add(-m.opts.Retention)); err != nil {
		log.Printf("monitor: session purge: %v", err)
	} else if n > 0 {
		log.Printf("monitor: purged %d sessions older than %s", n, m.opts.Retention)
	}

	if _, err := m.store.PurgeExpiredOverrides(now, clock.DayKey(now)); err != nil {
		log.Printf("monitor: override purge: %v", err)
	}
}

// Stop halts the monitor, flushing pending events and the open session.
func (m *Monitor) Stop() error {
	close(m.stopCh)
	m.wg.Wait()

	if m.fsw != nil {
		if err := m.fsw.Close(); err != nil {
			return fmt.Errorf("failed to close filesystem watcher: %w", err)
		}
	}
	return nil
}
