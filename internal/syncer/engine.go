package syncer

import (
	"context"
	"fmt"
	"log"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/store"
)

// Engine runs full reconciliation passes against the sync endpoint.
//
// A pass is: build the local snapshot, fetch the remote one, merge, push the
// merged result, then apply the merged result locally and mark the pushed
// records synced. The push happens before any local write, so a transport
// failure at any point leaves local state exactly as it was. Passes are
// idempotent; running one twice converges to the same state.
type Engine struct {
	store     *store.Store
	transport Transport
	deviceID  string
	ownerID   string
	clk       clock.Clock
}

// NewEngine creates a sync engine for the given owner and device identity.
func NewEngine(st *store.Store, tr Transport, ownerID, deviceID string, clk clock.Clock) (*Engine, error) {
	if st == nil || tr == nil {
		return nil, fmt.Errorf("sync engine: store and transport are required")
	}
	if ownerID == "" {
		return nil, fmt.Errorf("sync engine: owner ID is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("sync engine: device ID is required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{store: st, transport: tr, deviceID: deviceID, ownerID: ownerID, clk: clk}, nil
}

// Result summarizes one completed reconciliation pass.
type Result struct {
	RemoteFound    bool
	Restrictions   int
	Sessions       int
	SessionsPushed int
	UsageKeys      int
}

// Run performs one reconciliation pass. Sync may be disabled in settings, in
// which case the pass is a no-op and Run returns (nil, nil).
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	settings, err := e.store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("sync: read settings: %w", err)
	}
	if !settings.SyncEnabled {
		return nil, nil
	}

	now := e.clk.Now()

	local, err := Build(e.store, e.deviceID, now)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	// Session IDs are local bookkeeping and never cross the wire, so capture
	// which rows the snapshot carries before anything is pushed.
	unsynced, err := e.store.ListUnsyncedSessions()
	if err != nil {
		return nil, fmt.Errorf("sync: list unsynced sessions: %w", err)
	}

	remote, err := e.transport.FetchSnapshot(ctx, e.ownerID)
	if err != nil {
		return nil, err
	}

	merged := Merge(local, remote)

	if err := e.transport.PushSnapshot(ctx, e.ownerID, merged); err != nil {
		return nil, err
	}

	// The push succeeded: the endpoint now holds the merged state. Local
	// writes from here on are convergence, and a failure mid-way is repaired
	// by the next pass re-merging the same data.
	if err := Apply(e.store, merged); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	ids := make([]int64, 0, len(unsynced))
	for _, s := range unsynced {
		ids = append(ids, s.ID)
	}
	if err := e.store.MarkSessionsSynced(ids); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	if err := e.store.MarkRestrictionsSynced(); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	if err := e.store.UpdateLastSync(now); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	return &Result{
		RemoteFound:    remote != nil,
		Restrictions:   len(merged.Restrictions),
		Sessions:       len(merged.Sessions),
		SessionsPushed: len(ids),
		UsageKeys:      len(merged.DailyUsage),
	}, nil
}

// RunLogged performs one pass and logs the outcome. Used by the daemon's
// periodic sync tick, where there is no caller to hand the error to.
func (e *Engine) RunLogged(ctx context.Context) {
	res, err := e.Run(ctx)
	switch {
	case err != nil:
		log.Printf("sync failed: %v", err)
	case res == nil:
		// Sync disabled in settings.
	default:
		log.Printf("sync ok: %d restrictions, %d sessions (%d pushed), %d usage keys",
			res.Restrictions, res.Sessions, res.SessionsPushed, res.UsageKeys)
	}
}
