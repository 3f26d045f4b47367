package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/output"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile with the other devices now",
	Long: `Run one reconciliation pass against the configured sync endpoint.

The pass fetches the owner's remote snapshot, merges it with local state
(most recent edit wins for restrictions and settings, larger total wins
for usage, sessions are unioned), pushes the merged result, and applies
it locally. A transport failure aborts the pass with local state
untouched.

Requires owner_id, sync.enabled and sync.endpoint in the config file.
The daemon also syncs on a schedule; this command is for syncing on
demand.`,
	Example: `  # Sync now
  usagectl sync`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Sync.Enabled {
		return fmt.Errorf("sync is disabled: set sync.enabled and sync.endpoint in the config file")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newSyncEngine(cfg, st, clock.System{})
	if err != nil {
		return err
	}

	spinner := output.NewSpinner("Syncing with endpoint...")
	spinner.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := engine.Run(ctx)
	if err != nil {
		spinner.Stop()
		return err
	}
	if res == nil {
		spinner.StopWithMessage("Sync is disabled in settings; nothing to do.")
		return nil
	}

	spinner.StopWithMessage("✓ Sync complete")
	fmt.Printf("\n  Restrictions: %d\n", res.Restrictions)
	fmt.Printf("  Sessions:     %d (%d pushed from this device)\n", res.Sessions, res.SessionsPushed)
	fmt.Printf("  Usage keys:   %d\n", res.UsageKeys)
	if !res.RemoteFound {
		fmt.Printf("\n  No remote snapshot existed yet; this device seeded it.\n")
	}
	return nil
}
