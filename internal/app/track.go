package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/config"
	"github.com/usagecontrol/usagectl/internal/output"
	"github.com/usagecontrol/usagectl/internal/policy"
	"github.com/usagecontrol/usagectl/internal/store"
	"github.com/usagecontrol/usagectl/internal/syncer"
	"github.com/usagecontrol/usagectl/internal/tracker"
)

var (
	trackDaemon      bool
	trackDaemonChild bool
	trackStop        bool

	trackCmd = &cobra.Command{
		Use:   "track",
		Short: "Track foreground usage and enforce restrictions",
		Long: `Start the tracking loop: drain foreground-change events from the spool,
turn them into usage sessions, and evaluate restrictions as targets come
to the foreground.

Events arrive via 'usagectl-hook', which platform integrations (browser
extensions, window-manager hooks, launchers) invoke on every foreground
change. The daemon picks them up within moments via filesystem
notification, with a polling fallback.

Track modes:
  • Foreground (default): run in the current terminal, Ctrl+C to stop
  • Daemon: run as a background process
  • Stop: stop a running daemon

The open session is flushed on shutdown, so tracked time is never lost to
a restart.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  usagectl track

  # Run as background daemon
  usagectl track --daemon

  # Stop running daemon
  usagectl track --stop`,
		RunE: runTrack,
	}
)

func init() {
	trackCmd.Flags().BoolVar(&trackDaemon, "daemon", false, "run as background daemon")
	trackCmd.Flags().BoolVar(&trackDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	trackCmd.Flags().BoolVar(&trackStop, "stop", false, "stop running daemon")

	// Hide the internal daemon-child flag from help
	trackCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if trackStop {
		return stopTrackDaemon(cfg)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	clk := clock.System{}
	overrides := policy.NewOverrideManager(st, cfg.Override.Duration, cfg.Override.PerDay)
	evaluator := policy.NewEvaluator(st, overrides, clk)
	tr := tracker.New(st, evaluator)

	opts := tracker.MonitorOptions{
		SpoolPath:  spoolPath(cfg),
		OffsetPath: offsetPath(cfg),
		Retention:  time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
	if cfg.Sync.Enabled {
		engine, err := newSyncEngine(cfg, st, clk)
		if err != nil {
			return err
		}
		opts.SyncInterval = cfg.Sync.Interval
		opts.SyncFn = func() error {
			engine.RunLogged(context.Background())
			return nil
		}
	}

	mon, err := tracker.NewMonitor(st, tr, clk, opts)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	if trackDaemon {
		return startTrackDaemon(cfg, mon)
	}
	if trackDaemonChild {
		// Daemon child: stdout/stderr are redirected to the log file.
		return mon.RunDaemon(pidFile(cfg))
	}
	return runTrackForeground(mon)
}

// newSyncEngine wires the reconciliation engine from config.
func newSyncEngine(cfg *config.Config, st *store.Store, clk clock.Clock) (*syncer.Engine, error) {
	transport := syncer.NewHTTPTransport(cfg.Sync.Endpoint, 30*time.Second)
	engine, err := syncer.NewEngine(st, transport, cfg.OwnerID, cfg.DeviceID, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}
	return engine, nil
}

func stopTrackDaemon(cfg *config.Config) error {
	running, err := tracker.IsDaemonRunning(pidFile(cfg))
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon...")
	spinner.Start()
	if err := tracker.StopDaemon(pidFile(cfg)); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")

	return nil
}

func startTrackDaemon(cfg *config.Config, mon *tracker.Monitor) error {
	running, err := tracker.IsDaemonRunning(pidFile(cfg))
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon already running (PID file: %s)", pidFile(cfg))
	}

	spinner := output.NewSpinner("Starting daemon...")
	spinner.Start()
	if err := mon.StartDaemon(pidFile(cfg), logFile(cfg)); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Printf("\nUsage tracking daemon started\n")
	fmt.Printf("  PID file: %s\n", pidFile(cfg))
	fmt.Printf("  Log file: %s\n", logFile(cfg))
	fmt.Printf("\nTo stop: usagectl track --stop\n")

	return nil
}

func runTrackForeground(mon *tracker.Monitor) error {
	fmt.Println("Starting usage tracking (press Ctrl+C to stop)...")
	fmt.Println()

	if err := mon.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	fmt.Println("Tracking foreground usage. Feed events with 'usagectl-hook <target>'.")
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	if err := mon.Stop(); err != nil {
		return fmt.Errorf("failed to stop monitor: %w", err)
	}

	fmt.Println("Usage tracking stopped")

	return nil
}
