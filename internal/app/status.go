package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/output"
	"github.com/usagecontrol/usagectl/internal/store"
	"github.com/usagecontrol/usagectl/internal/tracker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status and tracking statistics",
	Long: `Display the current status of the usagectl daemon and tracking statistics.

Shows:
  • Daemon running status and PID
  • Today's tracked time and session count
  • Restrictions configured and how many are over limit
  • Sync state: unsynced sessions and time of last reconciliation

This command helps verify that usage tracking is working correctly.`,
	Example: `  # Check status
  usagectl status`,
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	daemonRunning, err := tracker.IsDaemonRunning(pidFile(cfg))
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	var pid int
	if daemonRunning {
		if pidData, err := os.ReadFile(pidFile(cfg)); err == nil {
			pid, _ = strconv.Atoi(strings.TrimSpace(string(pidData)))
		}
	}

	if _, err := os.Stat(dbPath(cfg)); os.IsNotExist(err) {
		fmt.Println("usagectl is not set up yet. Run 'usagectl track --daemon' to get started.")
		return nil
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now()
	today := clock.DayKey(now)

	var usedToday time.Duration
	totals, err := st.ListUsageForDay(today)
	if err == nil {
		for _, u := range totals {
			usedToday += u.Duration
		}
	}
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sessionsToday := countSessionsSince(st, startOfDay)

	restrictions, _ := st.ListRestrictions()
	overLimit := 0
	for _, r := range restrictions {
		if r.DailyLimit <= 0 {
			continue
		}
		if used, err := st.GetUsage(today, r.Target); err == nil && used >= r.DailyLimit {
			overLimit++
		}
	}

	unsynced, _ := st.ListUnsyncedSessions()
	settings, err := st.GetSettings()
	if err != nil {
		return err
	}

	const label = "%-14s"

	fmt.Println()

	if daemonRunning {
		fmt.Printf(label+"running (since %s, PID %d)\n", "Tracking:", daemonSince(pidFile(cfg)), pid)
	} else {
		fmt.Printf(label+"stopped  (run 'usagectl track --daemon')\n", "Tracking:")
	}

	fmt.Printf(label+"%s across %d sessions today\n", "Usage:",
		output.FormatDuration(usedToday), sessionsToday)

	if daemonRunning && sessionsToday == 0 {
		fmt.Printf("              ⚠ Daemon running but no sessions today. Check that your\n")
		fmt.Printf("              platform integration is invoking 'usagectl-hook'.\n")
	}

	fmt.Printf(label+"%d configured · %d over limit today\n", "Restrictions:",
		len(restrictions), overLimit)

	switch {
	case !cfg.Sync.Enabled:
		fmt.Printf(label+"disabled\n", "Sync:")
	case !settings.SyncEnabled:
		fmt.Printf(label+"paused in settings\n", "Sync:")
	case settings.LastSync.IsZero():
		fmt.Printf(label+"never synced · %d sessions pending\n", "Sync:", len(unsynced))
	default:
		fmt.Printf(label+"last synced %s · %d sessions pending\n", "Sync:",
			statusAge(time.Since(settings.LastSync)), len(unsynced))
	}

	if fi, err := os.Stat(dbPath(cfg)); err == nil {
		fmt.Printf(label+"%s (%d KB)\n", "Database:", dbPath(cfg), fi.Size()/1024)
	}

	fmt.Println()
	return nil
}

// countSessionsSince counts closed sessions starting at or after since.
func countSessionsSince(st *store.Store, since time.Time) int {
	sessions, err := st.ListSessions(since)
	if err != nil {
		return 0
	}
	return len(sessions)
}

// daemonSince returns a human-readable age of the PID file (proxy for daemon start time).
func daemonSince(pidFile string) string {
	fi, err := os.Stat(pidFile)
	if err != nil {
		return "unknown"
	}
	return statusAge(time.Since(fi.ModTime()))
}

// statusAge formats an age in human-readable form.
func statusAge(d time.Duration) string {
	switch {
	case d < 5*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%d seconds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
