package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/output"
	"github.com/usagecontrol/usagectl/internal/store"
)

var (
	usageDay string

	usageCmd = &cobra.Command{
		Use:   "usage",
		Short: "Show accumulated usage per target",
		Long: `Show accumulated usage per target for one calendar day, alongside each
target's limit.

Days are local calendar days. Totals include time reconciled in from
other devices: after a sync, a target used on two devices shows the
larger of the two observations, never their sum.`,
		Example: `  # Today's totals
  usagectl usage

  # A specific day
  usagectl usage --day 2026-08-20`,
		Args: cobra.NoArgs,
		RunE: runUsage,
	}
)

func init() {
	usageCmd.Flags().StringVar(&usageDay, "day", "", "day to report, YYYY-MM-DD (default: today)")
	RootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	day := usageDay
	if day == "" {
		day = clock.DayKey(time.Now())
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		return fmt.Errorf("invalid --day %q: want YYYY-MM-DD", day)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	totals, err := st.ListUsageForDay(day)
	if err != nil {
		return err
	}
	restrictions, err := st.ListRestrictions()
	if err != nil {
		return err
	}
	byTarget := make(map[string]*store.Restriction, len(restrictions))
	for _, r := range restrictions {
		byTarget[r.Target] = r
	}

	fmt.Print(output.RenderUsageTable(day, totals, byTarget))
	return nil
}
