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
	restrictBlock   bool
	restrictUnblock bool
	restrictLimit   time.Duration
	restrictLevel   int

	restrictCmd = &cobra.Command{
		Use:   "restrict",
		Short: "Manage per-target blocks and daily limits",
	}

	restrictSetCmd = &cobra.Command{
		Use:   "set <target>",
		Short: "Create or update a restriction for a target",
		Long: `Create or update the restriction policy for one target.

A target can be blocked outright (--block) or given a daily time limit
(--limit). A block always wins over a limit. Changes take effect the next
time the target comes to the foreground and propagate to other devices on
the next sync, where the most recent edit to each target wins.`,
		Example: `  # Block a target outright
  usagectl restrict set games.example --block

  # Allow 30 minutes per day
  usagectl restrict set news.example --limit 30m

  # Lift a block but keep the limit
  usagectl restrict set news.example --unblock

  # Tag a restriction with a progressive level
  usagectl restrict set social.example --limit 15m --level 2`,
		Args: cobra.ExactArgs(1),
		RunE: runRestrictSet,
	}

	restrictListCmd = &cobra.Command{
		Use:   "list",
		Short: "List configured restrictions with today's usage",
		Args:  cobra.NoArgs,
		RunE:  runRestrictList,
	}

	restrictRmCmd = &cobra.Command{
		Use:   "rm <target>",
		Short: "Remove a target's restriction",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestrictRm,
	}
)

func init() {
	restrictSetCmd.Flags().BoolVar(&restrictBlock, "block", false, "block the target outright")
	restrictSetCmd.Flags().BoolVar(&restrictUnblock, "unblock", false, "lift an outright block")
	restrictSetCmd.Flags().DurationVar(&restrictLimit, "limit", 0, "daily time limit (e.g. 30m, 1h30m); 0 removes the limit")
	restrictSetCmd.Flags().IntVar(&restrictLevel, "level", 0, "progressive restriction level (1 or higher)")

	restrictCmd.AddCommand(restrictSetCmd)
	restrictCmd.AddCommand(restrictListCmd)
	restrictCmd.AddCommand(restrictRmCmd)
	RootCmd.AddCommand(restrictCmd)
}

func runRestrictSet(cmd *cobra.Command, args []string) error {
	target := args[0]

	if restrictBlock && restrictUnblock {
		return fmt.Errorf("--block and --unblock are mutually exclusive")
	}
	if restrictLimit < 0 {
		return fmt.Errorf("--limit cannot be negative")
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

	// Start from the existing record so one flag edits one field.
	r, err := st.GetRestriction(target)
	if err != nil {
		return err
	}
	if r == nil {
		r = &store.Restriction{Target: target, Level: 1}
	}

	if restrictBlock {
		r.IsBlocked = true
	}
	if restrictUnblock {
		r.IsBlocked = false
	}
	if cmd.Flags().Changed("limit") {
		r.DailyLimit = restrictLimit
	}
	if cmd.Flags().Changed("level") {
		r.Level = restrictLevel
	}
	r.LastModified = time.Now()
	r.Synced = false

	if err := st.PutRestriction(r); err != nil {
		return err
	}

	switch {
	case r.IsBlocked:
		fmt.Printf("✓ %s is now blocked\n", target)
	case r.DailyLimit > 0:
		fmt.Printf("✓ %s is limited to %s per day\n", target, output.FormatDuration(r.DailyLimit))
	default:
		fmt.Printf("✓ %s has no active block or limit\n", target)
	}
	return nil
}

func runRestrictList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	restrictions, err := st.ListRestrictions()
	if err != nil {
		return err
	}

	today := clock.DayKey(time.Now())
	totals, err := st.ListUsageForDay(today)
	if err != nil {
		return err
	}
	usedToday := make(map[string]time.Duration, len(totals))
	for _, u := range totals {
		usedToday[u.Target] = u.Duration
	}

	fmt.Print(output.RenderRestrictionTable(restrictions, usedToday))
	return nil
}

func runRestrictRm(cmd *cobra.Command, args []string) error {
	target := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteRestriction(target); err != nil {
		return err
	}
	fmt.Printf("✓ Removed restriction for %s\n", target)
	return nil
}
