package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagecontrol/usagectl/internal/clock"
	"github.com/usagecontrol/usagectl/internal/output"
	"github.com/usagecontrol/usagectl/internal/policy"
)

var (
	overrideCmd = &cobra.Command{
		Use:   "override",
		Short: "Grant and inspect emergency overrides",
	}

	overrideGrantCmd = &cobra.Command{
		Use:   "grant <target>",
		Short: "Grant a temporary override for a limit-blocked target",
		Long: `Grant a temporary override that lets a limit-blocked target through.

Overrides neutralize limit blocks only; an explicitly blocked target
stays blocked. Each target has a small daily budget (one by default),
and a grant burns budget immediately whether or not the target is
opened. Expiry ends the grace period; it does not restore budget.`,
		Example: `  # Burn today's override for a target
  usagectl override grant news.example`,
		Args: cobra.ExactArgs(1),
		RunE: runOverrideGrant,
	}

	overrideListCmd = &cobra.Command{
		Use:   "list",
		Short: "List today's override grants",
		Args:  cobra.NoArgs,
		RunE:  runOverrideList,
	}
)

func init() {
	overrideCmd.AddCommand(overrideGrantCmd)
	overrideCmd.AddCommand(overrideListCmd)
	RootCmd.AddCommand(overrideCmd)
}

func runOverrideGrant(cmd *cobra.Command, args []string) error {
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

	overrides := policy.NewOverrideManager(st, cfg.Override.Duration, cfg.Override.PerDay)
	grant, err := overrides.Request(target, time.Now())
	if err != nil {
		// Denials already read well ("override denied for X: reason").
		return err
	}

	fmt.Printf("✓ Override granted for %s until %s\n",
		target, grant.ExpiresAt.Local().Format("15:04:05"))
	return nil
}

func runOverrideList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now()
	grants, err := st.ListOverridesForDay(clock.DayKey(now))
	if err != nil {
		return err
	}

	fmt.Print(output.RenderOverrideTable(grants, now))
	return nil
}
