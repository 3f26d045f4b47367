package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/usagecontrol/usagectl/internal/config"
	"github.com/usagecontrol/usagectl/internal/store"
)

var (
	dataDirFlag string

	// RootCmd is the root command for usagectl
	RootCmd = &cobra.Command{
		Use:   "usagectl",
		Short: "Usage tracking and restriction enforcement across your devices",
		Long: `usagectl tracks how long apps and sites hold your attention, enforces
per-target blocks and daily time limits, and keeps every device belonging
to the same owner converging on one view of the rules and the totals.

IMPORTANT: You must run 'usagectl track --daemon' for sessions to be
recorded. Without the daemon running, restrictions exist but nothing is
tracked or enforced.

Quick Start:
  1. usagectl track --daemon
  2. usagectl restrict set news.example --limit 30m
  3. usagectl usage
  4. usagectl status

Examples:
  # Start tracking in the background
  usagectl track --daemon

  # Block a target outright
  usagectl restrict set games.example --block

  # See today's totals against their limits
  usagectl usage

  # Burn today's emergency override for a target
  usagectl override grant news.example

  # Reconcile with your other devices now
  usagectl sync`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Println("usagectl: usage tracking and restriction enforcement")
			fmt.Println()
			if _, err := os.Stat(dbPath(cfg)); os.IsNotExist(err) {
				fmt.Println("Run 'usagectl track --daemon' to start tracking.")
				fmt.Println("Run 'usagectl --help' for the full reference.")
			} else {
				fmt.Println("Tip: Run 'usagectl status' to check tracking status.")
				fmt.Println("     Run 'usagectl usage' to see today's totals.")
				fmt.Println("     Run 'usagectl --help' for all commands.")
			}
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default: ~/.usagectl)")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig reads the config file, applying the --data-dir flag on top.
func loadConfig() (*config.Config, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	return cfg, nil
}

// ensureDataDir creates the data directory if needed and returns it.
func ensureDataDir(cfg *config.Config) (string, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return cfg.DataDir, nil
}

func dbPath(cfg *config.Config) string     { return filepath.Join(cfg.DataDir, "usagectl.db") }
func pidFile(cfg *config.Config) string    { return filepath.Join(cfg.DataDir, "track.pid") }
func logFile(cfg *config.Config) string    { return filepath.Join(cfg.DataDir, "track.log") }
func spoolPath(cfg *config.Config) string  { return filepath.Join(cfg.DataDir, "events.log") }
func offsetPath(cfg *config.Config) string { return filepath.Join(cfg.DataDir, "events.offset") }

// openStore opens the database under the data directory, creating the schema
// on first use.
func openStore(cfg *config.Config) (*store.Store, error) {
	if _, err := ensureDataDir(cfg); err != nil {
		return nil, err
	}
	st, err := store.New(dbPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return st, nil
}
