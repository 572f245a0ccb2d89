package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cleanupKeep   int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	Aliases: []string{"prune"},
	Short:   "Remove old snapshots, keeping the newest",
	Long: `Delete all but the newest snapshots.

The default number to keep is configured in ~/.config/verz/config.toml:
  [cleanup]
  keep = 20

Examples:
  verz cleanup --dry-run     # Show what would be removed
  verz cleanup --keep 5`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().IntVar(&cleanupKeep, "keep", -1, "Number of snapshots to keep (default: cleanup.keep)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without deleting")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	mgr, cfg, err := newManager()
	if err != nil {
		return err
	}

	keep := cleanupKeep
	if keep < 0 {
		keep = cfg.Cleanup.Keep
	}

	if cleanupDryRun {
		branches, err := mgr.Store().List()
		if err != nil {
			return err
		}
		if len(branches) <= keep {
			fmt.Printf("Nothing to remove (%d snapshot(s), keeping %d)\n", len(branches), keep)
			return nil
		}
		doomed := branches[:len(branches)-keep]
		fmt.Printf("Would remove %d snapshot(s):\n\n", len(doomed))
		for _, b := range doomed {
			fmt.Printf("  %s\n", b)
		}
		fmt.Println("\nThis is a dry run. Run without --dry-run to remove them.")
		return nil
	}

	outcomes, err := mgr.Cleanup(keep)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Printf("Nothing to remove (keeping %d)\n", keep)
		return nil
	}

	failed := 0
	for _, o := range outcomes {
		if o.Deleted {
			fmt.Printf("  ✓ Deleted %s\n", o.Branch)
		} else {
			failed++
			fmt.Printf("  ✗ %s: %v\n", o.Branch, o.Err)
		}
	}
	fmt.Printf("\n✓ Removed %d snapshot(s)\n", len(outcomes)-failed)
	if failed > 0 {
		return fmt.Errorf("failed to remove %d snapshot(s)", failed)
	}
	return nil
}
