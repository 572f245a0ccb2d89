package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	checkoutForce bool
	checkoutTo    string
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <branch|latest> [paths...]",
	Short: "Restore a snapshot",
	Long: `Restore a snapshot into the working tree, the browse workspace or the
lab workspace.

Restoring into the working tree first checks for local changes that would be
overwritten. If there are any, nothing is touched unless --force is given, in
which case the current state is saved as a backup snapshot first. Files that
are not part of the snapshot are never deleted.

Examples:
  verz checkout auto-20251114-0930-12-345
  verz checkout latest src/main.go --force
  verz checkout latest --to lab`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckout,
}

func init() {
	rootCmd.AddCommand(checkoutCmd)

	checkoutCmd.Flags().BoolVarP(&checkoutForce, "force", "f", false, "Overwrite conflicting files after taking a backup snapshot")
	checkoutCmd.Flags().StringVar(&checkoutTo, "to", "working", "Destination: working|browse|lab")
}

func runCheckout(cmd *cobra.Command, args []string) error {
	switch checkoutTo {
	case "browse":
		return runBrowse(cmd, args[:1])
	case "lab":
		return runLab(cmd, args[:1])
	case "working", "":
	default:
		return fmt.Errorf("invalid --to: %s (must be: working, browse, lab)", checkoutTo)
	}

	mgr, _, err := newManager()
	if err != nil {
		return err
	}
	branch, err := resolveBranch(mgr, args[0])
	if err != nil {
		return err
	}

	report, err := mgr.CheckoutToWorking(branch, args[1:], checkoutForce)
	if err != nil {
		return err
	}

	if report.Aborted {
		fmt.Printf("Restore aborted: %d file(s) would be overwritten:\n\n", len(report.Conflicts))
		for _, c := range report.Conflicts {
			fmt.Printf("  %s\n", c)
		}
		fmt.Println("\nUse --force to restore anyway (a backup snapshot is taken first).")
		return fmt.Errorf("restore of %s aborted due to conflicts", branch)
	}

	if report.BackupBranch != "" {
		fmt.Printf("Backup snapshot: %s\n", report.BackupBranch)
	}
	fmt.Printf("✓ Restored %d file(s) from %s\n", report.Copied, branch)
	for _, m := range report.Missing {
		fmt.Printf("  not in snapshot: %s\n", m)
	}
	return nil
}
