package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var diffPath string

var diffCmd = &cobra.Command{
	Use:   "diff <branch|latest> [other-branch]",
	Short: "Show differences between snapshots or against the working tree",
	Long: `With two snapshots, print the git patch between them (renames detected).
With one, print a unified diff from that snapshot to the working tree.

Examples:
  verz diff auto-20251114-0930-12-345 auto-20251114-1015-02-001
  verz diff latest
  verz diff latest --path src/main.go`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().StringVar(&diffPath, "path", "", "Limit a working-tree diff to one file")
}

func runDiff(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}
	from, err := resolveBranch(mgr, args[0])
	if err != nil {
		return err
	}

	var patch string
	if len(args) == 2 {
		if diffPath != "" {
			return fmt.Errorf("--path only applies to a diff against the working tree")
		}
		to, err := resolveBranch(mgr, args[1])
		if err != nil {
			return err
		}
		patch, err = mgr.Diff(from, to)
		if err != nil {
			return err
		}
	} else {
		patch, err = mgr.DiffAgainstWorking(from, diffPath)
		if err != nil {
			return err
		}
	}

	if patch == "" {
		fmt.Println("No differences")
		return nil
	}
	fmt.Print(patch)
	return nil
}
