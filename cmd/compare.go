package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Diff the working tree against the latest snapshot",
	Long: `Capture the working tree into a temporary snapshot, print the patch from
the latest snapshot to it, then drop the temporary snapshot.`,
	Args: cobra.NoArgs,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	patch, found, err := mgr.CompareWithLatest()
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("No snapshots found")
		return nil
	}
	if patch == "" {
		fmt.Println("No changes since the latest snapshot")
		return nil
	}
	fmt.Print(patch)
	return nil
}
