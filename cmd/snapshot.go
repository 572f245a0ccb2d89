package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var snapshotMessage string

var snapshotCmd = &cobra.Command{
	Use:     "snapshot [message]",
	Aliases: []string{"save"},
	Short:   "Capture the working tree into a new snapshot",
	Long: `Copy the project into the sanctuary and commit it on a new branch:
  auto-YYYYMMDD-HHMM-SS-mmm

The project's .git directory and the sanctuary itself are never copied.
If nothing changed since the last snapshot, no branch is created.

Examples:
  verz snapshot
  verz snapshot "before refactoring the parser"`,
	Args: cobra.ArbitraryArgs,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVarP(&snapshotMessage, "message", "m", "", "Snapshot message")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	message := snapshotMessage
	if message == "" && len(args) > 0 {
		message = strings.Join(args, " ")
	}
	if message == "" {
		message = "manual snapshot"
	}

	res, err := mgr.Snapshot(message)
	if err != nil {
		return err
	}

	if res.NoChange {
		fmt.Printf("No changes since %s\n", res.Branch)
		return nil
	}

	fmt.Printf("✓ Snapshot created: %s\n", res.Branch)
	fmt.Printf("  Sanctuary: %s\n", mgr.Paths().Root)
	return nil
}
