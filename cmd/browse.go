package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse <branch|latest>",
	Short: "Check a snapshot out in the browse workspace",
	Long: `Check a snapshot out in the browse workspace, a plain git checkout of the
sanctuary. Commits there are only accepted on practice-* branches:

  cd $(verz status --json | jq -r .paths.BrowseDir)
  git checkout -b practice-idea

Example:
  verz browse auto-20251114-0930-12-345`,
	Args: cobra.ExactArgs(1),
	RunE: runBrowse,
}

var labCmd = &cobra.Command{
	Use:   "lab <branch|latest>",
	Short: "Copy a snapshot into the lab workspace",
	Long: `Copy a snapshot into the lab workspace. The lab may be its own git
repository; its .git directory and files not in the snapshot are kept.

Example:
  verz lab latest`,
	Args: cobra.ExactArgs(1),
	RunE: runLab,
}

func init() {
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(labCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}
	branch, err := resolveBranch(mgr, args[0])
	if err != nil {
		return err
	}

	if err := mgr.CheckoutToBrowse(branch); err != nil {
		return err
	}

	fmt.Printf("✓ %s checked out at: %s\n", branch, mgr.Paths().BrowseDir)
	fmt.Printf("  cd %s\n", mgr.Paths().BrowseDir)
	return nil
}

func runLab(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}
	branch, err := resolveBranch(mgr, args[0])
	if err != nil {
		return err
	}

	stats, err := mgr.CheckoutToLab(branch)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Copied %d file(s) from %s into: %s\n", stats.Files, branch, mgr.Paths().LabDir)
	return nil
}
