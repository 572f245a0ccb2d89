package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the sanctuary for the current project",
	Long: `Create the sanctuary repository, its metadata file and the browse
workspace. Other commands do this on first use; init only makes it explicit
and prints where everything lives.

Running init again is safe: existing snapshots are kept.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	report, err := mgr.Init()
	if err != nil {
		return err
	}

	if report.Created {
		fmt.Printf("✓ Sanctuary created for %s\n", mgr.ProjectName())
	} else {
		fmt.Printf("Sanctuary already exists for %s\n", mgr.ProjectName())
	}
	fmt.Printf("  Root:    %s\n", report.Paths.Root)
	fmt.Printf("  Browse:  %s\n", report.Paths.BrowseDir)
	fmt.Printf("  Lab:     %s\n", report.Paths.LabDir)
	if report.Metadata != nil {
		fmt.Printf("  ID:      %s\n", report.Metadata.Identity.SanctuaryID)
	}
	if report.BindingError != "" {
		fmt.Printf("\nWarning: %s\n", report.BindingError)
	}
	return nil
}
