package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statusJSON bool
	statusToon bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the sanctuary",
	Long: `Display where the sanctuary lives and what it holds:
  - project binding
  - snapshot count, latest and checked out snapshot
  - lock state

Examples:
  verz status
  verz status --json
  verz status --toon`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVar(&statusToon, "toon", false, "Output in LLM-friendly toon format")
}

func runStatus(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	st, err := mgr.Status()
	if err != nil {
		return err
	}

	if done, err := printStructured(st, statusJSON, statusToon); done {
		return err
	}

	fmt.Println("Sanctuary Status")
	fmt.Println("━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Project:   %s\n", st.ProjectName)
	fmt.Printf("Path:      %s\n", st.ProjectDir)
	fmt.Printf("Sanctuary: %s\n", st.Paths.Root)
	fmt.Printf("Browse:    %s\n", st.Paths.BrowseDir)
	fmt.Printf("Lab:       %s\n", st.Paths.LabDir)
	fmt.Println()

	if !st.Initialized {
		fmt.Println("Not initialized. Run: verz init")
		return nil
	}

	if st.Metadata != nil {
		fmt.Printf("ID:        %s\n", st.Metadata.Identity.SanctuaryID)
		fmt.Printf("Created:   %s\n", st.Metadata.Identity.CreatedAt.Format("2006-01-02 15:04"))
		if op := st.Metadata.State.LastOperation; op != nil {
			result := "ok"
			if !op.Success {
				result = "failed"
			}
			fmt.Printf("Last op:   %s (%s) at %s\n", op.Type, result, op.CompletedAt.Format("2006-01-02 15:04:05"))
		}
	}
	if st.BindingError != "" {
		fmt.Printf("Warning:   %s\n", st.BindingError)
	}
	fmt.Println()

	fmt.Printf("Snapshots: %d\n", st.SnapshotCount)
	if st.Latest != "" {
		fmt.Printf("Latest:    %s\n", st.Latest)
	}
	if st.CheckedOut != "" {
		fmt.Printf("Browse at: %s\n", st.CheckedOut)
	}
	fmt.Println()

	if st.Locked {
		if st.LockHolder != nil {
			fmt.Printf("Locked by %s (pid %d) since %s\n", st.LockHolder.Operation, st.LockHolder.PID, st.LockHolder.Timestamp)
		} else {
			fmt.Println("Locked (unreadable lock file)")
		}
	} else {
		fmt.Println("Not locked")
	}
	return nil
}
