package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	listToday bool
	listSince string
	listJSON  bool
	listToon  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all snapshots",
	Long: `List snapshots in the sanctuary, newest first.

Examples:
  verz list
  verz list --today
  verz list --since 2025-10-01
  verz list --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listToday, "today", false, "Show only today's snapshots")
	listCmd.Flags().StringVar(&listSince, "since", "", "Show snapshots since date (YYYY-MM-DD)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().BoolVar(&listToon, "toon", false, "Output in LLM-friendly toon format")
}

type listEntry struct {
	Branch  string    `json:"branch"`
	Created time.Time `json:"created"`
	Current bool      `json:"current"`
}

func runList(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	snapshots, err := mgr.List()
	if err != nil {
		return err
	}

	var since time.Time
	if listSince != "" {
		since, err = time.ParseInLocation("2006-01-02", listSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since date format (use YYYY-MM-DD): %w", err)
		}
	}
	today := time.Now().Format("2006-01-02")

	current, err := mgr.Store().CurrentBranch()
	if err != nil {
		return err
	}

	entries := []listEntry{}
	for i := len(snapshots) - 1; i >= 0; i-- {
		s := snapshots[i]
		if listToday && s.Timestamp.Format("2006-01-02") != today {
			continue
		}
		if !since.IsZero() && s.Timestamp.Before(since) {
			continue
		}
		entries = append(entries, listEntry{Branch: s.Branch, Created: s.Timestamp, Current: s.Branch == current})
	}

	if done, err := printStructured(entries, listJSON, listToon); done {
		return err
	}

	if len(snapshots) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}
	if len(entries) == 0 {
		fmt.Println("No snapshots match the filter criteria")
		return nil
	}

	fmt.Printf("Found %d snapshot(s):\n\n", len(entries))
	for _, e := range entries {
		marker := " "
		if e.Current {
			marker = "*"
		}
		fmt.Printf(" %s %s  %s\n", marker, e.Branch, e.Created.Format("2006-01-02 15:04:05"))
	}
	return nil
}
