package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	logCount int
	logJSON  bool
	logToon  bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sanctuary operations",
	Long: `Print the most recent entries of the sanctuary operation log
(verz-log.jsonl), oldest first.

Examples:
  verz log
  verz log -n 50 --json`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().IntVarP(&logCount, "count", "n", 20, "Number of entries to show")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "Output as JSON")
	logCmd.Flags().BoolVar(&logToon, "toon", false, "Output in LLM-friendly toon format")
}

func runLog(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	events, err := mgr.Log(logCount)
	if err != nil {
		return err
	}

	if done, err := printStructured(events, logJSON, logToon); done {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No operations logged")
		return nil
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-8s %-9s %s", ev.Timestamp.Local().Format("2006-01-02 15:04:05"), ev.Type, ev.Result, ev.Message)
		if ev.Branch != "" {
			line += " (" + ev.Branch + ")"
		}
		fmt.Println(line)
	}
	return nil
}
