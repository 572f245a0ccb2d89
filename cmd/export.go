package cmd

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportPeriod = regexp.MustCompile(`^(\d{4})(?:-(\d{2}))?$`)

var exportCmd = &cobra.Command{
	Use:     "export <year|YYYY-MM|all>",
	Aliases: []string{"archive"},
	Short:   "Bundle snapshots into a tar.gz archive",
	Long: `Write the files of selected snapshots into a tar.gz archive, one
top-level directory per snapshot.

Examples:
  verz export 2025          # All snapshots from 2025
  verz export 2025-11       # Snapshots from November 2025
  verz export all --output backup.tar.gz`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: verz-snapshots-<period>.tar.gz)")
}

// branchPrefix turns an export period into a snapshot branch prefix
func branchPrefix(period string) (string, error) {
	if period == "all" {
		return "auto-", nil
	}
	m := exportPeriod.FindStringSubmatch(period)
	if m == nil {
		return "", fmt.Errorf("invalid period %q (use YYYY, YYYY-MM or all)", period)
	}
	return "auto-" + m[1] + m[2], nil
}

func runExport(cmd *cobra.Command, args []string) error {
	period := args[0]
	prefix, err := branchPrefix(period)
	if err != nil {
		return err
	}

	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	branches, err := mgr.Store().List()
	if err != nil {
		return err
	}

	var selected []string
	for _, b := range branches {
		if strings.HasPrefix(b, prefix) {
			selected = append(selected, b)
		}
	}
	if len(selected) == 0 {
		fmt.Printf("No snapshots found for period: %s\n", period)
		return nil
	}

	output := exportOutput
	if output == "" {
		output = fmt.Sprintf("verz-snapshots-%s.tar.gz", period)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := mgr.Store().Export(f, selected); err != nil {
		f.Close()
		os.Remove(output)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	fmt.Printf("✓ Exported %d snapshot(s) to %s\n", len(selected), output)
	return nil
}
