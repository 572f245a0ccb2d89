package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var lockJSON bool

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or remove the sanctuary lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the sanctuary lock",
	Args:  cobra.NoArgs,
	RunE:  runLockStatus,
}

var lockUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Remove the sanctuary lock regardless of its owner",
	Long: `Remove the lock file. Only do this when the holder is known to be gone;
stale locks from crashed processes are cleaned up automatically.`,
	Args: cobra.NoArgs,
	RunE: runLockUnlock,
}

func init() {
	rootCmd.AddCommand(lockCmd)
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockUnlockCmd)

	lockStatusCmd.Flags().BoolVar(&lockJSON, "json", false, "Output as JSON")
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	info, err := mgr.LockInfo()
	if err != nil {
		if !mgr.IsLocked() {
			return err
		}
		fmt.Printf("Locked (unreadable lock file: %v)\n", err)
		return nil
	}

	if done, err := printStructured(info, lockJSON, false); done {
		return err
	}

	if info == nil {
		fmt.Println("Not locked")
		return nil
	}
	fmt.Println("Locked")
	fmt.Printf("  Operation: %s\n", info.Operation)
	fmt.Printf("  PID:       %d\n", info.PID)
	fmt.Printf("  Since:     %s (%s ago)\n", info.Timestamp, info.Age(time.Now()).Round(time.Second))
	return nil
}

func runLockUnlock(cmd *cobra.Command, args []string) error {
	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	removed, err := mgr.ForceUnlock()
	if err != nil {
		return err
	}
	if !removed {
		fmt.Println("Not locked")
		return nil
	}
	fmt.Println("✓ Lock removed")
	return nil
}
