package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pders01/verz/internal/watch"
)

var (
	watchQuiet   time.Duration
	watchMessage string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Snapshot automatically after changes settle",
	Long: `Watch the project and take a snapshot whenever it has been quiet
for a while after a change. Stop with Ctrl-C.

Defaults come from ~/.config/verz/config.toml:
  [watch]
  quiet_period = "2s"
  message = "auto snapshot"
  ignore = ["node_modules", "dist"]`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchQuiet, "quiet-period", 0, "Time without changes before a snapshot (default: watch.quiet_period)")
	watchCmd.Flags().StringVarP(&watchMessage, "message", "m", "", "Snapshot message (default: watch.message)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	mgr, cfg, err := newManager()
	if err != nil {
		return err
	}
	if _, err := mgr.Init(); err != nil {
		return err
	}

	opts := watch.Options{
		Root:        mgr.ProjectDir(),
		Policy:      mgr.CapturePolicy(),
		QuietPeriod: cfg.Watch.QuietPeriod,
		Message:     cfg.Watch.Message,
		Ignore:      cfg.Watch.Ignore,
	}
	if watchQuiet > 0 {
		opts.QuietPeriod = watchQuiet
	}
	if watchMessage != "" {
		opts.Message = watchMessage
	}

	w, err := watch.New(mgr, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for o := range w.Results() {
			switch {
			case o.Err != nil:
				fmt.Printf("✗ %s  %v\n", o.At.Format("15:04:05"), o.Err)
			case o.Result.NoChange:
				log.Debugf("no changes at %s", o.At.Format("15:04:05"))
			default:
				fmt.Printf("✓ %s  %s\n", o.At.Format("15:04:05"), o.Result.Branch)
			}
		}
	}()

	fmt.Printf("Watching %s (quiet period %s). Press Ctrl-C to stop.\n", opts.Root, opts.QuietPeriod)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Println("\nStopped")
	return nil
}
