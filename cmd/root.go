package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alpkeskin/gotoon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pders01/verz/internal/config"
	"github.com/pders01/verz/internal/sanctuary"
)

var (
	cfgFile      string
	sanctuaryDir string
	workspaceDir string
	ignoreLocks  bool
	noGit        bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "verz",
	Short: "Sidecar snapshots of your working tree",
	Long: `verz keeps timestamped snapshots of a project in a separate git
repository next to it (the sanctuary), without touching the project's own
history.

  verz snapshot            capture the working tree
  verz list                show snapshots
  verz checkout <branch>   restore a snapshot (aborts on conflicts unless --force)
  verz compare             diff the working tree against the latest snapshot
  verz cleanup --keep 10   drop old snapshots`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/verz/config.toml)")
	rootCmd.PersistentFlags().StringVar(&sanctuaryDir, "sanctuary-dir", "", "parent directory for the sanctuary (env "+config.EnvSanctuaryDir+")")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "parent directory for browse and lab workspaces (env "+config.EnvWorkspaceDir+")")
	rootCmd.PersistentFlags().BoolVar(&ignoreLocks, "ignore-locks", false, "run without taking the sanctuary lock")
	rootCmd.PersistentFlags().BoolVar(&noGit, "no-git", false, "snapshot the current directory even if it is not a git repository")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := config.DefaultConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the global viper instance and applies the log level
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	config.SetDefaults(v)
	if err := config.BindEnv(v); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	log.SetOutput(os.Stderr)
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", cfg.Log.Level, err)
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	return cfg, nil
}

// newManager builds a Manager for the project around the working directory
func newManager() (*sanctuary.Manager, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	mgr, err := sanctuary.NewManager(sanctuary.Options{
		WorkingDir:  wd,
		NoGit:       noGit,
		Settings:    cfg.Settings(sanctuaryDir, workspaceDir),
		IgnoreLocks: ignoreLocks || cfg.Lock.Disabled,
		StaleAfter:  cfg.Lock.StaleAfter,
	})
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}

// printStructured writes v as JSON or toon when one of the flags is set and
// reports whether it did
func printStructured(v any, asJSON, asToon bool) (bool, error) {
	if asJSON {
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return true, nil
	}
	if asToon {
		output, err := gotoon.Encode(v)
		if err != nil {
			return true, fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return true, nil
	}
	return false, nil
}

// resolveBranch maps the "latest" shorthand to the newest snapshot
func resolveBranch(mgr *sanctuary.Manager, arg string) (string, error) {
	if arg != "latest" {
		return arg, nil
	}
	latest, err := mgr.Store().Latest()
	if err != nil {
		return "", err
	}
	if latest == "" {
		return "", fmt.Errorf("no snapshots found")
	}
	return latest, nil
}
