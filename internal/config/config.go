// Package config loads verz settings from the config file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pders01/verz/internal/paths"
)

// Environment variables naming the sanctuary and workspace parents
const (
	EnvSanctuaryDir = "VERZ_SANCTUARY_DIR"
	EnvWorkspaceDir = "VERZ_WORKSPACE_DIR"
)

// EnvPrefix is prepended to every automatically bound key, e.g. VERZ_LOCK_STALE_AFTER
const EnvPrefix = "VERZ"

// Config is the decoded configuration
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Env     EnvConfig     `mapstructure:"env"`
	Lock    LockConfig    `mapstructure:"lock"`
	Cleanup CleanupConfig `mapstructure:"cleanup"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Log     LogConfig     `mapstructure:"log"`
}

// PathsConfig holds parent directories set in the config file
type PathsConfig struct {
	SanctuaryDir string `mapstructure:"sanctuary_dir"`
	WorkspaceDir string `mapstructure:"workspace_dir"`
}

// EnvConfig holds parent directories taken from the environment
type EnvConfig struct {
	SanctuaryDir string `mapstructure:"sanctuary_dir"`
	WorkspaceDir string `mapstructure:"workspace_dir"`
}

type LockConfig struct {
	Disabled   bool          `mapstructure:"disabled"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type CleanupConfig struct {
	Keep int `mapstructure:"keep"`
}

type WatchConfig struct {
	QuietPeriod time.Duration `mapstructure:"quiet_period"`
	Message     string        `mapstructure:"message"`
	Ignore      []string      `mapstructure:"ignore"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfigDir returns ~/.config/verz
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "verz"), nil
}

// SetDefaults registers the built-in values
func SetDefaults(v *viper.Viper) {
	v.SetDefault("lock.disabled", false)
	v.SetDefault("lock.stale_after", "5m")
	v.SetDefault("cleanup.keep", 20)
	v.SetDefault("watch.quiet_period", "2s")
	v.SetDefault("watch.message", "auto snapshot")
	v.SetDefault("watch.ignore", []string{})
	v.SetDefault("log.level", "warn")
}

// BindEnv wires the environment into v
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("env.sanctuary_dir", EnvSanctuaryDir); err != nil {
		return err
	}
	return v.BindEnv("env.workspace_dir", EnvWorkspaceDir)
}

// Load decodes v into a Config. Durations accept Go syntax ("90s", "5m")
// and lists accept comma-separated strings.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Lock.StaleAfter <= 0 {
		return nil, fmt.Errorf("lock.stale_after must be positive, got %s", cfg.Lock.StaleAfter)
	}
	if cfg.Cleanup.Keep < 0 {
		return nil, fmt.Errorf("cleanup.keep must not be negative, got %d", cfg.Cleanup.Keep)
	}
	return &cfg, nil
}

// Settings merges command-line overrides with the loaded configuration.
// A flag beats the config file; the environment comes after both.
func (c *Config) Settings(sanctuaryFlag, workspaceFlag string) paths.Settings {
	return paths.Settings{
		SanctuaryOverride: firstNonEmpty(sanctuaryFlag, c.Paths.SanctuaryDir),
		SanctuaryEnv:      c.Env.SanctuaryDir,
		WorkspaceOverride: firstNonEmpty(workspaceFlag, c.Paths.WorkspaceDir),
		WorkspaceEnv:      c.Env.WorkspaceDir,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return expandHome(v)
		}
	}
	return ""
}

// expandHome resolves a leading ~/ in configured paths
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
