package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Lock.StaleAfter)
	assert.False(t, cfg.Lock.Disabled)
	assert.Equal(t, 20, cfg.Cleanup.Keep)
	assert.Equal(t, 2*time.Second, cfg.Watch.QuietPeriod)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Empty(t, cfg.Env.SanctuaryDir)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[paths]
sanctuary_dir = "/srv/sanctuaries"

[lock]
stale_after = "90s"

[cleanup]
keep = 3

[watch]
quiet_period = "500ms"
ignore = ["node_modules", "dist"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v := newViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/sanctuaries", cfg.Paths.SanctuaryDir)
	assert.Equal(t, 90*time.Second, cfg.Lock.StaleAfter)
	assert.Equal(t, 3, cfg.Cleanup.Keep)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.QuietPeriod)
	assert.Equal(t, []string{"node_modules", "dist"}, cfg.Watch.Ignore)
}

func TestEnvironment(t *testing.T) {
	t.Setenv(EnvSanctuaryDir, "/env/sanctuary")
	t.Setenv(EnvWorkspaceDir, "/env/workspaces")
	t.Setenv("VERZ_LOCK_STALE_AFTER", "1m")
	t.Setenv("VERZ_WATCH_IGNORE", "build,tmp")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, "/env/sanctuary", cfg.Env.SanctuaryDir)
	assert.Equal(t, "/env/workspaces", cfg.Env.WorkspaceDir)
	assert.Equal(t, time.Minute, cfg.Lock.StaleAfter)
	assert.Equal(t, []string{"build", "tmp"}, cfg.Watch.Ignore)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	v := newViper(t)
	v.Set("lock.stale_after", "0s")
	_, err := Load(v)
	assert.Error(t, err)

	v = newViper(t)
	v.Set("cleanup.keep", -1)
	_, err = Load(v)
	assert.Error(t, err)
}

func TestSettingsPrecedence(t *testing.T) {
	cfg := &Config{
		Paths: PathsConfig{SanctuaryDir: "/file/s", WorkspaceDir: "/file/w"},
		Env:   EnvConfig{SanctuaryDir: "/env/s", WorkspaceDir: "/env/w"},
	}

	s := cfg.Settings("/flag/s", "")
	assert.Equal(t, "/flag/s", s.SanctuaryOverride)
	assert.Equal(t, "/env/s", s.SanctuaryEnv)
	assert.Equal(t, "/file/w", s.WorkspaceOverride)
	assert.Equal(t, "/env/w", s.WorkspaceEnv)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	s = (&Config{}).Settings("~/sanct", "")
	assert.Equal(t, filepath.Join(home, "sanct"), s.SanctuaryOverride)
	assert.Empty(t, s.WorkspaceOverride)
}
