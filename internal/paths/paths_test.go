package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCoLocated(t *testing.T) {
	base := t.TempDir()
	wd := filepath.Join(base, "proj")

	p, err := Resolve(Settings{}, wd, "proj")
	require.NoError(t, err)

	root := filepath.Join(base, "proj.sanctuary")
	assert.True(t, p.CoLocated)
	assert.Equal(t, root, p.Root)
	assert.Equal(t, filepath.Join(root, ".sanctuary"), p.StoreDir)
	assert.Equal(t, filepath.Join(root, "browse"), p.BrowseDir)
	assert.Equal(t, filepath.Join(root, "lab"), p.LabDir)
	assert.Equal(t, filepath.Join(root, "sanctuary.yaml"), p.MetadataFile)
	assert.Equal(t, filepath.Join(root, "verz-log.jsonl"), p.LogFile)

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err), "resolve must not create the sanctuary")
}

func TestResolvePrecedence(t *testing.T) {
	base := t.TempDir()
	override := filepath.Join(base, "override")
	env := filepath.Join(base, "env")

	p, err := Resolve(Settings{SanctuaryOverride: override, SanctuaryEnv: env}, filepath.Join(base, "proj"), "proj")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(override, "proj.sanctuary"), p.Root)
	assert.True(t, p.CoLocated)

	_, err = os.Stat(override)
	assert.NoError(t, err, "explicit override directory should be created")
	_, err = os.Stat(env)
	assert.True(t, os.IsNotExist(err), "unused env directory should not be created")

	p, err = Resolve(Settings{SanctuaryEnv: env}, filepath.Join(base, "proj"), "proj")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env, "proj.sanctuary"), p.Root)
}

func TestResolveSeparated(t *testing.T) {
	base := t.TempDir()
	ws := filepath.Join(base, "spaces")

	p, err := Resolve(Settings{WorkspaceEnv: ws}, filepath.Join(base, "proj"), "proj")
	require.NoError(t, err)

	assert.False(t, p.CoLocated)
	assert.Equal(t, filepath.Join(base, "proj.sanctuary"), p.Root)
	assert.Equal(t, filepath.Join(ws, "proj.verzspaces"), p.WorkspaceContainer)
	assert.Equal(t, filepath.Join(ws, "proj.verzspaces", "browse"), p.BrowseDir)
	assert.Equal(t, filepath.Join(ws, "proj.verzspaces", "lab"), p.LabDir)
}

func TestResolveIsRepeatable(t *testing.T) {
	base := t.TempDir()
	s := Settings{WorkspaceOverride: filepath.Join(base, "ws")}

	first, err := Resolve(s, filepath.Join(base, "proj"), "proj")
	require.NoError(t, err)
	second, err := Resolve(s, filepath.Join(base, "proj"), "proj")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveRequiresProject(t *testing.T) {
	_, err := Resolve(Settings{}, t.TempDir(), "")
	assert.Error(t, err)
}

func TestOverridePaths(t *testing.T) {
	s := Settings{SanctuaryEnv: "/a/b/", WorkspaceOverride: "/c"}
	assert.Equal(t, []string{"/a/b", "/c"}, s.OverridePaths())
}
