package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/verz/internal/models"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sanctuary.yaml")
	now := time.Date(2025, 11, 14, 9, 30, 0, 0, time.UTC)

	m := New("proj", "/work/proj", now)
	require.NoError(t, Save(path, m))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "proj", loaded.Identity.ProjectName)
	assert.Equal(t, models.MetadataVersion, loaded.Identity.Version)
	assert.Equal(t, "/work/proj", loaded.Identity.BoundProjectPath)
	assert.True(t, now.Equal(loaded.Identity.CreatedAt))
	assert.NotEmpty(t, loaded.Identity.SanctuaryID)
	assert.Equal(t, models.StatusActive, loaded.State.Status)
	assert.Nil(t, loaded.State.LastOperation)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "identity:")
	assert.Contains(t, string(raw), "bound_project_path: /work/proj")
}

func TestEnsureExistsOnlyRepairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sanctuary.yaml")
	now := time.Now()

	first, created, err := EnsureExists(path, "proj", "/p", now)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := EnsureExists(path, "other", "/q", now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Identity.SanctuaryID, second.Identity.SanctuaryID)
	assert.Equal(t, "proj", second.Identity.ProjectName)
}

func TestRecordOperation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sanctuary.yaml")
	require.NoError(t, Save(path, New("proj", "/p", time.Now())))

	require.NoError(t, RecordOperation(path, "snapshot", true, "auto-20251114-0930-00-000", time.Now()))

	m, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, m.State.LastOperation)
	assert.Equal(t, "snapshot", m.State.LastOperation.Type)
	assert.True(t, m.State.LastOperation.Success)
	assert.Equal(t, "auto-20251114-0930-00-000", m.State.LastOperation.Branch)
}

func TestCheckBinding(t *testing.T) {
	m := New("proj", "/work/proj", time.Now())

	assert.NoError(t, CheckBinding(m, "/work/proj/"))
	assert.ErrorIs(t, CheckBinding(m, "/elsewhere/proj"), ErrBindingMismatch)

	m.Identity.BoundProjectPath = ""
	assert.NoError(t, CheckBinding(m, "/anything"))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
