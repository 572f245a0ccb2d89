// Package metadata reads and writes sanctuary.yaml.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/pders01/verz/internal/models"
)

// ErrBindingMismatch means the sanctuary was created for another project path
var ErrBindingMismatch = errors.New("sanctuary is bound to a different project")

// New returns metadata for a freshly created sanctuary
func New(project, projectPath string, now time.Time) *models.SanctuaryMetadata {
	return &models.SanctuaryMetadata{
		Identity: models.Identity{
			ProjectName:      project,
			SanctuaryID:      uuid.NewString(),
			Version:          models.MetadataVersion,
			CreatedAt:        now,
			BoundProjectPath: projectPath,
		},
		State: models.State{Status: models.StatusActive},
	}
}

// Load reads the metadata file
func Load(path string) (*models.SanctuaryMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var m models.SanctuaryMetadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the metadata file through a temp file and rename
func Save(path string, m *models.SanctuaryMetadata) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".sanctuary.yaml-*")
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// EnsureExists writes default metadata when path is missing and returns
// whatever is on disk afterwards
func EnsureExists(path, project, projectPath string, now time.Time) (*models.SanctuaryMetadata, bool, error) {
	if _, err := os.Stat(path); err == nil {
		m, err := Load(path)
		return m, false, err
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("failed to stat metadata: %w", err)
	}

	m := New(project, projectPath, now)
	if err := Save(path, m); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// RecordOperation stores the outcome of the latest mutating operation
func RecordOperation(path, opType string, success bool, branch string, now time.Time) error {
	m, err := Load(path)
	if err != nil {
		return err
	}
	m.State.LastOperation = &models.Operation{
		Type:        opType,
		CompletedAt: now,
		Success:     success,
		Branch:      branch,
	}
	return Save(path, m)
}

// CheckBinding compares the bound project path with projectPath
func CheckBinding(m *models.SanctuaryMetadata, projectPath string) error {
	bound := filepath.Clean(m.Identity.BoundProjectPath)
	if m.Identity.BoundProjectPath == "" || bound == filepath.Clean(projectPath) {
		return nil
	}
	return fmt.Errorf("%w: bound to %s, used from %s", ErrBindingMismatch, bound, projectPath)
}
