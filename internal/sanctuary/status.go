package sanctuary

import (
	"os"

	"github.com/pders01/verz/internal/lock"
	"github.com/pders01/verz/internal/metadata"
	"github.com/pders01/verz/internal/models"
	"github.com/pders01/verz/internal/paths"
)

// Status is a read-only summary of a sanctuary. It takes no lock and may
// observe a half-finished operation.
type Status struct {
	ProjectName   string                    `json:"project_name"`
	ProjectDir    string                    `json:"project_dir"`
	Paths         paths.SanctuaryPaths      `json:"paths"`
	Initialized   bool                      `json:"initialized"`
	State         string                    `json:"state"`
	Metadata      *models.SanctuaryMetadata `json:"metadata,omitempty"`
	BindingError  string                    `json:"binding_error,omitempty"`
	SnapshotCount int                       `json:"snapshot_count"`
	Latest        string                    `json:"latest,omitempty"`
	CheckedOut    string                    `json:"checked_out,omitempty"`
	Locked        bool                      `json:"locked"`
	LockHolder    *lock.Info                `json:"lock_holder,omitempty"`
}

// Status collects the current state of the sanctuary
func (m *Manager) Status() (*Status, error) {
	st := &Status{
		ProjectName: m.projectName,
		ProjectDir:  m.projectDir,
		Paths:       m.paths,
		State:       m.store.State().String(),
		Locked:      m.locker.IsLocked(),
	}

	if _, err := os.Stat(m.paths.Root); err != nil {
		return st, nil
	}

	if meta, err := metadata.Load(m.paths.MetadataFile); err == nil {
		st.Initialized = true
		st.Metadata = meta
		if berr := metadata.CheckBinding(meta, m.projectDir); berr != nil {
			st.BindingError = berr.Error()
		}
	}

	branches, err := m.store.List()
	if err != nil {
		return nil, err
	}
	st.SnapshotCount = len(branches)
	if len(branches) > 0 {
		st.Latest = branches[len(branches)-1]
	}

	if st.CheckedOut, err = m.store.CurrentBranch(); err != nil {
		return nil, err
	}

	if st.Locked {
		// an unreadable marker still counts as locked
		st.LockHolder, _ = m.locker.Info()
	}
	return st, nil
}
