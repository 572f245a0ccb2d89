// Package sanctuary sequences snapshot, restore, diff and cleanup
// operations on one project's sanctuary.
package sanctuary

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/pders01/verz/internal/audit"
	"github.com/pders01/verz/internal/conflict"
	"github.com/pders01/verz/internal/exclude"
	"github.com/pders01/verz/internal/filesync"
	"github.com/pders01/verz/internal/git"
	"github.com/pders01/verz/internal/lock"
	"github.com/pders01/verz/internal/metadata"
	"github.com/pders01/verz/internal/models"
	"github.com/pders01/verz/internal/paths"
	"github.com/pders01/verz/internal/store"
)

// ErrNoVCSRoot is returned when the working directory is not inside a git
// repository and git detection was not switched off
var ErrNoVCSRoot = errors.New("not inside a git repository (use --no-git to snapshot a plain directory)")

// Options configures a Manager
type Options struct {
	// WorkingDir is where the tool was started; the project root is found from it
	WorkingDir string
	// ProjectName overrides the name derived from the project root
	ProjectName string
	// NoGit treats WorkingDir itself as the project and copies .git entries
	NoGit       bool
	Settings    paths.Settings
	IgnoreLocks bool
	StaleAfter  time.Duration
	Fs          afero.Fs
	Now         func() time.Time
}

// Manager is the entry point for every sanctuary operation. Mutating
// operations run under the sanctuary lock and leave an audit event.
type Manager struct {
	projectDir  string
	projectName string
	hostUsesGit bool
	overrides   []string

	paths    paths.SanctuaryPaths
	fs       afero.Fs
	sync     *filesync.Engine
	store    *store.Store
	locker   *lock.Locker
	log      *audit.Log
	detector *conflict.Detector
	now      func() time.Time
}

// NewManager resolves the project and its sanctuary layout. Nothing is
// created on disk except explicitly configured parent directories.
func NewManager(opts Options) (*Manager, error) {
	wd, err := filepath.Abs(opts.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	projectDir := wd
	if !opts.NoGit {
		root, err := git.FindRoot(wd)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoVCSRoot, wd)
		}
		projectDir = root
	}

	name := opts.ProjectName
	if name == "" {
		name = filepath.Base(projectDir)
	}

	p, err := paths.Resolve(opts.Settings, projectDir, name)
	if err != nil {
		return nil, err
	}

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	locker := lock.New(p.LockFile)
	locker.Disabled = opts.IgnoreLocks
	locker.Now = now
	if opts.StaleAfter > 0 {
		locker.Stale = lock.DefaultStalePolicy(opts.StaleAfter)
	}

	st := store.New(store.Options{
		Paths:       p,
		ProjectName: name,
		ProjectDir:  projectDir,
		Fs:          fs,
		Now:         now,
	})

	log.Debugf("project %s at %s, sanctuary %s", name, projectDir, p.Root)

	restore := exclude.ForRestore()
	return &Manager{
		projectDir:  projectDir,
		projectName: name,
		hostUsesGit: !opts.NoGit,
		overrides:   opts.Settings.OverridePaths(),
		paths:       p,
		fs:          fs,
		sync:        filesync.New(fs),
		store:       st,
		locker:      locker,
		log:         audit.NewLog(p.LogFile),
		detector:    &conflict.Detector{Fs: fs, WorkDir: projectDir, Snapshots: st, Exclude: &restore},
		now:         now,
	}, nil
}

// ProjectDir returns the project root
func (m *Manager) ProjectDir() string { return m.projectDir }

// ProjectName returns the name the sanctuary is keyed by
func (m *Manager) ProjectName() string { return m.projectName }

// Paths returns the resolved sanctuary layout
func (m *Manager) Paths() paths.SanctuaryPaths { return m.paths }

// Store exposes the snapshot store for read-only callers
func (m *Manager) Store() *store.Store { return m.store }

// CapturePolicy decides what a snapshot of this project captures
func (m *Manager) CapturePolicy() exclude.Policy {
	return exclude.ForCapture(m.hostUsesGit, m.paths, m.overrides)
}

// run executes fn under the lock and appends ev to the audit log whatever
// the outcome. fn fills in the branch and result of ev as it learns them.
func (m *Manager) run(op string, ev *audit.Event, fn func() error) error {
	ev.Type = op
	err := m.locker.WithLock(op, fn)
	m.finish(ev, err)
	return err
}

func (m *Manager) finish(ev *audit.Event, err error) {
	if err != nil {
		ev.Result = audit.ResultError
		ev.Message = err.Error()
	} else if ev.Result == "" {
		ev.Result = audit.ResultSuccess
	}
	ev.Timestamp = m.now()

	if aerr := m.log.Append(*ev); aerr != nil {
		log.Warnf("failed to write audit log: %v", aerr)
	}

	// sanctuary.yaml belongs to the lock holder
	var contention *lock.ContentionError
	if errors.As(err, &contention) {
		return
	}

	success := ev.Result != audit.ResultError && ev.Result != audit.ResultConflict
	if merr := metadata.RecordOperation(m.paths.MetadataFile, ev.Type, success, ev.Branch, ev.Timestamp); merr != nil {
		log.Debugf("operation not recorded in metadata: %v", merr)
	}
}

// checkBinding logs when the sanctuary belongs to another project path.
// The mismatch never blocks an operation.
func (m *Manager) checkBinding() error {
	meta, err := metadata.Load(m.paths.MetadataFile)
	if err != nil {
		return nil
	}
	if err := metadata.CheckBinding(meta, m.projectDir); err != nil {
		log.Warn(err)
		return err
	}
	return nil
}

// InitReport describes the outcome of Init
type InitReport struct {
	Paths        paths.SanctuaryPaths      `json:"paths"`
	Created      bool                      `json:"created"`
	Metadata     *models.SanctuaryMetadata `json:"metadata"`
	BindingError string                    `json:"binding_error,omitempty"`
}

// Init creates the sanctuary if needed and records the project binding
func (m *Manager) Init() (*InitReport, error) {
	report := &InitReport{Paths: m.paths}
	ev := &audit.Event{Message: "initialize sanctuary"}

	err := m.run(audit.TypeInit, ev, func() error {
		created, err := m.store.Initialize()
		if err != nil {
			return err
		}
		report.Created = created
		if !created {
			ev.Result = audit.ResultNoChange
		}

		meta, err := metadata.Load(m.paths.MetadataFile)
		if err != nil {
			return err
		}
		report.Metadata = meta
		if berr := m.checkBinding(); berr != nil {
			report.BindingError = berr.Error()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Snapshot captures the project into a new snapshot
func (m *Manager) Snapshot(message string) (store.Result, error) {
	if message == "" {
		message = "snapshot"
	}
	var res store.Result
	ev := &audit.Event{Message: message}

	err := m.run(audit.TypeSnapshot, ev, func() error {
		m.checkBinding()
		var err error
		res, err = m.store.Create(message, m.projectDir, m.CapturePolicy())
		if err != nil {
			return err
		}
		ev.Branch = res.Branch
		if res.NoChange {
			ev.Result = audit.ResultNoChange
		}
		return nil
	})
	return res, err
}

// List returns every snapshot, oldest first
func (m *Manager) List() ([]models.Snapshot, error) {
	return m.store.Snapshots()
}

// Diff returns the patch between two snapshots
func (m *Manager) Diff(a, b string) (string, error) {
	return m.store.Diff(a, b)
}

// DiffAgainstWorking compares a snapshot with the live project, optionally
// for a single path
func (m *Manager) DiffAgainstWorking(branch, path string) (string, error) {
	return m.store.DiffDir(branch, m.projectDir, path, m.CapturePolicy())
}

// CompareWithLatest captures the project into a throwaway snapshot and
// diffs the latest snapshot against it. found is false when no snapshot
// exists to compare with.
func (m *Manager) CompareWithLatest() (patch string, found bool, err error) {
	ev := &audit.Event{Message: "compare working tree with latest snapshot"}

	err = m.run(audit.TypeCompare, ev, func() error {
		latest, err := m.store.Latest()
		if err != nil {
			return err
		}
		if latest == "" {
			ev.Result = audit.ResultNoChange
			return nil
		}
		found = true
		ev.Branch = latest

		res, err := m.store.Create("compare", m.projectDir, m.CapturePolicy())
		if err != nil {
			return err
		}
		if !res.Created {
			patch, err = m.store.Diff(latest, res.Branch)
			return err
		}

		patch, err = m.store.Diff(latest, res.Branch)
		if derr := m.store.Delete(res.Branch); derr != nil {
			log.Warnf("failed to remove comparison snapshot %s: %v", res.Branch, derr)
			if err == nil {
				err = derr
			}
		}
		return err
	})
	return patch, found, err
}

// Cleanup deletes all but the newest keep snapshots
func (m *Manager) Cleanup(keep int) ([]store.BranchOutcome, error) {
	var outcomes []store.BranchOutcome
	ev := &audit.Event{Message: fmt.Sprintf("keep %d newest snapshots", keep)}

	err := m.run(audit.TypeCleanup, ev, func() error {
		var err error
		outcomes, err = m.store.Cleanup(keep)
		if err != nil {
			return err
		}

		deleted, failed := 0, 0
		for _, o := range outcomes {
			if o.Deleted {
				deleted++
			} else {
				failed++
			}
		}
		if len(outcomes) == 0 {
			ev.Result = audit.ResultNoChange
		}
		ev.Details = map[string]any{"deleted": deleted, "failed": failed}
		return nil
	})
	return outcomes, err
}

// IsLocked reports whether an operation currently holds the sanctuary lock
func (m *Manager) IsLocked() bool {
	return m.locker.IsLocked()
}

// LockInfo returns the lock holder, or nil
func (m *Manager) LockInfo() (*lock.Info, error) {
	return m.locker.Info()
}

// ForceUnlock removes the lock regardless of who holds it
func (m *Manager) ForceUnlock() (bool, error) {
	holder, _ := m.locker.Info()
	removed, err := m.locker.ForceUnlock()
	if !removed && err == nil {
		return false, nil
	}

	ev := &audit.Event{Type: audit.TypeUnlock, Message: "force unlock"}
	if holder != nil {
		ev.Details = map[string]any{"pid": holder.PID, "operation": holder.Operation}
	}
	m.finish(ev, err)
	return removed, err
}

// Log returns the newest n audit events, oldest first
func (m *Manager) Log(n int) ([]audit.Event, error) {
	return m.log.Tail(n)
}
