package sanctuary

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pders01/verz/internal/audit"
	"github.com/pders01/verz/internal/conflict"
	"github.com/pders01/verz/internal/exclude"
	"github.com/pders01/verz/internal/filesync"
	"github.com/pders01/verz/internal/store"
)

// RestoreReport describes the outcome of CheckoutToWorking
type RestoreReport struct {
	Branch       string          `json:"branch"`
	Aborted      bool            `json:"aborted"`
	Conflicts    []conflict.Info `json:"conflicts,omitempty"`
	BackupBranch string          `json:"backup_branch,omitempty"`
	Copied       int             `json:"copied"`
	Missing      []string        `json:"missing,omitempty"`
}

// CheckoutToWorking restores branch into the project. With paths only
// those files are restored. Conflicting local changes abort the restore
// unless force is set, in which case the current state is captured as a
// backup snapshot first. Files absent from the snapshot are never deleted.
// Paths inside version-control metadata or the sanctuary itself are refused
// with exclude.ErrExcluded.
func (m *Manager) CheckoutToWorking(branch string, paths []string, force bool) (*RestoreReport, error) {
	report := &RestoreReport{Branch: branch}
	ev := &audit.Event{Message: "restore into working tree", Branch: branch}

	rels := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := conflict.Normalize(p)
		if err != nil {
			return nil, err
		}
		if exclude.ForRestore().Excludes(m.projectDir, rel) {
			return nil, fmt.Errorf("cannot restore %s: %w", rel, exclude.ErrExcluded)
		}
		rels = append(rels, rel)
	}

	err := m.run(audit.TypeCheckout, ev, func() error {
		if !m.store.Exists(branch) {
			return fmt.Errorf("%w: %s", store.ErrBranchNotFound, branch)
		}

		conflicts, err := m.detector.Detect(branch, rels)
		if err != nil {
			return err
		}
		report.Conflicts = conflicts

		if len(conflicts) > 0 {
			if !force {
				report.Aborted = true
				ev.Result = audit.ResultConflict
				ev.Details = map[string]any{"conflicts": len(conflicts)}
				log.Infof("restore of %s aborted: %d conflicting file(s)", branch, len(conflicts))
				return nil
			}

			backup, err := m.store.Create(fmt.Sprintf("backup before restoring %s", branch), m.projectDir, m.CapturePolicy())
			if err != nil {
				return fmt.Errorf("failed to back up working tree: %w", err)
			}
			if backup.Created {
				report.BackupBranch = backup.Branch
				log.Infof("backed up working tree to %s", backup.Branch)
			} else {
				log.Infof("working tree already saved in %s, no backup needed", backup.Branch)
			}
		}

		if err := m.store.Checkout(branch); err != nil {
			return err
		}

		if len(rels) == 0 {
			stats, err := m.sync.Mirror(m.paths.BrowseDir, m.projectDir, exclude.ForRestore())
			if err != nil {
				return err
			}
			report.Copied = stats.Files
		} else {
			for _, rel := range rels {
				ok, err := m.sync.CopyFile(m.paths.BrowseDir, m.projectDir, rel, exclude.ForRestore())
				if err != nil {
					return err
				}
				if ok {
					report.Copied++
				} else {
					report.Missing = append(report.Missing, rel)
				}
			}
		}

		ev.Details = map[string]any{"copied": report.Copied}
		if report.BackupBranch != "" {
			ev.Details["backup"] = report.BackupBranch
		}
		if len(report.Missing) > 0 {
			ev.Details["missing"] = report.Missing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// CheckoutToBrowse checks branch out in the browse workspace and installs
// the hook that keeps snapshot branches read-only there
func (m *Manager) CheckoutToBrowse(branch string) error {
	ev := &audit.Event{Message: "check out into browse workspace", Branch: branch}

	return m.run(audit.TypeBrowse, ev, func() error {
		if err := m.store.Checkout(branch); err != nil {
			return err
		}
		if err := installHook(m.paths.StoreDir); err != nil {
			log.Warnf("pre-commit hook not installed: %v", err)
		}
		return nil
	})
}

// CheckoutToLab copies branch into the lab workspace. The lab's own .git,
// and any file the snapshot does not contain, are left alone.
func (m *Manager) CheckoutToLab(branch string) (filesync.Stats, error) {
	var stats filesync.Stats
	ev := &audit.Event{Message: "copy into lab workspace", Branch: branch}

	err := m.run(audit.TypeLab, ev, func() error {
		if err := m.store.Checkout(branch); err != nil {
			return err
		}
		var err error
		stats, err = m.sync.Mirror(m.paths.BrowseDir, m.paths.LabDir, exclude.ForRestore())
		if err != nil {
			return err
		}
		ev.Details = map[string]any{"files": stats.Files}
		return nil
	})
	return stats, err
}

const hookMarker = "# installed by verz"

const hookContent = `#!/bin/sh
# installed by verz
# Snapshot branches are immutable. Experiments in the browse workspace
# belong on practice-* branches.

branch=$(git rev-parse --abbrev-ref HEAD)

case "$branch" in
    practice-*) exit 0 ;;
esac

echo "ERROR: cannot commit to $branch in the sanctuary."
echo "Create a practice branch first: git checkout -b practice-<name>"
exit 1
`

// installHook writes the pre-commit hook into the store. A hook that was
// not written by verz is left in place.
func installHook(storeDir string) error {
	hooksDir := filepath.Join(storeDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0755); err != nil {
		return fmt.Errorf("failed to create hooks directory: %w", err)
	}

	hookPath := filepath.Join(hooksDir, "pre-commit")
	if existing, err := os.ReadFile(hookPath); err == nil && !strings.Contains(string(existing), hookMarker) {
		return fmt.Errorf("foreign pre-commit hook exists at %s", hookPath)
	}

	if err := os.WriteFile(hookPath, []byte(hookContent), 0755); err != nil {
		return fmt.Errorf("failed to write pre-commit hook: %w", err)
	}
	return os.Chmod(hookPath, 0755)
}
