// Package conflict compares a snapshot against the live working tree before
// a restore overwrites anything.
package conflict

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/pders01/verz/internal/exclude"
)

// WorkingState describes the working-tree side of a conflict
type WorkingState string

// SanctuaryState describes the snapshot side of a conflict
type SanctuaryState string

const (
	WorkingNew      WorkingState = "new file"
	WorkingModified WorkingState = "modified"
	WorkingMissing  WorkingState = "missing"

	SanctuaryNew       SanctuaryState = "new file"
	SanctuaryDifferent SanctuaryState = "different content"
	SanctuaryMissing   SanctuaryState = "missing"
)

// Info is one path where the working tree and the snapshot disagree
type Info struct {
	Path      string         `json:"path"`
	Working   WorkingState   `json:"working"`
	Sanctuary SanctuaryState `json:"sanctuary"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s (working: %s, sanctuary: %s)", i.Path, i.Working, i.Sanctuary)
}

// SnapshotReader gives read access to the files of a snapshot
type SnapshotReader interface {
	ListFiles(branch string) ([]string, error)
	ReadFile(branch, path string) ([]byte, bool, error)
}

// Classify applies the conflict table to one path. The bool is false when
// there is no conflict.
func Classify(rel string, workExists bool, work []byte, snapExists bool, snap []byte) (Info, bool) {
	switch {
	case !workExists && !snapExists:
		return Info{}, false
	case !workExists:
		return Info{Path: rel, Working: WorkingMissing, Sanctuary: SanctuaryNew}, true
	case !snapExists:
		return Info{Path: rel, Working: WorkingNew, Sanctuary: SanctuaryMissing}, true
	case SameContent(work, snap):
		return Info{}, false
	default:
		return Info{Path: rel, Working: WorkingModified, Sanctuary: SanctuaryDifferent}, true
	}
}

// SameContent is a byte-exact comparison
func SameContent(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return bytes.Equal(a, b)
}

// Detector checks candidate restores against WorkDir
type Detector struct {
	Fs        afero.Fs
	WorkDir   string
	Snapshots SnapshotReader
	// Exclude, when set, refuses explicit paths it excludes and drops them
	// from a full listing
	Exclude   *exclude.Policy
}

// Detect returns the conflicts restoring paths from branch would cause.
// An empty paths list means every file in the snapshot.
func (d *Detector) Detect(branch string, paths []string) ([]Info, error) {
	explicit := len(paths) > 0
	if !explicit {
		all, err := d.Snapshots.ListFiles(branch)
		if err != nil {
			return nil, err
		}
		paths = all
	}

	var conflicts []Info
	for _, p := range paths {
		rel, err := Normalize(p)
		if err != nil {
			return nil, err
		}
		if d.Exclude != nil && d.Exclude.Excludes(d.WorkDir, rel) {
			if explicit {
				return nil, fmt.Errorf("%w: %s", exclude.ErrExcluded, rel)
			}
			continue
		}

		snap, snapExists, err := d.Snapshots.ReadFile(branch, rel)
		if err != nil {
			return nil, err
		}

		w, err := d.readWorking(rel, snapExists, int64(len(snap)))
		if err != nil {
			return nil, err
		}

		if w.dir && snapExists {
			// a directory sits where the snapshot has a file
			conflicts = append(conflicts, Info{Path: rel, Working: WorkingModified, Sanctuary: SanctuaryDifferent})
			continue
		}
		if info, ok := Classify(rel, w.exists, w.data, snapExists, snap); ok {
			conflicts = append(conflicts, info)
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Path < conflicts[j].Path
	})
	return conflicts, nil
}

type workingFile struct {
	exists bool
	dir    bool
	data   []byte
}

// readWorking loads the working-tree file. When a snapshot copy exists and
// the sizes differ, the content is not read: a zeroed placeholder of the
// working size is returned, which can never equal the snapshot copy.
func (d *Detector) readWorking(rel string, snapExists bool, snapSize int64) (workingFile, error) {
	full := filepath.Join(d.WorkDir, filepath.FromSlash(rel))
	info, err := d.Fs.Stat(full)
	if os.IsNotExist(err) {
		return workingFile{}, nil
	}
	if err != nil {
		return workingFile{}, fmt.Errorf("failed to stat %s: %w", full, err)
	}
	if info.IsDir() {
		return workingFile{exists: true, dir: true}, nil
	}
	if snapExists && info.Size() != snapSize {
		return workingFile{exists: true, data: make([]byte, info.Size())}, nil
	}

	data, err := afero.ReadFile(d.Fs, full)
	if err != nil {
		return workingFile{}, fmt.Errorf("failed to read %s: %w", full, err)
	}
	return workingFile{exists: true, data: data}, nil
}

// Normalize turns a user-supplied path into a clean slash-separated path
// relative to the project root, rejecting anything that escapes it.
func Normalize(p string) (string, error) {
	rel := path.Clean(filepath.ToSlash(p))
	if rel == "." || rel == "" || path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("invalid path %q: must be relative to the project root", p)
	}
	return rel, nil
}
