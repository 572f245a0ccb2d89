// Package exclude decides which paths may cross the sanctuary boundary.
package exclude

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pders01/verz/internal/paths"
)

// VCSDirName is the version-control metadata entry of a git project
const VCSDirName = ".git"

// ErrExcluded is returned when a caller names a path the policy excludes
var ErrExcluded = errors.New("path is excluded from the sanctuary")

// Decision is the outcome of visiting one entry during a walk
type Decision int

const (
	// Descend visits the entry, and its children for a directory
	Descend Decision = iota
	// SkipSubtree prunes a directory and everything below it
	SkipSubtree
	// SkipEntry skips a single file
	SkipEntry
)

func (d Decision) String() string {
	switch d {
	case Descend:
		return "descend"
	case SkipSubtree:
		return "skip-subtree"
	case SkipEntry:
		return "skip-entry"
	default:
		return "unknown"
	}
}

// Policy holds everything needed to decide exclusions. It never reads the
// environment; configured override paths are passed in.
type Policy struct {
	// HostUsesGit excludes .git entries of the source project
	HostUsesGit bool
	// ForceVCSExclusion excludes .git entries regardless of HostUsesGit
	ForceVCSExclusion bool
	// SanctuaryDir and WorkspaceDir are skipped when met exactly
	SanctuaryDir string
	WorkspaceDir string
	// OverridePaths are skipped along with everything below them, when they
	// lie inside the copy root. An override that contains the root is ignored.
	OverridePaths []string
}

// ForCapture is the policy for copying a project into the sanctuary
func ForCapture(hostUsesGit bool, p paths.SanctuaryPaths, overrides []string) Policy {
	return Policy{
		HostUsesGit:   hostUsesGit,
		SanctuaryDir:  p.Root,
		WorkspaceDir:  p.BrowseDir,
		OverridePaths: overrides,
	}
}

// ForRestore is the policy for copying out of the sanctuary checkout.
// The checkout's .git entry, and the destination's own repository, are never touched.
func ForRestore() Policy {
	return Policy{ForceVCSExclusion: true}
}

func (p Policy) skipVCS(name string) bool {
	return name == VCSDirName && (p.HostUsesGit || p.ForceVCSExclusion)
}

func reservedName(name string) bool {
	return strings.HasSuffix(name, paths.SanctuarySuffix) ||
		strings.HasSuffix(name, paths.WorkspacesSuffix) ||
		name == paths.TempDirName
}

// SkipDir reports whether the directory at path must be pruned when copying
// from root
func (p Policy) SkipDir(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	name := filepath.Base(path)

	if p.skipVCS(name) || reservedName(name) {
		return true
	}
	if p.SanctuaryDir != "" && path == filepath.Clean(p.SanctuaryDir) {
		return true
	}
	if p.WorkspaceDir != "" && path == filepath.Clean(p.WorkspaceDir) {
		return true
	}
	for _, o := range p.OverridePaths {
		if within(path, o) && !within(root, o) {
			return true
		}
	}
	return false
}

// SkipFile reports whether the file at path must be skipped when copying
// from root. Every ancestor up to root is checked, so a file is excluded
// even when the walker did not prune its parent.
func (p Policy) SkipFile(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)

	if p.skipVCS(filepath.Base(path)) {
		return true
	}
	for dir := filepath.Dir(path); dir != root && within(dir, root); dir = filepath.Dir(dir) {
		if p.SkipDir(root, dir) {
			return true
		}
	}
	return false
}

// Decide classifies one walk entry
func (p Policy) Decide(root, path string, isDir bool) Decision {
	if isDir {
		if filepath.Clean(path) != filepath.Clean(root) && p.SkipDir(root, path) {
			return SkipSubtree
		}
		return Descend
	}
	if p.SkipFile(root, path) {
		return SkipEntry
	}
	return Descend
}

// Excludes reports whether the slash-separated path rel below root names an
// excluded entry or anything inside one
func (p Policy) Excludes(root, rel string) bool {
	full := filepath.Join(root, filepath.FromSlash(rel))
	return p.SkipDir(root, full) || p.SkipFile(root, full)
}

// within reports whether path equals base or lies below it
func within(path, base string) bool {
	base = filepath.Clean(base)
	if path == base {
		return true
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
