// Package paths maps a project and its configuration onto the directories
// the sanctuary lives in.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// SanctuarySuffix names the sanctuary root: <project>.sanctuary
	SanctuarySuffix = ".sanctuary"
	// WorkspacesSuffix names the separated workspace container: <project>.verzspaces
	WorkspacesSuffix = ".verzspaces"
	// StoreDirName is the internal git directory inside the sanctuary root
	StoreDirName = ".sanctuary"
	// TempDirName is reserved for in-flight scratch directories
	TempDirName = ".verz-tmp"

	BrowseDirName    = "browse"
	LabDirName       = "lab"
	MetadataFileName = "sanctuary.yaml"
	LogFileName      = "verz-log.jsonl"
	LockFileName     = ".verz.lock"
)

// Settings carries the configured parent directories. Overrides come from
// flags or the config file, Env values from the environment. Empty means unset.
type Settings struct {
	SanctuaryOverride string
	SanctuaryEnv      string
	WorkspaceOverride string
	WorkspaceEnv      string
}

// OverridePaths returns every configured parent directory, for exclusion
func (s Settings) OverridePaths() []string {
	var out []string
	for _, p := range []string{s.SanctuaryOverride, s.SanctuaryEnv, s.WorkspaceOverride, s.WorkspaceEnv} {
		if p != "" {
			out = append(out, filepath.Clean(p))
		}
	}
	return out
}

// SanctuaryPaths is every location used by one sanctuary
type SanctuaryPaths struct {
	Root               string
	StoreDir           string
	WorkspaceContainer string
	BrowseDir          string
	LabDir             string
	MetadataFile       string
	LogFile            string
	LockFile           string
	// CoLocated is true when the workspaces nest inside Root
	CoLocated bool
}

// Resolve computes the sanctuary layout for project, working in workingDir.
// Explicitly configured parent directories are created if missing; nothing
// else is touched.
func Resolve(s Settings, workingDir, project string) (SanctuaryPaths, error) {
	if project == "" {
		return SanctuaryPaths{}, fmt.Errorf("project name is required")
	}
	wd, err := filepath.Abs(workingDir)
	if err != nil {
		return SanctuaryPaths{}, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	sanctuaryParent, explicitSanctuary := pick(s.SanctuaryOverride, s.SanctuaryEnv)
	if sanctuaryParent == "" {
		sanctuaryParent = filepath.Dir(wd)
	}
	workspaceParent, explicitWorkspace := pick(s.WorkspaceOverride, s.WorkspaceEnv)
	if workspaceParent == "" {
		workspaceParent = sanctuaryParent
	}

	if sanctuaryParent, err = absolute(sanctuaryParent, explicitSanctuary); err != nil {
		return SanctuaryPaths{}, err
	}
	if workspaceParent, err = absolute(workspaceParent, explicitWorkspace); err != nil {
		return SanctuaryPaths{}, err
	}

	root := filepath.Join(sanctuaryParent, project+SanctuarySuffix)
	p := SanctuaryPaths{
		Root:         root,
		StoreDir:     filepath.Join(root, StoreDirName),
		MetadataFile: filepath.Join(root, MetadataFileName),
		LogFile:      filepath.Join(root, LogFileName),
		LockFile:     filepath.Join(root, LockFileName),
		CoLocated:    workspaceParent == sanctuaryParent,
	}

	if p.CoLocated {
		p.WorkspaceContainer = root
	} else {
		p.WorkspaceContainer = filepath.Join(workspaceParent, project+WorkspacesSuffix)
	}
	p.BrowseDir = filepath.Join(p.WorkspaceContainer, BrowseDirName)
	p.LabDir = filepath.Join(p.WorkspaceContainer, LabDirName)

	return p, nil
}

// pick returns the first non-empty value and whether one was configured
func pick(values ...string) (string, bool) {
	for _, v := range values {
		if v != "" {
			return v, true
		}
	}
	return "", false
}

func absolute(dir string, explicit bool) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if explicit {
		if err := os.MkdirAll(abs, 0755); err != nil {
			return "", fmt.Errorf("failed to create configured directory %s: %w", abs, err)
		}
	}
	return abs, nil
}
