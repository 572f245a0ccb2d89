package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// TempProject is a project directory inside a private parent directory, so
// the default sanctuary (a sibling of the project) stays inside the test's
// temp space.
type TempProject struct {
	Name   string
	Path   string
	Parent string
	T      *testing.T
}

// NewTempProject creates an empty project named name. With withGit the
// project is initialised as a git repository with one commit.
func NewTempProject(t *testing.T, name string, withGit bool) *TempProject {
	t.Helper()

	parent := t.TempDir()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}

	p := &TempProject{Name: name, Path: dir, Parent: parent, T: t}
	if withGit {
		p.git("init", "--quiet")
		p.git("config", "user.name", "Test User")
		p.git("config", "user.email", "test@example.com")
		p.git("config", "commit.gpgsign", "false")
		p.CreateFile("README.md", "# Test Project\n")
		p.git("add", ".")
		p.git("commit", "--quiet", "-m", "Initial commit")
	}
	return p
}

func (p *TempProject) git(args ...string) string {
	p.T.Helper()
	return Git(p.T, p.Path, args...)
}

// CreateFile writes a file below the project, creating parent directories
func (p *TempProject) CreateFile(name, content string) {
	p.T.Helper()
	WriteFile(p.T, filepath.Join(p.Path, name), content)
}

// ReadFile returns the content of a project file
func (p *TempProject) ReadFile(name string) string {
	p.T.Helper()
	data, err := os.ReadFile(filepath.Join(p.Path, name))
	if err != nil {
		p.T.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// Exists reports whether a project path exists
func (p *TempProject) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(p.Path, name))
	return err == nil
}

// RemoveFile deletes a project file
func (p *TempProject) RemoveFile(name string) {
	p.T.Helper()
	if err := os.Remove(filepath.Join(p.Path, name)); err != nil {
		p.T.Fatalf("failed to remove %s: %v", name, err)
	}
}

// HostHead returns the commit the project's own repository points at
func (p *TempProject) HostHead() string {
	p.T.Helper()
	return p.git("rev-parse", "HEAD")
}

// WriteFile writes content to path, creating parent directories
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
}

// Git runs git in dir and returns trimmed stdout
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v: %s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// StoreBranches lists the branches of a bare-layout store directory
func StoreBranches(t *testing.T, gitDir string) []string {
	t.Helper()
	out := Git(t, filepath.Dir(gitDir), "--git-dir", gitDir, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			branches = append(branches, line)
		}
	}
	sort.Strings(branches)
	return branches
}

// StoreFile returns file content at branch in a store directory
func StoreFile(t *testing.T, gitDir, branch, file string) string {
	t.Helper()
	cmd := exec.Command("git", "--git-dir", gitDir, "show", branch+":"+file)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to read %s from %s: %v", file, branch, err)
	}
	return string(out)
}

// StoreHasFile reports whether file is part of branch in a store directory
func StoreHasFile(t *testing.T, gitDir, branch, file string) bool {
	t.Helper()
	cmd := exec.Command("git", "--git-dir", gitDir, "cat-file", "-e", branch+":"+file)
	return cmd.Run() == nil
}
