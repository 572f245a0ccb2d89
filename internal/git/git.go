package git

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Repository is a git repository whose metadata lives apart from its work tree.
// Every command runs with explicit --git-dir and --work-tree so the
// repository never picks up the surrounding project's .git.
type Repository struct {
	gitDir   string
	workTree string
}

// New returns a Repository for gitDir and workTree. Neither has to exist yet.
func New(gitDir, workTree string) *Repository {
	return &Repository{gitDir: gitDir, workTree: workTree}
}

// GitDir returns the repository metadata directory
func (r *Repository) GitDir() string { return r.gitDir }

// WorkTree returns the checkout directory
func (r *Repository) WorkTree() string { return r.workTree }

func (r *Repository) command(args ...string) *exec.Cmd {
	full := append([]string{"--git-dir", r.gitDir, "--work-tree", r.workTree}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = r.workTree
	return cmd
}

// run executes a git command and returns its stdout. Failures carry stderr.
func (r *Repository) run(args ...string) ([]byte, error) {
	cmd := r.command(args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debugf("git %s", strings.Join(args, " "))
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (r *Repository) runString(args ...string) (string, error) {
	out, err := r.run(args...)
	return strings.TrimSpace(string(out)), err
}

// exitCode reports the exit status of a failed git command, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Init creates the repository with initialBranch as the unborn default line
func (r *Repository) Init(initialBranch string) error {
	if _, err := r.run("init", "--quiet"); err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	if _, err := r.run("symbolic-ref", "HEAD", "refs/heads/"+initialBranch); err != nil {
		return fmt.Errorf("failed to set initial branch: %w", err)
	}
	return nil
}

// SetConfig writes a repository-local config value
func (r *Repository) SetConfig(key, value string) error {
	if _, err := r.run("config", "--local", key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// HasCommits checks whether HEAD resolves to a commit
func (r *Repository) HasCommits() bool {
	_, err := r.run("rev-parse", "--verify", "-q", "HEAD^{commit}")
	return err == nil
}

// AddAll stages additions, modifications and deletions in the whole work tree
func (r *Repository) AddAll() error {
	if _, err := r.run("add", "-A", "."); err != nil {
		return fmt.Errorf("failed to add files: %w", err)
	}
	return nil
}

// HasStagedChanges checks whether the index differs from HEAD
func (r *Repository) HasStagedChanges() (bool, error) {
	_, err := r.run("diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	if exitCode(err) == 1 {
		return true, nil
	}
	return false, fmt.Errorf("failed to check git status: %w", err)
}

// Commit creates a commit bypassing hooks. The sanctuary installs a
// pre-commit hook for humans; its own commits must never be blocked by it.
func (r *Repository) Commit(message string, allowEmpty bool) error {
	args := []string{"commit", "--no-verify", "--quiet", "-m", message}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	if _, err := r.run(args...); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CurrentBranch returns the checked out branch, or "" when HEAD is detached
func (r *Repository) CurrentBranch() (string, error) {
	out, err := r.runString("symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		if exitCode(err) == 1 {
			return "", nil
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return out, nil
}

// BranchExists checks if a local branch exists
func (r *Repository) BranchExists(branch string) bool {
	_, err := r.run("rev-parse", "--verify", "-q", "refs/heads/"+branch)
	return err == nil
}

// CheckoutNewBranch creates branch at HEAD and switches to it, carrying the index along
func (r *Repository) CheckoutNewBranch(branch string) error {
	if _, err := r.run("checkout", "--quiet", "-b", branch); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return nil
}

// CheckoutBranchForce checks out a branch, discarding local modifications
func (r *Repository) CheckoutBranchForce(branch string) error {
	if _, err := r.run("checkout", "--quiet", "-f", branch); err != nil {
		return fmt.Errorf("failed to force checkout branch %s: %w", branch, err)
	}
	return nil
}

// RemoveUntrackedFiles removes untracked and ignored files and directories
func (r *Repository) RemoveUntrackedFiles() error {
	if _, err := r.run("clean", "-q", "-f", "-d", "-x"); err != nil {
		return fmt.Errorf("failed to remove untracked files: %w", err)
	}
	return nil
}

// ListBranches returns local branches whose names start with prefix, sorted
func (r *Repository) ListBranches(prefix string) ([]string, error) {
	out, err := r.runString("for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasPrefix(line, prefix) {
			branches = append(branches, line)
		}
	}
	sort.Strings(branches)
	return branches, nil
}

// DeleteBranch deletes a branch
func (r *Repository) DeleteBranch(branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := r.run("branch", flag, branch); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	return nil
}

// Diff returns a patch between two revisions with rename detection
func (r *Repository) Diff(from, to string) (string, error) {
	out, err := r.run("diff", "--find-renames", "--no-color", from, to)
	if err != nil {
		return "", fmt.Errorf("failed to get diff: %w", err)
	}
	return string(out), nil
}

// TreeEntry is one blob recorded in a tree
type TreeEntry struct {
	Mode string
	Path string
}

// IsSymlink reports whether the entry records a symbolic link
func (e TreeEntry) IsSymlink() bool { return e.Mode == "120000" }

// IsExecutable reports whether the entry carries the executable bit
func (e TreeEntry) IsExecutable() bool { return e.Mode == "100755" }

// ListTree returns every blob recorded in the tree of rev, recursively
func (r *Repository) ListTree(rev string) ([]TreeEntry, error) {
	out, err := r.run("ls-tree", "-r", "-z", rev)
	if err != nil {
		return nil, fmt.Errorf("failed to list files of %s: %w", rev, err)
	}

	var entries []TreeEntry
	for _, record := range bytes.Split(out, []byte{0}) {
		// <mode> SP <type> SP <object> TAB <path>
		meta, path, ok := bytes.Cut(record, []byte{'\t'})
		if !ok {
			continue
		}
		fields := strings.Fields(string(meta))
		if len(fields) != 3 || fields[1] != "blob" {
			continue
		}
		entries = append(entries, TreeEntry{Mode: fields[0], Path: string(path)})
	}
	return entries, nil
}

// ListFiles returns every file path recorded in the tree of rev
func (r *Repository) ListFiles(rev string) ([]string, error) {
	entries, err := r.ListTree(rev)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		files = append(files, e.Path)
	}
	return files, nil
}

// ShowFile reads path from the tree of rev. The bool is false when the path
// is not part of that tree.
func (r *Repository) ShowFile(rev, path string) ([]byte, bool, error) {
	object := fmt.Sprintf("%s:%s", rev, path)
	if _, err := r.run("cat-file", "-e", object); err != nil {
		return nil, false, nil
	}
	out, err := r.run("cat-file", "blob", object)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", object, err)
	}
	return out, true, nil
}

// FindRoot returns the top level of the git repository containing dir
func FindRoot(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository: %s", dir)
	}
	return strings.TrimSpace(string(output)), nil
}
