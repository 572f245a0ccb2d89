// Package store keeps snapshots as branches of a private git repository.
//
// The repository metadata lives in the sanctuary's store directory and its
// work tree is the browse workspace, so every capture and restore passes
// through one shared checkout.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/pders01/verz/internal/exclude"
	"github.com/pders01/verz/internal/filesync"
	"github.com/pders01/verz/internal/git"
	"github.com/pders01/verz/internal/metadata"
	"github.com/pders01/verz/internal/models"
	"github.com/pders01/verz/internal/paths"
)

// MainBranch holds the store's first commit
const MainBranch = "main"

const commitTimeLayout = "2006-01-02 15:04:05"

// ErrBranchNotFound is returned when a requested snapshot does not exist
var ErrBranchNotFound = errors.New("snapshot branch not found")

// State of the store repository
type State int

const (
	Uninitialized State = iota
	Empty
	HasCommits
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Empty:
		return "empty"
	case HasCommits:
		return "has-commits"
	default:
		return "unknown"
	}
}

// Result describes the outcome of Create
type Result struct {
	Branch   string `json:"branch"`
	Created  bool   `json:"created"`
	NoChange bool   `json:"nochange"`
}

// BranchOutcome reports what happened to one branch during Cleanup
type BranchOutcome struct {
	Branch  string `json:"branch"`
	Deleted bool   `json:"deleted"`
	Err     error  `json:"-"`
}

// Options configures a Store
type Options struct {
	Paths       paths.SanctuaryPaths
	ProjectName string
	ProjectDir  string
	Fs          afero.Fs
	Now         func() time.Time
}

// Store is the snapshot repository of one sanctuary
type Store struct {
	paths   paths.SanctuaryPaths
	project string
	projDir string
	fs      afero.Fs
	sync    *filesync.Engine
	repo    *git.Repository
	now     func() time.Time
}

// New returns a Store. Nothing is created on disk until Initialize or Create.
func New(opts Options) *Store {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		paths:   opts.Paths,
		project: opts.ProjectName,
		projDir: opts.ProjectDir,
		fs:      fs,
		sync:    filesync.New(fs),
		repo:    git.New(opts.Paths.StoreDir, opts.Paths.BrowseDir),
		now:     now,
	}
}

// Paths returns the sanctuary layout this store works in
func (s *Store) Paths() paths.SanctuaryPaths { return s.paths }

// Repository exposes the underlying git repository
func (s *Store) Repository() *git.Repository { return s.repo }

// State reports how far the store has been set up
func (s *Store) State() State {
	if _, err := os.Stat(filepath.Join(s.paths.StoreDir, "HEAD")); err != nil {
		return Uninitialized
	}
	if !s.repo.HasCommits() {
		return Empty
	}
	return HasCommits
}

// Initialize creates the store repository, the browse gitfile and default
// metadata. Running it again only repairs what is missing. It reports
// whether the repository was created by this call.
func (s *Store) Initialize() (bool, error) {
	for _, dir := range []string{s.paths.Root, s.paths.BrowseDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	created := false
	if s.State() == Uninitialized {
		if err := s.repo.Init(MainBranch); err != nil {
			return false, err
		}
		settings := [][2]string{
			{"user.name", "verz"},
			{"user.email", "verz@localhost"},
			{"commit.gpgsign", "false"},
			{"core.autocrlf", "false"},
		}
		for _, kv := range settings {
			if err := s.repo.SetConfig(kv[0], kv[1]); err != nil {
				return false, err
			}
		}
		created = true
		log.Infof("initialized sanctuary store at %s", s.paths.StoreDir)
	}

	if err := s.writeGitFile(); err != nil {
		return created, err
	}

	if _, _, err := metadata.EnsureExists(s.paths.MetadataFile, s.project, s.projDir, s.now()); err != nil {
		return created, err
	}
	return created, nil
}

// writeGitFile points the browse workspace at the store, so plain git
// commands work when run inside it
func (s *Store) writeGitFile() error {
	gitFile := filepath.Join(s.paths.BrowseDir, exclude.VCSDirName)
	want := "gitdir: " + s.paths.StoreDir + "\n"

	if data, err := os.ReadFile(gitFile); err == nil && string(data) == want {
		return nil
	}
	if err := os.WriteFile(gitFile, []byte(want), 0644); err != nil {
		return fmt.Errorf("failed to write gitfile: %w", err)
	}
	return nil
}

// Create captures source into a new snapshot branch. When nothing changed
// since the checked out snapshot, no branch is created and the result
// names the existing snapshot.
func (s *Store) Create(message, source string, policy exclude.Policy) (Result, error) {
	now := s.now()
	if s.State() == Uninitialized {
		if _, err := s.Initialize(); err != nil {
			return Result{}, err
		}
	}

	if err := s.sync.Clear(s.paths.BrowseDir, exclude.VCSDirName); err != nil {
		return Result{}, err
	}
	stats, err := s.sync.Mirror(source, s.paths.BrowseDir, policy)
	if err != nil {
		return Result{}, err
	}
	if err := s.repo.AddAll(); err != nil {
		return Result{}, err
	}

	name := models.UniqueBranchName(now, s.repo.BranchExists)
	commitMsg := fmt.Sprintf("%s - %s", message, now.Format(commitTimeLayout))

	if !s.repo.HasCommits() {
		if err := s.repo.Commit(commitMsg, true); err != nil {
			return Result{}, err
		}
		if err := s.repo.CheckoutNewBranch(name); err != nil {
			return Result{}, err
		}
		log.Infof("created first snapshot %s (%d files)", name, stats.Files)
		return Result{Branch: name, Created: true}, nil
	}

	staged, err := s.repo.HasStagedChanges()
	if err != nil {
		return Result{}, err
	}
	if !staged {
		existing, err := s.currentSnapshot()
		if err != nil {
			return Result{}, err
		}
		if existing != "" {
			log.Infof("no changes since %s", existing)
			return Result{Branch: existing, NoChange: true}, nil
		}
		// every snapshot was cleaned up; label the unchanged HEAD
		if err := s.repo.CheckoutNewBranch(name); err != nil {
			return Result{}, err
		}
		return Result{Branch: name, Created: true}, nil
	}

	if err := s.repo.CheckoutNewBranch(name); err != nil {
		return Result{}, err
	}
	if err := s.repo.Commit(commitMsg, false); err != nil {
		return Result{}, err
	}
	log.Infof("created snapshot %s (%d files)", name, stats.Files)
	return Result{Branch: name, Created: true}, nil
}

// currentSnapshot returns the checked out snapshot branch, falling back to
// the latest one
func (s *Store) currentSnapshot() (string, error) {
	current, err := s.repo.CurrentBranch()
	if err != nil {
		return "", err
	}
	if models.IsSnapshotBranch(current) {
		return current, nil
	}
	return s.Latest()
}

// List returns the snapshot branches in chronological order
func (s *Store) List() ([]string, error) {
	if s.State() == Uninitialized {
		return nil, nil
	}
	return s.repo.ListBranches(models.BranchPrefix)
}

// Snapshots returns List with capture times parsed from the branch names
func (s *Store) Snapshots() ([]models.Snapshot, error) {
	branches, err := s.List()
	if err != nil {
		return nil, err
	}
	snaps := make([]models.Snapshot, 0, len(branches))
	for _, b := range branches {
		snap, err := models.ParseSnapshot(b)
		if err != nil {
			log.Debugf("unparseable snapshot branch %s: %v", b, err)
			snap = models.Snapshot{Branch: b}
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Latest returns the newest snapshot branch, or "" when there is none
func (s *Store) Latest() (string, error) {
	branches, err := s.List()
	if err != nil {
		return "", err
	}
	if len(branches) == 0 {
		return "", nil
	}
	return branches[len(branches)-1], nil
}

// Exists reports whether a snapshot branch exists
func (s *Store) Exists(branch string) bool {
	return s.State() != Uninitialized && s.repo.BranchExists(branch)
}

// CurrentBranch returns the branch checked out in the browse workspace
func (s *Store) CurrentBranch() (string, error) {
	if s.State() == Uninitialized {
		return "", nil
	}
	return s.repo.CurrentBranch()
}

// Checkout replaces the browse workspace with the content of branch
func (s *Store) Checkout(branch string) error {
	if !s.Exists(branch) {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	if err := s.repo.CheckoutBranchForce(branch); err != nil {
		return err
	}
	if err := s.repo.RemoveUntrackedFiles(); err != nil {
		return err
	}
	return s.writeGitFile()
}

// Diff returns the patch from snapshot a to snapshot b
func (s *Store) Diff(a, b string) (string, error) {
	var missing []string
	for _, br := range []string{a, b} {
		if !s.Exists(br) {
			missing = append(missing, br)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: cannot diff %s and %s (missing: %v)", ErrBranchNotFound, a, b, missing)
	}
	return s.repo.Diff(a, b)
}

// Delete removes a snapshot branch. If it is checked out, the workspace
// first moves to the newest remaining snapshot, or to main.
func (s *Store) Delete(branch string) error {
	if !s.Exists(branch) {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	current, err := s.repo.CurrentBranch()
	if err != nil {
		return err
	}
	if current == branch {
		target, err := s.fallbackBranch(branch)
		if err != nil {
			return err
		}
		if err := s.Checkout(target); err != nil {
			return fmt.Errorf("failed to switch away from %s: %w", branch, err)
		}
	}
	return s.repo.DeleteBranch(branch, true)
}

func (s *Store) fallbackBranch(leaving string) (string, error) {
	branches, err := s.List()
	if err != nil {
		return "", err
	}
	for i := len(branches) - 1; i >= 0; i-- {
		if branches[i] != leaving {
			return branches[i], nil
		}
	}
	return MainBranch, nil
}

// Cleanup deletes all but the newest keep snapshots. Deletion continues
// past individual failures; each branch gets its own outcome.
func (s *Store) Cleanup(keep int) ([]BranchOutcome, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative: %d", keep)
	}
	branches, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(branches) <= keep {
		return nil, nil
	}

	doomed := branches[:len(branches)-keep]
	outcomes := make([]BranchOutcome, 0, len(doomed))
	for _, b := range doomed {
		out := BranchOutcome{Branch: b}
		if err := s.Delete(b); err != nil {
			log.Warnf("failed to delete %s: %v", b, err)
			out.Err = err
		} else {
			out.Deleted = true
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// ListFiles returns the files recorded in a snapshot
func (s *Store) ListFiles(branch string) ([]string, error) {
	if !s.Exists(branch) {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	return s.repo.ListFiles(branch)
}

// ReadFile returns one file of a snapshot. The bool is false when the
// snapshot does not contain path.
func (s *Store) ReadFile(branch, path string) ([]byte, bool, error) {
	if !s.Exists(branch) {
		return nil, false, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	return s.repo.ShowFile(branch, path)
}
