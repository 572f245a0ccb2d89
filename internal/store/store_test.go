package store

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/verz/internal/exclude"
	"github.com/pders01/verz/internal/metadata"
	"github.com/pders01/verz/internal/paths"
	"github.com/pders01/verz/internal/testutil"
)

// stepClock returns a clock that advances by step on every call
func stepClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

type fixture struct {
	project *testutil.TempProject
	paths   paths.SanctuaryPaths
	store   *Store
	policy  exclude.Policy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	proj := testutil.NewTempProject(t, "demo", true)
	p, err := paths.Resolve(paths.Settings{}, proj.Path, proj.Name)
	require.NoError(t, err)

	s := New(Options{
		Paths:       p,
		ProjectName: proj.Name,
		ProjectDir:  proj.Path,
		Now:         stepClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local), time.Second),
	})
	return &fixture{
		project: proj,
		paths:   p,
		store:   s,
		policy:  exclude.ForCapture(true, p, nil),
	}
}

func (f *fixture) snapshot(t *testing.T, msg string) Result {
	t.Helper()
	res, err := f.store.Create(msg, f.project.Path, f.policy)
	require.NoError(t, err)
	return res
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Uninitialized, f.store.State())

	created, err := f.store.Initialize()
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Empty, f.store.State())

	gitFile, err := os.ReadFile(filepath.Join(f.paths.BrowseDir, ".git"))
	require.NoError(t, err)
	assert.Equal(t, "gitdir: "+f.paths.StoreDir+"\n", string(gitFile))

	m, err := metadata.Load(f.paths.MetadataFile)
	require.NoError(t, err)
	assert.Equal(t, "demo", m.Identity.ProjectName)
	assert.Equal(t, f.project.Path, m.Identity.BoundProjectPath)

	// second run repairs missing metadata only
	require.NoError(t, os.Remove(f.paths.MetadataFile))
	created, err = f.store.Initialize()
	require.NoError(t, err)
	assert.False(t, created)
	assert.FileExists(t, f.paths.MetadataFile)
}

func TestCreateFirstSnapshot(t *testing.T) {
	f := newFixture(t)
	f.project.CreateFile("src/main.go", "package main\n")

	res := f.snapshot(t, "first")
	assert.True(t, res.Created)
	assert.False(t, res.NoChange)
	assert.Equal(t, "auto-20250301-1000-00-000", res.Branch)
	assert.Equal(t, HasCommits, f.store.State())

	assert.Equal(t, "package main\n", testutil.StoreFile(t, f.paths.StoreDir, res.Branch, "src/main.go"))
	assert.True(t, testutil.StoreHasFile(t, f.paths.StoreDir, res.Branch, "README.md"))
	assert.False(t, testutil.StoreHasFile(t, f.paths.StoreDir, res.Branch, ".git/HEAD"))

	msg := testutil.Git(t, f.paths.BrowseDir, "--git-dir", f.paths.StoreDir, "log", "-1", "--format=%s", res.Branch)
	assert.Equal(t, "first - 2025-03-01 10:00:00", msg)
}

func TestCreateTwiceWithoutChangesIsNoChange(t *testing.T) {
	f := newFixture(t)

	first := f.snapshot(t, "first")
	second := f.snapshot(t, "second")

	assert.True(t, second.NoChange)
	assert.False(t, second.Created)
	assert.Equal(t, first.Branch, second.Branch)

	branches, err := f.store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{first.Branch}, branches)
}

func TestCreateCapturesDeletions(t *testing.T) {
	f := newFixture(t)
	f.project.CreateFile("gone.txt", "bye\n")
	first := f.snapshot(t, "first")

	f.project.RemoveFile("gone.txt")
	second := f.snapshot(t, "second")

	require.True(t, second.Created)
	assert.NotEqual(t, first.Branch, second.Branch)
	assert.True(t, testutil.StoreHasFile(t, f.paths.StoreDir, first.Branch, "gone.txt"))
	assert.False(t, testutil.StoreHasFile(t, f.paths.StoreDir, second.Branch, "gone.txt"))
}

func TestCreateSameMillisecondGetsSuffix(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 5*int(time.Millisecond), time.Local)
	f.store.now = func() time.Time { return fixed }

	first := f.snapshot(t, "first")
	f.project.CreateFile("a.txt", "changed\n")
	second := f.snapshot(t, "second")

	assert.Equal(t, "auto-20250301-1000-00-005", first.Branch)
	assert.Equal(t, "auto-20250301-1000-00-005-001", second.Branch)

	latest, err := f.store.Latest()
	require.NoError(t, err)
	assert.Equal(t, second.Branch, latest)
}

func TestCreateAfterCleaningEverything(t *testing.T) {
	f := newFixture(t)
	f.snapshot(t, "first")

	outcomes, err := f.store.Cleanup(0)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Deleted)

	res := f.snapshot(t, "again")
	assert.True(t, res.Created)

	branches, err := f.store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{res.Branch}, branches)
}

func TestCleanupKeepsNewest(t *testing.T) {
	f := newFixture(t)

	var created []string
	for i := 0; i < 5; i++ {
		f.project.CreateFile("counter.txt", string(rune('a'+i)))
		created = append(created, f.snapshot(t, "snap").Branch)
	}

	outcomes, err := f.store.Cleanup(2)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for i, out := range outcomes {
		assert.Equal(t, created[i], out.Branch)
		assert.True(t, out.Deleted)
		assert.NoError(t, out.Err)
	}

	branches, err := f.store.List()
	require.NoError(t, err)
	assert.Equal(t, created[3:], branches)

	outcomes, err = f.store.Cleanup(10)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	_, err = f.store.Cleanup(-1)
	assert.Error(t, err)
}

func TestDeleteCheckedOutBranchSwitchesAway(t *testing.T) {
	f := newFixture(t)
	first := f.snapshot(t, "first")
	f.project.CreateFile("b.txt", "b\n")
	second := f.snapshot(t, "second")

	require.NoError(t, f.store.Delete(second.Branch))

	current, err := f.store.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, first.Branch, current)
	assert.NoFileExists(t, filepath.Join(f.paths.BrowseDir, "b.txt"))

	err = f.store.Delete("auto-nope")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestCheckoutReplacesBrowseContent(t *testing.T) {
	f := newFixture(t)
	f.project.CreateFile("a.txt", "1")
	first := f.snapshot(t, "first")
	f.project.CreateFile("a.txt", "2")
	f.project.CreateFile("extra.txt", "x")
	f.snapshot(t, "second")

	testutil.WriteFile(t, filepath.Join(f.paths.BrowseDir, "scratch.txt"), "junk")
	require.NoError(t, f.store.Checkout(first.Branch))

	data, err := os.ReadFile(filepath.Join(f.paths.BrowseDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
	assert.NoFileExists(t, filepath.Join(f.paths.BrowseDir, "extra.txt"))
	assert.NoFileExists(t, filepath.Join(f.paths.BrowseDir, "scratch.txt"))
	assert.FileExists(t, filepath.Join(f.paths.BrowseDir, ".git"))

	err = f.store.Checkout("auto-missing")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestDiff(t *testing.T) {
	f := newFixture(t)
	f.project.CreateFile("a.txt", "1\n")
	first := f.snapshot(t, "first")
	f.project.CreateFile("a.txt", "2\n")
	second := f.snapshot(t, "second")

	patch, err := f.store.Diff(first.Branch, second.Branch)
	require.NoError(t, err)
	assert.Contains(t, patch, "-1")
	assert.Contains(t, patch, "+2")

	_, err = f.store.Diff(first.Branch, "auto-missing")
	require.ErrorIs(t, err, ErrBranchNotFound)
	assert.Contains(t, err.Error(), first.Branch)
	assert.Contains(t, err.Error(), "auto-missing")
}

func TestDiffDir(t *testing.T) {
	f := newFixture(t)
	f.project.CreateFile("a.txt", "one\ntwo\n")
	f.project.CreateFile("same.txt", "same\n")
	snap := f.snapshot(t, "first")

	f.project.CreateFile("a.txt", "one\nthree\n")
	f.project.CreateFile("new.txt", "new\n")

	patch, err := f.store.DiffDir(snap.Branch, f.project.Path, "", f.policy)
	require.NoError(t, err)
	assert.Contains(t, patch, "--- a/a.txt")
	assert.Contains(t, patch, "-two")
	assert.Contains(t, patch, "+three")
	assert.Contains(t, patch, "+new")
	assert.NotContains(t, patch, "same.txt")
	assert.NotContains(t, patch, ".git/")

	single, err := f.store.DiffDir(snap.Branch, f.project.Path, "a.txt", f.policy)
	require.NoError(t, err)
	assert.Contains(t, single, "+three")
	assert.NotContains(t, single, "new.txt")

	_, err = f.store.DiffDir(snap.Branch, f.project.Path, "../escape", f.policy)
	assert.Error(t, err)
}

func TestReadFileImplementsSnapshotReader(t *testing.T) {
	f := newFixture(t)
	f.project.CreateFile("dir/a.txt", "a")
	snap := f.snapshot(t, "first")

	files, err := f.store.ListFiles(snap.Branch)
	require.NoError(t, err)
	assert.Contains(t, files, "dir/a.txt")

	data, ok, err := f.store.ReadFile(snap.Branch, "dir/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", string(data))

	_, ok, err = f.store.ReadFile(snap.Branch, "dir/none.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	f.project.CreateFile("a.txt", "alpha")
	first := f.snapshot(t, "first")
	f.project.CreateFile("b.txt", "beta")
	second := f.snapshot(t, "second")

	var buf bytes.Buffer
	require.NoError(t, f.store.Export(&buf, []string{first.Branch, second.Branch}))

	gz, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	assert.Equal(t, "alpha", contents[first.Branch+"/a.txt"])
	assert.NotContains(t, contents, first.Branch+"/b.txt")
	assert.Equal(t, "beta", contents[second.Branch+"/b.txt"])

	err = f.store.Export(io.Discard, []string{"auto-missing"})
	assert.ErrorIs(t, err, ErrBranchNotFound)
}
