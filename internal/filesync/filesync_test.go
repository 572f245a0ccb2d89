package filesync

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/verz/internal/exclude"
)

func write(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func read(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func exists(fs afero.Fs, path string) bool {
	ok, _ := afero.Exists(fs, path)
	return ok
}

func TestMirrorCopiesAndOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := New(fs)

	write(t, fs, "/src/a.txt", "new a")
	write(t, fs, "/src/dir/b.txt", "b")
	write(t, fs, "/dst/a.txt", "old a")
	write(t, fs, "/dst/extra.txt", "only in dest")

	stats, err := e.Mirror("/src", "/dst", exclude.Policy{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.Dirs)
	assert.Equal(t, int64(len("new a")+len("b")), stats.Bytes)
	assert.Equal(t, "new a", read(t, fs, "/dst/a.txt"))
	assert.Equal(t, "b", read(t, fs, "/dst/dir/b.txt"))
	assert.Equal(t, "only in dest", read(t, fs, "/dst/extra.txt"), "mirror-in must not delete")
}

func TestMirrorAppliesPolicy(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := New(fs)

	write(t, fs, "/src/keep.txt", "k")
	write(t, fs, "/src/.git/HEAD", "ref")
	write(t, fs, "/src/deep/er/.verz-tmp/x", "x")
	write(t, fs, "/dst/.git", "gitdir: /elsewhere")

	_, err := e.Mirror("/src", "/dst", exclude.ForRestore())
	require.NoError(t, err)

	assert.True(t, exists(fs, "/dst/keep.txt"))
	assert.False(t, exists(fs, "/dst/deep/er/.verz-tmp"))
	assert.Equal(t, "gitdir: /elsewhere", read(t, fs, "/dst/.git"), "destination vcs entry must be preserved")
}

func TestMirrorReplacesDirectoryWithFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := New(fs)

	write(t, fs, "/src/thing", "now a file")
	write(t, fs, "/dst/thing/inner.txt", "was a dir")

	_, err := e.Mirror("/src", "/dst", exclude.Policy{})
	require.NoError(t, err)
	assert.Equal(t, "now a file", read(t, fs, "/dst/thing"))
}

func TestMirrorSurfacesWriteErrors(t *testing.T) {
	base := afero.NewMemMapFs()
	write(t, base, "/src/a.txt", "a")

	e := New(afero.NewReadOnlyFs(base))
	_, err := e.Mirror("/src", "/dst", exclude.Policy{})
	assert.Error(t, err)
}

func TestClearKeepsNamedEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := New(fs)

	write(t, fs, "/ws/.git", "gitdir: /store")
	write(t, fs, "/ws/a.txt", "a")
	write(t, fs, "/ws/sub/b.txt", "b")

	require.NoError(t, e.Clear("/ws", ".git"))

	entries, err := afero.ReadDir(fs, "/ws")
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.Equal(t, []string{".git"}, names)
}

func TestClearCreatesMissingDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, New(fs).Clear("/fresh"))
	ok, err := afero.DirExists(fs, "/fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCopyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := New(fs)
	write(t, fs, "/snap/a/b/c.txt", "deep")

	copied, err := e.CopyFile("/snap", "/work", "a/b/c.txt", exclude.ForRestore())
	require.NoError(t, err)
	assert.True(t, copied)
	assert.Equal(t, "deep", read(t, fs, "/work/a/b/c.txt"))

	copied, err = e.CopyFile("/snap", "/work", "missing.txt", exclude.ForRestore())
	require.NoError(t, err)
	assert.False(t, copied)
	assert.False(t, exists(fs, "/work/missing.txt"))
}

func TestCopyFileRefusesExcludedPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := New(fs)
	write(t, fs, "/snap/.git", "gitdir: /store\n")
	write(t, fs, "/snap/sub/.git/config", "[core]\n")
	write(t, fs, "/work/.git/HEAD", "ref: refs/heads/main\n")

	for _, rel := range []string{".git", ".git/HEAD", "sub/.git/config"} {
		copied, err := e.CopyFile("/snap", "/work", rel, exclude.ForRestore())
		require.ErrorIs(t, err, exclude.ErrExcluded, rel)
		assert.False(t, copied)
	}

	info, err := fs.Stat("/work/.git")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "ref: refs/heads/main\n", read(t, fs, "/work/.git/HEAD"))
	assert.False(t, exists(fs, "/work/sub/.git/config"))
}

func TestMirrorOnDisk(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	fs := afero.NewOsFs()
	e := New(nil)

	write(t, fs, filepath.Join(src, "run.sh"), "#!/bin/sh\n")
	require.NoError(t, os.Chmod(filepath.Join(src, "run.sh"), 0755))
	write(t, fs, filepath.Join(src, "ro.txt"), "v2")
	write(t, fs, filepath.Join(dst, "ro.txt"), "v1")
	require.NoError(t, os.Chmod(filepath.Join(dst, "ro.txt"), 0444))
	require.NoError(t, os.Symlink("run.sh", filepath.Join(src, "link")))

	_, err := e.Mirror(src, dst, exclude.Policy{})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
	assert.Equal(t, "v2", read(t, fs, filepath.Join(dst, "ro.txt")))

	target, err := os.Readlink(filepath.Join(dst, "link"))
	require.NoError(t, err)
	assert.Equal(t, "run.sh", target)

	files, err := exclude.Files(fs, dst, exclude.Policy{})
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{"link", "ro.txt", "run.sh"}, files)
}
