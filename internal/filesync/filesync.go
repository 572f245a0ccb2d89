// Package filesync copies directory trees in and out of the sanctuary.
//
// Copies are mirror-in: files are created or overwritten, but files present
// only in the destination are left alone. Clear is the one deleting step and
// is only used before a fresh capture.
package filesync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/pders01/verz/internal/exclude"
)

// Stats counts what a mirror moved
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
}

// Engine copies files through an afero filesystem
type Engine struct {
	Fs afero.Fs
}

// New returns an Engine on fs, or on the OS filesystem when fs is nil
func New(fs afero.Fs) *Engine {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Engine{Fs: fs}
}

// Mirror copies src into dst, applying policy at every entry. The first
// I/O error aborts the copy; dst may then hold a partial mirror.
func (e *Engine) Mirror(src, dst string, policy exclude.Policy) (Stats, error) {
	var stats Stats

	if err := e.Fs.MkdirAll(dst, 0755); err != nil {
		return stats, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	err := exclude.Walk(e.Fs, src, policy, func(path, rel string, info os.FileInfo) error {
		target := filepath.Join(dst, filepath.FromSlash(rel))

		if info.IsDir() {
			if err := e.ensureDir(target, info.Mode().Perm()); err != nil {
				return err
			}
			stats.Dirs++
			return nil
		}

		n, err := e.copyEntry(path, target, info)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("mirror %s -> %s: %w", src, dst, err)
	}

	log.Debugf("mirrored %s -> %s: %d files, %d dirs", src, dst, stats.Files, stats.Dirs)
	return stats, nil
}

// Clear removes everything in dir except the entries named in keep.
// A missing dir is created empty.
func (e *Engine) Clear(dir string, keep ...string) error {
	entries, err := afero.ReadDir(e.Fs, dir)
	if os.IsNotExist(err) {
		return e.Fs.MkdirAll(dir, 0755)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}

	for _, entry := range entries {
		if kept[entry.Name()] {
			continue
		}
		if err := e.Fs.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// CopyFile copies the single relative path rel from src to dst, creating
// parent directories. It returns false without error when the source file
// does not exist. A path the policy excludes is refused with
// exclude.ErrExcluded.
func (e *Engine) CopyFile(src, dst, rel string, policy exclude.Policy) (bool, error) {
	if policy.Excludes(src, rel) || policy.Excludes(dst, rel) {
		return false, fmt.Errorf("%w: %s", exclude.ErrExcluded, rel)
	}

	from := filepath.Join(src, filepath.FromSlash(rel))
	to := filepath.Join(dst, filepath.FromSlash(rel))

	info, err := lstat(e.Fs, from)
	if os.IsNotExist(err) {
		log.Warnf("file not found in snapshot, skipping: %s", rel)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", from, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("not a file: %s", rel)
	}

	if err := e.Fs.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return false, fmt.Errorf("failed to create parent of %s: %w", to, err)
	}
	if _, err := e.copyEntry(from, to, info); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) ensureDir(path string, perm os.FileMode) error {
	info, err := lstat(e.Fs, path)
	if err == nil && !info.IsDir() {
		if err := e.Fs.Remove(path); err != nil {
			return fmt.Errorf("failed to replace %s with a directory: %w", path, err)
		}
	}
	if perm == 0 {
		perm = 0755
	}
	if err := e.Fs.MkdirAll(path, perm|0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

// copyEntry copies a regular file or recreates a symlink at target
func (e *Engine) copyEntry(from, to string, info os.FileInfo) (int64, error) {
	if existing, err := lstat(e.Fs, to); err == nil {
		switch {
		case existing.IsDir() || existing.Mode()&os.ModeSymlink != 0:
			if err := e.Fs.RemoveAll(to); err != nil {
				return 0, fmt.Errorf("failed to replace %s: %w", to, err)
			}
		case existing.Mode().Perm()&0200 == 0:
			// read-only files are still overwritten
			if err := e.Fs.Chmod(to, existing.Mode().Perm()|0200); err != nil {
				return 0, fmt.Errorf("failed to make %s writable: %w", to, err)
			}
		}
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return 0, e.copySymlink(from, to)
	}
	if !info.Mode().IsRegular() {
		log.Warnf("skipping special file: %s", from)
		return 0, nil
	}

	in, err := e.Fs.Open(from)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", from, err)
	}
	defer in.Close()

	out, err := e.Fs.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", to, err)
	}

	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", from, err)
	}

	// OpenFile keeps the old mode of an overwritten file
	if err := e.Fs.Chmod(to, info.Mode().Perm()); err != nil {
		return n, fmt.Errorf("failed to chmod %s: %w", to, err)
	}
	return n, nil
}

func (e *Engine) copySymlink(from, to string) error {
	reader, okR := e.Fs.(afero.LinkReader)
	linker, okL := e.Fs.(afero.Linker)
	if !okR || !okL {
		log.Warnf("filesystem cannot copy symlinks, skipping: %s", from)
		return nil
	}

	target, err := reader.ReadlinkIfPossible(from)
	if err != nil {
		return fmt.Errorf("failed to read link %s: %w", from, err)
	}
	if err := linker.SymlinkIfPossible(target, to); err != nil {
		return fmt.Errorf("failed to create link %s: %w", to, err)
	}
	return nil
}

// lstat uses Lstat when the filesystem supports it
func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}
