package exclude

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Visitor is called for every entry the policy lets through. rel is the
// slash-separated path relative to the walk root.
type Visitor func(path, rel string, info os.FileInfo) error

// Walk visits root depth-first with an explicit stack. Directories are
// visited before their contents. The policy decides what is pruned; the
// visitor only acts. The first error aborts the walk.
func Walk(fs afero.Fs, root string, p Policy, visit Visitor) error {
	root = filepath.Clean(root)
	info, err := fs.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}

	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := afero.ReadDir(fs, dir)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", dir, err)
		}

		// push in reverse so entries pop in name order
		var subdirs []string
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if p.Decide(root, path, entry.IsDir()) != Descend {
				continue
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if err := visit(path, filepath.ToSlash(rel), entry); err != nil {
				return err
			}
			if entry.IsDir() {
				subdirs = append(subdirs, path)
			}
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return nil
}

// Files returns the relative paths of every non-directory entry under root
func Files(fs afero.Fs, root string, p Policy) ([]string, error) {
	var files []string
	err := Walk(fs, root, p, func(_, rel string, info os.FileInfo) error {
		if !info.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}
