package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/afero"

	"github.com/pders01/verz/internal/conflict"
	"github.com/pders01/verz/internal/exclude"
)

// DiffDir returns a unified diff from the files of branch to the files
// under dir. With a non-empty path only that file is compared.
func (s *Store) DiffDir(branch, dir, path string, policy exclude.Policy) (string, error) {
	if !s.Exists(branch) {
		return "", fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	var files []string
	if path != "" {
		rel, err := conflict.Normalize(path)
		if err != nil {
			return "", err
		}
		files = []string{rel}
	} else {
		snapFiles, err := s.repo.ListFiles(branch)
		if err != nil {
			return "", err
		}
		dirFiles, err := exclude.Files(s.fs, dir, policy)
		if err != nil {
			return "", err
		}
		files = union(snapFiles, dirFiles)
	}

	var out strings.Builder
	for _, rel := range files {
		old, oldExists, err := s.repo.ShowFile(branch, rel)
		if err != nil {
			return "", err
		}
		cur, curExists, err := readIfExists(s.fs, filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", err
		}
		if oldExists == curExists && bytes.Equal(old, cur) {
			continue
		}

		fromFile, toFile := "a/"+rel, "b/"+rel
		if !oldExists {
			fromFile = "/dev/null"
		}
		if !curExists {
			toFile = "/dev/null"
		}

		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(old)),
			B:        difflib.SplitLines(string(cur)),
			FromFile: fromFile,
			FromDate: branch,
			ToFile:   toFile,
			ToDate:   "working",
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("failed to diff %s: %w", rel, err)
		}
		if text == "" {
			// same lines, different bytes (e.g. a missing final newline)
			text = fmt.Sprintf("Files %s and %s differ\n", fromFile, toFile)
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

func readIfExists(fs afero.Fs, path string) ([]byte, bool, error) {
	info, err := fs.Stat(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, false, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, true, nil
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var all []string
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				all = append(all, f)
			}
		}
	}
	sort.Strings(all)
	return all
}
