package store

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"path"

	log "github.com/sirupsen/logrus"

	"github.com/pders01/verz/internal/models"
)

// Export writes the given snapshots as a gzip-compressed tar stream. Each
// snapshot becomes a top-level directory named after its branch.
func (s *Store) Export(w io.Writer, branches []string) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	for i, branch := range branches {
		log.Infof("[%d/%d] exporting %s", i+1, len(branches), branch)
		if err := s.exportBranch(tarWriter, branch); err != nil {
			return fmt.Errorf("failed to archive %s: %w", branch, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return gzWriter.Close()
}

func (s *Store) exportBranch(tw *tar.Writer, branch string) error {
	if !s.Exists(branch) {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	modTime := s.now()
	if snap, err := models.ParseSnapshot(branch); err == nil {
		modTime = snap.Timestamp
	}

	entries, err := s.repo.ListTree(branch)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		data, ok, err := s.repo.ShowFile(branch, entry.Path)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		header := &tar.Header{
			Name:    path.Join(branch, entry.Path),
			ModTime: modTime,
			Mode:    0644,
		}
		switch {
		case entry.IsSymlink():
			header.Typeflag = tar.TypeSymlink
			header.Linkname = string(data)
			header.Mode = 0777
		case entry.IsExecutable():
			header.Typeflag = tar.TypeReg
			header.Mode = 0755
			header.Size = int64(len(data))
		default:
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(data))
		}

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := tw.Write(data); err != nil {
				return err
			}
		}
	}
	return nil
}
