// Package iox provides filesystem helpers for the per-ticket cache
// layout: filename sanitization, size accounting and result archiving.
package iox

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiscardClose closes c and discards the error, for defer statements
// where a close failure is unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// SanitizeFilename keeps alphanumerics plus '.', '_' and '-' and strips
// everything else, including spaces. Returns "" if nothing survives.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DirSizeBytes walks dir and sums the sizes of all regular files.
// A missing dir counts as zero.
func DirSizeBytes(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return total, nil
}

// CountFilesInTree counts regular files under dir, recursively.
// A missing dir counts as zero.
func CountFilesInTree(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// FileSizeBytes returns the size of path, or 0 if it does not exist.
func FileSizeBytes(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// ZipDirectory archives every regular file found under dir (recursively,
// excluding zipPath itself) into a zip file at zipPath, then deletes the
// originals. Entry names are relative to dir.
func ZipDirectory(dir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)

	var archived []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() || path == zipPath {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		DiscardClose(f)
		if err != nil {
			return err
		}
		archived = append(archived, path)
		return nil
	})
	if err != nil {
		DiscardClose(zw)
		DiscardClose(out)
		_ = os.Remove(zipPath)
		return err
	}
	if err := zw.Close(); err != nil {
		DiscardClose(out)
		_ = os.Remove(zipPath)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	for _, path := range archived {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}
