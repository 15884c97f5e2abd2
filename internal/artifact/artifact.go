// Package artifact locates and unpacks the snapshot and package files a
// resource tree carries alongside its JSON export.
package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
)

// FindSingle returns the one file with the given extension in dir. Zero
// matches and multiple matches are both configuration errors: every tree
// carries exactly one snapshot and one package.
func FindSingle(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	var matches []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			matches = append(matches, e.Name())
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s file found in %s", ext, dir)
	case 1:
		return filepath.Join(dir, matches[0]), nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("multiple %s files found in %s (%s), expected exactly one", ext, dir, strings.Join(matches, ", "))
	}
}

// FindSnapshot locates the tree's single .csnap file.
func FindSnapshot(tree string) (string, error) {
	return FindSingle(fsutil.SnapshotDir(tree), fsutil.SnapshotFileExt)
}

// FindPackage locates the tree's single package zip.
func FindPackage(tree string) (string, error) {
	return FindSingle(fsutil.PackageDir(tree), fsutil.PackageFileExt)
}

// ExtractPackage unpacks the tree's package zip into destDir, replacing any
// previous extraction.
func ExtractPackage(tree, destDir string) error {
	zipPath, err := FindPackage(tree)
	if err != nil {
		return err
	}
	return Unzip(zipPath, destDir)
}

// Unzip extracts an archive into destDir. Entries escaping destDir are
// rejected.
func Unzip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", zipPath, err)
	}
	defer r.Close()

	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("reset %s: %w", destDir, err)
	}
	if err := fsutil.EnsureDir(destDir); err != nil {
		return err
	}

	for _, f := range r.File {
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		rel, err := filepath.Rel(destDir, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("%s: entry %q escapes extraction directory", zipPath, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := fsutil.EnsureDir(target); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := fsutil.EnsureParentDir(target); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
