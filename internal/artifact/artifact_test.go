package artifact

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := fsutil.WriteFile(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func TestFindSnapshot(t *testing.T) {
	tree := t.TempDir()
	snapDir := fsutil.SnapshotDir(tree)

	if _, err := FindSnapshot(tree); err == nil {
		t.Error("expected error for missing snapshot directory")
	}

	writeFile(t, filepath.Join(snapDir, "readme.txt"), "not a snapshot")
	if _, err := FindSnapshot(tree); err == nil {
		t.Error("expected error when no .csnap file exists")
	}

	writeFile(t, filepath.Join(snapDir, "bot_01_02_2026.csnap"), "snap")
	got, err := FindSnapshot(tree)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "bot_01_02_2026.csnap" {
		t.Errorf("unexpected snapshot path %s", got)
	}

	writeFile(t, filepath.Join(snapDir, "bot_02_02_2026.csnap"), "snap")
	_, err = FindSnapshot(tree)
	if err == nil {
		t.Fatal("expected error for multiple .csnap files")
	}
	if !strings.Contains(err.Error(), "bot_01_02_2026.csnap") {
		t.Errorf("error should name the conflicting files: %v", err)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	if err := fsutil.EnsureParentDir(path); err != nil {
		t.Fatal(err)
	}
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractPackage(t *testing.T) {
	tree := t.TempDir()
	writeZip(t, filepath.Join(fsutil.PackageDir(tree), "export.zip"), map[string]string{
		"flows/Main/chart.json": `{"_id": "M1"}`,
		"lexicons/colors.json":  `{"_id": "L1"}`,
	})

	dest := filepath.Join(tree, "extractedPackage")
	writeFile(t, filepath.Join(dest, "stale.json"), "{}")

	if err := ExtractPackage(tree, dest); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "flows", "Main", "chart.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"_id": "M1"}` {
		t.Errorf("unexpected extracted content %s", data)
	}
	if _, err := os.Stat(filepath.Join(dest, "stale.json")); !os.IsNotExist(err) {
		t.Error("previous extraction was not replaced")
	}
}

func TestExtractPackageRequiresSingleZip(t *testing.T) {
	tree := t.TempDir()
	pkgDir := fsutil.PackageDir(tree)
	writeZip(t, filepath.Join(pkgDir, "a.zip"), map[string]string{"x": "1"})
	writeZip(t, filepath.Join(pkgDir, "b.zip"), map[string]string{"x": "1"})

	if err := ExtractPackage(tree, filepath.Join(tree, "out")); err == nil {
		t.Error("expected error for multiple zip files")
	}
}

func TestUnzipRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	writeZip(t, zipPath, map[string]string{"../escape.txt": "bad"})

	if err := Unzip(zipPath, filepath.Join(dir, "out")); err == nil {
		t.Error("expected error for entry escaping destination")
	}
}
