package iox

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error { c.closed = true; return errors.New("swallowed") }

func TestDiscardClose(t *testing.T) {
	rec := &closeRecorder{}
	DiscardClose(rec)
	if !rec.closed {
		t.Error("DiscardClose did not close the closer")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"genes.xlsx", "genes.xlsx"},
		{"my data (v2).xlsx", "mydatav2.xlsx"},
		{"../../etc/passwd", "....etcpasswd"},
		{"weiß_übung.txt", "wei_bung.txt"},
		{"<>|&$!", ""},
	}
	for _, c := range cases {
		if got := SanitizeFilename(c.in); got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDirSizeBytes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("123"), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := DirSizeBytes(dir)
	if err != nil {
		t.Fatalf("DirSizeBytes() error = %v", err)
	}
	if size != 8 {
		t.Errorf("size = %d, want 8", size)
	}

	size, err = DirSizeBytes(filepath.Join(dir, "does-not-exist"))
	if err != nil || size != 0 {
		t.Errorf("missing dir = %d, %v; want 0, nil", size, err)
	}
}

func TestCountFilesInTree(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "sub/b", "sub/deeper/c"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	count, err := CountFilesInTree(dir)
	if err != nil {
		t.Fatalf("CountFilesInTree() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, err = CountFilesInTree(filepath.Join(dir, "missing"))
	if err != nil || count != 0 {
		t.Errorf("missing dir = %d, %v; want 0, nil", count, err)
	}
}

func TestZipDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "result.pdf"), []byte("pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "plots"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plots", "volcano.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	zipPath := filepath.Join(dir, "out.zip")
	if err := ZipDirectory(dir, zipPath); err != nil {
		t.Fatalf("ZipDirectory() error = %v", err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["result.pdf"] || !names["plots/volcano.png"] || len(names) != 2 {
		t.Errorf("zip entries = %v", names)
	}

	// The archived originals are gone, the zip stays.
	if _, err := os.Stat(filepath.Join(dir, "result.pdf")); !os.IsNotExist(err) {
		t.Error("archived original still on disk")
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Errorf("zip missing after archive: %v", err)
	}
}
