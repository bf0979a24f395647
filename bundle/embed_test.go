package bundle

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestEmbedded(t *testing.T) {
	fsys := Embedded()

	for _, dir := range []string{"server-data", "dist"} {
		info, err := fs.Stat(fsys, dir)
		if err != nil {
			t.Fatalf("Stat(%q) error = %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	if _, err := fs.ReadFile(fsys, "dist/index.html"); err != nil {
		t.Errorf("ReadFile(dist/index.html) error = %v", err)
	}
}

func TestOpen(t *testing.T) {
	t.Run("empty path uses embedded", func(t *testing.T) {
		fsys, err := Open("")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if _, err := fs.Stat(fsys, "dist/index.html"); err != nil {
			t.Errorf("embedded bundle missing dist/index.html: %v", err)
		}
	})

	t.Run("directory on disk", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "a.db"), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		fsys, err := Open(dir)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if _, err := fs.Stat(fsys, "a.db"); err != nil {
			t.Errorf("Stat(a.db) error = %v", err)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("Open() expected error for missing directory, got nil")
		}
	})

	t.Run("file instead of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(path, nil, 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Open(path); err == nil {
			t.Error("Open() expected error for regular file, got nil")
		}
	})
}
