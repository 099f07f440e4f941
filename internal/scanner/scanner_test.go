package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maverikod/vvz-file-watcher/internal/ignore"
)

const testUUID = "00000000-0000-4000-8000-000000000001"

func TestScanAttributesFilesToProject(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "projectid"), []byte(testUUID), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.py"), []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(ignore.New(nil, nil), []string{root})
	files, err := s.Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %+v", len(files), files)
	}
	for _, f := range files {
		if f.ProjectID != testUUID {
			t.Errorf("expected project id %s, got %s", testUUID, f.ProjectID)
		}
	}
}

func TestScanSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "projectid"), []byte(testUUID), 0o644); err != nil {
		t.Fatal(err)
	}
	skip := filepath.Join(root, "node_modules")
	if err := os.MkdirAll(skip, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skip, "a.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(ignore.New(nil, nil), []string{root})
	files, err := s.Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected 0 files, got %d", len(files))
	}
}

func TestScanSkipsFilesWithoutProject(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(ignore.New(nil, nil), []string{root})
	files, err := s.Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected 0 files, got %d", len(files))
	}
}
