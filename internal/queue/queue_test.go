package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/maverikod/vvz-file-watcher/internal/catalog"
	"github.com/maverikod/vvz-file-watcher/internal/delta"
)

const testProjectID = "00000000-0000-4000-8000-000000000001"

func newTestCatalog(t *testing.T) *catalog.SQLiteCatalog {
	t.Helper()
	c, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetOwnershipResolver(func(path string, watchDirs []string) (string, bool, error) {
		return testProjectID, true, nil
	})
	return c
}

func TestApplyNewFile(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	if err := cat.CreateProject(ctx, testProjectID, "/w/proj", "proj", ""); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.py")
	if err := os.WriteFile(filePath, []byte("\"\"\"doc\"\"\"\nprint(1)\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	q := New(cat, "")
	d := delta.Delta{New: []delta.Entry{{Path: filePath, Mtime: 1000.0, Size: 5}}}

	stats, err := q.Apply(ctx, testProjectID, "/w/proj", d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stats.NewFiles != 1 || stats.Errors != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	files, err := cat.GetProjectFiles(ctx, testProjectID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || !files[0].HasDocstring {
		t.Fatalf("expected docstring flag set: %+v", files)
	}
}

func TestApplyDeletedWithoutVersionDirIsError(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	if err := cat.CreateProject(ctx, testProjectID, "/w/proj", "proj", ""); err != nil {
		t.Fatal(err)
	}

	q := New(cat, "")
	d := delta.Delta{Deleted: []string{"/w/proj/gone.py"}}
	stats, err := q.Apply(ctx, testProjectID, "/w/proj", d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stats.DeletedFiles != 0 || stats.Errors != 1 {
		t.Fatalf("expected deletion without version_dir to error, got %+v", stats)
	}
}

func TestApplyDeletedWithVersionDir(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	if err := cat.CreateProject(ctx, testProjectID, "/w/proj", "proj", ""); err != nil {
		t.Fatal(err)
	}
	datasetID, err := cat.GetOrCreateDataset(ctx, testProjectID, "/w/proj", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.AddFile(ctx, "/w/proj/gone.py", 1, 1.0, false, testProjectID, datasetID); err != nil {
		t.Fatal(err)
	}

	q := New(cat, "/versions")
	d := delta.Delta{Deleted: []string{"/w/proj/gone.py"}}
	stats, err := q.Apply(ctx, testProjectID, "/w/proj", d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stats.DeletedFiles != 1 || stats.Errors != 0 {
		t.Fatalf("expected deletion to succeed, got %+v", stats)
	}
}
