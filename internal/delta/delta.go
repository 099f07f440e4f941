// Package delta compares a scan's output against catalog state to produce a
// per-project new/changed/deleted classification.
package delta

import (
	"context"
	"log/slog"
	"math"

	"github.com/maverikod/vvz-file-watcher/internal/catalog"
	"github.com/maverikod/vvz-file-watcher/internal/scanner"
)

// MtimeTolerance absorbs filesystem timestamp precision drift: a
// modification-time difference at or below this many seconds is never
// considered a change.
const MtimeTolerance = 0.1

// Entry is one changed/new file, carrying the metadata the queue stage
// needs without re-statting the file.
type Entry struct {
	Path  string
	Mtime float64
	Size  int64
}

// Delta is the per-project classification of one scan versus the catalog.
type Delta struct {
	New     []Entry
	Changed []Entry
	Deleted []string
}

// Engine computes deltas against a Catalog.
type Engine struct {
	Catalog catalog.Catalog
}

// New builds an Engine over cat.
func New(cat catalog.Catalog) *Engine {
	return &Engine{Catalog: cat}
}

// Compute groups scanned by project id and, for each project, resolves (or
// creates) its dataset and reads its non-deleted files to classify every
// scanned entry as new, changed, or (by absence) deleted. A catalog read
// error for a project yields an empty delta for that project and never fails
// the computation of the others; the failures are returned so the caller can
// count them and spot a lost catalog connection.
func (e *Engine) Compute(ctx context.Context, scanned map[string]scanner.ScannedFile) (map[string]Delta, []error) {
	byProject := make(map[string][]scanner.ScannedFile)
	for _, f := range scanned {
		byProject[f.ProjectID] = append(byProject[f.ProjectID], f)
	}

	out := make(map[string]Delta, len(byProject))
	var errs []error
	for projectID, files := range byProject {
		d, err := e.computeForProject(ctx, projectID, files)
		if err != nil {
			errs = append(errs, err)
		}
		out[projectID] = d
	}
	return out, errs
}

func (e *Engine) computeForProject(ctx context.Context, projectID string, files []scanner.ScannedFile) (Delta, error) {
	rootPath := files[0].ProjectRoot

	datasetID, err := e.Catalog.GetOrCreateDataset(ctx, projectID, rootPath, "")
	if err != nil {
		slog.Error("delta: resolve dataset failed", "project_id", projectID, "root", rootPath, "error", err)
		return Delta{}, err
	}

	dbFiles, err := e.Catalog.GetProjectFiles(ctx, projectID, false)
	if err != nil {
		slog.Error("delta: read project files failed", "project_id", projectID, "error", err)
		return Delta{}, err
	}

	dbByPath := make(map[string]catalog.FileRecord, len(dbFiles))
	for _, f := range dbFiles {
		if f.DatasetID == datasetID {
			dbByPath[f.Path] = f
		}
	}

	var d Delta
	scannedPaths := make(map[string]bool, len(files))
	for _, f := range files {
		scannedPaths[f.Path] = true
		entry := Entry{Path: f.Path, Mtime: f.Mtime, Size: f.Size}

		dbFile, ok := dbByPath[f.Path]
		if !ok {
			d.New = append(d.New, entry)
			continue
		}
		if math.Abs(f.Mtime-dbFile.LastModified) > MtimeTolerance {
			d.Changed = append(d.Changed, entry)
		}
	}

	for path := range dbByPath {
		if !scannedPaths[path] {
			d.Deleted = append(d.Deleted, path)
		}
	}

	return d, nil
}
