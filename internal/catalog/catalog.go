// Package catalog defines the narrow adapter contract the file-watcher core
// requires from the downstream catalog store, and ships a concrete
// SQLite-backed implementation so the core is runnable end-to-end.
package catalog

import (
	"context"
	"errors"
)

// ErrProjectIDMismatch is returned by AddFile / UpdateFileData when the
// project id discovered from the file's filesystem position does not match
// the project id the caller supplied.
var ErrProjectIDMismatch = errors.New("catalog: project id does not match filesystem position")

// ErrUnavailable wraps any error surfaced while the catalog connection
// itself could not be established or used; the runner treats this as a
// trigger for reconnection with backoff.
var ErrUnavailable = errors.New("catalog: unavailable")

// ProjectRecord is the catalog's view of a project.
type ProjectRecord struct {
	ID          string
	RootPath    string
	Description string
}

// FileRecord is the catalog's view of a file, restricted to the fields the
// core reads and writes. Downstream analyzers own every other attribute.
type FileRecord struct {
	Path         string
	LastModified float64
	Size         int64
	Lines        int
	HasDocstring bool
	DatasetID    string
	ProjectID    string
	Deleted      bool
}

// UpdateResult is the outcome of UpdateFileData.
type UpdateResult struct {
	Success    bool
	ASTUpdated bool
}

// Catalog is the adapter contract the watcher core consumes. Implementations
// must be safe to use from a single goroutine at a time; the core never
// calls them concurrently.
type Catalog interface {
	// GetOrCreateDataset is idempotent: it creates a dataset row when one
	// does not already exist for (projectID, rootPath).
	GetOrCreateDataset(ctx context.Context, projectID, rootPath, name string) (string, error)

	// GetDatasetID is a read-only lookup; it returns ("", false, nil) when
	// no dataset exists yet.
	GetDatasetID(ctx context.Context, projectID, rootPath string) (string, bool, error)

	// GetProject returns (nil, nil) when no project with this id exists.
	GetProject(ctx context.Context, id string) (*ProjectRecord, error)

	// GetProjectID is the reverse lookup by root path.
	GetProjectID(ctx context.Context, rootPath string) (string, bool, error)

	// CreateProject inserts a brand-new project row. Callers must first
	// confirm no project exists with this id or root path; an identity
	// conflict is refused upstream rather than rewriting a primary key.
	CreateProject(ctx context.Context, id, rootPath, name, description string) error

	// UpdateProjectDescription updates only the description/comment field of
	// an existing project.
	UpdateProjectDescription(ctx context.Context, id, description string) error

	// GetProjectFiles returns the non-deleted (or all, if includeDeleted)
	// files owned by projectID.
	GetProjectFiles(ctx context.Context, projectID string, includeDeleted bool) ([]FileRecord, error)

	// AddFile inserts or upserts by (projectID, path). Implementations must
	// validate that a projectid marker discovered from path's filesystem
	// position matches projectID before committing, failing with
	// ErrProjectIDMismatch otherwise.
	AddFile(ctx context.Context, path string, lines int, lastModified float64, hasDocstring bool, projectID, datasetID string) (string, error)

	// MarkFileNeedsChunking returns false iff no such file exists yet.
	MarkFileNeedsChunking(ctx context.Context, path, projectID string) (bool, error)

	// MarkFileDeleted logically deletes path, with an optional archival
	// path (versionDir). Returns false iff no such file exists.
	MarkFileDeleted(ctx context.Context, path, projectID, versionDir string) (bool, error)

	// UpdateFileData is the synchronous refresh hook invoked after an
	// external writer mutates a file outside of a scan cycle. It must
	// perform the same mismatch check as AddFile.
	UpdateFileData(ctx context.Context, path, projectID, rootDir string) (UpdateResult, error)

	// Execute is the raw escape hatch used only for bulk mtime updates.
	// Commit flushes pending statements issued through Execute.
	Execute(ctx context.Context, sql string, params ...any) error
	Commit(ctx context.Context) error

	// Ping verifies the connection is live; used by the runner's
	// CONNECTING state.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
