package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/maverikod/vvz-file-watcher/internal/pathutil"
	"github.com/maverikod/vvz-file-watcher/internal/project"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	root_path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	comment TEXT,
	updated_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS datasets (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	root_path TEXT NOT NULL,
	name TEXT NOT NULL,
	updated_at REAL NOT NULL,
	UNIQUE(project_id, root_path)
);

CREATE TABLE IF NOT EXISTS files (
	project_id TEXT NOT NULL,
	path TEXT NOT NULL,
	dataset_id TEXT NOT NULL REFERENCES datasets(id),
	last_modified REAL NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	lines INTEGER NOT NULL DEFAULT 0,
	has_docstring INTEGER NOT NULL DEFAULT 0,
	needs_chunking INTEGER NOT NULL DEFAULT 1,
	deleted INTEGER NOT NULL DEFAULT 0,
	updated_at REAL NOT NULL,
	PRIMARY KEY (project_id, path)
);
`

// OwnershipResolver re-derives the owning project id of a file from its
// filesystem position, so mutating operations can cross-check the caller's
// claimed project id.
type OwnershipResolver func(path string, watchDirs []string) (string, bool, error)

// SQLiteCatalog is a pure-Go (cgo-free) implementation of Catalog backed by
// modernc.org/sqlite.
type SQLiteCatalog struct {
	db           *sql.DB
	watchDirs    []string
	resolveOwner OwnershipResolver
}

// SetWatchDirs records the configured watched roots so AddFile/UpdateFileData
// can re-derive a file's owning project for the mismatch check.
func (c *SQLiteCatalog) SetWatchDirs(watchDirs []string) {
	c.watchDirs = watchDirs
}

// SetOwnershipResolver replaces the marker-based resolver, letting tests
// substitute a canned answer without touching the filesystem.
func (c *SQLiteCatalog) SetOwnershipResolver(resolver OwnershipResolver) {
	c.resolveOwner = resolver
}

// OpenSQLite opens (creating if necessary) a SQLite catalog database at
// path.
func OpenSQLite(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer, cooperative-single-threaded core
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &SQLiteCatalog{db: db, resolveOwner: markerOwnershipResolver}, nil
}

// markerOwnershipResolver walks the projectid markers on disk to find the
// owning project of path.
func markerOwnershipResolver(path string, watchDirs []string) (string, bool, error) {
	owner, ok, err := project.FindOwner(path, watchDirs)
	if err != nil || !ok {
		return "", ok, err
	}
	return owner.ID, true, nil
}

// classify wraps driver failures that mean the catalog connection itself is
// unusable in ErrUnavailable, so callers branch on the variant rather than
// the message. A constraint violation or bad statement passes through
// unchanged: that is a per-item failure, not an outage.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY,
			sqlite3.SQLITE_LOCKED,
			sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_CORRUPT,
			sqlite3.SQLITE_CANTOPEN,
			sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func (c *SQLiteCatalog) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *SQLiteCatalog) Close() error { return c.db.Close() }

func (c *SQLiteCatalog) GetOrCreateDataset(ctx context.Context, projectID, rootPath, name string) (string, error) {
	id, ok, err := c.GetDatasetID(ctx, projectID, rootPath)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	if name == "" {
		name = filepath.Base(rootPath)
	}
	newID := uuid.New().String()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO datasets (id, project_id, root_path, name, updated_at) VALUES (?, ?, ?, ?, julianday('now'))`,
		newID, projectID, rootPath, name,
	)
	if err != nil {
		return "", fmt.Errorf("catalog: create dataset: %w", classify(err))
	}
	return newID, nil
}

func (c *SQLiteCatalog) GetDatasetID(ctx context.Context, projectID, rootPath string) (string, bool, error) {
	var id string
	err := c.db.QueryRowContext(ctx,
		`SELECT id FROM datasets WHERE project_id = ? AND root_path = ?`, projectID, rootPath,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("catalog: get dataset id: %w", classify(err))
	}
	return id, true, nil
}

func (c *SQLiteCatalog) GetProject(ctx context.Context, id string) (*ProjectRecord, error) {
	var rec ProjectRecord
	var comment sql.NullString
	err := c.db.QueryRowContext(ctx,
		`SELECT id, root_path, comment FROM projects WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.RootPath, &comment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get project: %w", classify(err))
	}
	rec.Description = comment.String
	return &rec, nil
}

func (c *SQLiteCatalog) GetProjectID(ctx context.Context, rootPath string) (string, bool, error) {
	var id string
	err := c.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE root_path = ?`, rootPath).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("catalog: get project id: %w", classify(err))
	}
	return id, true, nil
}

func (c *SQLiteCatalog) CreateProject(ctx context.Context, id, rootPath, name, description string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO projects (id, root_path, name, comment, updated_at) VALUES (?, ?, ?, ?, julianday('now'))`,
		id, rootPath, name, description,
	)
	if err != nil {
		return fmt.Errorf("catalog: create project: %w", classify(err))
	}
	return nil
}

func (c *SQLiteCatalog) UpdateProjectDescription(ctx context.Context, id, description string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE projects SET comment = ?, updated_at = julianday('now') WHERE id = ?`,
		description, id,
	)
	if err != nil {
		return fmt.Errorf("catalog: update project description: %w", classify(err))
	}
	return nil
}

func (c *SQLiteCatalog) GetProjectFiles(ctx context.Context, projectID string, includeDeleted bool) ([]FileRecord, error) {
	query := `SELECT path, last_modified, size, lines, has_docstring, dataset_id, deleted FROM files WHERE project_id = ?`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	rows, err := c.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("catalog: get project files: %w", classify(err))
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		var hasDoc, deleted int
		if err := rows.Scan(&rec.Path, &rec.LastModified, &rec.Size, &rec.Lines, &hasDoc, &rec.DatasetID, &deleted); err != nil {
			return nil, fmt.Errorf("catalog: scan file row: %w", classify(err))
		}
		rec.ProjectID = projectID
		rec.HasDocstring = hasDoc != 0
		rec.Deleted = deleted != 0
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}

// validateOwnership re-derives the owning project from the file's filesystem
// position and fails with ErrProjectIDMismatch if it disagrees with
// projectID.
func (c *SQLiteCatalog) validateOwnership(path, projectID string, watchDirs []string) error {
	abs, err := pathutil.Normalize(path)
	if err != nil {
		return fmt.Errorf("catalog: normalize %s: %w", path, err)
	}
	owner, ok, err := c.resolveOwner(abs, watchDirs)
	if err != nil {
		return err
	}
	if !ok {
		// No owning project can be re-derived (e.g. the marker was removed
		// mid-cycle); this is not grounds to reject the write, only to skip
		// the cross-check.
		return nil
	}
	if owner != projectID {
		return fmt.Errorf("%w: %s belongs to %s, not %s", ErrProjectIDMismatch, abs, owner, projectID)
	}
	return nil
}

func (c *SQLiteCatalog) AddFile(ctx context.Context, path string, lines int, lastModified float64, hasDocstring bool, projectID, datasetID string) (string, error) {
	if err := c.validateOwnership(path, projectID, c.watchDirs); err != nil {
		return "", err
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO files (project_id, path, dataset_id, last_modified, lines, has_docstring, needs_chunking, deleted, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, 0, julianday('now'))
		 ON CONFLICT(project_id, path) DO UPDATE SET
			dataset_id = excluded.dataset_id,
			last_modified = excluded.last_modified,
			lines = excluded.lines,
			has_docstring = excluded.has_docstring,
			needs_chunking = 1,
			deleted = 0,
			updated_at = julianday('now')`,
		projectID, path, datasetID, lastModified, lines, boolToInt(hasDocstring),
	)
	if err != nil {
		return "", fmt.Errorf("catalog: add file: %w", classify(err))
	}
	return projectID + ":" + path, nil
}

func (c *SQLiteCatalog) MarkFileNeedsChunking(ctx context.Context, path, projectID string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE files SET needs_chunking = 1, updated_at = julianday('now') WHERE project_id = ? AND path = ? AND deleted = 0`,
		projectID, path,
	)
	if err != nil {
		return false, fmt.Errorf("catalog: mark needs chunking: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("catalog: rows affected: %w", classify(err))
	}
	return n > 0, nil
}

func (c *SQLiteCatalog) MarkFileDeleted(ctx context.Context, path, projectID, versionDir string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE files SET deleted = 1, updated_at = julianday('now') WHERE project_id = ? AND path = ?`,
		projectID, path,
	)
	if err != nil {
		return false, fmt.Errorf("catalog: mark deleted: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("catalog: rows affected: %w", classify(err))
	}
	return n > 0, nil
}

func (c *SQLiteCatalog) UpdateFileData(ctx context.Context, path, projectID, rootDir string) (UpdateResult, error) {
	if err := c.validateOwnership(path, projectID, []string{rootDir}); err != nil {
		return UpdateResult{}, err
	}
	ok, err := c.MarkFileNeedsChunking(ctx, path, projectID)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Success: ok, ASTUpdated: ok}, nil
}

func (c *SQLiteCatalog) Execute(ctx context.Context, sqlStr string, params ...any) error {
	_, err := c.db.ExecContext(ctx, sqlStr, params...)
	if err != nil {
		return fmt.Errorf("catalog: execute: %w", classify(err))
	}
	return nil
}

// Commit is a no-op for this adapter: each Execute/statement call above
// auto-commits (modernc.org/sqlite runs outside an explicit transaction by
// default), so the catalog commits per statement.
func (c *SQLiteCatalog) Commit(context.Context) error { return nil }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
