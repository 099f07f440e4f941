// Package queue applies a delta to the catalog as a sequence of
// best-effort, per-item operations.
package queue

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/maverikod/vvz-file-watcher/internal/catalog"
	"github.com/maverikod/vvz-file-watcher/internal/delta"
)

// Stats tallies the outcome of one Apply call.
type Stats struct {
	NewFiles     int
	ChangedFiles int
	DeletedFiles int
	Errors       int
}

// Queue applies deltas against a Catalog.
type Queue struct {
	Catalog    catalog.Catalog
	VersionDir string
}

// New builds a Queue. versionDir may be empty, in which case deletions are
// recorded as errors rather than applied, since archival needs somewhere to
// put the deleted content.
func New(cat catalog.Catalog, versionDir string) *Queue {
	return &Queue{Catalog: cat, VersionDir: versionDir}
}

// Apply resolves the dataset for (projectID, rootPath) and processes d's
// new, changed, and deleted buckets in that order, so a rename visible as
// delete+new never leaves the catalog missing the file mid-cycle. Any single
// item's failure is logged and counted; it never aborts the remaining items.
// The returned error is non-nil only when a failure indicated the catalog
// connection itself is unusable, so the caller can drop the handle and
// reconnect instead of grinding through further cycles against a dead store.
func (q *Queue) Apply(ctx context.Context, projectID, rootPath string, d delta.Delta) (Stats, error) {
	var stats Stats
	var connErr error
	note := func(err error) {
		if connErr == nil && errors.Is(err, catalog.ErrUnavailable) {
			connErr = err
		}
	}

	datasetID, err := q.Catalog.GetOrCreateDataset(ctx, projectID, rootPath, "")
	if err != nil {
		slog.Error("queue: cannot resolve dataset", "project_id", projectID, "root", rootPath, "error", err)
		stats.Errors = len(d.New) + len(d.Changed) + len(d.Deleted)
		note(err)
		return stats, connErr
	}

	for _, entry := range d.New {
		slog.Info("queue: new file", "path", entry.Path, "mtime", entry.Mtime, "size", entry.Size)
		if err := q.queueForProcessing(ctx, entry, projectID, datasetID); err != nil {
			stats.Errors++
			note(err)
			slog.Error("queue: failed to queue new file", "path", entry.Path, "error", err)
		} else {
			stats.NewFiles++
		}
	}

	for _, entry := range d.Changed {
		slog.Info("queue: changed file", "path", entry.Path, "mtime", entry.Mtime, "size", entry.Size)
		if err := q.queueForProcessing(ctx, entry, projectID, datasetID); err != nil {
			stats.Errors++
			note(err)
			slog.Error("queue: failed to queue changed file", "path", entry.Path, "error", err)
		} else {
			stats.ChangedFiles++
		}
	}

	for _, path := range d.Deleted {
		slog.Info("queue: deleted file", "path", path)
		if q.VersionDir == "" {
			slog.Warn("queue: version_dir not configured, cannot archive deletion", "path", path)
			stats.Errors++
			continue
		}
		ok, err := q.Catalog.MarkFileDeleted(ctx, path, projectID, q.VersionDir)
		if err != nil {
			slog.Error("queue: error marking file deleted", "path", path, "error", err)
			stats.Errors++
			note(err)
			continue
		}
		if !ok {
			stats.Errors++
			slog.Error("queue: failed to mark file deleted", "path", path)
			continue
		}
		stats.DeletedFiles++
	}

	return stats, connErr
}

// errFileNotQueued reports that a file could not be marked for chunking even
// after an insert attempt.
var errFileNotQueued = errors.New("queue: file not queued for chunking")

// queueForProcessing marks a file for (re)chunking, inserting a minimal
// record first if none exists yet, then bulk-updates last_modified through
// the raw executor.
func (q *Queue) queueForProcessing(ctx context.Context, entry delta.Entry, projectID, datasetID string) error {
	ok, err := q.Catalog.MarkFileNeedsChunking(ctx, entry.Path, projectID)
	if err != nil {
		return err
	}

	if !ok {
		lines, hasDocstring := probeMetadata(entry.Path)
		if _, err := q.Catalog.AddFile(ctx, entry.Path, lines, entry.Mtime, hasDocstring, projectID, datasetID); err != nil {
			return err
		}
		ok, err = q.Catalog.MarkFileNeedsChunking(ctx, entry.Path, projectID)
		if err != nil {
			return err
		}
	}
	if !ok {
		return errFileNotQueued
	}

	if err := q.Catalog.Execute(ctx,
		`UPDATE files SET last_modified = ?, updated_at = julianday('now') WHERE project_id = ? AND path = ?`,
		entry.Mtime, projectID, entry.Path,
	); err != nil {
		return err
	}
	return q.Catalog.Commit(ctx)
}

// probeMetadata opens path once to compute a line count (newline count plus
// one, so a trailing newline still counts the final empty line) and a
// lightweight leading-docstring probe: the first non-whitespace content
// starts with a Python triple-quote. Failure to read yields the zero-value
// defaults, never an error; this is best-effort metadata populated only on
// insert.
func probeMetadata(path string) (lines int, hasDocstring bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	r := bufio.NewReader(f)
	newlines := 0
	first := true
	for {
		line, err := r.ReadString('\n')
		if strings.HasSuffix(line, "\n") {
			newlines++
		}
		if first {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				hasDocstring = strings.HasPrefix(trimmed, `"""`) || strings.HasPrefix(trimmed, "'''")
				first = false
			}
		}
		if err != nil {
			break
		}
	}
	return newlines + 1, hasDocstring
}
