// Package scanner walks a watched root and yields eligible files attributed
// to their owning project. It performs no catalog I/O.
package scanner

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maverikod/vvz-file-watcher/internal/ignore"
	"github.com/maverikod/vvz-file-watcher/internal/pathutil"
	"github.com/maverikod/vvz-file-watcher/internal/project"
)

// ScannedFile is a single file observed during one scan pass, attributed to
// its owning project.
type ScannedFile struct {
	Path        string
	Mtime       float64
	Size        int64
	ProjectRoot string
	ProjectID   string
}

// Scanner walks watched roots applying an ignore policy and resolving file
// ownership via the project package.
type Scanner struct {
	Ignore    *ignore.Policy
	WatchDirs []string
}

// New builds a Scanner over watchDirs (already normalized) using policy.
func New(policy *ignore.Policy, watchDirs []string) *Scanner {
	return &Scanner{Ignore: policy, WatchDirs: watchDirs}
}

// Scan recursively traverses root, skipping anything the ignore policy
// rejects, and returns a map keyed by absolute path. A file with no owning
// project is logged and skipped rather than failing the walk; a nested-
// project error aborts attribution of that one file only.
func (s *Scanner) Scan(root string) (map[string]ScannedFile, error) {
	out := make(map[string]ScannedFile)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("scanner: walk error", "path", path, "error", err)
			return nil
		}
		if path == root {
			return nil
		}

		if s.Ignore.IsIgnored(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Debug("scanner: stat error", "path", path, "error", err)
			return nil
		}

		abs, err := pathutil.Normalize(path)
		if err != nil {
			slog.Debug("scanner: normalize error", "path", path, "error", err)
			return nil
		}

		owner, ok, err := project.FindOwner(abs, s.WatchDirs)
		if err != nil {
			slog.Error("scanner: nested project while resolving owner, skipping file", "path", abs, "error", err)
			return nil
		}
		if !ok {
			slog.Warn("scanner: no project owns file, skipping", "path", abs)
			return nil
		}

		out[abs] = ScannedFile{
			Path:        abs,
			Mtime:       float64(info.ModTime().UnixNano()) / 1e9,
			Size:        info.Size(),
			ProjectRoot: owner.RootPath,
			ProjectID:   owner.ID,
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	return out, nil
}
