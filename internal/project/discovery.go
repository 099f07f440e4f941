package project

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Discover enumerates projects within watchDir, which must already be
// normalized (see pathutil.NormalizeDir). Candidate markers are collected at
// depth 0 and depth 1 only; deeper markers never declare a project. Candidates
// are processed shallowest-first, so a marker at the watched root wins over
// any marker in a direct child: the child candidate is skipped and reported in
// the returned skip list as a nested-project error. An accepted root is
// additionally rejected when a stray marker exists deeper inside its subtree.
//
// The skipped slice carries the non-fatal per-candidate errors (nested roots);
// the final error is non-nil when watchDir cannot be listed or when two
// accepted roots share a project_id, which invalidates the whole enumeration.
func Discover(watchDir string) ([]Project, []error, error) {
	candidates, err := candidateRoots(watchDir)
	if err != nil {
		return nil, nil, err
	}

	var accepted []Project
	var acceptedRoots []string
	var skipped []error

	for _, root := range candidates {
		if parent := ancestorOf(root, acceptedRoots); parent != "" {
			nestedErr := &NestedMarkerError{Root: parent, Nested: root}
			slog.Error("project: nested project rejected", "root", root, "parent", parent)
			skipped = append(skipped, nestedErr)
			continue
		}

		identity, err := LoadIdentity(root)
		if err != nil {
			slog.Warn("project: skipping candidate with invalid marker", "root", root, "error", err)
			continue
		}

		if err := validateNoDeepMarkers(root, watchDir); err != nil {
			slog.Error("project: stray marker inside project subtree, rejecting root", "root", root, "error", err)
			skipped = append(skipped, err)
			continue
		}

		accepted = append(accepted, Project{
			ID:          identity.ID,
			RootPath:    root,
			Description: identity.Description,
		})
		acceptedRoots = append(acceptedRoots, root)
	}

	if err := validateNoDuplicateIDs(accepted); err != nil {
		return nil, skipped, err
	}

	return accepted, skipped, nil
}

// candidateRoots collects marker candidates at depth 0 (watchDir itself) and
// depth 1 (direct children), sorted shallowest-first.
func candidateRoots(watchDir string) ([]string, error) {
	var roots []string

	if hasMarker(watchDir) {
		roots = append(roots, watchDir)
	}

	entries, err := os.ReadDir(watchDir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		child := filepath.Join(watchDir, entry.Name())
		if hasMarker(child) {
			roots = append(roots, child)
		}
	}

	// Depth 0 already sorts before depth 1 by construction; stable order is
	// preserved by ReadDir's lexical listing.
	return roots, nil
}

func hasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, MarkerFileName))
	return err == nil && !info.IsDir()
}

// ancestorOf returns the first root in roots that is a strict ancestor of
// candidate, or "" when none is.
func ancestorOf(candidate string, roots []string) string {
	for _, root := range roots {
		if candidate != root && isWithin(candidate, root) {
			return root
		}
	}
	return ""
}

// isWithin reports whether path is root or a descendant of root.
func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// depthWithin returns the number of path components between watchDir and dir,
// or -1 when dir is outside watchDir.
func depthWithin(dir, watchDir string) int {
	rel, err := filepath.Rel(watchDir, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return -1
	}
	if rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

// validateNoDeepMarkers rejects root if a marker exists in its subtree at
// depth 2 or deeper relative to watchDir. Markers at depth 0 or 1 are
// enumeration candidates in their own right and are resolved by the
// shallowest-first precedence in Discover, so they are not re-flagged here.
// The walk bails on the first hit to keep the check linear.
func validateNoDeepMarkers(root, watchDir string) error {
	var found string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		if !d.IsDir() && d.Name() == MarkerFileName && depthWithin(filepath.Dir(path), watchDir) > 1 {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if found != "" {
		return &NestedMarkerError{Root: root, Nested: filepath.Dir(found)}
	}
	return nil
}

// NestedMarkerError reports a projectid marker found inside another project's
// subtree.
type NestedMarkerError struct {
	Root   string
	Nested string
}

func (e *NestedMarkerError) Error() string {
	return "project: " + e.Nested + " declares a project inside project " + e.Root
}

func (e *NestedMarkerError) Unwrap() error { return ErrNested }

func validateNoDuplicateIDs(projects []Project) error {
	seen := make(map[string]string, len(projects))
	for _, p := range projects {
		if other, ok := seen[p.ID]; ok && other != p.RootPath {
			return &DuplicateError{ID: p.ID, RootA: other, RootB: p.RootPath}
		}
		seen[p.ID] = p.RootPath
	}
	return nil
}

// FindOwner resolves the project that owns file by walking its parent
// directories up to the watched root that contains it. Markers are only
// honored at depth 0 or 1 relative to that watched root; deeper directories
// are walked through but never matched. A marker found at depth 1 while the
// watched root itself also carries a marker is a nested-project conflict and
// fails with a NestedMarkerError, as does a stray marker deeper inside the
// owning subtree. Returns (Project{}, false, nil) if no watched root contains
// file or no marker is found before reaching the watched root's boundary.
func FindOwner(file string, watchDirs []string) (Project, bool, error) {
	containing := containingRoot(filepath.Dir(file), watchDirs)
	if containing == "" {
		return Project{}, false, nil
	}

	dir := filepath.Dir(file)
	for {
		depth := depthWithin(dir, containing)
		if depth < 0 {
			return Project{}, false, nil
		}

		if depth <= 1 && hasMarker(dir) {
			identity, err := LoadIdentity(dir)
			if err != nil {
				slog.Warn("project: invalid marker while resolving owner", "root", dir, "error", err)
			} else {
				if depth == 1 && hasMarker(containing) {
					return Project{}, false, &NestedMarkerError{Root: containing, Nested: dir}
				}
				if err := validateNoDeepMarkers(dir, containing); err != nil {
					return Project{}, false, err
				}
				return Project{ID: identity.ID, RootPath: dir, Description: identity.Description}, true, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir || dir == containing {
			return Project{}, false, nil
		}
		dir = parent
	}
}

func containingRoot(dir string, watchDirs []string) string {
	for _, root := range watchDirs {
		if isWithin(dir, root) {
			return root
		}
	}
	return ""
}
