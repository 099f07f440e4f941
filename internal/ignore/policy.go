// Package ignore decides whether a candidate path is excluded from
// scanning: a fixed set of built-in rules chained with any number of
// user-supplied glob matchers.
package ignore

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnoredNames is the fixed set of directory names always excluded,
// regardless of configuration.
var DefaultIgnoredNames = map[string]bool{
	"__pycache__":   true,
	".git":          true,
	".pytest_cache": true,
	".mypy_cache":   true,
	"node_modules":  true,
	".venv":         true,
	"venv":          true,
}

// DefaultAllowedExtensions is the default allow-list for the extension
// filter; configuration may override it.
var DefaultAllowedExtensions = map[string]bool{
	".py":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".toml": true,
	".ini":  true,
	".cfg":  true,
}

// Ignorer reports whether path (isDir indicates its kind) should be excluded.
type Ignorer interface {
	IsIgnored(path string, isDir bool) bool
}

// Policy is the composed ignore decision for the scanner: built-in rules
// plus any number of user-supplied glob matchers, combined with OR
// semantics. There is no re-inclusion: any match excludes.
type Policy struct {
	ignorers []Ignorer
}

// New builds a Policy from the fixed built-in rules plus globPatterns
// supplied by configuration. allowedExtensions may be nil to use the default
// set.
func New(globPatterns []string, allowedExtensions map[string]bool) *Policy {
	if allowedExtensions == nil {
		allowedExtensions = DefaultAllowedExtensions
	}
	p := &Policy{
		ignorers: []Ignorer{
			builtinPolicy{allowedExtensions: allowedExtensions},
		},
	}
	if len(globPatterns) > 0 {
		p.ignorers = append(p.ignorers, globPolicy{patterns: globPatterns})
	}
	return p
}

// IsIgnored reports true if any chained Ignorer matches path.
func (p *Policy) IsIgnored(path string, isDir bool) bool {
	for _, ig := range p.ignorers {
		if ig.IsIgnored(path, isDir) {
			return true
		}
	}
	return false
}

type builtinPolicy struct {
	allowedExtensions map[string]bool
}

func (b builtinPolicy) IsIgnored(path string, isDir bool) bool {
	parts := splitPath(path)

	for i, part := range parts {
		if DefaultIgnoredNames[part] {
			return true
		}
		if part == "data" && i+1 < len(parts) && parts[i+1] == "versions" {
			return true
		}
	}

	if strings.HasSuffix(path, ".pyc") {
		return true
	}

	if isDir {
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && base != "." && base != ".." {
			return true
		}
		return false
	}

	ext := filepath.Ext(path)
	return !b.allowedExtensions[ext]
}

type globPolicy struct {
	patterns []string
}

func (g globPolicy) IsIgnored(path string, _ bool) bool {
	clean := filepath.ToSlash(path)
	parts := strings.Split(clean, "/")

	for _, pattern := range g.patterns {
		if ok, _ := doublestar.Match(pattern, clean); ok {
			return true
		}
		// Also test every subpath, so a pattern like "build/**" matches
		// regardless of how deep the scan root sits.
		for i := range parts {
			subpath := strings.Join(parts[i:], "/")
			if ok, _ := doublestar.Match(pattern, subpath); ok {
				return true
			}
		}
	}
	return false
}

func splitPath(path string) []string {
	clean := filepath.ToSlash(filepath.Clean(path))
	return strings.Split(strings.TrimPrefix(clean, "/"), "/")
}
