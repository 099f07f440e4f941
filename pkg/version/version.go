// Package version holds build-time version metadata for the file watcher
// daemon, set via -ldflags at build time.
package version

import "fmt"

var (
	// Version is the released version string, or "dev" for local builds.
	Version string = "dev"
	// CommitHash is the VCS commit the binary was built from.
	CommitHash string = "unknown"
	// BuildDate is the build timestamp, set at build time.
	BuildDate string = "unknown"
)

// Describe returns a one-line human-readable version string for --version.
func Describe() string {
	return fmt.Sprintf("vvz-file-watcher %s (commit %s, built %s)", Version, CommitHash, BuildDate)
}
