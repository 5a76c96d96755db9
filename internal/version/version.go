// Package version exposes build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds
	Version = "dev"
	// Commit is the git commit hash
	Commit = "dev"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build metadata for the version command and startup logs.
func String() string {
	return fmt.Sprintf("helpcy %s (commit %s, built %s)", Version, Commit, BuildTime)
}
