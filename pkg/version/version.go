// Package version provides build version information for the preload library.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

// String returns a one-line build description.
func String() string {
	return fmt.Sprintf("ioprof %s (%s, %s)", Version, GitCommit, GoVersion)
}
