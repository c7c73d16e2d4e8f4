// Package version holds build-time version information.
// The variables are set via -ldflags at build time:
//
//	go build -ldflags "-X github.com/HerbHall/netsage/internal/version.Version=v0.3.0 \
//	  -X github.com/HerbHall/netsage/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/HerbHall/netsage/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "fmt"

var (
	// Version is the semantic version of the build.
	Version = "dev"

	// Commit is the git commit hash the binary was built from.
	Commit = "unknown"

	// Date is the UTC build timestamp.
	Date = "unknown"
)

// Short returns just the version string.
func Short() string {
	return Version
}

// Info returns a human-readable version line.
func Info() string {
	return fmt.Sprintf("netsage %s (commit %s, built %s)", Version, Commit, Date)
}

// Map returns the version fields for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
