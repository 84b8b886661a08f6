// Package version carries build metadata for taskforged and the taskforge CLI.
package version

import "fmt"

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/taskforge/taskforge/internal/version.Version=v1.2.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String formats the full version line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}
