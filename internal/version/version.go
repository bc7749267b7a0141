// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/pysugar/commshub/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String renders the version line printed by the CLI and the startup log.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildTime)
}
