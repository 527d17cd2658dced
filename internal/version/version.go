// Package version carries the build metadata stamped in with -ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/docbook/internal/version.Version=v1.2.0"
package version

import "fmt"

// Version is the release tag, "dev" for local builds.
var Version = "dev"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the one-line version banner.
func String() string {
	return fmt.Sprintf("docbook %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

// UserAgent is sent with every HTTP request docbook makes.
func UserAgent() string {
	return "docbook/" + Version
}
