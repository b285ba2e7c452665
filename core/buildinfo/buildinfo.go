// Package buildinfo carries values stamped at link time:
//
//	go build -ldflags "-X 'github.com/m3rciful/stagebot/core/buildinfo.Version=v0.3.0' \
//	  -X 'github.com/m3rciful/stagebot/core/buildinfo.Commit=abcdef0' \
//	  -X 'github.com/m3rciful/stagebot/core/buildinfo.Date=2025-08-30T12:00:00Z'"
package buildinfo

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// Commit is the source revision.
	Commit = "local"
	// Date is the RFC3339 build time.
	Date = ""
)

// String renders the build info on one line.
func String() string {
	if Date == "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, Date)
}
