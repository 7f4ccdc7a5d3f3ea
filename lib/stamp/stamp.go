// Package stamp holds information about the build, set at link time with
// flags like:
//
//	go build -ldflags "-X github.com/enfabrica/nucleus/lib/stamp.GitSha=$(git rev-parse HEAD)"
package stamp

import (
	"strings"
)

var (
	BuildUser = "<unknown>"
	GitBranch = "<unknown>"
	GitSha    = "<unknown>"

	changedFiles = "<unknown>"
)

// IsClean returns true if the binary was built from a tree with no local changes.
func IsClean() bool {
	return strings.TrimSpace(changedFiles) == ""
}
