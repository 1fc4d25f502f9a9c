// Package version carries build metadata set with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag
	Version = "dev"
	// GitSHA is the commit the binary was built from
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for logs and the -version flag.
func String() string {
	return fmt.Sprintf("vessels %s (%s, built %s)", Version, GitSHA, BuildTime)
}
