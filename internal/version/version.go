// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/featuretrack/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the release tag of the featuretrack binary.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for -version and startup logs.
func String() string {
	return fmt.Sprintf("featuretrack %s (%s, built %s)", Version, GitSHA, BuildTime)
}
