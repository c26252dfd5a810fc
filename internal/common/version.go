package common

import "fmt"

// AppName is shown in the banner, the version endpoint and crash reports
const AppName = "Cookiepool"

// Version information (set via -ldflags "-X .../common.Version=...")
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}
