package version

import (
	"fmt"
	"runtime"
)

// Build information, set at build time via -ldflags "-X .../version.Version=..."
var (
	Version = "v0.1.0"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// Info returns the short version string.
func Info() string {
	return Version
}

// FullInfo returns complete build information for `iosched version` and the
// daemon's startup line.
func FullInfo() string {
	return fmt.Sprintf("version=%s commit=%s built_at=%s go=%s", Version, Commit, BuiltAt, runtime.Version())
}
