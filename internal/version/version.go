// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables (set via ldflags).
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

// Get returns the current version info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable version string.
func (i Info) String() string {
	if i.Commit == "unknown" {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, i.Commit)
}
