// Package version carries build information for vidpipe.
//
// Version, Commit and Date are set at link time:
//
//	go build -ldflags "-X github.com/jmylchreest/vidpipe/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/vidpipe/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/vidpipe/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "vidpipe"

// Info is the build information reported by the health endpoint and the
// version command.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build information of the running binary.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// ShortCommit returns the first eight characters of the commit, or "" when
// the commit is unknown.
func ShortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// String returns a human-readable version line.
func String() string {
	info := GetInfo()
	if c := ShortCommit(); c != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, c, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// UserAgent returns the User-Agent sent on outbound requests.
func UserAgent() string {
	return ApplicationName + "/" + Version
}
