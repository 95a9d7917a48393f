package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the current version of the server
	// This will be overridden by ldflags during build
	Version = "dev"

	// These variables are set by goreleaser
	commit  = "unknown"
	date    = "unknown"
	builtBy = "unknown"
)

// SetBuildInfo sets the build information
func SetBuildInfo(commitHash, buildDate, builder string) {
	commit = commitHash
	date = buildDate
	builtBy = builder
}

// Info is the build metadata printed by the version command
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	BuiltBy   string `json:"built_by"`
	GoVersion string `json:"go_version"`
}

// Get returns the build metadata. A binary built with plain go build
// falls back to the VCS revision embedded by the toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    commit,
		Date:      date,
		BuiltBy:   builtBy,
		GoVersion: runtime.Version(),
	}

	if info.Commit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.Commit = setting.Value
			case "vcs.time":
				info.Date = setting.Value
			}
		}
	}
	return info
}

// GetVersion returns the full version string
func GetVersion() string {
	info := Get()
	return fmt.Sprintf("%s (commit: %s, built: %s, by: %s)",
		info.Version, info.Commit, info.Date, info.BuiltBy)
}

// ServerVersion is the version advertised in the MCP handshake. Development
// builds advertise the configured fallback.
func ServerVersion(fallback string) string {
	if Version == "" || Version == "dev" {
		return fallback
	}
	return Version
}
