// Package version provides build and version information for tokindex.
package version

import (
	"fmt"
	"runtime"
)

// Build information, set via ldflags:
//
//	-X github.com/Aman-CERP/tokindex/pkg/version.Version=$(VERSION)
//	-X github.com/Aman-CERP/tokindex/pkg/version.Commit=$(COMMIT)
//	-X github.com/Aman-CERP/tokindex/pkg/version.Date=$(DATE)
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"

	// GoVersion is the toolchain that built the binary.
	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	Date          string `json:"date"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	FormatVersion uint16 `json:"index_format_version"`
}

// String returns a one-line version string with all build info.
func String() string {
	return fmt.Sprintf("tokindex %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information. formatVersion is the
// index container version this binary reads and writes.
func GetInfo(formatVersion uint16) BuildInfo {
	return BuildInfo{
		Version:       Version,
		Commit:        Commit,
		Date:          Date,
		GoVersion:     GoVersion,
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		FormatVersion: formatVersion,
	}
}
