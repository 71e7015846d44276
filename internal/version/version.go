// Package version reports build information for the reports binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/conneroisu/reports/internal/engine"
)

// Set at build time with -ldflags "-X github.com/conneroisu/reports/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version         string    `json:"version"`
	GitCommit       string    `json:"git_commit"`
	BuildTime       time.Time `json:"build_time,omitempty"`
	Dirty           bool      `json:"dirty"`
	GoVersion       string    `json:"go_version"`
	Platform        string    `json:"platform"`
	ArtifactVersion int       `json:"artifact_version"`
}

// Get collects the build information, falling back to the module and VCS
// data embedded by the Go toolchain when ldflags were not set.
func Get() BuildInfo {
	info := BuildInfo{
		Version:         Version,
		GitCommit:       GitCommit,
		BuildTime:       parseBuildTime(BuildTime),
		GoVersion:       runtime.Version(),
		Platform:        runtime.GOOS + "/" + runtime.GOARCH,
		ArtifactVersion: engine.ArtifactVersion,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseBuildTime(s.Value)
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}

	return info
}

// Short returns e.g. "v1.2.0 (1a2b3c4)" or "dev-1a2b3c4".
func (b BuildInfo) Short() string {
	if b.GitCommit == "unknown" || len(b.GitCommit) < 7 {
		return b.Version
	}

	commit := b.GitCommit[:7]
	if b.Version == "dev" {
		return "dev-" + commit
	}

	return fmt.Sprintf("%s (%s)", b.Version, commit)
}

// Detailed returns one "Key: value" line per field.
func (b BuildInfo) Detailed() string {
	lines := []string{"Version: " + b.Version}
	if b.GitCommit != "unknown" {
		commit := "Commit: " + b.GitCommit
		if b.Dirty {
			commit += " (dirty)"
		}
		lines = append(lines, commit)
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, "Built: "+b.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines,
		"Go: "+b.GoVersion,
		"Platform: "+b.Platform,
		fmt.Sprintf("Template artifacts: v%d", b.ArtifactVersion),
	)

	return strings.Join(lines, "\n")
}

// IsRelease reports whether the binary carries a release version.
func (b BuildInfo) IsRelease() bool {
	return b.Version != "dev" && !strings.HasPrefix(b.Version, "dev-")
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
