package version

import (
	"fmt"
	"runtime"
)

// Version information - using semantic versioning
const (
	Major      = 0
	Minor      = 3
	Patch      = 0
	PreRelease = "" // e.g., "alpha", "beta", "rc1"
	GitCommit  = ""
	BuildDate  = ""
)

// Version returns the semantic version string
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
	if PreRelease != "" {
		version += "-" + PreRelease
	}
	return version
}

// BuildInfo contains build information reported at startup
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Name      string `json:"name"`
}

// GetBuildInfo returns complete build information
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   Version(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Name:      "Yieldex Onchain Agent",
	}
}

// GetVersionString returns a formatted version string
func GetVersionString() string {
	info := GetBuildInfo()
	if info.GitCommit != "" && len(info.GitCommit) >= 7 {
		return fmt.Sprintf("%s (%s)", info.Version, info.GitCommit[:7])
	}
	return info.Version
}

// GetFullVersionString returns a complete version string with build info
func GetFullVersionString() string {
	info := GetBuildInfo()
	result := fmt.Sprintf("%s v%s", info.Name, info.Version)
	if info.GitCommit != "" && len(info.GitCommit) >= 7 {
		result += fmt.Sprintf(" (commit: %s)", info.GitCommit[:7])
	}
	result += fmt.Sprintf(" (go: %s, platform: %s)", info.GoVersion, info.Platform)
	return result
}
