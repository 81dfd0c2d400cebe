// Package version provides centralized version management for the chair software.
// It supports semantic versioning, build-time injection, and profile compatibility checks.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Build information that can be set at compile time via -ldflags
var (
	// Version is the semantic version of the application
	Version = "0.3.0"

	// GitCommit is the git commit hash when the binary was built
	GitCommit = "unknown"

	// BuildDate is the date when the binary was built
	BuildDate = "unknown"
)

// releaseNames maps minor release lines to their names.
var releaseNames = map[string]string{
	"0.1.0": "Bridge",
	"0.2.0": "Helm",
	"0.3.0": "Conn",
	"0.4.0": "Ready Room",
}

// Info represents comprehensive version information
type Info struct {
	Version   string          `json:"version"`
	Release   string          `json:"release"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetReleaseNameForVersion returns the release name for a version.
// Patch versions use the name of their major.minor.0 line.
func GetReleaseNameForVersion(version string) string {
	if name, exists := releaseNames[version]; exists {
		return name
	}

	sv, err := semver.NewVersion(version)
	if err != nil {
		return ""
	}

	return releaseNames[fmt.Sprintf("%d.%d.0", sv.Major(), sv.Minor())]
}

// GetInfo returns comprehensive version information
func GetInfo() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}

	return &Info{
		Version:   Version,
		Release:   GetReleaseNameForVersion(Version),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		SemVer:    sv,
	}, nil
}

// GetFormattedVersion returns a one-line version string
func GetFormattedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("chair v%s (invalid version)", Version)
	}

	var parts []string
	if info.Release != "" {
		parts = append(parts, fmt.Sprintf("chair v%s '%s'", info.Version, info.Release))
	} else {
		parts = append(parts, fmt.Sprintf("chair v%s", info.Version))
	}

	if info.GitCommit != "unknown" && info.GitCommit != "" {
		shortCommit := info.GitCommit
		if len(shortCommit) > 7 {
			shortCommit = shortCommit[:7]
		}
		parts = append(parts, fmt.Sprintf("commit %s", shortCommit))
	}

	if info.BuildDate != "unknown" && info.BuildDate != "" {
		parts = append(parts, fmt.Sprintf("built %s", info.BuildDate))
	}

	parts = append(parts, info.Platform)

	return strings.Join(parts, ", ")
}

// Satisfies reports whether the running version meets a semver constraint such as ">= 0.3.0".
// An empty constraint is always satisfied.
func Satisfies(constraint string) (bool, error) {
	if strings.TrimSpace(constraint) == "" {
		return true, nil
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint '%s': %w", constraint, err)
	}

	sv, err := semver.NewVersion(Version)
	if err != nil {
		return false, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}

	return c.Check(sv), nil
}

// SetBuildInfo sets build information (used for testing)
func SetBuildInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}
