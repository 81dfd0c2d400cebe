package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReleaseNameForVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		expected string
	}{
		{"exact match", "0.3.0", "Conn"},
		{"patch uses base line", "0.3.7", "Conn"},
		{"prerelease uses base line", "0.2.0-beta.1", "Helm"},
		{"unnamed line", "0.9.0", ""},
		{"invalid version", "invalid", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetReleaseNameForVersion(tt.version))
		})
	}
}

func TestSatisfies(t *testing.T) {
	original := Version
	defer func() { Version = original }()
	Version = "0.3.2"

	tests := []struct {
		constraint string
		want       bool
		wantErr    bool
	}{
		{"", true, false},
		{">= 0.3.0", true, false},
		{"~0.3", true, false},
		{">= 0.4.0", false, false},
		{"< 0.3.0 || >= 1.0.0", false, false},
		{"not a constraint", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			ok, err := Satisfies(tt.constraint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestGetFormattedVersion(t *testing.T) {
	originalVersion, originalCommit, originalDate := Version, GitCommit, BuildDate
	defer SetBuildInfo(originalVersion, originalCommit, originalDate)

	SetBuildInfo("0.3.1", "0123456789abcdef", "2025-06-01")
	formatted := GetFormattedVersion()

	assert.Contains(t, formatted, "chair v0.3.1 'Conn'")
	assert.Contains(t, formatted, "commit 0123456")
	assert.Contains(t, formatted, "built 2025-06-01")
}

func TestGetInfo_Invalid(t *testing.T) {
	original := Version
	defer func() { Version = original }()
	Version = "not-semver"

	_, err := GetInfo()
	assert.Error(t, err)
	assert.Contains(t, GetFormattedVersion(), "invalid version")
}
