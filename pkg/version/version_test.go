package version

import (
	"encoding/json"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBuildVars overrides the ldflags variables for one test.
func setBuildVars(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	Version, Commit, Date = version, commit, date
	t.Cleanup(func() { Version, Commit, Date = oldVersion, oldCommit, oldDate })
}

func TestString_ReportsLdflagsValues(t *testing.T) {
	// Given: a release build stamped through ldflags
	setBuildVars(t, "1.4.0", "abc1234", "2026-10-01T12:00:00Z")

	// When: rendering the version line
	got := String()

	// Then: the ldflags values appear verbatim
	assert.True(t, strings.HasPrefix(got, "amanrag 1.4.0 (commit: abc1234"), got)
	assert.Contains(t, got, "built: 2026-10-01T12:00:00Z")
	assert.Contains(t, got, "go: "+runtime.Version())
	assert.Equal(t, "1.4.0", Short())
}

func TestGetInfo_PlatformFields(t *testing.T) {
	info := GetInfo()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestWithBuildSettings(t *testing.T) {
	vcs := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-09-30T08:15:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	tests := []struct {
		name     string
		info     BuildInfo
		settings []debug.BuildSetting
		want     BuildInfo
	}{
		{
			name:     "unstamped build takes vcs settings",
			info:     BuildInfo{Commit: "unknown", Date: "unknown"},
			settings: vcs,
			want:     BuildInfo{Commit: "0123456789ab", Date: "2026-09-30T08:15:00Z", Dirty: true},
		},
		{
			name:     "ldflags values win over vcs settings",
			info:     BuildInfo{Commit: "abc1234", Date: "2026-10-01T12:00:00Z"},
			settings: vcs,
			want:     BuildInfo{Commit: "abc1234", Date: "2026-10-01T12:00:00Z", Dirty: true},
		},
		{
			name:     "short revision kept whole",
			info:     BuildInfo{Commit: "unknown", Date: "unknown"},
			settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}},
			want:     BuildInfo{Commit: "abc", Date: "unknown"},
		},
		{
			name:     "no vcs settings",
			info:     BuildInfo{Commit: "unknown", Date: "unknown"},
			settings: []debug.BuildSetting{{Key: "-trimpath", Value: "true"}},
			want:     BuildInfo{Commit: "unknown", Date: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withBuildSettings(tt.info, tt.settings))
		})
	}
}

func TestBuildInfo_JSONKeys(t *testing.T) {
	// Given: a clean build
	data, err := json.Marshal(BuildInfo{Version: "1.4.0", Commit: "abc1234", Date: "d", GoVersion: "go1.25.5", OS: "linux", Arch: "amd64"})
	require.NoError(t, err)

	// When: decoding the JSON object
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	// Then: the stable keys are present and dirty is omitted
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, parsed, key)
	}
	assert.NotContains(t, parsed, "dirty")
}
