package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo_String(t *testing.T) {
	tests := []struct {
		name   string
		info   Info
		want   string
		semver bool
	}{
		{
			name: "untagged build",
			info: Info{Version: "dev", CommitHash: "abc1234def", BuildTime: "unknown"},
			want: "mappa dev (commit abc1234def, built unknown)",
		},
		{
			name:   "tagged build with v prefix",
			info:   Info{Version: "v1.2.3", CommitHash: "abc1234", BuildTime: "2026-01-01"},
			want:   "mappa v1.2.3 (commit abc1234, built 2026-01-01)",
			semver: true,
		},
		{
			name:   "tagged build without prefix",
			info:   Info{Version: "0.4.0", CommitHash: "abc1234", BuildTime: "2026-01-01"},
			want:   "mappa v0.4.0 (commit abc1234, built 2026-01-01)",
			semver: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
			_, ok := tt.info.Semver()
			assert.Equal(t, tt.semver, ok)
		})
	}
}

func TestInfo_Short(t *testing.T) {
	assert.Equal(t, "abc1234", Info{CommitHash: "abc1234def"}.Short())
	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
