package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairctl/pkg/chairtypes"
)

func TestLoad_JSONC(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "dev.jsonc"))
	require.NoError(t, err)

	assert.Equal(t, "captain", p.Name)
	assert.Equal(t, ">= 0.3.0", p.Requires)
	assert.Equal(t, chairtypes.ScriptBoot, p.BootScript)
	assert.Equal(t, chairtypes.MasterLocked, p.InitialState)
	assert.Equal(t, []string{"aplay", "-q"}, p.Audio.Player)
	assert.Equal(t, 2, p.Relay.Relays["bar_lower"])
	assert.Equal(t, uint16(17), p.Relay.Address)
	assert.Equal(t, chairtypes.ScriptChapMode, p.Remote.Bindings["B"])
	assert.InDelta(t, 51.5007, p.Location.Home.Lat, 1e-9)

	// Defaults
	assert.Equal(t, uint8(0x10), p.Relay.Register)
	assert.Equal(t, 14, p.Map.Zoom)
	assert.Equal(t, 9600, p.Location.Baud)
	assert.Equal(t, 3, p.Security.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.Remote.PollInterval.Duration())

	abs, _ := filepath.Abs("testdata")
	assert.Equal(t, filepath.Join(abs, "sounds"), p.ResolvePath(p.Audio.SoundDir))
	assert.Equal(t, "/abs/music", p.ResolvePath("/abs/music"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.jsonc"))
	assert.Error(t, err)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "missing name",
			data:    `{"run_modes": ["dev"]}`,
			wantErr: "name is required",
		},
		{
			name:    "no run modes",
			data:    `{"name": "x"}`,
			wantErr: "declares no run modes",
		},
		{
			name:    "unknown run mode",
			data:    `{"name": "x", "run_modes": ["mainframe"]}`,
			wantErr: "unknown run mode",
		},
		{
			name:    "unknown boot script",
			data:    `{"name": "x", "run_modes": ["dev"], "boot_script": "warp"}`,
			wantErr: "boot_script",
		},
		{
			name:    "initial state booting",
			data:    `{"name": "x", "run_modes": ["dev"], "initial_state": "booting"}`,
			wantErr: "initial_state",
		},
		{
			name:    "bad remote binding",
			data:    `{"name": "x", "run_modes": ["dev"], "remote": {"bindings": {"A": "engage"}}}`,
			wantErr: "remote binding A",
		},
		{
			name:    "relay channel out of range",
			data:    `{"name": "x", "run_modes": ["dev"], "relay": {"relays": {"smoke": 9}}}`,
			wantErr: "out of range 1-8",
		},
		{
			name:    "volume out of range",
			data:    `{"name": "x", "run_modes": ["dev"], "music": {"volume": 120}}`,
			wantErr: "music.volume",
		},
		{
			name:    "negative poll interval",
			data:    `{"name": "x", "run_modes": ["embedded-control-panel"], "remote": {"poll_interval": -0.5}}`,
			wantErr: "remote.poll_interval must be positive",
		},
		{
			name:    "poll interval below a nanosecond",
			data:    `{"name": "x", "run_modes": ["dev"], "remote": {"poll_interval": 1e-12}}`,
			wantErr: "remote.poll_interval must be positive",
		},
		{
			name:    "negative lighting timeout",
			data:    `{"name": "x", "run_modes": ["dev"], "lighting": {"timeout": -1}}`,
			wantErr: "lighting.timeout must be positive",
		},
		{
			name:    "malformed",
			data:    `{"name": `,
			wantErr: "parsing profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProfile_CheckRunMode(t *testing.T) {
	p, err := Parse([]byte(`{"name": "x", "run_modes": ["dev"]}`))
	require.NoError(t, err)

	assert.NoError(t, p.CheckRunMode(chairtypes.RunModeDev))

	err = p.CheckRunMode(chairtypes.RunModeEmbeddedHeadsUp)
	require.Error(t, err)
	assert.True(t, chairtypes.IsConfigError(err))
	assert.Contains(t, err.Error(), "does not support run mode embedded-heads-up")
}
