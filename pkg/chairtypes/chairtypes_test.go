package chairtypes

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMode_Platform(t *testing.T) {
	tests := []struct {
		mode     RunMode
		platform Platform
		embedded bool
	}{
		{RunModeDev, PlatformWorkstation, false},
		{RunModeEmbeddedControlPanel, PlatformRaspberryPi, true},
		{RunModeEmbeddedHeadsUp, PlatformRaspberryPi, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.platform, tt.mode.Platform())
			assert.Equal(t, tt.embedded, tt.mode.IsEmbedded())
		})
	}
}

func TestParseRunMode(t *testing.T) {
	mode, err := ParseRunMode("embedded-heads-up")
	require.NoError(t, err)
	assert.Equal(t, RunModeEmbeddedHeadsUp, mode)

	_, err = ParseRunMode("toaster")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown run mode")
}

func TestParseScriptID(t *testing.T) {
	for _, id := range AllScriptIDs() {
		parsed, err := ParseScriptID(string(id))
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}

	_, err := ParseScriptID("self-destruct")
	assert.Error(t, err)
}

func TestParseStates(t *testing.T) {
	state, err := ParseMasterState("chap-mode")
	require.NoError(t, err)
	assert.Equal(t, MasterChapMode, state)

	_, err = ParseMasterState("sleeping")
	assert.Error(t, err)

	bar, err := ParseBarState("raised")
	require.NoError(t, err)
	assert.Equal(t, BarRaised, bar)

	_, err = ParseBarState("sideways")
	assert.Error(t, err)
}

func TestAllServiceIDs_Unique(t *testing.T) {
	seen := make(map[ServiceID]bool)
	for _, id := range AllServiceIDs() {
		assert.False(t, seen[id], "duplicate service id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 10)
}

func TestConfigError(t *testing.T) {
	err := NewConfigError(ServiceRelay, "no relay driver for run mode %s", RunModeDev)
	assert.Equal(t, "configuration error in relay: no relay driver for run mode dev", err.Error())
	assert.True(t, IsConfigError(err))
	assert.True(t, IsConfigError(fmt.Errorf("boot: %w", err)))
	assert.False(t, IsConfigError(errors.New("plain")))
	assert.Nil(t, errors.Unwrap(err))
}

func TestWrapConfigError(t *testing.T) {
	cause := fmt.Errorf("reading chair.jsonc: %w", fs.ErrNotExist)
	err := WrapConfigError(ServiceScript, cause)

	assert.Equal(t, "configuration error in script: reading chair.jsonc: file does not exist", err.Error())
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, fmt.Errorf("boot: %w", err), cause)
}
