package script_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairctl/internal/script"
	"chairctl/internal/services"
	"chairctl/pkg/chairtypes"
)

func TestParse_YAML(t *testing.T) {
	data := []byte(`
description: Raise the bar and celebrate.
commands:
  - type: set-bar-state
    bar: moving
  - type: relay-on
    relay: bar_lift
    hold: 1.5
    wait: true
    pause: 0.25
  - type: message
    messages: [up, done]
    interval: 2
    variance: 0.25
  - type: show-scene
    screen: aux
    scene: bridge
  - type: shutdown
    power_off: true
`)

	s, err := script.Parse(chairtypes.ScriptRaiseBar, "raise-bar.yaml", data)
	require.NoError(t, err)

	assert.Equal(t, chairtypes.ScriptRaiseBar, s.ID)
	assert.Equal(t, "Raise the bar and celebrate.", s.Description)
	assert.Equal(t, []script.Command{
		script.SetBarState{Bar: chairtypes.BarMoving},
		script.RelayOn{Step: script.Step{Pause: 250 * time.Millisecond}, Relay: "bar_lift", Hold: 1500 * time.Millisecond, Wait: true},
		script.Message{Messages: []string{"up", "done"}, Interval: 2 * time.Second, Variance: 250 * time.Millisecond},
		script.ShowScene{Screen: services.ScreenAux, Scene: "bridge"},
		script.Shutdown{PowerOff: true},
	}, s.Commands)
}

func TestParse_JSONC(t *testing.T) {
	data := []byte(`{
  // party time
  "description": "Party",
  "commands": [
    {"type": "store-lighting-state"},
    {"type": "run-lighting-effect", "effect": "party"},
    {"type": "play-track", "track": "theme", "pause": 1},
    {"type": "play-sound-effect", "effects": ["a", "b"]},
    {"type": "restore-lighting-state"},
  ],
}`)

	s, err := script.Parse(chairtypes.ScriptChapMode, "chap-mode.jsonc", data)
	require.NoError(t, err)
	assert.Equal(t, []script.Command{
		script.StoreLightingState{},
		script.RunLightingEffect{Effect: "party"},
		script.PlayTrack{Step: script.Step{Pause: time.Second}, Track: "theme"},
		script.PlaySoundEffect{Effects: []string{"a", "b"}},
		script.RestoreLightingState{},
	}, s.Commands)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		data    string
		wantErr string
	}{
		{"unknown command type", "lock.yaml", "commands:\n  - type: launch-torpedo\n", `unknown command type "launch-torpedo"`},
		{"missing type", "lock.yaml", "commands:\n  - relay: smoke\n", "command type is required"},
		{"unknown field", "lock.yaml", "commands:\n  - type: stop-track\n    speed: 9\n", "speed"},
		{"unknown json field", "lock.json", `{"commands": [{"type": "stop-track", "speed": 9}]}`, "speed"},
		{"booting is kernel-driven", "lock.yaml", "commands:\n  - type: set-chair-state\n    state: booting\n", "cannot be set by a script"},
		{"unknown master state", "lock.yaml", "commands:\n  - type: set-chair-state\n    state: warp\n", `unknown master state "warp"`},
		{"unknown bar state", "lock.yaml", "commands:\n  - type: set-bar-state\n    bar: sideways\n", `unknown bar state "sideways"`},
		{"negative pause", "lock.yaml", "commands:\n  - type: stop-track\n    pause: -1\n", "must not be negative"},
		{"relay without name", "lock.yaml", "commands:\n  - type: relay-on\n", "needs relay"},
		{"message without text", "lock.yaml", "commands:\n  - type: message\n", "needs message or messages"},
		{"show-scene without scene", "lock.yaml", "commands:\n  - type: show-scene\n    screen: main\n", "needs scene"},
		{"bad screen", "lock.yaml", "commands:\n  - type: show-scene\n    screen: ceiling\n    scene: x\n", "ceiling"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.Parse(chairtypes.ScriptLock, tt.source, []byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_EmptyFile(t *testing.T) {
	s, err := script.Parse(chairtypes.ScriptLock, "lock.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, s.Commands)
}
