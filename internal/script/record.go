package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"chairctl/internal/services"
	"chairctl/pkg/chairtypes"
)

// Script is a named, immutable, ordered list of commands.
type Script struct {
	ID          chairtypes.ScriptID
	Description string
	// Source is where the definition was read from.
	Source   string
	Commands []Command
}

// File is the on-disk shape of a script definition.
type File struct {
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Commands    []Record `yaml:"commands" json:"commands"`
}

// Record is the on-disk shape of one command. Which fields apply depends on Type.
// Durations are in seconds.
type Record struct {
	Type     string   `yaml:"type" json:"type"`
	Pause    float64  `yaml:"pause,omitempty" json:"pause,omitempty"`
	Message  string   `yaml:"message,omitempty" json:"message,omitempty"`
	Messages []string `yaml:"messages,omitempty" json:"messages,omitempty"`
	Interval float64  `yaml:"interval,omitempty" json:"interval,omitempty"`
	Variance float64  `yaml:"variance,omitempty" json:"variance,omitempty"`
	Duration float64  `yaml:"duration,omitempty" json:"duration,omitempty"`
	Effect   string   `yaml:"effect,omitempty" json:"effect,omitempty"`
	Effects  []string `yaml:"effects,omitempty" json:"effects,omitempty"`
	Wait     bool     `yaml:"wait,omitempty" json:"wait,omitempty"`
	Track    string   `yaml:"track,omitempty" json:"track,omitempty"`
	Relay    string   `yaml:"relay,omitempty" json:"relay,omitempty"`
	Hold     float64  `yaml:"hold,omitempty" json:"hold,omitempty"`
	State    string   `yaml:"state,omitempty" json:"state,omitempty"`
	Bar      string   `yaml:"bar,omitempty" json:"bar,omitempty"`
	Screen   string   `yaml:"screen,omitempty" json:"screen,omitempty"`
	Scene    string   `yaml:"scene,omitempty" json:"scene,omitempty"`
	PowerOff bool     `yaml:"power_off,omitempty" json:"power_off,omitempty"`
}

// Parse decodes a script definition. Files named *.json or *.jsonc are JSON with
// comments; everything else is YAML. Unknown fields and command types are errors.
func Parse(id chairtypes.ScriptID, source string, data []byte) (*Script, error) {
	var file File
	switch strings.ToLower(filepath.Ext(source)) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
	}

	s := &Script{ID: id, Description: file.Description, Source: source}
	for i, rec := range file.Commands {
		cmd, err := rec.Command()
		if err != nil {
			return nil, fmt.Errorf("%s: command %d: %w", source, i+1, err)
		}
		s.Commands = append(s.Commands, cmd)
	}
	return s, nil
}

// Command converts the record to its typed command.
func (r Record) Command() (Command, error) {
	step, err := r.step()
	if err != nil {
		return nil, err
	}

	switch r.Type {
	case "message":
		if r.Message == "" && len(r.Messages) == 0 {
			return nil, fmt.Errorf("message needs message or messages")
		}
		if r.Interval < 0 || r.Variance < 0 {
			return nil, fmt.Errorf("message interval and variance must not be negative")
		}
		return Message{Step: step, Text: r.Message, Messages: r.Messages, Interval: seconds(r.Interval), Variance: seconds(r.Variance)}, nil
	case "pause":
		if r.Duration < 0 {
			return nil, fmt.Errorf("pause duration must not be negative")
		}
		return Pause{Step: step, Duration: seconds(r.Duration)}, nil
	case "play-sound-effect":
		return PlaySoundEffect{Step: step, Effect: r.Effect, Effects: r.Effects, Wait: r.Wait}, nil
	case "play-track":
		if r.Track == "" {
			return nil, fmt.Errorf("play-track needs track")
		}
		return PlayTrack{Step: step, Track: r.Track, Wait: r.Wait}, nil
	case "stop-track":
		return StopTrack{Step: step}, nil
	case "relay-on":
		if r.Relay == "" {
			return nil, fmt.Errorf("relay-on needs relay")
		}
		if r.Hold < 0 {
			return nil, fmt.Errorf("relay hold must not be negative")
		}
		return RelayOn{Step: step, Relay: r.Relay, Hold: seconds(r.Hold), Wait: r.Wait}, nil
	case "relay-off":
		if r.Relay == "" {
			return nil, fmt.Errorf("relay-off needs relay")
		}
		return RelayOff{Step: step, Relay: r.Relay}, nil
	case "run-lighting-effect":
		return RunLightingEffect{Step: step, Effect: r.Effect}, nil
	case "store-lighting-state":
		return StoreLightingState{Step: step}, nil
	case "restore-lighting-state":
		return RestoreLightingState{Step: step}, nil
	case "set-bar-state":
		bar, err := chairtypes.ParseBarState(r.Bar)
		if err != nil {
			return nil, err
		}
		return SetBarState{Step: step, Bar: bar}, nil
	case "set-chair-state":
		state, err := chairtypes.ParseMasterState(r.State)
		if err != nil {
			return nil, err
		}
		if state == chairtypes.MasterBooting || state == chairtypes.MasterStarted {
			return nil, fmt.Errorf("master state %s cannot be set by a script", state)
		}
		return SetChairState{Step: step, State: state}, nil
	case "show-scene":
		screen, err := services.ParseScreen(r.Screen)
		if err != nil {
			return nil, err
		}
		if r.Scene == "" {
			return nil, fmt.Errorf("show-scene needs scene")
		}
		return ShowScene{Step: step, Screen: screen, Scene: r.Scene}, nil
	case "shutdown":
		return Shutdown{Step: step, PowerOff: r.PowerOff}, nil
	case "":
		return nil, fmt.Errorf("command type is required")
	default:
		return nil, fmt.Errorf("unknown command type %q", r.Type)
	}
}

func (r Record) step() (Step, error) {
	if r.Pause < 0 {
		return Step{}, fmt.Errorf("pause must not be negative")
	}
	return Step{Pause: seconds(r.Pause)}, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
