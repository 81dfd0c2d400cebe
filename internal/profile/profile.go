// Package profile loads the boot-time configuration record that parameterizes every
// chair service. Profiles are authored as JSONC (JSON with comments and trailing commas),
// read once at boot and never modified afterwards.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"chairctl/pkg/chairtypes"
)

// Seconds is a duration expressed as a (possibly fractional) number of seconds.
type Seconds float64

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Profile is the complete boot configuration.
type Profile struct {
	Name         string                 `json:"name"`
	Requires     string                 `json:"requires,omitempty"`
	RunModes     []chairtypes.RunMode   `json:"run_modes"`
	BootScript   chairtypes.ScriptID    `json:"boot_script,omitempty"`
	InitialState chairtypes.MasterState `json:"initial_state,omitempty"`
	ScriptsDir   string                 `json:"scripts_dir,omitempty"`

	Audio    AudioProfile    `json:"audio"`
	Music    MusicProfile    `json:"music"`
	Relay    RelayProfile    `json:"relay"`
	Lighting LightingProfile `json:"lighting"`
	Location LocationProfile `json:"location"`
	Map      MapProfile      `json:"map"`
	Remote   RemoteProfile   `json:"remote"`
	Security SecurityProfile `json:"security"`
	Display  DisplayProfile  `json:"display"`
	System   SystemProfile   `json:"system"`

	// baseDir resolves relative paths; it is the directory the profile was read from.
	baseDir string
}

// AudioProfile configures sound-effect playback.
type AudioProfile struct {
	Player    []string `json:"player"`
	SoundDir  string   `json:"sound_dir"`
	Volume    int      `json:"volume"`
	Simulated bool     `json:"simulated,omitempty"`
}

// MusicProfile configures track playback.
type MusicProfile struct {
	Player    []string `json:"player"`
	Directory string   `json:"directory"`
	Volume    int      `json:"volume"`
	Simulated bool     `json:"simulated,omitempty"`
}

// RelayProfile configures the I2C relay board. Relays maps relay names to 1-based channels.
type RelayProfile struct {
	Bus      int            `json:"bus"`
	Address  uint16         `json:"address"`
	Register uint8          `json:"register"`
	Relays   map[string]int `json:"relays"`
}

// LightingProfile configures the WLED controller. Effects maps effect names to presets.
type LightingProfile struct {
	Host       string         `json:"host,omitempty"`
	Timeout    Seconds        `json:"timeout,omitempty"`
	Brightness int            `json:"brightness"`
	Effects    map[string]int `json:"effects"`
}

// LocationProfile configures the GPS receiver.
type LocationProfile struct {
	Device string              `json:"device,omitempty"`
	Baud   int                 `json:"baud,omitempty"`
	Home   chairtypes.Position `json:"home"`
}

// MapProfile configures the map tile source.
type MapProfile struct {
	TileDir   string `json:"tile_dir"`
	Zoom      int    `json:"zoom"`
	CacheSize int    `json:"cache_size"`
}

// RemoteProfile configures remote-control buttons and what each one triggers.
type RemoteProfile struct {
	Pins         map[string]int                 `json:"pins"`
	Bindings     map[string]chairtypes.ScriptID `json:"bindings"`
	PollInterval Seconds                        `json:"poll_interval,omitempty"`
	GPIORoot     string                         `json:"gpio_root,omitempty"`
}

// SecurityProfile configures the pin lock.
type SecurityProfile struct {
	Pin         string `json:"pin"`
	MaxAttempts int    `json:"max_attempts"`
}

// DisplayProfile configures the two screens.
type DisplayProfile struct {
	DefaultScene string `json:"default_scene"`
	SafeScene    string `json:"safe_scene"`
}

// SystemProfile configures host-level actions.
type SystemProfile struct {
	PowerOffCommand []string `json:"power_off_command,omitempty"`
}

// Parse strips JSONC comments and trailing commas from data, unmarshals the result,
// applies defaults and validates it.
func Parse(data []byte) (*Profile, error) {
	stripped := jsonc.ToJSON(data)

	var p Profile
	if err := json.Unmarshal(stripped, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}

	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Load reads and parses a profile file. Relative paths inside the profile resolve
// against the file's directory.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	p.baseDir = abs

	return p, nil
}

func (p *Profile) applyDefaults() {
	if p.InitialState == "" {
		p.InitialState = chairtypes.MasterRunning
	}
	if p.Relay.Register == 0 {
		p.Relay.Register = 0x10
	}
	if p.Lighting.Timeout == 0 {
		p.Lighting.Timeout = 2
	}
	if p.Location.Baud == 0 {
		p.Location.Baud = 9600
	}
	if p.Map.Zoom == 0 {
		p.Map.Zoom = 14
	}
	if p.Map.CacheSize == 0 {
		p.Map.CacheSize = 128
	}
	if p.Remote.PollInterval == 0 {
		p.Remote.PollInterval = 0.05
	}
	if p.Remote.GPIORoot == "" {
		p.Remote.GPIORoot = "/sys/class/gpio"
	}
	if p.Security.MaxAttempts == 0 {
		p.Security.MaxAttempts = 3
	}
	if p.Display.DefaultScene == "" {
		p.Display.DefaultScene = "standby"
	}
	if p.Display.SafeScene == "" {
		p.Display.SafeScene = p.Display.DefaultScene
	}
}

// Validate performs structural checks that do not depend on the run mode.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	if len(p.RunModes) == 0 {
		return fmt.Errorf("profile %s declares no run modes", p.Name)
	}
	for _, mode := range p.RunModes {
		if _, err := chairtypes.ParseRunMode(string(mode)); err != nil {
			return fmt.Errorf("profile %s: %w", p.Name, err)
		}
	}
	if p.BootScript != "" {
		if _, err := chairtypes.ParseScriptID(string(p.BootScript)); err != nil {
			return fmt.Errorf("profile %s boot_script: %w", p.Name, err)
		}
	}
	switch p.InitialState {
	case chairtypes.MasterRunning, chairtypes.MasterLocked, chairtypes.MasterChapMode:
	default:
		return fmt.Errorf("profile %s: initial_state %q must be running, locked or chap-mode", p.Name, p.InitialState)
	}
	for button, script := range p.Remote.Bindings {
		if _, err := chairtypes.ParseScriptID(string(script)); err != nil {
			return fmt.Errorf("profile %s remote binding %s: %w", p.Name, button, err)
		}
	}
	for name, channel := range p.Relay.Relays {
		if channel < 1 || channel > 8 {
			return fmt.Errorf("profile %s relay %s: channel %d out of range 1-8", p.Name, name, channel)
		}
	}
	for _, v := range []struct {
		name  string
		value int
	}{{"audio.volume", p.Audio.Volume}, {"music.volume", p.Music.Volume}} {
		if v.value < 0 || v.value > 100 {
			return fmt.Errorf("profile %s: %s %d out of range 0-100", p.Name, v.name, v.value)
		}
	}
	if p.Lighting.Brightness < 0 || p.Lighting.Brightness > 255 {
		return fmt.Errorf("profile %s: lighting.brightness %d out of range 0-255", p.Name, p.Lighting.Brightness)
	}
	if p.Lighting.Timeout.Duration() <= 0 {
		return fmt.Errorf("profile %s: lighting.timeout must be positive, got %v", p.Name, float64(p.Lighting.Timeout))
	}
	if p.Remote.PollInterval.Duration() <= 0 {
		return fmt.Errorf("profile %s: remote.poll_interval must be positive, got %v", p.Name, float64(p.Remote.PollInterval))
	}
	return nil
}

// SupportsRunMode reports whether the profile declares mode.
func (p *Profile) SupportsRunMode(mode chairtypes.RunMode) bool {
	for _, m := range p.RunModes {
		if m == mode {
			return true
		}
	}
	return false
}

// CheckRunMode returns a configuration error if the profile does not declare mode.
func (p *Profile) CheckRunMode(mode chairtypes.RunMode) error {
	if !p.SupportsRunMode(mode) {
		return chairtypes.NewConfigError("", "profile %s does not support run mode %s (supports %v)", p.Name, mode, p.RunModes)
	}
	return nil
}

// ResolvePath returns path unchanged if it is absolute or empty, otherwise joined to the
// directory the profile was loaded from.
func (p *Profile) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || p.baseDir == "" {
		return path
	}
	return filepath.Join(p.baseDir, path)
}
