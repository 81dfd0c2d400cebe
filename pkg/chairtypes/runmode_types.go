package chairtypes

import "fmt"

// Platform identifies the physical machine class a run mode targets.
type Platform string

const (
	// PlatformWorkstation is a development machine with simulated hardware.
	PlatformWorkstation Platform = "workstation"
	// PlatformRaspberryPi is the embedded single-board computer wired to the chair.
	PlatformRaspberryPi Platform = "raspberry-pi"
)

// RunMode is the deployment target chosen once at boot.
type RunMode string

const (
	RunModeDev                  RunMode = "dev"
	RunModeEmbeddedControlPanel RunMode = "embedded-control-panel"
	RunModeEmbeddedHeadsUp      RunMode = "embedded-heads-up"
)

// AllRunModes returns every known run mode.
func AllRunModes() []RunMode {
	return []RunMode{RunModeDev, RunModeEmbeddedControlPanel, RunModeEmbeddedHeadsUp}
}

// Platform returns the physical platform the run mode runs on.
func (m RunMode) Platform() Platform {
	switch m {
	case RunModeEmbeddedControlPanel, RunModeEmbeddedHeadsUp:
		return PlatformRaspberryPi
	default:
		return PlatformWorkstation
	}
}

// IsEmbedded reports whether the run mode drives real hardware.
func (m RunMode) IsEmbedded() bool {
	return m.Platform() == PlatformRaspberryPi
}

// ParseRunMode converts a string to a RunMode, rejecting unknown names.
func ParseRunMode(s string) (RunMode, error) {
	for _, mode := range AllRunModes() {
		if string(mode) == s {
			return mode, nil
		}
	}
	return "", fmt.Errorf("unknown run mode %q", s)
}
