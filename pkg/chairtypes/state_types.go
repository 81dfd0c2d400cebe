package chairtypes

import "fmt"

// MasterState is the top-level lifecycle/mode indicator of the chair.
type MasterState string

const (
	MasterBooting      MasterState = "booting"
	MasterStarted      MasterState = "started"
	MasterRunning      MasterState = "running"
	MasterLocked       MasterState = "locked"
	MasterChapMode     MasterState = "chap-mode"
	MasterShuttingDown MasterState = "shutting-down"
)

// ParseMasterState converts a string to a MasterState.
func ParseMasterState(s string) (MasterState, error) {
	switch state := MasterState(s); state {
	case MasterBooting, MasterStarted, MasterRunning, MasterLocked, MasterChapMode, MasterShuttingDown:
		return state, nil
	}
	return "", fmt.Errorf("unknown master state %q", s)
}

// BarState describes the position of the chair's raisable bar.
type BarState string

const (
	BarLowered BarState = "lowered"
	BarRaised  BarState = "raised"
	BarMoving  BarState = "moving"
)

// ParseBarState converts a string to a BarState.
func ParseBarState(s string) (BarState, error) {
	switch state := BarState(s); state {
	case BarLowered, BarRaised, BarMoving:
		return state, nil
	}
	return "", fmt.Errorf("unknown bar state %q", s)
}

// Position is a WGS84 coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
