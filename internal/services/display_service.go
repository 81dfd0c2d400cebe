package services

import (
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// Screen names a display. ScreenBoth addresses every screen the run mode has.
type Screen string

const (
	ScreenMain Screen = "main"
	ScreenAux  Screen = "aux"
	ScreenBoth Screen = "both"
)

// ParseScreen converts a string to a Screen.
func ParseScreen(s string) (Screen, error) {
	switch Screen(s) {
	case ScreenMain, ScreenAux, ScreenBoth:
		return Screen(s), nil
	default:
		return "", fmt.Errorf("unknown screen %q", s)
	}
}

// Windowing is the graphical layer that renders scenes. It lives outside this process;
// implementations forward scene switches to it.
type Windowing interface {
	ShowScene(screen Screen, scene string) error
	Terminate() error
}

// DisplayState is published by the display service.
type DisplayState struct {
	Main            *state.Cell[string]
	Aux             *state.Cell[string]
	WindowingActive *state.Cell[bool]
}

// DisplayService tracks which scene each screen shows.
type DisplayService struct {
	k         *kernel.Kernel
	windowing Windowing
	screens   []Screen
	safeScene string
	logger    *log.Logger

	main   *state.Writer[string]
	aux    *state.Writer[string]
	active *state.Writer[bool]
	st     *DisplayState

	mu sync.Mutex
}

// NewDisplayService builds the display service. The heads-up unit has only the main screen.
func NewDisplayService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*DisplayService, *DisplayState, error) {
	var screens []Screen
	switch mode {
	case chairtypes.RunModeDev, chairtypes.RunModeEmbeddedControlPanel:
		screens = []Screen{ScreenMain, ScreenAux}
	case chairtypes.RunModeEmbeddedHeadsUp:
		screens = []Screen{ScreenMain}
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceDisplay, "no display layout for run mode %s", mode)
	}

	windowing := &loggingWindowing{logger: logger.NewStyledLogger("Display")}
	svc, st := newDisplayService(k, windowing, screens, p.Display.DefaultScene, p.Display.SafeScene)
	return svc, st, nil
}

func newDisplayService(k *kernel.Kernel, windowing Windowing, screens []Screen, defaultScene, safeScene string) (*DisplayService, *DisplayState) {
	mainCell, mainWriter := state.New(defaultScene)
	auxScene := ""
	if slices.Contains(screens, ScreenAux) {
		auxScene = defaultScene
	}
	auxCell, auxWriter := state.New(auxScene)
	activeCell, activeWriter := state.New(true)

	st := &DisplayState{Main: mainCell, Aux: auxCell, WindowingActive: activeCell}
	svc := &DisplayService{
		k:         k,
		windowing: windowing,
		screens:   screens,
		safeScene: safeScene,
		logger:    logger.NewStyledLogger("Display"),
		main:      mainWriter,
		aux:       auxWriter,
		active:    activeWriter,
		st:        st,
	}
	return svc, st
}

// ID returns the service identifier.
func (d *DisplayService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceDisplay
}

// State returns the published state.
func (d *DisplayService) State() *DisplayState {
	return d.st
}

// SafeScene is the scene shown while shutting down.
func (d *DisplayService) SafeScene() string {
	return d.safeScene
}

// ShowScene switches screen to scene. Screens the run mode lacks are logged and skipped,
// as are calls after windowing has terminated.
func (d *DisplayService) ShowScene(screen Screen, scene string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.st.WindowingActive.Get() {
		d.logger.Warn("Windowing terminated, ignoring scene", "screen", screen, "scene", scene)
		return nil
	}

	targets := []Screen{screen}
	if screen == ScreenBoth {
		targets = d.screens
	}

	for _, target := range targets {
		if !slices.Contains(d.screens, target) {
			d.logger.Warn("No such screen in this run mode", "screen", target, "scene", scene)
			continue
		}
		if err := d.windowing.ShowScene(target, scene); err != nil {
			return fmt.Errorf("show %s on %s: %w", scene, target, err)
		}
		switch target {
		case ScreenMain:
			d.main.Set(scene)
		case ScreenAux:
			d.aux.Set(scene)
		}
	}
	return nil
}

// TerminateWindowing closes the graphical layer. Later scene switches are ignored.
func (d *DisplayService) TerminateWindowing() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.st.WindowingActive.Get() {
		return nil
	}
	d.active.Set(false)
	return d.windowing.Terminate()
}

// Terminate terminates windowing if a shutdown script has not already done so.
func (d *DisplayService) Terminate() error {
	return d.TerminateWindowing()
}

// loggingWindowing stands in for the external graphical layer.
type loggingWindowing struct {
	logger *log.Logger
}

func (w *loggingWindowing) ShowScene(screen Screen, scene string) error {
	w.logger.Info("Scene", "screen", screen, "scene", scene)
	return nil
}

func (w *loggingWindowing) Terminate() error {
	w.logger.Info("Windowing terminated")
	return nil
}
