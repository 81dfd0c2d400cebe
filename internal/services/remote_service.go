package services

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// RemoteDriver reports button presses. Start launches the driver's worker, which calls
// press for every button press; Stop ends the worker and waits for it.
type RemoteDriver interface {
	Start(press func(button string)) error
	Stop() error
}

// RemoteState is published by the remote service.
type RemoteState struct {
	LastButton *state.Cell[string]
	Online     *state.Cell[bool]
}

// RemoteService turns remote-control button presses into script runs.
type RemoteService struct {
	k        *kernel.Kernel
	driver   RemoteDriver
	bindings map[string]chairtypes.ScriptID
	logger   *log.Logger

	lastButton *state.Writer[string]
	online     *state.Writer[bool]
	st         *RemoteState
}

// NewRemoteService builds the remote service. Dev has no hardware and takes presses from
// Press; the embedded modes poll GPIO pins through sysfs.
func NewRemoteService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*RemoteService, *RemoteState, error) {
	var driver RemoteDriver
	switch mode {
	case chairtypes.RunModeDev:
		driver = simulatedRemoteDriver{}
	case chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
		if len(p.Remote.Pins) == 0 {
			return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceRemote, "remote.pins is empty")
		}
		driver = newGPIORemoteDriver(p.Remote.GPIORoot, p.Remote.Pins, p.Remote.PollInterval.Duration())
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceRemote, "no remote driver for run mode %s", mode)
	}

	svc, st := newRemoteService(k, driver, p.Remote.Bindings)
	return svc, st, nil
}

func newRemoteService(k *kernel.Kernel, driver RemoteDriver, bindings map[string]chairtypes.ScriptID) (*RemoteService, *RemoteState) {
	lastCell, lastWriter := state.New("")
	onlineCell, onlineWriter := state.New(true)

	st := &RemoteState{LastButton: lastCell, Online: onlineCell}
	svc := &RemoteService{
		k:          k,
		driver:     driver,
		bindings:   maps.Clone(bindings),
		logger:     logger.NewStyledLogger("Remote"),
		lastButton: lastWriter,
		online:     onlineWriter,
		st:         st,
	}
	return svc, st
}

// Start begins listening for presses. Presses trigger scripts, so listening waits until
// the kernel is initialized.
func (r *RemoteService) Start() error {
	if err := r.driver.Start(r.Press); err != nil {
		r.logger.Warn("Remote receiver unavailable, remote offline", "error", err)
		r.online.Set(false)
	}
	return nil
}

// ID returns the service identifier.
func (r *RemoteService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceRemote
}

// State returns the published state.
func (r *RemoteService) State() *RemoteState {
	return r.st
}

// Press handles a button press by starting the bound script without waiting for it.
// Unbound buttons are logged and ignored.
func (r *RemoteService) Press(button string) {
	r.lastButton.Set(button)

	id, ok := r.bindings[button]
	if !ok {
		r.logger.Warn("Button has no binding", "button", button)
		return
	}

	runner, err := kernel.Lookup(r.k, ScriptKey)
	if err != nil {
		r.logger.Error("Cannot trigger script", "button", button, "script", id, "error", err)
		return
	}

	r.logger.Info("Button pressed", "button", button, "script", id)
	runner.RunAsync(id)
}

// Buttons lists the buttons that have a binding.
func (r *RemoteService) Buttons() []string {
	return slices.Sorted(maps.Keys(r.bindings))
}

// Binding returns the script bound to button.
func (r *RemoteService) Binding(button string) (chairtypes.ScriptID, bool) {
	id, ok := r.bindings[button]
	return id, ok
}

// Terminate stops the driver's worker.
func (r *RemoteService) Terminate() error {
	if !r.st.Online.Get() {
		return nil
	}
	return r.driver.Stop()
}

type simulatedRemoteDriver struct{}

func (simulatedRemoteDriver) Start(func(string)) error { return nil }
func (simulatedRemoteDriver) Stop() error              { return nil }

// gpioRemoteDriver polls sysfs GPIO value files and reports rising edges as presses.
type gpioRemoteDriver struct {
	root     string
	pins     map[string]int
	interval time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}
}

func newGPIORemoteDriver(root string, pins map[string]int, interval time.Duration) *gpioRemoteDriver {
	return &gpioRemoteDriver{
		root:     root,
		pins:     maps.Clone(pins),
		interval: interval,
		logger:   logger.NewStyledLogger("Remote"),
	}
}

func (g *gpioRemoteDriver) Start(press func(string)) error {
	for button, pin := range g.pins {
		if err := g.export(pin); err != nil {
			return fmt.Errorf("button %s: %w", button, err)
		}
	}

	g.mu.Lock()
	g.quit = make(chan struct{})
	g.done = make(chan struct{})
	quit, done := g.quit, g.done
	g.mu.Unlock()

	go g.poll(press, quit, done)
	return nil
}

func (g *gpioRemoteDriver) Stop() error {
	g.mu.Lock()
	quit, done := g.quit, g.done
	g.quit = nil
	g.mu.Unlock()

	if quit == nil {
		return nil
	}
	close(quit)
	<-done
	return nil
}

// export makes pin available as an input.
func (g *gpioRemoteDriver) export(pin int) error {
	dir := g.pinDir(pin)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(g.root, "export"), []byte(strconv.Itoa(pin)), 0o200); err != nil {
			return fmt.Errorf("export gpio %d: %w", pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("in"), 0o644); err != nil {
		return fmt.Errorf("gpio %d direction: %w", pin, err)
	}
	return nil
}

func (g *gpioRemoteDriver) poll(press func(string), quit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	previous := make(map[string]bool, len(g.pins))
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}

		for button, pin := range g.pins {
			high, err := g.read(pin)
			if err != nil {
				g.logger.Debug("GPIO read failed", "button", button, "pin", pin, "error", err)
				continue
			}
			if high && !previous[button] {
				press(button)
			}
			previous[button] = high
		}
	}
}

func (g *gpioRemoteDriver) read(pin int) (bool, error) {
	data, err := os.ReadFile(filepath.Join(g.pinDir(pin), "value"))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

func (g *gpioRemoteDriver) pinDir(pin int) string {
	return filepath.Join(g.root, "gpio"+strconv.Itoa(pin))
}
