package services

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"chairctl/internal/clock"
	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// RelayDriver switches the channels of a relay board. Channels are 1-based.
type RelayDriver interface {
	Init() error
	Set(channel int, on bool) error
	Close() error
}

// RelayState is published by the relay service.
type RelayState struct {
	// Relays maps each configured relay name to whether it is energized.
	Relays *state.Cell[map[string]bool]
	Online *state.Cell[bool]
}

// RelayService drives named relays. A relay switched on with a hold turns itself off
// after the hold elapses unless a later On or Off on the same relay supersedes it.
type RelayService struct {
	k        *kernel.Kernel
	driver   RelayDriver
	channels map[string]int
	clock    clock.Clock
	logger   *log.Logger

	relays *state.Writer[map[string]bool]
	online *state.Writer[bool]
	st     *RelayState

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	gens   map[string]uint64
	timers map[string]*time.Timer
	closed bool
}

// NewRelayService builds the relay service. Dev uses a simulated board; the embedded modes
// drive an I2C board and require a bus address and a non-empty channel map. A board that
// cannot be opened is a configuration error.
func NewRelayService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*RelayService, *RelayState, error) {
	var driver RelayDriver
	switch mode {
	case chairtypes.RunModeDev:
		driver = newSimulatedRelayDriver()
	case chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
		if p.Relay.Address == 0 {
			return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceRelay, "relay.address is required")
		}
		if len(p.Relay.Relays) == 0 {
			return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceRelay, "relay.relays is empty")
		}
		driver = newI2CRelayDriver(p.Relay.Bus, p.Relay.Address, p.Relay.Register)
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceRelay, "no relay driver for run mode %s", mode)
	}

	if err := driver.Init(); err != nil {
		return nil, nil, chairtypes.WrapConfigError(chairtypes.ServiceRelay, fmt.Errorf("relay board init failed: %w", err))
	}

	svc, st := newRelayService(k, driver, p.Relay.Relays, clock.Real())
	return svc, st, nil
}

func newRelayService(k *kernel.Kernel, driver RelayDriver, channels map[string]int, clk clock.Clock) (*RelayService, *RelayState) {
	initial := make(map[string]bool, len(channels))
	for name := range channels {
		initial[name] = false
	}
	relaysCell, relaysWriter := state.New(initial)
	onlineCell, onlineWriter := state.New(true)

	ctx, cancel := context.WithCancel(context.Background())
	st := &RelayState{Relays: relaysCell, Online: onlineCell}
	svc := &RelayService{
		k:        k,
		driver:   driver,
		channels: maps.Clone(channels),
		clock:    clk,
		logger:   logger.NewStyledLogger("Relay"),
		relays:   relaysWriter,
		online:   onlineWriter,
		st:       st,
		ctx:      ctx,
		cancel:   cancel,
		gens:     make(map[string]uint64),
		timers:   make(map[string]*time.Timer),
	}
	return svc, st
}

// ID returns the service identifier.
func (r *RelayService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceRelay
}

// State returns the published state.
func (r *RelayService) State() *RelayState {
	return r.st
}

// On energizes the named relay. A positive hold turns it off again after hold; with wait
// the call blocks until then or until ctx is done, in which case the relay is released
// early and ctx's error returned. Unknown relays are logged and ignored.
func (r *RelayService) On(ctx context.Context, name string, hold time.Duration, wait bool) error {
	channel, ok := r.channels[name]
	if !ok {
		r.logger.Warn("Unknown relay", "relay", name)
		return nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Relay service terminated, ignoring", "relay", name)
		return nil
	}
	r.cancelHoldLocked(name)
	if err := r.switchLocked(name, channel, true); err != nil {
		r.mu.Unlock()
		return err
	}
	if hold <= 0 {
		r.mu.Unlock()
		return nil
	}

	gen := r.gens[name]
	if !wait {
		r.timers[name] = time.AfterFunc(hold, func() { r.expire(name, gen) })
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	holdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	if err := r.clock.Sleep(holdCtx, hold); err != nil {
		if r.ctx.Err() != nil {
			// Terminate switches everything off.
			return nil
		}
		r.expire(name, gen)
		return ctx.Err()
	}
	r.expire(name, gen)
	return nil
}

// Off de-energizes the named relay and cancels any pending hold.
func (r *RelayService) Off(name string) error {
	channel, ok := r.channels[name]
	if !ok {
		r.logger.Warn("Unknown relay", "relay", name)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.cancelHoldLocked(name)
	return r.switchLocked(name, channel, false)
}

// AllOff de-energizes every configured relay.
func (r *RelayService) AllOff() error {
	for _, name := range r.Names() {
		if err := r.Off(name); err != nil {
			return err
		}
	}
	return nil
}

// Names lists the configured relays.
func (r *RelayService) Names() []string {
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Terminate cancels pending holds, switches every relay off and releases the board.
func (r *RelayService) Terminate() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	for name := range r.timers {
		r.cancelHoldLocked(name)
	}
	r.cancel()

	var firstErr error
	for _, name := range r.Names() {
		if err := r.switchLocked(name, r.channels[name], false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.driver.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (r *RelayService) expire(name string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.gens[name] != gen {
		return
	}
	delete(r.timers, name)
	if err := r.switchLocked(name, r.channels[name], false); err != nil {
		r.logger.Error("Failed to release held relay", "relay", name, "error", err)
	}
}

// cancelHoldLocked invalidates any pending hold on name.
func (r *RelayService) cancelHoldLocked(name string) {
	r.gens[name]++
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}

func (r *RelayService) switchLocked(name string, channel int, on bool) error {
	if !r.st.Online.Get() {
		r.logger.Warn("Relay board offline, ignoring", "relay", name, "on", on)
		return nil
	}
	if err := r.driver.Set(channel, on); err != nil {
		r.logger.Error("Relay board failed, going offline", "relay", name, "error", err)
		r.online.Set(false)
		return fmt.Errorf("relay %s: %w", name, err)
	}

	r.relays.Update(func(current map[string]bool) map[string]bool {
		next := maps.Clone(current)
		next[name] = on
		return next
	})
	r.k.Metrics().ObserveRelay(name, on)
	r.logger.Info("Relay switched", "relay", name, "on", on)
	return nil
}

// simulatedRelayDriver keeps channel states in memory.
type simulatedRelayDriver struct {
	mu     sync.Mutex
	states map[int]bool
	logger *log.Logger
}

func newSimulatedRelayDriver() *simulatedRelayDriver {
	return &simulatedRelayDriver{states: make(map[int]bool), logger: logger.NewStyledLogger("Relay")}
}

func (d *simulatedRelayDriver) Init() error {
	d.logger.Debug("Simulated relay board ready")
	return nil
}

func (d *simulatedRelayDriver) Set(channel int, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[channel] = on
	d.logger.Debug("Simulated relay", "channel", channel, "on", on)
	return nil
}

func (d *simulatedRelayDriver) Close() error {
	return nil
}

// relayMask returns mask with the bit for channel set or cleared.
func relayMask(mask byte, channel int, on bool) (byte, error) {
	if channel < 1 || channel > 8 {
		return mask, fmt.Errorf("channel %d out of range 1-8", channel)
	}
	bit := byte(1) << (channel - 1)
	if on {
		return mask | bit, nil
	}
	return mask &^ bit, nil
}
