// Package kernel holds the chair's run mode, service registry and aggregate state tree.
//
// The kernel enforces a two-phase lifecycle: services are registered while the kernel is
// configuring, then Initialize checks that every service identifier has a registration and
// flips the master state to started. Lookups are only possible after initialization. One
// Kernel is constructed at boot and passed explicitly to every service and to the script
// runner; there is no package-level instance.
package kernel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"chairctl/internal/logger"
	"chairctl/internal/metrics"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

var (
	ErrAlreadyInitialized = errors.New("kernel already initialized")
	ErrNotInitialized     = errors.New("kernel not initialized")
	ErrRunModeConflict    = errors.New("run mode already set to a different value")
	ErrRunModeUnset       = errors.New("run mode not set")
	ErrDuplicateService   = errors.New("service already registered")
	ErrMissingService     = errors.New("service not registered")
	ErrServiceType        = errors.New("registered service has a different type")
	ErrInvalidTransition  = errors.New("master state is kernel-driven")
)

// entry pairs a registered service with the state object it published.
type entry struct {
	service chairtypes.Service
	state   any
}

// Kernel is the registry and lifecycle gate shared by all chair subsystems.
type Kernel struct {
	mu          sync.RWMutex
	runMode     chairtypes.RunMode
	runModeSet  bool
	initialized bool
	entries     map[chairtypes.ServiceID]entry
	order       []chairtypes.ServiceID

	state   *ChairState
	master  *state.Writer[chairtypes.MasterState]
	message *state.Writer[string]
	bar     *state.Writer[chairtypes.BarState]

	metrics *metrics.Metrics
	logger  *log.Logger

	shutdownOnce  sync.Once
	done          chan struct{}
	terminateOnce sync.Once
	terminateErr  error
}

// Option configures a Kernel at construction.
type Option func(*Kernel)

// WithMetrics makes the kernel and its services report to m instead of the default collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Kernel) {
		k.metrics = m
	}
}

// New creates a kernel in the booting state.
func New(opts ...Option) *Kernel {
	master, masterWriter := state.New(chairtypes.MasterBooting)
	message, messageWriter := state.New("")
	bar, barWriter := state.New(chairtypes.BarLowered)

	k := &Kernel{
		entries: make(map[chairtypes.ServiceID]entry),
		state: &ChairState{
			Master:   master,
			Message:  message,
			Bar:      bar,
			services: make(map[chairtypes.ServiceID]any),
		},
		master:  masterWriter,
		message: messageWriter,
		bar:     barWriter,
		logger:  logger.NewStyledLogger("Kernel"),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(k)
	}
	if k.metrics == nil {
		k.metrics = metrics.Default()
	}

	return k
}

// SetRunMode records the run mode. Setting the same mode twice is allowed; a different
// mode, or any call after Initialize, fails.
func (k *Kernel) SetRunMode(mode chairtypes.RunMode) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.initialized {
		return ErrAlreadyInitialized
	}
	if k.runModeSet {
		if k.runMode != mode {
			return fmt.Errorf("%w: %s, requested %s", ErrRunModeConflict, k.runMode, mode)
		}
		return nil
	}

	k.runMode = mode
	k.runModeSet = true
	k.logger.Debug("Run mode set", "mode", mode, "platform", mode.Platform())
	return nil
}

// RunMode returns the run mode, failing if it was never set.
func (k *Kernel) RunMode() (chairtypes.RunMode, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.runModeSet {
		return "", ErrRunModeUnset
	}
	return k.runMode, nil
}

// register inserts a service and its state under one lock so that the registry and
// the state tree never disagree about which identifiers exist.
func (k *Kernel) register(svc chairtypes.Service, st any) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.initialized {
		return ErrAlreadyInitialized
	}

	id := svc.ID()
	if _, exists := k.entries[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, id)
	}

	k.entries[id] = entry{service: svc, state: st}
	k.state.services[id] = st
	k.order = append(k.order, id)

	k.logger.Debug("Service registered", "service", id)
	return nil
}

// Initialize validates that every service identifier is registered and flips the master
// state to started. It can succeed only once.
func (k *Kernel) Initialize() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.initialized {
		return ErrAlreadyInitialized
	}
	if !k.runModeSet {
		return ErrRunModeUnset
	}

	var missing []chairtypes.ServiceID
	for _, id := range chairtypes.AllServiceIDs() {
		if _, ok := k.entries[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingService, missing)
	}

	k.initialized = true
	k.master.Set(chairtypes.MasterStarted)
	k.metrics.SetMasterState(string(chairtypes.MasterStarted), masterStateNames())
	k.logger.Info("Kernel initialized", "mode", k.runMode, "services", len(k.entries))
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (k *Kernel) Initialized() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.initialized
}

// State returns the aggregate state tree.
func (k *Kernel) State() (*ChairState, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.initialized {
		return nil, ErrNotInitialized
	}
	return k.state, nil
}

// Message publishes a human-readable status message. Subscribers are notified without
// blocking the caller. Messages may be published during boot, before Initialize.
func (k *Kernel) Message(text string) {
	k.message.Set(text)
	k.logger.Info("Message", "message", text)
}

// SetMasterState transitions the master state. Booting and started are reserved for
// the kernel; every other state is reachable from any post-start state.
func (k *Kernel) SetMasterState(next chairtypes.MasterState) error {
	if !k.Initialized() {
		return ErrNotInitialized
	}
	if next == chairtypes.MasterBooting || next == chairtypes.MasterStarted {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, next)
	}

	previous := k.master.Cell().Get()
	k.master.Set(next)
	k.metrics.SetMasterState(string(next), masterStateNames())
	k.logger.Info("Master state changed", "from", previous, "state", next)
	return nil
}

// SetBarState records the bar position.
func (k *Kernel) SetBarState(next chairtypes.BarState) error {
	if !k.Initialized() {
		return ErrNotInitialized
	}
	k.bar.Set(next)
	k.logger.Debug("Bar state changed", "state", next)
	return nil
}

// Metrics returns the collectors services report to.
func (k *Kernel) Metrics() *metrics.Metrics {
	return k.metrics
}

// RequestShutdown asks the process owning the kernel to terminate. It is safe to call
// more than once.
func (k *Kernel) RequestShutdown() {
	k.shutdownOnce.Do(func() {
		k.logger.Info("Shutdown requested")
		close(k.done)
	})
}

// Done is closed once shutdown has been requested.
func (k *Kernel) Done() <-chan struct{} {
	return k.done
}

// Terminate terminates every registered service in reverse registration order.
// All services are terminated even if some fail; the failures are joined.
func (k *Kernel) Terminate() error {
	k.terminateOnce.Do(func() {
		k.mu.RLock()
		order := make([]chairtypes.ServiceID, len(k.order))
		copy(order, k.order)
		entries := make(map[chairtypes.ServiceID]entry, len(k.entries))
		for id, e := range k.entries {
			entries[id] = e
		}
		k.mu.RUnlock()

		var errs []error
		for i := len(order) - 1; i >= 0; i-- {
			id := order[i]
			if err := entries[id].service.Terminate(); err != nil {
				k.logger.Error("Service failed to terminate", "service", id, "error", err)
				errs = append(errs, fmt.Errorf("terminate %s: %w", id, err))
				continue
			}
			k.logger.Debug("Service terminated", "service", id)
		}
		k.terminateErr = errors.Join(errs...)
	})
	return k.terminateErr
}

func masterStateNames() []string {
	return []string{
		string(chairtypes.MasterBooting),
		string(chairtypes.MasterStarted),
		string(chairtypes.MasterRunning),
		string(chairtypes.MasterLocked),
		string(chairtypes.MasterChapMode),
		string(chairtypes.MasterShuttingDown),
	}
}
