package services

import (
	"crypto/subtle"
	"sync"

	"github.com/charmbracelet/log"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// SecurityState is published by the security service.
type SecurityState struct {
	Locked         *state.Cell[bool]
	FailedAttempts *state.Cell[int]
}

// SecurityService guards the chair with a pin lock. Too many wrong pins trigger the
// intruder script.
type SecurityService struct {
	k           *kernel.Kernel
	pin         string
	maxAttempts int
	logger      *log.Logger

	locked   *state.Writer[bool]
	attempts *state.Writer[int]
	st       *SecurityState

	mu        sync.Mutex
	stopWatch func()
}

// NewSecurityService builds the security service. A pin is required in every run mode.
func NewSecurityService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*SecurityService, *SecurityState, error) {
	switch mode {
	case chairtypes.RunModeDev, chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceSecurity, "no security policy for run mode %s", mode)
	}
	if p.Security.Pin == "" {
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceSecurity, "security.pin is required")
	}

	svc, st := newSecurityService(k, p.Security.Pin, p.Security.MaxAttempts)
	return svc, st, nil
}

func newSecurityService(k *kernel.Kernel, pin string, maxAttempts int) (*SecurityService, *SecurityState) {
	lockedCell, lockedWriter := state.New(false)
	attemptsCell, attemptsWriter := state.New(0)

	st := &SecurityState{Locked: lockedCell, FailedAttempts: attemptsCell}
	svc := &SecurityService{
		k:           k,
		pin:         pin,
		maxAttempts: maxAttempts,
		logger:      logger.NewStyledLogger("Security"),
		locked:      lockedWriter,
		attempts:    attemptsWriter,
		st:          st,
	}
	return svc, st
}

// Start keeps Locked in step with master state changes made by scripts.
func (s *SecurityService) Start() error {
	st, err := s.k.State()
	if err != nil {
		return err
	}

	stop := st.Master.Watch(func(master chairtypes.MasterState) {
		switch master {
		case chairtypes.MasterLocked:
			s.locked.Set(true)
		case chairtypes.MasterRunning, chairtypes.MasterChapMode:
			s.locked.Set(false)
		}
	})

	s.mu.Lock()
	s.stopWatch = stop
	s.mu.Unlock()
	return nil
}

// ID returns the service identifier.
func (s *SecurityService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceSecurity
}

// State returns the published state.
func (s *SecurityService) State() *SecurityState {
	return s.st
}

// Lock locks the chair.
func (s *SecurityService) Lock() error {
	s.locked.Set(true)
	if err := s.k.SetMasterState(chairtypes.MasterLocked); err != nil {
		return err
	}
	s.logger.Info("Chair locked")
	return nil
}

// Unlock unlocks the chair if pin matches and reports whether it did. Reaching the
// maximum number of consecutive failures starts the intruder script and resets the count.
func (s *SecurityService) Unlock(pin string) (bool, error) {
	if subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) == 1 {
		s.attempts.Set(0)
		s.locked.Set(false)
		if err := s.k.SetMasterState(chairtypes.MasterRunning); err != nil {
			return false, err
		}
		s.logger.Info("Chair unlocked")
		return true, nil
	}

	failed := s.attempts.Update(func(n int) int { return n + 1 })
	s.logger.Warn("Wrong pin", "attempts", failed, "max", s.maxAttempts)
	if failed < s.maxAttempts {
		return false, nil
	}

	s.attempts.Set(0)
	runner, err := kernel.Lookup(s.k, ScriptKey)
	if err != nil {
		return false, err
	}
	s.logger.Warn("Too many wrong pins, starting intruder script", "script", chairtypes.ScriptIntruder)
	runner.RunAsync(chairtypes.ScriptIntruder)
	return false, nil
}

// Terminate stops following the master state.
func (s *SecurityService) Terminate() error {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}
