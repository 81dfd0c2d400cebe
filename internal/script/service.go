package script

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/services"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// ErrUnknownScript is returned when a script identifier has no definition.
var ErrUnknownScript = errors.New("unknown script")

// ErrTerminated is returned for runs requested after the service terminated.
var ErrTerminated = errors.New("script service terminated")

// Service is the script service. It is registered under services.ScriptKey so other
// services can trigger scripts through the services.ScriptRunner contract.
type Service struct {
	k       *kernel.Kernel
	scripts Set
	runner  *Runner
	logger  *log.Logger

	running *state.Writer[[]chairtypes.ScriptID]
	lastErr *state.Writer[string]
	st      *services.ScriptState

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

var _ services.ScriptRunner = (*Service)(nil)

// NewService loads the default scripts plus the profile's overrides.
func NewService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*Service, *services.ScriptState, error) {
	switch mode {
	case chairtypes.RunModeDev, chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceScript, "no script runtime for run mode %s", mode)
	}

	scripts, err := Load(p.ResolvePath(p.ScriptsDir))
	if err != nil {
		return nil, nil, chairtypes.WrapConfigError(chairtypes.ServiceScript, err)
	}

	svc, st := NewServiceWithScripts(k, scripts, NewRuntime(k, p.System.PowerOffCommand))
	return svc, st, nil
}

// NewServiceWithScripts creates a script service over an explicit script set and runtime.
func NewServiceWithScripts(k *kernel.Kernel, scripts Set, rt *Runtime) (*Service, *services.ScriptState) {
	runningCell, runningWriter := state.New[[]chairtypes.ScriptID](nil)
	lastErrCell, lastErrWriter := state.New("")

	ctx, cancel := context.WithCancel(context.Background())
	st := &services.ScriptState{Running: runningCell, LastError: lastErrCell}
	svc := &Service{
		k:       k,
		scripts: scripts,
		runner:  NewRunner(rt),
		logger:  logger.NewStyledLogger("Script"),
		running: runningWriter,
		lastErr: lastErrWriter,
		st:      st,
		ctx:     ctx,
		cancel:  cancel,
	}
	return svc, st
}

// ID returns the service identifier.
func (s *Service) ID() chairtypes.ServiceID {
	return chairtypes.ServiceScript
}

// State returns the published state.
func (s *Service) State() *services.ScriptState {
	return s.st
}

// Scripts lists the loaded script identifiers.
func (s *Service) Scripts() []chairtypes.ScriptID {
	return s.scripts.IDs()
}

// Script returns the definition of id.
func (s *Service) Script(id chairtypes.ScriptID) (*Script, bool) {
	script, ok := s.scripts[id]
	return script, ok
}

// Run runs script id and returns when it finishes. The run also stops when the service
// terminates.
func (s *Service) Run(ctx context.Context, id chairtypes.ScriptID) error {
	script, ok := s.scripts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScript, id)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.track(id, true)
	defer s.track(id, false)

	if err := s.runner.Run(ctx, script); err != nil {
		s.lastErr.Set(err.Error())
		return err
	}
	return nil
}

// RunAsync starts script id on its own goroutine. Failures are logged and recorded in
// LastError; nothing propagates to the caller.
func (s *Service) RunAsync(id chairtypes.ScriptID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn("Script service terminated, not starting script", "script", id)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Run(s.ctx, id); err != nil {
			s.logger.Error("Script failed", "script", id, "error", err)
		}
	}()
}

// Terminate cancels in-flight runs and waits for asynchronous ones to return.
func (s *Service) Terminate() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Service) track(id chairtypes.ScriptID, running bool) {
	s.running.Update(func(current []chairtypes.ScriptID) []chairtypes.ScriptID {
		next := slices.Clone(current)
		if running {
			return append(next, id)
		}
		if i := slices.Index(next, id); i >= 0 {
			next = slices.Delete(next, i, i+1)
		}
		return next
	})
}
