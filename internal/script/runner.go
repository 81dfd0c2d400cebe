package script

import (
	"context"
	"fmt"
	"time"
)

// Runner executes scripts one command at a time.
type Runner struct {
	rt *Runtime
}

// NewRunner creates a runner. Unset Runtime fields get their defaults.
func NewRunner(rt *Runtime) *Runner {
	return &Runner{rt: rt.withDefaults()}
}

// Run performs each command of s in order, waiting for its post-pause before the next one.
// The first failing command aborts the run and its error is returned; a panicking command
// is reported as an error too. ctx is checked between commands and interrupts pauses.
func (r *Runner) Run(ctx context.Context, s *Script) (err error) {
	runID := r.rt.NewRunID()
	rt := *r.rt
	rt.Logger = r.rt.Logger.With("script", s.ID, "run", runID)

	started := time.Now()
	rt.Logger.Info("Script started", "commands", len(s.Commands))

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			rt.Logger.Error("Script aborted", "error", err, "elapsed", time.Since(started))
		} else {
			rt.Logger.Info("Script finished", "elapsed", time.Since(started))
		}
		rt.Kernel.Metrics().ObserveScriptRun(string(s.ID), result)
	}()

	for i, cmd := range s.Commands {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("script %s cancelled before command %d: %w", s.ID, i+1, err)
		}

		rt.Logger.Debug("Command", "command", describe(cmd), "index", i+1)
		begin := time.Now()
		if err := perform(ctx, &rt, cmd); err != nil {
			return fmt.Errorf("script %s command %d (%s): %w", s.ID, i+1, cmd.Type(), err)
		}
		rt.Kernel.Metrics().ObserveCommand(cmd.Type(), time.Since(begin))

		if err := rt.Clock.Sleep(ctx, cmd.PostPause()); err != nil {
			return fmt.Errorf("script %s cancelled after command %d: %w", s.ID, i+1, err)
		}
	}
	return nil
}

// perform runs one command, converting a panic into an error.
func perform(ctx context.Context, rt *Runtime, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cmd.Perform(ctx, rt)
}
