// Package script runs the chair's declarative scripts: named, ordered lists of commands
// that each invoke one service operation and are followed by an optional pause.
package script

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os/exec"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"chairctl/internal/clock"
	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/pkg/chairtypes"
)

// Runtime is everything a command needs to perform.
type Runtime struct {
	Kernel *kernel.Kernel
	Clock  clock.Clock
	// Float64 returns a uniform value in [0, 1) for message jitter. It must be safe for
	// concurrent use when scripts run concurrently.
	Float64 func() float64
	Logger  *log.Logger

	// PowerOffCommand runs when a shutdown command asks to power off the host.
	PowerOffCommand []string
	// Exec runs a host command.
	Exec func(ctx context.Context, argv []string) error
	// NewRunID names each script run in logs.
	NewRunID func() string
}

// NewRuntime creates a Runtime with a real clock, the shared random source and os/exec.
func NewRuntime(k *kernel.Kernel, powerOff []string) *Runtime {
	return &Runtime{
		Kernel:          k,
		Clock:           clock.Real(),
		Float64:         rand.Float64,
		Logger:          logger.NewStyledLogger("Script"),
		PowerOffCommand: powerOff,
		Exec:            execCommand,
		NewRunID:        uuid.NewString,
	}
}

func (rt *Runtime) withDefaults() *Runtime {
	out := *rt
	if out.Clock == nil {
		out.Clock = clock.Real()
	}
	if out.Float64 == nil {
		out.Float64 = rand.Float64
	}
	if out.Logger == nil {
		out.Logger = logger.NewStyledLogger("Script")
	}
	if out.Exec == nil {
		out.Exec = execCommand
	}
	if out.NewRunID == nil {
		out.NewRunID = uuid.NewString
	}
	return &out
}

// lookup resolves a service for a command.
func lookup[S chairtypes.Service, T any](rt *Runtime, key kernel.Key[S, T]) (S, error) {
	svc, err := kernel.Lookup(rt.Kernel, key)
	if err != nil {
		return svc, fmt.Errorf("%s service: %w", key.ID(), err)
	}
	return svc, nil
}

func execCommand(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, out)
	}
	return nil
}
