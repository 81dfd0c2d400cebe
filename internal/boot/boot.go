// Package boot assembles the chair: it loads the profile, constructs every service for the
// active run mode, registers them with a new kernel and initializes it.
package boot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/script"
	"chairctl/internal/services"
	"chairctl/internal/version"
	"chairctl/pkg/chairtypes"
)

// LoadEnv loads .env files from the working directory. Missing files are ignored and
// variables already set in the environment win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// LoadProfile reads the profile at path and checks it can drive this build in mode.
func LoadProfile(path string, mode chairtypes.RunMode) (*profile.Profile, error) {
	p, err := profile.Load(path)
	if err != nil {
		return nil, chairtypes.WrapConfigError("", err)
	}
	if err := CheckProfile(p, mode); err != nil {
		return nil, err
	}
	return p, nil
}

// CheckProfile verifies the profile's version requirement and that it declares mode.
func CheckProfile(p *profile.Profile, mode chairtypes.RunMode) error {
	ok, err := version.Satisfies(p.Requires)
	if err != nil {
		return chairtypes.WrapConfigError("", fmt.Errorf("profile %s: %w", p.Name, err))
	}
	if !ok {
		return chairtypes.NewConfigError("", "profile %s requires chair %s, this is %s", p.Name, p.Requires, version.Version)
	}
	return p.CheckRunMode(mode)
}

// Factory constructs one service and its initial state.
type Factory[S chairtypes.Service, T any] func(*kernel.Kernel, chairtypes.RunMode, *profile.Profile) (S, T, error)

// plan is one service to construct and register.
type plan struct {
	id    chairtypes.ServiceID
	build func(*kernel.Kernel, chairtypes.RunMode, *profile.Profile) (built, error)
}

type built struct {
	service  chairtypes.Service
	register func() error
}

func planFor[S chairtypes.Service, T any](key kernel.Key[S, T], factory Factory[S, T]) plan {
	return plan{
		id: key.ID(),
		build: func(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (built, error) {
			svc, st, err := factory(k, mode, p)
			if err != nil {
				return built{}, err
			}
			return built{
				service:  svc,
				register: func() error { return kernel.Register(k, key, svc, st) },
			}, nil
		},
	}
}

// plans lists every service in registration order.
func plans() []plan {
	return []plan{
		planFor(services.AudioKey, services.NewAudioService),
		planFor(services.MusicKey, services.NewMusicService),
		planFor(services.RelayKey, services.NewRelayService),
		planFor(services.LightingKey, services.NewLightingService),
		planFor(services.LocationKey, services.NewLocationService),
		planFor(services.MapKey, services.NewMapService),
		planFor(services.RemoteKey, services.NewRemoteService),
		planFor(services.DisplayKey, services.NewDisplayService),
		planFor(services.SecurityKey, services.NewSecurityService),
		planFor(services.ScriptKey, func(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (services.ScriptRunner, *services.ScriptState, error) {
			return script.NewService(k, mode, p)
		}),
	}
}

// Boot creates a kernel for mode, constructs and registers every service, initializes the
// kernel, starts the services that need the initialized kernel and applies the profile's
// initial master state. It does not run the boot script. On failure every service
// constructed so far is terminated.
func Boot(ctx context.Context, p *profile.Profile, mode chairtypes.RunMode, opts ...kernel.Option) (*kernel.Kernel, error) {
	bootLog := logger.NewStyledLogger("Boot")

	k := kernel.New(opts...)
	if err := k.SetRunMode(mode); err != nil {
		return nil, err
	}
	k.Message(fmt.Sprintf("Booting %s in %s mode", p.Name, mode))

	steps := plans()
	results := make([]built, len(steps))

	// Factories probe their hardware, so they run concurrently.
	g, gctx := errgroup.WithContext(ctx)
	for i, step := range steps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := step.build(k, mode, p)
			if err != nil {
				return fmt.Errorf("%s: %w", step.id, err)
			}
			results[i] = b
			bootLog.Debug("Service constructed", "service", step.id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		terminateBuilt(bootLog, results)
		return nil, err
	}

	for i, b := range results {
		if err := b.register(); err != nil {
			// Registered services are terminated by the kernel, the rest directly.
			_ = k.Terminate()
			terminateBuilt(bootLog, results[i:])
			return nil, err
		}
	}

	if err := k.Initialize(); err != nil {
		_ = k.Terminate()
		return nil, err
	}

	for _, b := range results {
		starter, ok := b.service.(services.Starter)
		if !ok {
			continue
		}
		if err := starter.Start(); err != nil {
			_ = k.Terminate()
			return nil, fmt.Errorf("starting %s: %w", b.service.ID(), err)
		}
	}

	if err := k.SetMasterState(p.InitialState); err != nil {
		_ = k.Terminate()
		return nil, err
	}

	bootLog.Info("Chair booted", "profile", p.Name, "mode", mode, "hardware", mode.IsEmbedded(), "state", p.InitialState)
	return k, nil
}

// RunBootScript runs the profile's boot script, if it names one.
func RunBootScript(ctx context.Context, k *kernel.Kernel, p *profile.Profile) error {
	if p.BootScript == "" {
		return nil
	}
	runner, err := kernel.Lookup(k, services.ScriptKey)
	if err != nil {
		return err
	}
	return runner.Run(ctx, p.BootScript)
}

func terminateBuilt(l *log.Logger, results []built) {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].service == nil {
			continue
		}
		if err := results[i].service.Terminate(); err != nil {
			l.Warn("Failed to terminate service after boot failure", "service", results[i].service.ID(), "error", err)
		}
	}
}
