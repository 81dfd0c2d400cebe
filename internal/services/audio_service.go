// Package services provides the chair's subsystems. Each service is built by a factory that
// picks a driver for the active run mode, publishes a state object made of state cells,
// and is registered with the kernel under its typed key.
package services

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
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

// simulatedPlaybackDuration is how long simulated players pretend to play.
var simulatedPlaybackDuration = 250 * time.Millisecond

// AudioState is published by the audio service.
type AudioState struct {
	Volume *state.Cell[int]
	// Active counts sound effects currently playing.
	Active *state.Cell[int]
}

// AudioService plays short sound effects on background workers.
type AudioService struct {
	k        *kernel.Kernel
	player   Player
	soundDir string
	logger   *log.Logger
	pick     func(n int) int

	volume *state.Writer[int]
	active *state.Writer[int]
	st     *AudioState

	mu      sync.Mutex
	workers map[*playback]struct{}
	closed  bool
}

// NewAudioService builds the audio service for mode. An external player and a sound
// directory are required unless the profile asks for simulated audio.
func NewAudioService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*AudioService, *AudioState, error) {
	player, err := selectAudioPlayer(mode, p)
	if err != nil {
		return nil, nil, err
	}

	soundDir := p.ResolvePath(p.Audio.SoundDir)
	if !p.Audio.Simulated {
		if soundDir == "" {
			return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceAudio, "audio.sound_dir is required")
		}
		if info, err := os.Stat(soundDir); err != nil || !info.IsDir() {
			return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceAudio, "sound directory %s is not readable", soundDir)
		}
	}

	svc, st := newAudioService(k, player, soundDir, p.Audio.Volume)
	return svc, st, nil
}

func selectAudioPlayer(mode chairtypes.RunMode, p *profile.Profile) (Player, error) {
	switch mode {
	case chairtypes.RunModeDev, chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
		if p.Audio.Simulated {
			return &simulatedPlayer{duration: simulatedPlaybackDuration, logger: logger.NewStyledLogger("Audio")}, nil
		}
		player, err := newProcessPlayer(p.Audio.Player)
		if err != nil {
			return nil, chairtypes.WrapConfigError(chairtypes.ServiceAudio, err)
		}
		return player, nil
	default:
		return nil, chairtypes.NewConfigError(chairtypes.ServiceAudio, "no audio driver for run mode %s", mode)
	}
}

func newAudioService(k *kernel.Kernel, player Player, soundDir string, volume int) (*AudioService, *AudioState) {
	volumeCell, volumeWriter := state.New(volume)
	activeCell, activeWriter := state.New(0)

	st := &AudioState{Volume: volumeCell, Active: activeCell}
	svc := &AudioService{
		k:        k,
		player:   player,
		soundDir: soundDir,
		logger:   logger.NewStyledLogger("Audio"),
		pick:     rand.IntN,
		volume:   volumeWriter,
		active:   activeWriter,
		st:       st,
		workers:  make(map[*playback]struct{}),
	}
	return svc, st
}

// ID returns the service identifier.
func (a *AudioService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceAudio
}

// State returns the published state.
func (a *AudioService) State() *AudioState {
	return a.st
}

// PlayEffect plays the named effect on a background worker. With wait it blocks until
// playback ends or ctx is done. An unknown effect is logged and ignored.
func (a *AudioService) PlayEffect(ctx context.Context, effect string, wait bool) error {
	file, ok := a.resolve(effect)
	if !ok {
		a.logger.Warn("Sound effect not found", "effect", effect, "dir", a.soundDir)
		return nil
	}

	pb := a.start(effect, file)
	if pb != nil && wait {
		return pb.waitContext(ctx)
	}
	return nil
}

// PlayRandomEffect plays one effect chosen uniformly from effects.
// An empty list is logged and ignored.
func (a *AudioService) PlayRandomEffect(ctx context.Context, effects []string, wait bool) error {
	if len(effects) == 0 {
		a.logger.Warn("No sound effects to choose from")
		return nil
	}
	return a.PlayEffect(ctx, effects[a.pick(len(effects))], wait)
}

// SetVolume sets the effect volume, clamped to 0-100.
func (a *AudioService) SetVolume(volume int) {
	a.volume.Set(clampVolume(volume))
}

// Effects lists the effects available in the sound directory.
func (a *AudioService) Effects() ([]string, error) {
	if a.soundDir == "" {
		return nil, nil
	}
	files, err := listAudioFiles(a.soundDir)
	if err != nil {
		return nil, err
	}
	for i, f := range files {
		files[i] = strings.TrimSuffix(f, filepath.Ext(f))
	}
	return files, nil
}

// Terminate stops every playing effect and waits for the workers to exit.
func (a *AudioService) Terminate() error {
	a.mu.Lock()
	a.closed = true
	workers := make([]*playback, 0, len(a.workers))
	for pb := range a.workers {
		workers = append(workers, pb)
	}
	a.mu.Unlock()

	for _, pb := range workers {
		if err := pb.stop(); err != nil {
			a.logger.Warn("Failed to stop sound effect", "file", pb.file, "error", err)
		}
	}
	for _, pb := range workers {
		pb.wait()
	}
	return nil
}

func (a *AudioService) resolve(effect string) (string, bool) {
	if effect == "" {
		return "", false
	}
	if a.soundDir == "" {
		// Simulated audio without a sound directory accepts every effect name.
		return effect, true
	}
	return resolveAudioFile(a.soundDir, effect)
}

func (a *AudioService) start(effect, file string) *playback {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.logger.Warn("Audio terminated, ignoring effect", "effect", effect)
		return nil
	}

	a.active.Update(func(n int) int { return n + 1 })
	a.k.Metrics().PlaybackStarted("audio")
	a.logger.Debug("Playing sound effect", "effect", effect, "file", file)

	pb := launchPlayback(a.player, file, a.volume.Cell().Get(), a.finished)
	a.workers[pb] = struct{}{}
	return pb
}

func (a *AudioService) finished(pb *playback) {
	a.mu.Lock()
	delete(a.workers, pb)
	a.mu.Unlock()

	a.active.Update(func(n int) int { return n - 1 })
	a.k.Metrics().PlaybackFinished("audio")

	if stopped, err := pb.result(); err != nil && !stopped {
		a.logger.Warn("Sound effect playback failed", "file", pb.file, "error", err)
	}
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
