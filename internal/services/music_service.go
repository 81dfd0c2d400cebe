package services

import (
	"context"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// MusicState is published by the music service.
type MusicState struct {
	// Playing is true while a track worker is recorded as active.
	Playing *state.Cell[bool]
	// Track is the most recently started track, empty when nothing plays.
	Track  *state.Cell[string]
	Volume *state.Cell[int]
	Online *state.Cell[bool]
}

// MusicService plays one track at a time from the music directory.
//
// Starting a track while another plays is allowed but logged; the newest worker becomes
// the current one. Only the current worker clears the playing flag when it exits, so the
// flag always refers to the most recently started track.
type MusicService struct {
	k      *kernel.Kernel
	player Player
	dir    string
	logger *log.Logger

	playing *state.Writer[bool]
	track   *state.Writer[string]
	volume  *state.Writer[int]
	online  *state.Writer[bool]
	st      *MusicState

	// mu guards current, workers and the playing/track transitions.
	mu      sync.Mutex
	current *playback
	workers map[*playback]struct{}
	closed  bool
}

// NewMusicService builds the music service for mode. A missing music directory leaves
// the service offline rather than failing boot.
func NewMusicService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*MusicService, *MusicState, error) {
	var player Player
	switch mode {
	case chairtypes.RunModeDev, chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
		if p.Music.Simulated {
			player = &simulatedPlayer{duration: simulatedPlaybackDuration, logger: logger.NewStyledLogger("Music")}
			break
		}
		pp, err := newProcessPlayer(p.Music.Player)
		if err != nil {
			return nil, nil, chairtypes.WrapConfigError(chairtypes.ServiceMusic, err)
		}
		player = pp
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceMusic, "no music driver for run mode %s", mode)
	}

	svc, st := newMusicService(k, player, p.ResolvePath(p.Music.Directory), p.Music.Volume)

	if !p.Music.Simulated {
		if info, err := os.Stat(svc.dir); err != nil || !info.IsDir() {
			svc.logger.Warn("Music directory unavailable, music offline", "dir", svc.dir)
			svc.online.Set(false)
		}
	}

	return svc, st, nil
}

func newMusicService(k *kernel.Kernel, player Player, dir string, volume int) (*MusicService, *MusicState) {
	playingCell, playingWriter := state.New(false)
	trackCell, trackWriter := state.New("")
	volumeCell, volumeWriter := state.New(volume)
	onlineCell, onlineWriter := state.New(true)

	st := &MusicState{Playing: playingCell, Track: trackCell, Volume: volumeCell, Online: onlineCell}
	svc := &MusicService{
		k:       k,
		player:  player,
		dir:     dir,
		logger:  logger.NewStyledLogger("Music"),
		playing: playingWriter,
		track:   trackWriter,
		volume:  volumeWriter,
		online:  onlineWriter,
		st:      st,
		workers: make(map[*playback]struct{}),
	}
	return svc, st
}

// ID returns the service identifier.
func (m *MusicService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceMusic
}

// State returns the published state.
func (m *MusicService) State() *MusicState {
	return m.st
}

// Play starts track on a background worker. With wait it blocks until that worker exits
// or ctx is done. Starting a track while another is playing logs a warning and starts it
// anyway. Unknown tracks are logged and ignored.
func (m *MusicService) Play(ctx context.Context, track string, wait bool) error {
	if !m.st.Online.Get() {
		m.logger.Warn("Music offline, ignoring track", "track", track)
		return nil
	}

	file, ok := m.resolve(track)
	if !ok {
		m.logger.Warn("Track not found", "track", track, "dir", m.dir)
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Warn("Music terminated, ignoring track", "track", track)
		return nil
	}
	if m.current != nil {
		m.logger.Warn("Track already playing, starting another", "playing", m.st.Track.Get(), "track", track)
	}
	m.k.Metrics().PlaybackStarted("music")
	pb := launchPlayback(m.player, file, m.volume.Cell().Get(), m.finished)
	m.current = pb
	m.workers[pb] = struct{}{}
	m.playing.Set(true)
	m.track.Set(track)
	m.mu.Unlock()

	m.logger.Info("Playing track", "track", track)

	if wait {
		return pb.waitContext(ctx)
	}
	return nil
}

// Stop kills the current track's process. It does nothing when no worker is recorded.
// The worker clears the playing flag itself once its process has exited.
func (m *MusicService) Stop() {
	m.mu.Lock()
	pb := m.current
	m.mu.Unlock()

	if pb == nil {
		m.logger.Debug("Stop requested with nothing playing")
		return
	}
	if err := pb.stop(); err != nil {
		m.logger.Warn("Failed to stop track", "file", pb.file, "error", err)
	}
}

// SetVolume sets the music volume for subsequently started tracks, clamped to 0-100.
func (m *MusicService) SetVolume(volume int) {
	m.volume.Set(clampVolume(volume))
}

// Tracks lists the tracks in the music directory.
func (m *MusicService) Tracks() ([]string, error) {
	if m.dir == "" {
		return nil, nil
	}
	return listAudioFiles(m.dir)
}

// Terminate stops every track still playing, superseded ones included, and waits for
// their workers.
func (m *MusicService) Terminate() error {
	m.mu.Lock()
	m.closed = true
	workers := make([]*playback, 0, len(m.workers))
	for pb := range m.workers {
		workers = append(workers, pb)
	}
	m.mu.Unlock()

	for _, pb := range workers {
		if err := pb.stop(); err != nil {
			m.logger.Warn("Failed to stop track", "file", pb.file, "error", err)
		}
	}
	for _, pb := range workers {
		pb.wait()
	}
	return nil
}

func (m *MusicService) resolve(track string) (string, bool) {
	if track == "" {
		return "", false
	}
	if m.dir == "" {
		return track, true
	}
	return resolveAudioFile(m.dir, track)
}

// finished runs on the worker when its process exits for any reason.
func (m *MusicService) finished(pb *playback) {
	m.mu.Lock()
	delete(m.workers, pb)
	if m.current == pb {
		m.current = nil
		m.playing.Set(false)
		m.track.Set("")
	}
	m.mu.Unlock()

	m.k.Metrics().PlaybackFinished("music")

	if stopped, err := pb.result(); err != nil && !stopped {
		m.logger.Warn("Track playback failed", "file", pb.file, "error", err)
	}
}
