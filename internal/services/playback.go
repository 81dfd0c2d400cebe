package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Process is one running external playback.
type Process interface {
	// Wait blocks until playback ends and returns its exit error, if any.
	Wait() error
	// Kill terminates playback.
	Kill() error
}

// Player starts playback of an audio file.
type Player interface {
	Start(file string, volume int) (Process, error)
}

// audioExtensions are the file types looked up when an effect or track is named without one.
var audioExtensions = []string{".wav", ".mp3", ".ogg", ".flac"}

// processPlayer plays files through an external command such as aplay or mpg123.
// Arguments may contain {file} and {volume} placeholders; without {file} the path is appended.
type processPlayer struct {
	command []string
}

func newProcessPlayer(command []string) (*processPlayer, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("no player command configured")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("player %s not found: %w", command[0], err)
	}
	return &processPlayer{command: command}, nil
}

func (p *processPlayer) Start(file string, volume int) (Process, error) {
	args := make([]string, 0, len(p.command))
	hasFile := false
	for _, arg := range p.command[1:] {
		if strings.Contains(arg, "{file}") {
			hasFile = true
		}
		arg = strings.ReplaceAll(arg, "{file}", file)
		arg = strings.ReplaceAll(arg, "{volume}", strconv.Itoa(volume))
		args = append(args, arg)
	}
	if !hasFile {
		args = append(args, file)
	}

	cmd := exec.Command(p.command[0], args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", p.command[0], err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (e *execProcess) Wait() error {
	return e.cmd.Wait()
}

func (e *execProcess) Kill() error {
	if e.cmd.Process == nil {
		return nil
	}
	err := e.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// simulatedPlayer pretends to play for a fixed duration.
type simulatedPlayer struct {
	duration time.Duration
	logger   *log.Logger
}

func (s *simulatedPlayer) Start(file string, volume int) (Process, error) {
	s.logger.Debug("Simulated playback", "file", file, "volume", volume, "duration", s.duration)
	return newSimulatedProcess(s.duration), nil
}

type simulatedProcess struct {
	timer  *time.Timer
	killed chan struct{}
	done   chan struct{}
	once   sync.Once
}

var errKilled = errors.New("playback killed")

func newSimulatedProcess(d time.Duration) *simulatedProcess {
	p := &simulatedProcess{
		killed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.timer = time.AfterFunc(d, func() {
		p.once.Do(func() { close(p.done) })
	})
	return p
}

func (p *simulatedProcess) Wait() error {
	select {
	case <-p.done:
		return nil
	case <-p.killed:
		return errKilled
	}
}

func (p *simulatedProcess) Kill() error {
	p.once.Do(func() {
		p.timer.Stop()
		close(p.killed)
	})
	return nil
}

// playback is one background playback worker.
type playback struct {
	file string
	done chan struct{}

	mu      sync.Mutex
	proc    Process
	stopped bool
	err     error
}

// launchPlayback starts a worker that runs file through player. onExit runs on the
// worker after the process ends, whether it exited cleanly, failed or panicked, and
// before waiters are released.
func launchPlayback(player Player, file string, volume int, onExit func(*playback)) *playback {
	pb := &playback{file: file, done: make(chan struct{})}

	go func() {
		defer close(pb.done)
		defer onExit(pb)
		defer func() {
			if r := recover(); r != nil {
				pb.setErr(fmt.Errorf("playback panicked: %v", r))
			}
		}()

		proc, err := player.Start(file, volume)
		if err != nil {
			pb.setErr(err)
			return
		}

		pb.mu.Lock()
		pb.proc = proc
		stopped := pb.stopped
		pb.mu.Unlock()
		if stopped {
			_ = proc.Kill()
		}

		pb.setErr(proc.Wait())
	}()

	return pb
}

// stop kills the process, or arranges for it to be killed as soon as it starts.
func (pb *playback) stop() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.stopped = true
	if pb.proc == nil {
		return nil
	}
	return pb.proc.Kill()
}

func (pb *playback) wait() {
	<-pb.done
}

// waitContext waits for the worker to exit or ctx to be done. The worker keeps running
// when ctx ends first.
func (pb *playback) waitContext(ctx context.Context) error {
	select {
	case <-pb.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (pb *playback) setErr(err error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.err = err
}

// result reports whether the worker was stopped on request and the error it ended with.
func (pb *playback) result() (bool, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.stopped, pb.err
}

// resolveAudioFile finds name inside dir, trying known extensions when name has none.
func resolveAudioFile(dir, name string) (string, bool) {
	if name == "" || strings.Contains(name, "..") {
		return "", false
	}

	candidate := filepath.Join(dir, name)
	if filepath.Ext(name) != "" {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		return "", false
	}

	for _, ext := range audioExtensions {
		if info, err := os.Stat(candidate + ext); err == nil && !info.IsDir() {
			return candidate + ext, true
		}
	}
	return "", false
}

// listAudioFiles returns the audio files in dir, sorted, without their directory.
func listAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, known := range audioExtensions {
			if ext == known {
				files = append(files, e.Name())
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
