package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/metrics"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLogs redirects logging for loggers created after the call.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	logger.SetOutput(buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return buf
}

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k := kernel.New(kernel.WithMetrics(metrics.MustNewMetrics(prometheus.NewRegistry())))
	require.NoError(t, k.SetRunMode(chairtypes.RunModeDev))
	return k
}

// stubService fills registry slots a test does not exercise.
type stubService struct {
	id chairtypes.ServiceID
}

func (s *stubService) ID() chairtypes.ServiceID { return s.id }
func (s *stubService) Terminate() error         { return nil }

// initializeKernel registers stubs for every identifier still free and initializes k.
func initializeKernel(t *testing.T, k *kernel.Kernel) {
	t.Helper()
	for _, id := range chairtypes.AllServiceIDs() {
		key := kernel.NewKey[*stubService, struct{}](id)
		err := kernel.Register(k, key, &stubService{id: id}, struct{}{})
		if err != nil && !errors.Is(err, kernel.ErrDuplicateService) {
			require.NoError(t, err)
		}
	}
	require.NoError(t, k.Initialize())
}

// fakeScriptRunner records the scripts other services trigger.
type fakeScriptRunner struct {
	mu    sync.Mutex
	runs  []chairtypes.ScriptID
	async chan chairtypes.ScriptID
}

func newFakeScriptRunner() *fakeScriptRunner {
	return &fakeScriptRunner{async: make(chan chairtypes.ScriptID, 16)}
}

func (f *fakeScriptRunner) ID() chairtypes.ServiceID { return chairtypes.ServiceScript }
func (f *fakeScriptRunner) Terminate() error         { return nil }

func (f *fakeScriptRunner) Run(_ context.Context, id chairtypes.ScriptID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, id)
	return nil
}

func (f *fakeScriptRunner) RunAsync(id chairtypes.ScriptID) {
	f.mu.Lock()
	f.runs = append(f.runs, id)
	f.mu.Unlock()
	f.async <- id
}

func (f *fakeScriptRunner) Runs() []chairtypes.ScriptID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chairtypes.ScriptID(nil), f.runs...)
}

func (f *fakeScriptRunner) nextAsync(t *testing.T) chairtypes.ScriptID {
	t.Helper()
	select {
	case id := <-f.async:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("no script triggered")
		return ""
	}
}

func registerScriptRunner(t *testing.T, k *kernel.Kernel, runner *fakeScriptRunner) {
	t.Helper()
	running, _ := state.New[[]chairtypes.ScriptID](nil)
	lastErr, _ := state.New("")
	require.NoError(t, kernel.Register[ScriptRunner](k, ScriptKey, runner, &ScriptState{Running: running, LastError: lastErr}))
}

// fakePlayer hands out processes that tests finish explicitly.
type fakePlayer struct {
	startErr error
	started  chan *fakeProcess
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{started: make(chan *fakeProcess, 16)}
}

func (p *fakePlayer) Start(file string, volume int) (Process, error) {
	if p.startErr != nil {
		return nil, p.startErr
	}
	proc := &fakeProcess{file: file, volume: volume, exit: make(chan error, 1)}
	p.started <- proc
	return proc, nil
}

func (p *fakePlayer) next(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case proc := <-p.started:
		return proc
	case <-time.After(2 * time.Second):
		t.Fatal("no process started")
		return nil
	}
}

type fakeProcess struct {
	file   string
	volume int
	exit   chan error
	once   sync.Once
	killed bool
	mu     sync.Mutex
}

func (p *fakeProcess) Wait() error {
	return <-p.exit
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.finish(errKilled)
	return nil
}

func (p *fakeProcess) finish(err error) {
	p.once.Do(func() { p.exit <- err })
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// writeFiles creates empty files under dir.
func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
}
