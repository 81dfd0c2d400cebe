package testutils

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"chairctl/internal/logger"
)

// SyncBuffer is a goroutine-safe log sink.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CaptureLogs sends the output of every logger created after the call to a buffer,
// at debug level, until the test ends.
func CaptureLogs(t testing.TB) *SyncBuffer {
	t.Helper()
	buf := &SyncBuffer{}
	logger.SetOutput(buf)
	logger.SetLevel("debug")
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLevel("info")
	})
	return buf
}
