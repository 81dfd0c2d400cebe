// Package testutils provides deterministic generators and a booted dev-mode chair for tests.
package testutils

import (
	"fmt"
	"sync"
	"time"

	"chairctl/internal/clock"
)

// BaseTime is where fake clocks start: 2025-01-01T00:00:00Z.
var BaseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewDeterministicIDs returns a generator of run ids in UUID v4 format:
// 00000001-0000-4000-8000-000000000001, 00000002-0000-4000-8000-000000000002, etc.
// Each generator counts independently and is safe for concurrent use.
func NewDeterministicIDs() func() string {
	var (
		mu      sync.Mutex
		counter uint64
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return fmt.Sprintf("%08x-0000-4000-8000-%012x", counter, counter)
	}
}

// NewFakeClock returns a fake clock starting at BaseTime.
func NewFakeClock() *clock.Fake {
	return clock.NewFake(BaseTime)
}

// FixedFloat64 returns a random source that always yields v, for pinning message jitter.
func FixedFloat64(v float64) func() float64 {
	return func() float64 { return v }
}
