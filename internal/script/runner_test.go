package script_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairctl/internal/clock"
	"chairctl/internal/kernel"
	"chairctl/internal/script"
	"chairctl/internal/services"
	"chairctl/internal/testutils"
	"chairctl/pkg/chairtypes"
)

// stamp records the fake time at which it was performed.
type stamp struct {
	script.Step
	name string
	log  *stampLog
}

type stampLog struct {
	mu      sync.Mutex
	entries []stampEntry
}

type stampEntry struct {
	name string
	at   time.Time
}

func (s *stampLog) all() []stampEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stampEntry(nil), s.entries...)
}

func (stamp) Type() string { return "stamp" }

func (c stamp) Perform(_ context.Context, rt *script.Runtime) error {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	c.log.entries = append(c.log.entries, stampEntry{name: c.name, at: rt.Clock.Now()})
	return nil
}

type panicking struct {
	script.Step
}

func (panicking) Type() string { return "panicking" }

func (panicking) Perform(context.Context, *script.Runtime) error {
	panic("relay board on fire")
}

type failing struct {
	script.Step
	err error
}

func (failing) Type() string { return "failing" }

func (c failing) Perform(context.Context, *script.Runtime) error {
	return c.err
}

func newTestRunner(t *testing.T, k *kernel.Kernel, random func() float64) (*script.Runner, *clock.Fake) {
	t.Helper()
	clk := testutils.NewFakeClock()
	rt := &script.Runtime{
		Kernel:   k,
		Clock:    clk,
		Float64:  random,
		NewRunID: testutils.NewDeterministicIDs(),
	}
	return script.NewRunner(rt), clk
}

func TestRunner_CommandsRunInOrderAfterPostPause(t *testing.T) {
	k := testutils.BootDevChair(t)
	runner, _ := newTestRunner(t, k, nil)
	log := &stampLog{}

	s := &script.Script{
		ID: chairtypes.ScriptBoot,
		Commands: []script.Command{
			stamp{Step: script.Step{Pause: time.Second}, name: "first", log: log},
			stamp{Step: script.Step{Pause: 500 * time.Millisecond}, name: "second", log: log},
			script.Pause{Duration: 2 * time.Second},
			stamp{name: "third", log: log},
		},
	}

	require.NoError(t, runner.Run(context.Background(), s))

	entries := log.all()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{entries[0].name, entries[1].name, entries[2].name})
	assert.Equal(t, testutils.BaseTime, entries[0].at)
	assert.Equal(t, testutils.BaseTime.Add(time.Second), entries[1].at)
	assert.Equal(t, testutils.BaseTime.Add(3500*time.Millisecond), entries[2].at)
}

func TestRunner_MessageJitterStaysInBounds(t *testing.T) {
	k := testutils.BootDevChair(t)

	msg := script.Message{
		Messages: []string{"one", "two", "three"},
		Interval: 2 * time.Second,
		Variance: 250 * time.Millisecond,
	}
	s := &script.Script{ID: chairtypes.ScriptBoot, Commands: []script.Command{msg}}

	for range 50 {
		runner, clk := newTestRunner(t, k, nil)
		require.NoError(t, runner.Run(context.Background(), s))

		sleeps := clk.Sleeps()
		require.Len(t, sleeps, 2, "no delay after the last message")
		for _, d := range sleeps {
			assert.GreaterOrEqual(t, d, 1750*time.Millisecond)
			assert.LessOrEqual(t, d, 2250*time.Millisecond)
		}
	}

	st, err := k.State()
	require.NoError(t, err)
	assert.Equal(t, "three", st.Message.Get())
}

func TestRunner_MessageJitterExtremes(t *testing.T) {
	tests := []struct {
		name   string
		random float64
		want   time.Duration
	}{
		{"lowest", 0, 1750 * time.Millisecond},
		{"middle", 0.5, 2 * time.Second},
		{"near highest", 0.999, 2249500 * time.Microsecond},
	}

	k := testutils.BootDevChair(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, clk := newTestRunner(t, k, testutils.FixedFloat64(tt.random))
			s := &script.Script{ID: chairtypes.ScriptBoot, Commands: []script.Command{script.Message{
				Messages: []string{"a", "b"},
				Interval: 2 * time.Second,
				Variance: 250 * time.Millisecond,
			}}}

			require.NoError(t, runner.Run(context.Background(), s))
			require.Len(t, clk.Sleeps(), 1)
			assert.InDelta(t, float64(tt.want), float64(clk.Sleeps()[0]), float64(time.Microsecond))
		})
	}
}

func TestRunner_MessageDelayNeverNegative(t *testing.T) {
	k := testutils.BootDevChair(t)
	runner, clk := newTestRunner(t, k, testutils.FixedFloat64(0))

	s := &script.Script{ID: chairtypes.ScriptBoot, Commands: []script.Command{script.Message{
		Messages: []string{"a", "b"},
		Interval: 100 * time.Millisecond,
		Variance: time.Second,
	}}}

	require.NoError(t, runner.Run(context.Background(), s))
	assert.Empty(t, clk.Sleeps())
}

func TestRunner_PanicAbortsRun(t *testing.T) {
	k := testutils.BootDevChair(t)
	runner, _ := newTestRunner(t, k, nil)

	s := &script.Script{
		ID: chairtypes.ScriptIntruder,
		Commands: []script.Command{
			script.RelayOn{Relay: "bar_lift"},
			panicking{},
			script.RelayOn{Relay: "smoke"},
		},
	}

	err := runner.Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command 2 (panicking)")
	assert.Contains(t, err.Error(), "relay board on fire")

	relays, err := kernel.StateOf(k, services.RelayKey)
	require.NoError(t, err)
	assert.True(t, relays.Relays.Get()["bar_lift"])
	assert.False(t, relays.Relays.Get()["smoke"])
}

func TestRunner_ErrorAbortsRun(t *testing.T) {
	k := testutils.BootDevChair(t)
	runner, _ := newTestRunner(t, k, nil)
	log := &stampLog{}
	boom := errors.New("boom")

	s := &script.Script{
		ID: chairtypes.ScriptLock,
		Commands: []script.Command{
			stamp{name: "before", log: log},
			failing{err: boom},
			stamp{name: "after", log: log},
		},
	}

	err := runner.Run(context.Background(), s)
	require.ErrorIs(t, err, boom)
	require.Len(t, log.all(), 1)
	assert.Equal(t, "before", log.all()[0].name)
}

func TestRunner_CancelledContext(t *testing.T) {
	k := testutils.BootDevChair(t)
	runner, _ := newTestRunner(t, k, nil)
	log := &stampLog{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &script.Script{ID: chairtypes.ScriptLock, Commands: []script.Command{stamp{name: "never", log: log}}}
	err := runner.Run(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log.all())
}

func TestRunner_CancellationInterruptsBlockingCommands(t *testing.T) {
	tests := []struct {
		name      string
		cmd       script.Command
		expectErr string
	}{
		{
			name:      "held relay",
			cmd:       script.RelayOn{Relay: "bar_lift", Hold: 5 * time.Second, Wait: true},
			expectErr: "command 1 (relay-on)",
		},
		{
			name:      "waited sound effect",
			cmd:       script.PlaySoundEffect{Effect: "klaxon", Wait: true},
			expectErr: "command 1 (play-sound-effect)",
		},
		{
			name:      "waited track",
			cmd:       script.PlayTrack{Track: "theme", Wait: true},
			expectErr: "command 1 (play-track)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := testutils.BootDevChair(t)
			runner, _ := newTestRunner(t, k, nil)
			log := &stampLog{}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			s := &script.Script{
				ID:       chairtypes.ScriptRaiseBar,
				Commands: []script.Command{tt.cmd, stamp{name: "after", log: log}},
			}

			start := time.Now()
			err := runner.Run(ctx, s)
			require.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Contains(t, err.Error(), tt.expectErr)
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.Empty(t, log.all())

			relays, err := kernel.StateOf(k, services.RelayKey)
			require.NoError(t, err)
			assert.False(t, relays.Relays.Get()["bar_lift"])
		})
	}
}
