package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReal_SleepInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Real().Sleep(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReal_SleepZero(t *testing.T) {
	assert.NoError(t, Real().Sleep(context.Background(), 0))
}

func TestFake_RecordsSleeps(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	assert.NoError(t, fake.Sleep(context.Background(), 2*time.Second))
	assert.NoError(t, fake.Sleep(context.Background(), 0))
	fake.Advance(time.Second)

	assert.Equal(t, []time.Duration{2 * time.Second}, fake.Sleeps())
	assert.Equal(t, start.Add(3*time.Second), fake.Now())
}
