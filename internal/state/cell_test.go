package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNew_InitialValue(t *testing.T) {
	cell, writer := New("booting")

	assert.Equal(t, "booting", cell.Get())
	assert.Same(t, cell, writer.Cell())
	assert.Equal(t, 0, cell.SubscriberCount())
}

func TestWriter_SetNotifiesSubscribers(t *testing.T) {
	cell, writer := New(0)
	sub := cell.Subscribe(4)
	defer sub.Close()

	writer.Set(1)
	writer.Set(2)

	assert.Equal(t, 2, cell.Get())
	assert.Equal(t, 1, <-sub.C())
	assert.Equal(t, 2, <-sub.C())
}

func TestWriter_SetNeverBlocksOnSlowSubscriber(t *testing.T) {
	cell, writer := New(0)
	sub := cell.Subscribe(1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 100; i++ {
			writer.Set(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer blocked on an unread subscription")
	}

	// The subscriber sees the latest value, older ones were replaced.
	assert.Equal(t, 100, <-sub.C())
	assert.Equal(t, uint64(99), sub.Dropped())
}

func TestWriter_UpdateIsCriticalSection(t *testing.T) {
	cell, writer := New(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			writer.Update(func(v int) int { return v + 1 })
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, cell.Get())
}

func TestSubscription_Close(t *testing.T) {
	cell, writer := New("a")
	sub := cell.Subscribe(1)
	require.Equal(t, 1, cell.SubscriberCount())

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, cell.SubscriberCount())
	_, open := <-sub.C()
	assert.False(t, open)

	// Writes after close must not panic on the closed channel.
	writer.Set("b")
	assert.Equal(t, "b", cell.Get())
}

func TestCell_Watch(t *testing.T) {
	defer goleak.VerifyNone(t)

	cell, writer := New("")
	seen := make(chan string, 1)
	stop := cell.Watch(func(v string) { seen <- v })

	writer.Set("locked")

	select {
	case v := <-seen:
		assert.Equal(t, "locked", v)
	case <-time.After(time.Second):
		t.Fatal("watch callback not invoked")
	}

	stop()
	assert.Equal(t, 0, cell.SubscriberCount())
}
