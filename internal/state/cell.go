// Package state provides the observable value cell that all shared chair state is built from.
//
// A cell is created together with its Writer. The component that creates the pair owns the
// Writer and is the only one able to change the value; everyone else holds the *Cell, which
// can be read and subscribed to but not written. Notifying subscribers never blocks the
// writer: each subscription has a bounded buffer, and when it is full the oldest pending
// value is replaced so a slow consumer always catches up to the latest value.
package state

import (
	"sync"
	"sync/atomic"
)

// Cell holds a value and fans out every change to its subscribers.
type Cell[T any] struct {
	mu          sync.RWMutex
	value       T
	subscribers map[uint64]*Subscription[T]
	nextID      uint64
}

// Writer is the owner-side handle of a Cell.
type Writer[T any] struct {
	cell *Cell[T]
}

// New creates a cell holding initial and returns it together with its writer.
func New[T any](initial T) (*Cell[T], *Writer[T]) {
	cell := &Cell[T]{
		value:       initial,
		subscribers: make(map[uint64]*Subscription[T]),
	}
	return cell, &Writer[T]{cell: cell}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Subscribe registers a subscriber that receives every subsequent value.
// A buffer below 1 is raised to 1.
func (c *Cell[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	sub := &Subscription[T]{
		id:   c.nextID,
		ch:   make(chan T, buffer),
		cell: c,
	}
	c.subscribers[sub.id] = sub
	return sub
}

// Watch calls fn on its own goroutine for every subsequent value until the returned
// stop function is called. fn never runs on the writer's goroutine.
func (c *Cell[T]) Watch(fn func(T)) (stop func()) {
	sub := c.Subscribe(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for value := range sub.C() {
			fn(value)
		}
	}()
	return func() {
		sub.Close()
		<-done
	}
}

// SubscriberCount returns the number of live subscriptions.
func (c *Cell[T]) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

// Cell returns the read-only side of the writer's cell.
func (w *Writer[T]) Cell() *Cell[T] {
	return w.cell
}

// Set replaces the value and notifies subscribers.
func (w *Writer[T]) Set(value T) {
	c := w.cell
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.publishLocked(value)
}

// Update applies fn to the current value as one critical section and stores the result.
// It returns the new value.
func (w *Writer[T]) Update(fn func(T) T) T {
	c := w.cell
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = fn(c.value)
	c.publishLocked(c.value)
	return c.value
}

func (c *Cell[T]) publishLocked(value T) {
	for _, sub := range c.subscribers {
		sub.offer(value)
	}
}

// Subscription is one subscriber's view of a cell's changes.
type Subscription[T any] struct {
	id      uint64
	ch      chan T
	cell    *Cell[T]
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the channel values are delivered on. It is closed by Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped returns how many values were replaced before the subscriber read them.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.cell.mu.Lock()
		defer s.cell.mu.Unlock()
		delete(s.cell.subscribers, s.id)
		close(s.ch)
	})
}

// offer delivers value without blocking. Called with the cell lock held.
func (s *Subscription[T]) offer(value T) {
	select {
	case s.ch <- value:
		return
	default:
	}

	// Buffer full: discard the oldest pending value to make room.
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- value:
	default:
		s.dropped.Add(1)
	}
}
