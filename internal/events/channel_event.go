package events

import (
	"sync"
)

// ChannelEvent is a pub/sub broadcaster that delivers values to registered
// channels. T is the value type sent to listeners.
type ChannelEvent[T any] struct {
	mu         sync.RWMutex
	channels   map[uint64]chan<- T
	nextID     uint64
	replayLast bool
	last       *T
	notified   bool
}

// NewChannelEvent creates a new ChannelEvent.
// replayLast: when true, the most recent Notify value is remembered and sent
// to new listeners immediately, so late subscribers see current state.
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		channels:   make(map[uint64]chan<- T),
		replayLast: replayLast,
	}
}

// Listen registers a channel to receive values on each Notify.
// Returns a deregistration function that removes the listener.
// With replayLast enabled and at least one prior Notify, the last value is
// sent to the channel right away (non-blocking, dropped if the channel is full).
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.channels[id] = ch
	replay := e.replayLast && e.notified && e.last != nil
	var replayValue *T
	if replay {
		replayValue = new(T)
		*replayValue = *e.last
	}
	e.mu.Unlock()

	// Replay outside the lock so a full channel can't hold it
	if replay && replayValue != nil {
		select {
		case ch <- *replayValue:
		default:
		}
	}

	return func() {
		e.mu.Lock()
		delete(e.channels, id)
		e.mu.Unlock()
	}
}

// Notify sends value to every registered channel. Sends are non-blocking:
// a listener whose channel is full misses this value.
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.replayLast {
		if e.last == nil {
			e.last = new(T)
		}
		*e.last = value
		e.notified = true
	}

	// Snapshot the channel set so sends happen outside the lock
	targets := make([]chan<- T, 0, len(e.channels))
	for _, ch := range e.channels {
		targets = append(targets, ch)
	}
	e.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- value:
		default:
		}
	}
}

// ListenerCount returns the current number of registered listeners.
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.channels)
}
