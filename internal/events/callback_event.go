package events

import (
	"sync"
)

// CallbackEvent is a pub/sub broadcaster that invokes registered callbacks.
// T is the argument type passed to callbacks.
type CallbackEvent[T any] struct {
	mu         sync.RWMutex
	listeners  map[uint64]func(T)
	nextID     uint64
	replayLast bool
	last       *T
	notified   bool
}

// NewCallbackEvent creates a new CallbackEvent.
// replayLast: when true, the most recent Notify value is remembered and new
// listeners are invoked with it immediately on registration.
func NewCallbackEvent[T any](replayLast bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{
		listeners:  make(map[uint64]func(T)),
		replayLast: replayLast,
	}
}

// Listen registers a callback to be invoked on each Notify.
// Returns a deregistration function that removes the listener.
// With replayLast enabled and at least one prior Notify, the callback is
// invoked with the last value before Listen returns.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = callback
	replay := e.replayLast && e.notified && e.last != nil
	var replayValue *T
	if replay {
		replayValue = new(T)
		*replayValue = *e.last
	}
	e.mu.Unlock()

	// Invoke outside the lock so the callback can re-enter this event
	if replay && replayValue != nil {
		callback(*replayValue)
	}

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Notify invokes every registered callback with value.
func (e *CallbackEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.replayLast {
		if e.last == nil {
			e.last = new(T)
		}
		*e.last = value
		e.notified = true
	}

	targets := make([]func(T), 0, len(e.listeners))
	for _, callback := range e.listeners {
		targets = append(targets, callback)
	}
	e.mu.Unlock()

	for _, callback := range targets {
		callback(value)
	}
}

// ListenerCount returns the current number of registered listeners.
func (e *CallbackEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
