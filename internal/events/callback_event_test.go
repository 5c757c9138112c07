package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallbackEvent(t *testing.T) {
	event := NewCallbackEvent[string](false)
	require.NotNil(t, event)
	assert.Equal(t, 0, event.ListenerCount())
	assert.False(t, event.replayLast)

	event2 := NewCallbackEvent[int](true)
	require.NotNil(t, event2)
	assert.True(t, event2.replayLast)
}

func TestCallbackEvent_ListenNotify(t *testing.T) {
	event := NewCallbackEvent[string](false)

	var mu sync.Mutex
	received := make([]string, 0)
	unregister := event.Listen(func(val string) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, val)
	})
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("first")
	event.Notify("second")

	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, received)
	mu.Unlock()

	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("third")
	mu.Lock()
	assert.Len(t, received, 2)
	mu.Unlock()
}

func TestCallbackEvent_MultipleListeners(t *testing.T) {
	event := NewCallbackEvent[int](false)

	var mu sync.Mutex
	count1, count2 := 0, 0
	event.Listen(func(int) {
		mu.Lock()
		count1++
		mu.Unlock()
	})
	event.Listen(func(int) {
		mu.Lock()
		count2++
		mu.Unlock()
	})
	assert.Equal(t, 2, event.ListenerCount())

	event.Notify(1)
	event.Notify(2)

	mu.Lock()
	assert.Equal(t, 2, count1)
	assert.Equal(t, 2, count2)
	mu.Unlock()
}

func TestCallbackEvent_ReplayLast(t *testing.T) {
	event := NewCallbackEvent[string](true)

	// Before any Notify, registration does not invoke the callback
	earlyCalled := false
	event.Listen(func(string) { earlyCalled = true })
	assert.False(t, earlyCalled)

	event.Notify("state-a")
	event.Notify("state-b")

	// Late listener is invoked with the last value during Listen
	var replayed string
	event.Listen(func(val string) { replayed = val })
	assert.Equal(t, "state-b", replayed)
}

func TestCallbackEvent_NoReplayWhenDisabled(t *testing.T) {
	event := NewCallbackEvent[string](false)
	event.Notify("state-a")

	called := false
	event.Listen(func(string) { called = true })
	assert.False(t, called)
}

func TestCallbackEvent_ListenerCanReenter(t *testing.T) {
	event := NewCallbackEvent[int](false)

	// A callback that registers another listener must not deadlock
	done := make(chan struct{})
	event.Listen(func(int) {
		event.Listen(func(int) {})
		close(done)
	})

	go event.Notify(1)
	<-done
	assert.Equal(t, 2, event.ListenerCount())
}

func TestCallbackEvent_NilCallbackPanics(t *testing.T) {
	event := NewCallbackEvent[int](false)
	assert.Panics(t, func() {
		event.Listen(nil)
	})
}
