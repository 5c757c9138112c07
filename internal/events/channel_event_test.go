package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelEvent(t *testing.T) {
	event := NewChannelEvent[string](false)
	require.NotNil(t, event)
	assert.Equal(t, 0, event.ListenerCount())
	assert.False(t, event.replayLast)

	event2 := NewChannelEvent[int](true)
	require.NotNil(t, event2)
	assert.True(t, event2.replayLast)
}

func TestChannelEvent_ListenNotify(t *testing.T) {
	event := NewChannelEvent[string](false)

	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("first")
	event.Notify("second")

	received := make([]string, 0)
	for len(received) < 2 {
		select {
		case val := <-ch:
			received = append(received, val)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for events")
		}
	}
	assert.Contains(t, received, "first")
	assert.Contains(t, received, "second")

	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("third")
	select {
	case val := <-ch:
		t.Errorf("unexpected value after unregister: %s", val)
	case <-time.After(20 * time.Millisecond):
		// expected - listener was removed
	}
}

func TestChannelEvent_MultipleListeners(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch1 := make(chan int, 10)
	ch2 := make(chan int, 10)
	unregister1 := event.Listen(ch1)
	unregister2 := event.Listen(ch2)
	assert.Equal(t, 2, event.ListenerCount())

	event.Notify(42)

	select {
	case val := <-ch1:
		assert.Equal(t, 42, val)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting on ch1")
	}
	select {
	case val := <-ch2:
		assert.Equal(t, 42, val)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting on ch2")
	}

	unregister1()
	unregister2()
	assert.Equal(t, 0, event.ListenerCount())
}

func TestChannelEvent_ReplayLast(t *testing.T) {
	event := NewChannelEvent[string](true)

	// Listener registered before any Notify gets nothing up front
	early := make(chan string, 1)
	event.Listen(early)
	select {
	case val := <-early:
		t.Errorf("unexpected replay before any Notify: %s", val)
	case <-time.After(20 * time.Millisecond):
	}

	event.Notify("state-a")
	event.Notify("state-b")
	<-early // drain state-a
	<-early // drain state-b

	// Late listener should receive the last value immediately
	late := make(chan string, 1)
	event.Listen(late)
	select {
	case val := <-late:
		assert.Equal(t, "state-b", val)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for replayed value")
	}
}

func TestChannelEvent_NoReplayWhenDisabled(t *testing.T) {
	event := NewChannelEvent[string](false)
	event.Notify("state-a")

	late := make(chan string, 1)
	event.Listen(late)
	select {
	case val := <-late:
		t.Errorf("unexpected replay with replayLast disabled: %s", val)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestChannelEvent_FullChannelSkipped(t *testing.T) {
	event := NewChannelEvent[int](false)

	// Unbuffered channel with no reader: Notify must not block
	ch := make(chan int)
	event.Listen(ch)

	done := make(chan struct{})
	go func() {
		event.Notify(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Notify blocked on a full channel")
	}
}

func TestChannelEvent_ConcurrentNotify(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch := make(chan int, 1000)
	event.Listen(ch)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				event.Notify(n*100 + j)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 500, len(ch))
}

func TestChannelEvent_NilChannelPanics(t *testing.T) {
	event := NewChannelEvent[int](false)
	assert.Panics(t, func() {
		event.Listen(nil)
	})
}
