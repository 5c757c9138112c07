// Package camera owns acquisition and release of the video source that
// gates a workout session. The session core never touches frames; it only
// needs to know whether a source is currently held.
package camera

import (
	"log"
	"sync"
	"time"

	"github.com/lowaak/squat-coach/internal/events"
)

// Constraints describes the stream request made to a provider.
type Constraints struct {
	Video       bool
	FacingFront bool
	Audio       bool
}

// DefaultConstraints requests a front-facing video stream with no audio.
func DefaultConstraints() Constraints {
	return Constraints{
		Video:       true,
		FacingFront: true,
		Audio:       false,
	}
}

// Frame is one captured video frame. Pixel data is reduced to a mean luma
// value; nothing in this app renders actual pixels.
type Frame struct {
	Seq      uint64
	Width    int
	Height   int
	Luma     uint8
	Captured time.Time
}

// Source is a live frame stream. Frames is closed when the source is closed.
type Source interface {
	Frames() <-chan Frame
	Close() error
}

// Provider opens a Source for the given constraints.
type Provider interface {
	Open(constraints Constraints) (Source, error)
}

// ManagerInterface is what the rest of the app programs against. Tests
// substitute their own implementation.
type ManagerInterface interface {
	Acquire() error
	Available() bool
	Source() Source
	ListenToAvailability(ch chan<- bool) func()
	Release()
	Shutdown()
}

var _ ManagerInterface = (*Manager)(nil)

// Manager holds at most one acquired Source and the availability flag
// consumed by the session controller. Acquisition failure is not fatal:
// the flag stays false and Acquire may be retried by the user.
type Manager struct {
	provider Provider
	logger   *log.Logger

	mu        sync.RWMutex
	source    Source
	available bool

	availabilityEvent *events.ChannelEvent[bool]
}

// NewManager creates a camera Manager. Nothing is acquired yet.
func NewManager(provider Provider, logger *log.Logger) *Manager {
	if provider == nil {
		panic("camera.Manager: provider cannot be nil")
	}
	if logger == nil {
		panic("camera.Manager: logger cannot be nil")
	}
	return &Manager{
		provider:          provider,
		logger:            logger,
		availabilityEvent: events.NewChannelEvent[bool](true),
	}
}

// Acquire requests the default stream from the provider. No-op if a source
// is already held. On failure the availability flag is cleared and the
// error is returned; callers may retry later.
func (m *Manager) Acquire() error {
	m.mu.Lock()
	if m.available {
		m.mu.Unlock()
		m.logger.Printf("Camera: already acquired")
		return nil
	}

	constraints := DefaultConstraints()
	m.logger.Printf("Camera: requesting stream (video=%t front=%t audio=%t)",
		constraints.Video, constraints.FacingFront, constraints.Audio)

	source, err := m.provider.Open(constraints)
	if err != nil {
		m.available = false
		m.mu.Unlock()

		m.logger.Printf("Camera: acquisition failed: %v", err)
		m.availabilityEvent.Notify(false)
		return err
	}

	m.source = source
	m.available = true
	m.mu.Unlock()

	m.logger.Printf("Camera: stream acquired")
	m.availabilityEvent.Notify(true)
	return nil
}

// Available reports whether a source is currently held.
func (m *Manager) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// Source returns the held source, or nil if none.
func (m *Manager) Source() Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// ListenToAvailability registers a channel to receive availability changes.
// Returns a deregistration function that can be called to remove the listener
func (m *Manager) ListenToAvailability(ch chan<- bool) func() {
	return m.availabilityEvent.Listen(ch)
}

// Release closes the held source, if any, and clears the availability flag.
// Safe to call when nothing is held.
func (m *Manager) Release() {
	m.mu.Lock()
	source := m.source
	m.source = nil
	wasAvailable := m.available
	m.available = false
	m.mu.Unlock()

	if source != nil {
		if err := source.Close(); err != nil {
			m.logger.Printf("Camera: error closing source: %v", err)
		} else {
			m.logger.Printf("Camera: stream released")
		}
	}
	if wasAvailable {
		m.availabilityEvent.Notify(false)
	}
}

// Shutdown releases the stream. Leaking the media source across app exit is
// a defect, so this is part of the main teardown path.
func (m *Manager) Shutdown() {
	m.logger.Println("Camera: Shutting down")
	m.Release()
	m.logger.Println("Camera: Shutdown complete")
}
