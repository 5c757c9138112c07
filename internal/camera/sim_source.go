package camera

import (
	"errors"
	"log"
	"sync"
	"time"

	goFuncUtils "github.com/lowaak/squat-coach/internal/go_func_utils"
)

const simFrameInterval = 100 * time.Millisecond

// ErrNoCamera is returned by SimulatedProvider when configured unavailable,
// standing in for a machine with no capture device or denied permission.
var ErrNoCamera = errors.New("no camera device available")

// SimulatedProvider fabricates frame streams for machines without a real
// capture device. With Unavailable set, Open always fails, which exercises
// the no-camera path end to end.
type SimulatedProvider struct {
	Unavailable bool
	Logger      *log.Logger
}

func (p *SimulatedProvider) Open(constraints Constraints) (Source, error) {
	if p.Unavailable {
		return nil, ErrNoCamera
	}
	if !constraints.Video {
		return nil, errors.New("simulated provider only produces video")
	}

	source := &SimulatedSource{
		frames: make(chan Frame, 4),
		done:   make(chan struct{}),
		logger: p.Logger,
	}
	goFuncUtils.SafeGo(p.Logger, source.pump)
	return source, nil
}

// SimulatedSource emits synthetic frames at a fixed cadence until closed.
type SimulatedSource struct {
	frames chan Frame
	done   chan struct{}
	logger *log.Logger

	closeOnce sync.Once
}

func (s *SimulatedSource) Frames() <-chan Frame {
	return s.frames
}

// Close stops the pump and closes the frame channel. Idempotent.
func (s *SimulatedSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *SimulatedSource) pump() {
	defer close(s.frames)

	ticker := time.NewTicker(simFrameInterval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			seq++
			frame := Frame{
				Seq:      seq,
				Width:    640,
				Height:   480,
				Luma:     uint8(96 + seq%64),
				Captured: now,
			}
			// Drop the frame if the consumer is behind. Stale frames
			// are worthless for live detection.
			select {
			case s.frames <- frame:
			default:
			}
		}
	}
}
