package coach

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/squat-coach/internal/camera"
	"github.com/lowaak/squat-coach/internal/detect"
	goFuncUtils "github.com/lowaak/squat-coach/internal/go_func_utils"
)

// ErrCameraUnavailable is returned by Start when no camera has been acquired
var ErrCameraUnavailable = errors.New("camera is not available")

type sessionCommand int

const (
	cmdStart sessionCommand = iota
	cmdStop
	cmdReset
)

// SessionManager runs the squat detection loop for a workout session.
// All session state is owned by a single goroutine; Start, Stop and Reset
// send commands into it. Starting an active session or stopping an idle one
// is a no-op.
type SessionManager struct {
	model        *SessionModel
	cam          camera.ManagerInterface
	oracle       detect.Oracle
	config       SessionConfig
	logger       *log.Logger
	cmdChan      chan sessionCommand
	doneChan     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	mu           sync.RWMutex
	active       bool
}

func NewSessionManager(
	model *SessionModel,
	cam camera.ManagerInterface,
	oracle detect.Oracle,
	config SessionConfig,
	logger *log.Logger,
) *SessionManager {
	if model == nil {
		panic("SessionManager: model cannot be nil")
	}
	if cam == nil {
		panic("SessionManager: camera manager cannot be nil")
	}
	if oracle == nil {
		panic("SessionManager: oracle cannot be nil")
	}
	if logger == nil {
		panic("SessionManager: logger cannot be nil")
	}
	if config.DetectInterval <= 0 || config.SquatHold <= 0 {
		panic("SessionManager: config intervals must be positive")
	}

	m := &SessionManager{
		model:    model,
		cam:      cam,
		oracle:   oracle,
		config:   config,
		logger:   logger,
		cmdChan:  make(chan sessionCommand, 1),
		doneChan: make(chan struct{}),
	}

	m.wg.Add(1)
	goFuncUtils.SafeGo(m.logger, m.runSessionLoop)

	return m
}

// IsActive reports whether a session is currently running
func (m *SessionManager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Start begins a new session. The camera must be available; otherwise the
// session state is updated with an error prompt and ErrCameraUnavailable is
// returned. Starting while already active is a no-op.
func (m *SessionManager) Start() error {
	if !m.cam.Available() {
		m.logger.Println("SessionManager: Cannot start session, camera unavailable")
		state := m.model.GetSessionState()
		state.Active = false
		state.FormFeedback = CameraNeededFeedback
		state.FormScore = FormScoreError
		m.model.SetSessionState(state)
		return ErrCameraUnavailable
	}

	m.sendCommand(cmdStart)
	return nil
}

// Stop ends the current session. Stopping while idle is a no-op.
func (m *SessionManager) Stop() {
	m.sendCommand(cmdStop)
}

// Reset zeroes the rep count without changing whether the session is running
func (m *SessionManager) Reset() {
	m.sendCommand(cmdReset)
}

// Toggle starts the session when idle and stops it when active
func (m *SessionManager) Toggle() error {
	if m.IsActive() {
		m.Stop()
		return nil
	}
	return m.Start()
}

func (m *SessionManager) sendCommand(cmd sessionCommand) {
	select {
	case <-m.doneChan:
	case m.cmdChan <- cmd:
	}
}

// Shutdown stops the session loop and waits for it to finish
func (m *SessionManager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.logger.Println("SessionManager: Shutting down")
		close(m.doneChan)
		m.wg.Wait()
		m.logger.Println("SessionManager: Shutdown complete")
	})
}

func (m *SessionManager) setActive(active bool) {
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()
}

// runSessionLoop is the single owner of session state. The detection ticker
// and the squat hold timer are both created stopped and only run while a
// session is active.
func (m *SessionManager) runSessionLoop() {
	defer m.wg.Done()

	state := m.model.GetSessionState()

	ticker := time.NewTicker(m.config.DetectInterval)
	ticker.Stop()
	defer ticker.Stop()

	clearTimer := time.NewTimer(m.config.SquatHold)
	stopClear := func() {
		if !clearTimer.Stop() {
			select {
			case <-clearTimer.C:
			default:
			}
		}
	}
	stopClear()
	defer stopClear()

	publish := func() {
		m.model.SetSessionState(state)
	}

	for {
		select {
		case <-m.doneChan:
			return

		case cmd := <-m.cmdChan:
			switch cmd {
			case cmdStart:
				if state.Active {
					m.logger.Println("SessionManager: Start ignored, session already active")
					continue
				}
				m.logger.Println("SessionManager: Session started")
				state = SessionState{
					Active:       true,
					RepCount:     0,
					InSquat:      false,
					FormFeedback: SessionReadyFeedback,
					FormScore:    FormScoreGood,
				}
				m.setActive(true)
				ticker.Reset(m.config.DetectInterval)
				stopClear()
				publish()

			case cmdStop:
				if !state.Active {
					m.logger.Println("SessionManager: Stop ignored, no active session")
					continue
				}
				m.logger.Printf("SessionManager: Session stopped after %d reps", state.RepCount)
				ticker.Stop()
				stopClear()
				state.Active = false
				state.InSquat = false
				state.FormFeedback = fmt.Sprintf(SessionSummaryFormat, state.RepCount)
				m.setActive(false)
				m.model.RecordCompletedSession(state.RepCount)
				publish()

			case cmdReset:
				m.logger.Println("SessionManager: Rep count reset")
				stopClear()
				state.RepCount = 0
				state.InSquat = false
				state.FormFeedback = SessionResetFeedback
				state.FormScore = FormScoreGood
				publish()
			}

		case <-ticker.C:
			if !state.Active {
				continue
			}
			outcome := m.oracle.Detect()
			if !outcome.Repetition {
				continue
			}

			state.RepCount++
			state.InSquat = true
			state.FormFeedback = outcome.Message
			if outcome.Quality == detect.QualityWarning {
				state.FormScore = FormScoreWarning
			} else {
				state.FormScore = FormScoreGood
			}
			m.logger.Printf("SessionManager: Rep %d detected (%s)", state.RepCount, outcome.Quality)

			// Restart the hold timer so back-to-back reps keep the
			// in-squat indicator lit
			stopClear()
			clearTimer.Reset(m.config.SquatHold)
			publish()

		case <-clearTimer.C:
			if !state.Active || !state.InSquat {
				continue
			}
			state.InSquat = false
			publish()
		}
	}
}
