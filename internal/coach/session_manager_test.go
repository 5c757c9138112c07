package coach

import (
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/squat-coach/internal/camera"
	"github.com/lowaak/squat-coach/internal/detect"
	"github.com/lowaak/squat-coach/internal/events"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// scriptedOracle returns a fixed sequence of outcomes, then empty outcomes
type scriptedOracle struct {
	mu       sync.Mutex
	outcomes []detect.Outcome
	idx      int
}

func (o *scriptedOracle) Detect() detect.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.idx >= len(o.outcomes) {
		return detect.Outcome{}
	}
	outcome := o.outcomes[o.idx]
	o.idx++
	return outcome
}

// repeatingOracle reports a repetition on every tick
type repeatingOracle struct {
	quality detect.Quality
	message string
}

func (o *repeatingOracle) Detect() detect.Outcome {
	return detect.Outcome{Repetition: true, Quality: o.quality, Message: o.message}
}

// stubCameraManager is a controllable camera.ManagerInterface for tests
type stubCameraManager struct {
	mu         sync.RWMutex
	available  bool
	acquireErr error
	event      *events.ChannelEvent[bool]
}

func newStubCameraManager(available bool) *stubCameraManager {
	return &stubCameraManager{
		available: available,
		event:     events.NewChannelEvent[bool](true),
	}
}

func (s *stubCameraManager) Acquire() error {
	s.mu.Lock()
	if s.acquireErr != nil {
		err := s.acquireErr
		s.mu.Unlock()
		return err
	}
	s.available = true
	s.mu.Unlock()
	s.event.Notify(true)
	return nil
}

func (s *stubCameraManager) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

func (s *stubCameraManager) Source() camera.Source { return nil }

func (s *stubCameraManager) ListenToAvailability(ch chan<- bool) func() {
	return s.event.Listen(ch)
}

func (s *stubCameraManager) Release() {
	s.mu.Lock()
	s.available = false
	s.mu.Unlock()
	s.event.Notify(false)
}

func (s *stubCameraManager) Shutdown() {}

// testSessionConfig runs the detection loop fast enough for tests
func testSessionConfig() SessionConfig {
	return SessionConfig{
		DetectInterval: 10 * time.Millisecond,
		SquatHold:      30 * time.Millisecond,
	}
}

type sessionManagerFixture struct {
	model       *SessionModel
	manager     *SessionManager
	cam         *stubCameraManager
	persistence *ModelPersistence
}

func newSessionManagerFixture(t *testing.T, oracle detect.Oracle, cameraAvailable bool) *sessionManagerFixture {
	t.Helper()
	logger := testLogger()

	cam := newStubCameraManager(cameraAvailable)
	persistence := NewModelPersistence(logger, t.TempDir())
	btManager := NewMockManager(logger, 1)
	t.Cleanup(btManager.Shutdown)

	logChan := make(chan string)
	model := NewSessionModel(btManager, cam, persistence, logger, logChan)
	t.Cleanup(model.Shutdown)

	manager := NewSessionManager(model, cam, oracle, testSessionConfig(), logger)
	t.Cleanup(manager.Shutdown)

	return &sessionManagerFixture{
		model:       model,
		manager:     manager,
		cam:         cam,
		persistence: persistence,
	}
}

func TestSessionManager_NilArgsPanic(t *testing.T) {
	logger := testLogger()
	cam := newStubCameraManager(true)
	oracle := &repeatingOracle{}

	assert.Panics(t, func() {
		NewSessionManager(nil, cam, oracle, testSessionConfig(), logger)
	})
	assert.Panics(t, func() {
		NewSessionManager(&SessionModel{}, cam, nil, testSessionConfig(), logger)
	})
	assert.Panics(t, func() {
		NewSessionManager(&SessionModel{}, cam, oracle, SessionConfig{}, logger)
	})
}

func TestSessionManager_StartRequiresCamera(t *testing.T) {
	f := newSessionManagerFixture(t, &repeatingOracle{}, false)

	err := f.manager.Start()
	require.ErrorIs(t, err, ErrCameraUnavailable)

	state := f.model.GetSessionState()
	assert.False(t, state.Active)
	assert.Equal(t, CameraNeededFeedback, state.FormFeedback)
	assert.Equal(t, FormScoreError, state.FormScore)
	assert.False(t, f.manager.IsActive())
}

func TestSessionManager_StartPublishesReadyState(t *testing.T) {
	f := newSessionManagerFixture(t, &scriptedOracle{}, true)

	require.NoError(t, f.manager.Start())

	require.Eventually(t, func() bool {
		return f.model.GetSessionState().Active
	}, time.Second, time.Millisecond)

	state := f.model.GetSessionState()
	assert.Equal(t, 0, state.RepCount)
	assert.False(t, state.InSquat)
	assert.Equal(t, SessionReadyFeedback, state.FormFeedback)
	assert.Equal(t, FormScoreGood, state.FormScore)
	assert.True(t, f.manager.IsActive())
}

func TestSessionManager_CountsRepetitions(t *testing.T) {
	oracle := &repeatingOracle{quality: detect.QualityGood, message: "Great depth!"}
	f := newSessionManagerFixture(t, oracle, true)

	require.NoError(t, f.manager.Start())

	require.Eventually(t, func() bool {
		return f.model.GetSessionState().RepCount >= 3
	}, time.Second, time.Millisecond)

	state := f.model.GetSessionState()
	assert.True(t, state.Active)
	assert.Equal(t, "Great depth!", state.FormFeedback)
	assert.Equal(t, FormScoreGood, state.FormScore)
}

func TestSessionManager_WarningQualityMapsToWarningScore(t *testing.T) {
	oracle := &repeatingOracle{quality: detect.QualityWarning, message: "Keep your back straight"}
	f := newSessionManagerFixture(t, oracle, true)

	require.NoError(t, f.manager.Start())

	require.Eventually(t, func() bool {
		return f.model.GetSessionState().RepCount >= 1
	}, time.Second, time.Millisecond)

	state := f.model.GetSessionState()
	assert.Equal(t, FormScoreWarning, state.FormScore)
	assert.Equal(t, "Keep your back straight", state.FormFeedback)
}

func TestSessionManager_SquatHoldClears(t *testing.T) {
	// One rep, then nothing: the in-squat indicator should clear after the hold
	oracle := &scriptedOracle{outcomes: []detect.Outcome{
		{Repetition: true, Quality: detect.QualityGood, Message: "Nice rep!"},
	}}
	f := newSessionManagerFixture(t, oracle, true)

	require.NoError(t, f.manager.Start())

	require.Eventually(t, func() bool {
		state := f.model.GetSessionState()
		return state.RepCount == 1 && state.InSquat
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		state := f.model.GetSessionState()
		return state.RepCount == 1 && !state.InSquat
	}, time.Second, time.Millisecond)

	// Feedback survives the clear
	assert.Equal(t, "Nice rep!", f.model.GetSessionState().FormFeedback)
}

func TestSessionManager_StopPublishesSummary(t *testing.T) {
	oracle := &repeatingOracle{quality: detect.QualityGood, message: "Great depth!"}
	f := newSessionManagerFixture(t, oracle, true)

	require.NoError(t, f.manager.Start())
	require.Eventually(t, func() bool {
		return f.model.GetSessionState().RepCount >= 2
	}, time.Second, time.Millisecond)

	f.manager.Stop()

	require.Eventually(t, func() bool {
		return !f.model.GetSessionState().Active
	}, time.Second, time.Millisecond)

	state := f.model.GetSessionState()
	assert.False(t, state.InSquat)
	assert.Equal(t, fmt.Sprintf(SessionSummaryFormat, state.RepCount), state.FormFeedback)
	assert.Equal(t, state.RepCount, f.persistence.GetLifetimeReps())
}

func TestSessionManager_StopWhenIdleIsNoOp(t *testing.T) {
	f := newSessionManagerFixture(t, &repeatingOracle{}, true)

	f.manager.Stop()
	time.Sleep(50 * time.Millisecond)

	state := f.model.GetSessionState()
	assert.False(t, state.Active)
	assert.Equal(t, SessionReadyFeedback, state.FormFeedback)
	assert.Zero(t, f.persistence.GetLifetimeReps())
}

func TestSessionManager_StartWhenActiveIsNoOp(t *testing.T) {
	oracle := &repeatingOracle{quality: detect.QualityGood, message: "Great depth!"}
	f := newSessionManagerFixture(t, oracle, true)

	require.NoError(t, f.manager.Start())
	require.Eventually(t, func() bool {
		return f.model.GetSessionState().RepCount >= 2
	}, time.Second, time.Millisecond)

	countBefore := f.model.GetSessionState().RepCount
	require.NoError(t, f.manager.Start())
	time.Sleep(50 * time.Millisecond)

	// A second Start must not reset the running session
	assert.True(t, f.manager.IsActive())
	assert.GreaterOrEqual(t, f.model.GetSessionState().RepCount, countBefore)
}

func TestSessionManager_ResetZeroesRepCount(t *testing.T) {
	oracle := &scriptedOracle{outcomes: []detect.Outcome{
		{Repetition: true, Quality: detect.QualityGood, Message: "Nice rep!"},
		{Repetition: true, Quality: detect.QualityGood, Message: "Nice rep!"},
	}}
	f := newSessionManagerFixture(t, oracle, true)

	require.NoError(t, f.manager.Start())
	require.Eventually(t, func() bool {
		return f.model.GetSessionState().RepCount == 2
	}, time.Second, time.Millisecond)

	f.manager.Reset()

	require.Eventually(t, func() bool {
		state := f.model.GetSessionState()
		return state.RepCount == 0 && state.FormFeedback == SessionResetFeedback
	}, time.Second, time.Millisecond)

	// Reset does not end the session
	assert.True(t, f.manager.IsActive())
	assert.False(t, f.model.GetSessionState().InSquat)
}

func TestSessionManager_ResetWhenIdle(t *testing.T) {
	f := newSessionManagerFixture(t, &repeatingOracle{}, true)

	f.manager.Reset()

	require.Eventually(t, func() bool {
		state := f.model.GetSessionState()
		return state.RepCount == 0 && state.FormFeedback == SessionResetFeedback
	}, time.Second, time.Millisecond)
	assert.False(t, f.manager.IsActive())
}

func TestSessionManager_StopCancelsPendingClear(t *testing.T) {
	oracle := &repeatingOracle{quality: detect.QualityGood, message: "Great depth!"}
	f := newSessionManagerFixture(t, oracle, true)

	require.NoError(t, f.manager.Start())
	require.Eventually(t, func() bool {
		return f.model.GetSessionState().InSquat
	}, time.Second, time.Millisecond)

	f.manager.Stop()

	require.Eventually(t, func() bool {
		return !f.model.GetSessionState().Active
	}, time.Second, time.Millisecond)

	summary := f.model.GetSessionState().FormFeedback

	// Wait past the hold interval; the cancelled timer must not overwrite
	// the summary or flip InSquat
	time.Sleep(2 * testSessionConfig().SquatHold)
	state := f.model.GetSessionState()
	assert.False(t, state.InSquat)
	assert.Equal(t, summary, state.FormFeedback)
}

func TestSessionManager_ToggleStartsAndStops(t *testing.T) {
	f := newSessionManagerFixture(t, &scriptedOracle{}, true)

	require.NoError(t, f.manager.Toggle())
	require.Eventually(t, func() bool {
		return f.manager.IsActive()
	}, time.Second, time.Millisecond)

	require.NoError(t, f.manager.Toggle())
	require.Eventually(t, func() bool {
		return !f.manager.IsActive()
	}, time.Second, time.Millisecond)
}

func TestSessionManager_CameraRetryAllowsStart(t *testing.T) {
	f := newSessionManagerFixture(t, &scriptedOracle{}, false)

	require.ErrorIs(t, f.manager.Start(), ErrCameraUnavailable)

	require.NoError(t, f.cam.Acquire())
	require.NoError(t, f.manager.Start())

	require.Eventually(t, func() bool {
		return f.manager.IsActive()
	}, time.Second, time.Millisecond)
}
