package coach

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/squat-coach/internal/bt"
	"github.com/lowaak/squat-coach/internal/detect"
)

func drawOutcomes(oracle detect.Oracle, n int) []detect.Outcome {
	outcomes := make([]detect.Outcome, 0, n)
	for i := 0; i < n; i++ {
		outcomes = append(outcomes, oracle.Detect())
	}
	return outcomes
}

// The mock manager's notification pump owns its own random generator. Running
// it alongside a seeded oracle must neither race nor disturb the oracle's
// draw sequence.
func TestMockManager_PumpRunsIndependentlyOfOracle(t *testing.T) {
	manager := NewMockManager(testLogger(), 42)
	t.Cleanup(manager.Shutdown)

	device := manager.GetScanDevices()[0]
	require.NoError(t, manager.Connect(device))

	notifChan := make(chan []byte, 8)
	require.NoError(t, device.EnableNotifications(ServiceUUIDHeartRate, CharUUIDHeartRateMeasurement, func(buf []byte) {
		select {
		case notifChan <- buf:
		default:
		}
	}))

	oracle := detect.NewRandomOracle(rand.New(rand.NewSource(7)), detect.DefaultConfig())

	// Hammer the oracle until the pump has delivered a notification
	stop := make(chan struct{})
	done := make(chan []detect.Outcome, 1)
	go func() {
		var outcomes []detect.Outcome
		for {
			select {
			case <-stop:
				done <- outcomes
				return
			default:
				outcomes = append(outcomes, oracle.Detect())
			}
		}
	}()

	select {
	case buf := <-notifChan:
		require.Len(t, buf, 2)
		assert.Equal(t, byte(0x00), buf[0])
		hr := int(buf[1])
		assert.GreaterOrEqual(t, hr, 70)
		assert.LessOrEqual(t, hr, 90)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for heart rate notification")
	}

	close(stop)
	outcomes := <-done
	require.NotEmpty(t, outcomes)

	// The pump did not consume from the oracle's generator: a fresh oracle
	// with the same seed reproduces the sequence exactly
	reference := detect.NewRandomOracle(rand.New(rand.NewSource(7)), detect.DefaultConfig())
	assert.Equal(t, drawOutcomes(reference, len(outcomes)), outcomes)
}

func TestMockManager_ScanEmitsDevice(t *testing.T) {
	manager := NewMockManager(testLogger(), 1)
	t.Cleanup(manager.Shutdown)

	deviceChan := make(chan []bt.Device, 4)
	unregister := manager.ListenToDeviceList(deviceChan)
	defer unregister()

	manager.StartScan(GetUniqueServiceUUIDs())
	t.Cleanup(func() { _ = manager.StopScan() })
	require.True(t, manager.IsScanning())

	select {
	case devices := <-deviceChan:
		require.Len(t, devices, 1)
		assert.True(t, devices[0].HasServiceUUID(ServiceUUIDHeartRate))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for scan device list")
	}
}
