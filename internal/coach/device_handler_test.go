package coach

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/squat-coach/internal/bt"
)

// handlerBTManager backs the device handler tests with a single mock strap
type handlerBTManager struct {
	*fakeBTManager
	device *MockHRMonitor
}

func (h *handlerBTManager) GetDeviceByAddressString(addressString string) bt.Device {
	if h.device != nil && h.device.GetAddressString() == addressString {
		return h.device
	}
	return nil
}

func (h *handlerBTManager) Connect(device bt.Device) error {
	h.device.SetConnected(true)
	return nil
}

func (h *handlerBTManager) Disconnect(device bt.Device) error {
	h.device.SetConnected(false)
	return nil
}

type deviceHandlerFixture struct {
	handler  *DeviceHandler
	model    *SessionModel
	device   *MockHRMonitor
	btManager *handlerBTManager
}

func newDeviceHandlerFixture(t *testing.T) *deviceHandlerFixture {
	t.Helper()
	logger := testLogger()

	device := NewMockHRMonitor(logger, "AA:BB:CC:DD:EE:01", "HR Strap")
	btManager := &handlerBTManager{
		fakeBTManager: newFakeBTManager(),
		device:        device,
	}

	cam := newStubCameraManager(true)
	persistence := NewModelPersistence(logger, t.TempDir())
	logChan := make(chan string, 4)

	model := NewSessionModel(btManager, cam, persistence, logger, logChan)
	t.Cleanup(model.Shutdown)

	handler := NewDeviceHandler(btManager, model, logger)

	return &deviceHandlerFixture{
		handler:   handler,
		model:     model,
		device:    device,
		btManager: btManager,
	}
}

func TestDeviceHandler_ConnectAndSubscribe(t *testing.T) {
	f := newDeviceHandlerFixture(t)

	require.NoError(t, f.handler.ConnectAndSubscribe(DeviceTypeHeartRateMonitor, "AA:BB:CC:DD:EE:01"))
	assert.True(t, f.device.IsConnected())

	// The device is assigned to its device type in the model
	assigned := f.model.GetConnectedDeviceForDeviceType(DeviceTypeHeartRateMonitor)
	require.NotNil(t, assigned)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", assigned.Address)

	// Notifications flow through to the model as metric values
	f.device.setHeartRate(85)
	f.device.TriggerHeartRateNotification()

	require.Eventually(t, func() bool {
		hr, ok := f.model.GetLatestData()[MetricHeartRate]
		return ok && hr == 85
	}, time.Second, time.Millisecond)
}

func TestDeviceHandler_ConnectUnknownDeviceType(t *testing.T) {
	f := newDeviceHandlerFixture(t)
	assert.Error(t, f.handler.ConnectAndSubscribe("toaster", "AA:BB:CC:DD:EE:01"))
}

func TestDeviceHandler_ConnectUnknownAddress(t *testing.T) {
	f := newDeviceHandlerFixture(t)
	assert.Error(t, f.handler.ConnectAndSubscribe(DeviceTypeHeartRateMonitor, "11:22:33:44:55:66"))
}

func TestDeviceHandler_UnsubscribeDeviceType(t *testing.T) {
	f := newDeviceHandlerFixture(t)

	require.NoError(t, f.handler.ConnectAndSubscribe(DeviceTypeHeartRateMonitor, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, f.handler.UnsubscribeDeviceType(DeviceTypeHeartRateMonitor))

	assert.False(t, f.device.IsConnected())
	assert.Nil(t, f.model.GetConnectedDeviceForDeviceType(DeviceTypeHeartRateMonitor))
}

func TestDeviceHandler_UnsubscribeWithoutAssignmentIsNoOp(t *testing.T) {
	f := newDeviceHandlerFixture(t)
	assert.NoError(t, f.handler.UnsubscribeDeviceType(DeviceTypeHeartRateMonitor))
}

func TestParseHeartRateData(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		want    int
		wantErr bool
	}{
		{name: "uint8 value", buf: []byte{0x00, 72}, want: 72},
		{name: "uint16 value", buf: []byte{0x01, 0x2C, 0x01}, want: 300},
		{name: "uint8 with extra fields", buf: []byte{0x10, 65, 0xAA, 0xBB}, want: 65},
		{name: "empty", buf: []byte{}, wantErr: true},
		{name: "flags only", buf: []byte{0x00}, wantErr: true},
		{name: "uint16 truncated", buf: []byte{0x01, 0x2C}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeartRateData(tt.buf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
