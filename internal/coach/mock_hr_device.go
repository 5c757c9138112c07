package coach

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/lowaak/squat-coach/internal/bt"
	"github.com/lowaak/squat-coach/internal/events"
	goFuncUtils "github.com/lowaak/squat-coach/internal/go_func_utils"
)

// MockHRMonitor implements bt.Device as a simulated heart rate strap, so the
// app can run without real Bluetooth hardware.
type MockHRMonitor struct {
	logger    *log.Logger
	address   string
	localName string

	mu                sync.RWMutex
	state             bt.DeviceState
	heartRateCallback func([]byte)
	heartRate         uint8
}

var _ bt.Device = (*MockHRMonitor)(nil)

func NewMockHRMonitor(logger *log.Logger, address string, localName string) *MockHRMonitor {
	if logger == nil {
		panic("MockHRMonitor: logger cannot be nil")
	}
	return &MockHRMonitor{
		logger:    logger,
		address:   address,
		localName: localName,
		state:     bt.Disconnected,
		heartRate: 70,
	}
}

// SetConnected changes the connection state of the mock device
func (m *MockHRMonitor) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = bt.Connected
	} else {
		m.state = bt.Disconnected
		m.heartRateCallback = nil
	}
	m.logger.Printf("MockHRMonitor [%s]: State changed to %s", m.localName, m.state)
}

// --- bt.Device Interface Implementation ---

func (m *MockHRMonitor) GetAddressString() string {
	return m.address
}

func (m *MockHRMonitor) GetScanRSSI() (int16, error) {
	return -50, nil // Good signal strength
}

func (m *MockHRMonitor) GetScanLastSeen() time.Time {
	return time.Now()
}

func (m *MockHRMonitor) SetScanLastSeen(t time.Time) {
	// No-op for mock
}

func (m *MockHRMonitor) GetLocalName() string {
	return m.localName
}

func (m *MockHRMonitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == bt.Connected
}

func (m *MockHRMonitor) GetState() bt.DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockHRMonitor) IsRecentlyScanned() bool {
	return true
}

func (m *MockHRMonitor) WaitForConnection(timeout time.Duration) error {
	// Mock is always immediately connected
	return nil
}

func (m *MockHRMonitor) EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error {
	if serviceUuid != ServiceUUIDHeartRate || characteristicUuid != CharUUIDHeartRateMeasurement {
		return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartRateCallback = callbackFunc
	m.logger.Printf("MockHRMonitor [%s]: Heart rate notifications enabled", m.localName)
	return nil
}

func (m *MockHRMonitor) DisableNotifications(serviceUuid string, characteristicUuid string) error {
	if serviceUuid != ServiceUUIDHeartRate || characteristicUuid != CharUUIDHeartRateMeasurement {
		return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartRateCallback = nil
	m.logger.Printf("MockHRMonitor [%s]: Heart rate notifications disabled", m.localName)
	return nil
}

func (m *MockHRMonitor) GetServiceUUIDs() []string {
	return []string{ServiceUUIDHeartRate}
}

func (m *MockHRMonitor) HasServiceUUID(uuid string) bool {
	return uuid == ServiceUUIDHeartRate
}

// TriggerHeartRateNotification sends a heart rate notification to the
// subscribed callback, if any
func (m *MockHRMonitor) TriggerHeartRateNotification() {
	m.mu.RLock()
	callback := m.heartRateCallback
	hr := m.heartRate
	m.mu.RUnlock()

	if callback != nil {
		// HR format: [flags, hr_value]
		callback([]byte{0x00, hr})
	}
}

// setHeartRate updates the simulated heart rate value
func (m *MockHRMonitor) setHeartRate(hr uint8) {
	m.mu.Lock()
	m.heartRate = hr
	m.mu.Unlock()
}

// MockManager implements bt.ManagerInterface backed by a single MockHRMonitor.
// It emits the device in scan results and pumps heart rate notifications once
// per second while the device is connected.
type MockManager struct {
	logger                *log.Logger
	device                *MockHRMonitor
	rng                   *rand.Rand // owned by runNotificationPump, never shared
	scanning              bool
	mu                    sync.RWMutex
	scanDeviceListEvent   *events.ChannelEvent[[]bt.Device]
	connectedDevicesEvent *events.ChannelEvent[[]bt.Device]
	doneChan              chan struct{}
	shutdownOnce          sync.Once
	wg                    sync.WaitGroup
}

var _ bt.ManagerInterface = (*MockManager)(nil)

// NewMockManager creates a mock manager seeded with its own random source.
// rand.Rand is not safe for concurrent use, so the pump goroutine must not
// share a generator with anything else.
func NewMockManager(logger *log.Logger, seed int64) *MockManager {
	if logger == nil {
		panic("MockManager: logger cannot be nil")
	}

	m := &MockManager{
		logger:                logger,
		device:                NewMockHRMonitor(logger, "AA:BB:CC:DD:EE:FF", "Mock HR Strap"),
		rng:                   rand.New(rand.NewSource(seed)),
		scanDeviceListEvent:   events.NewChannelEvent[[]bt.Device](true),
		connectedDevicesEvent: events.NewChannelEvent[[]bt.Device](true),
		doneChan:              make(chan struct{}),
	}

	m.wg.Add(1)
	goFuncUtils.SafeGo(m.logger, m.runNotificationPump)

	return m
}

// runNotificationPump emits heart rate notifications while the mock device is
// connected, wandering the value around resting heart rate
func (m *MockManager) runNotificationPump() {
	defer m.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.doneChan:
			return
		case <-ticker.C:
			if !m.device.IsConnected() {
				continue
			}
			// Wander between roughly 70 and 90 bpm
			hr := uint8(70 + m.rng.Intn(21))
			m.device.setHeartRate(hr)
			m.device.TriggerHeartRateNotification()
		}
	}
}

func (m *MockManager) Enable() error {
	m.logger.Println("MockManager: Enabled (no real adapter)")
	return nil
}

func (m *MockManager) GetDeviceByAddressString(addressString string) bt.Device {
	if addressString == m.device.GetAddressString() {
		return m.device
	}
	return nil
}

func (m *MockManager) StartScan(serviceUuidFilter []string) {
	m.mu.Lock()
	if m.scanning {
		m.mu.Unlock()
		return
	}
	m.scanning = true
	m.mu.Unlock()

	m.logger.Println("MockManager: Scan started")

	// Emit the mock device periodically like a real scan would
	m.wg.Add(1)
	goFuncUtils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		m.scanDeviceListEvent.Notify([]bt.Device{m.device})
		for {
			select {
			case <-m.doneChan:
				return
			case <-ticker.C:
				if !m.IsScanning() {
					return
				}
				m.scanDeviceListEvent.Notify([]bt.Device{m.device})
			}
		}
	})
}

func (m *MockManager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanning {
		return fmt.Errorf("not scanning")
	}
	m.scanning = false
	m.logger.Println("MockManager: Scan stopped")
	return nil
}

func (m *MockManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

func (m *MockManager) Connect(device bt.Device) error {
	if device.GetAddressString() != m.device.GetAddressString() {
		return fmt.Errorf("unknown device: %s", device.GetAddressString())
	}
	m.device.SetConnected(true)
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	return nil
}

func (m *MockManager) Disconnect(device bt.Device) error {
	if device.GetAddressString() != m.device.GetAddressString() {
		return fmt.Errorf("unknown device: %s", device.GetAddressString())
	}
	m.device.SetConnected(false)
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	return nil
}

func (m *MockManager) GetConnectedDevices() []bt.Device {
	if m.device.IsConnected() {
		return []bt.Device{m.device}
	}
	return []bt.Device{}
}

func (m *MockManager) GetScanDevices() []bt.Device {
	return []bt.Device{m.device}
}

func (m *MockManager) ListenToDeviceList(ch chan<- []bt.Device) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

func (m *MockManager) ListenToConnectedDevices(ch chan<- []bt.Device) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *MockManager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.logger.Println("MockManager: Shutting down")
		close(m.doneChan)
		m.wg.Wait()
		m.logger.Println("MockManager: Shutdown complete")
	})
}
