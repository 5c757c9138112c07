// Package bt wraps the tinygo bluetooth adapter with scan bookkeeping,
// connection state tracking, and notification subscriptions for the
// heart-rate sensors this app pairs with.
package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/squat-coach/internal/events"
	goFuncUtils "github.com/lowaak/squat-coach/internal/go_func_utils"

	"tinygo.org/x/bluetooth"
)

// ManagerInterface is what the rest of the app programs against; the mock
// sensor used in demo mode provides its own implementation.
type ManagerInterface interface {
	Enable() error
	GetDeviceByAddressString(addressString string) Device
	StartScan(serviceUuidFilter []string)
	StopScan() error
	IsScanning() bool
	Connect(device Device) error
	Disconnect(device Device) error
	GetConnectedDevices() []Device
	GetScanDevices() []Device
	ListenToDeviceList(ch chan<- []Device) func()
	ListenToConnectedDevices(ch chan<- []Device) func()
	Shutdown()
}

var _ ManagerInterface = (*Manager)(nil)

type Manager struct {
	adapter               *bluetooth.Adapter
	devicesByAddress      map[string]*deviceImpl
	mu                    sync.RWMutex
	scanning              bool
	scanTimeout           time.Duration
	scanDeviceListEvent   *events.ChannelEvent[[]Device]
	scanContext           context.Context
	scanContextCancel     context.CancelFunc
	connectedDevicesEvent *events.ChannelEvent[[]Device]
	ctx                   context.Context
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
	logger                *log.Logger
}

func NewManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout ...time.Duration) *Manager {
	if logger == nil {
		panic("bt.Manager: logger cannot be nil")
	}
	timeout := 10 * time.Second
	if len(scanTimeout) > 0 && scanTimeout[0] > 0 {
		timeout = scanTimeout[0]
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		adapter:               adapter,
		devicesByAddress:      make(map[string]*deviceImpl),
		scanTimeout:           timeout,
		scanDeviceListEvent:   events.NewChannelEvent[[]Device](true),
		connectedDevicesEvent: events.NewChannelEvent[[]Device](true),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                logger,
	}
}

// GetDeviceByAddressString returns a known Device by address, or nil.
func (m *Manager) GetDeviceByAddressString(addressString string) Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.devicesByAddress[addressString]
	if ok {
		return device
	}
	return nil
}

func (m *Manager) getDeviceImpl(address bluetooth.Address) (*deviceImpl, bool) {
	addressStr := address.String()

	result, ok := m.devicesByAddress[addressStr]

	newObj := false

	if !ok {
		newObj = true
		result = newDeviceImpl(m.logger, address, m.scanTimeout)
		m.devicesByAddress[addressStr] = result
	}
	return result, newObj
}

// Enable powers on the adapter and installs the connect handler that keeps
// device connection state in sync with the stack.
func (m *Manager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addressStr := device.Address.String()

		m.mu.Lock()
		d, _ := m.getDeviceImpl(device.Address)
		m.mu.Unlock()

		if connected {
			m.logger.Printf("Device connected: %s", addressStr)
			d.setConnectedDevice(&device)
			d.setState(Connected)
		} else {
			m.logger.Printf("Device disconnected: %s", addressStr)
			d.setConnectedDevice(nil)
			d.setState(Disconnected)
		}

		m.emitConnectedDevicesChange()
	})

	return m.adapter.Enable()
}

// StartScan begins scanning for advertisements. With a non-nil filter only
// devices advertising one of the given service UUIDs are tracked. A scan
// already in progress is restarted with the new filter.
func (m *Manager) StartScan(serviceUuidFilter []string) {
	m.logger.Println("Starting scan")
	m.mu.Lock()
	defer m.mu.Unlock()

	filterSet := make(map[string]struct{})
	for _, filter := range serviceUuidFilter {
		filterSet[filter] = struct{}{}
	}

	m.logger.Printf("Scan filter set is: %v", filterSet)

	if m.scanning && m.scanContextCancel != nil {
		m.logger.Printf("A scan is already running. Stop the old scan and make a new context...")
		m.scanContextCancel()
	}

	m.scanning = true
	m.scanContext, m.scanContextCancel = context.WithCancel(m.ctx)

	m.wg.Add(1)
	goFuncUtils.SafeGo(m.logger, func() {
		m.cleanupStaleDevices(m.scanContext)
	})

	m.wg.Add(1)
	goFuncUtils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		defer m.logger.Printf("exiting scan handling loop")

		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, device bluetooth.ScanResult) {
			select {
			case <-m.scanContext.Done():
				// ignore the result - still need to StopScan on the adapter
				return
			default:
			}
			addressStr := device.Address.String()
			now := time.Now()

			if serviceUuidFilter != nil {
				found := false
				for _, uuid := range device.ServiceUUIDs() {
					if _, ok := filterSet[uuid.String()]; ok {
						found = true
						break
					}
				}
				if !found {
					return
				}
			}

			m.mu.Lock()
			d, newObj := m.getDeviceImpl(device.Address)
			m.mu.Unlock()

			d.setScanResult(&device)
			d.SetScanLastSeen(now)
			name := device.LocalName()
			if name == "" {
				name = "Unknown"
			}
			if newObj {
				d.setServiceUUIDs(device.ServiceUUIDs())
				m.logger.Printf("Found device: %s (%s) [RSSI: %d]", name, addressStr, device.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("Scan error: %v", err)
		}
	})

	// Emit current scan results every 1 second
	m.wg.Add(1)
	goFuncUtils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		defer m.logger.Printf("exiting scan emit event ticker loop")

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-m.scanContext.Done():
				return
			case <-ticker.C:
				scanDevices := m.GetScanDevices()
				m.scanDeviceListEvent.Notify(scanDevices)
			}
		}
	})
}

// Shutdown disconnects every device, stops scanning, and waits for all
// goroutines to finish.
func (m *Manager) Shutdown() {
	m.logger.Println("bt.Manager: Shutting down")
	connectedDevices := m.GetConnectedDevices()
	m.logger.Printf("Number of connected devices %v", len(connectedDevices))
	for _, dev := range connectedDevices {
		err := m.Disconnect(dev)
		if err != nil {
			m.logger.Printf("Error disconnecting from %v: %v", dev.GetAddressString(), err)
		} else {
			m.logger.Printf("Disconnected from %v", dev.GetAddressString())
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("bt.Manager: Error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("bt.Manager: Shutdown complete")
}

func (m *Manager) cleanupStaleDevices(ctx context.Context) {
	defer m.wg.Done()
	defer m.logger.Printf("exiting cleanup stale devices loop")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			var removed []string
			for mac, device := range m.devicesByAddress {
				// Connected devices stop advertising; never expire them.
				if device.IsConnected() {
					continue
				}
				if now.Sub(device.GetScanLastSeen()) > m.scanTimeout {
					delete(m.devicesByAddress, mac)
					removed = append(removed, mac)
				}
			}
			m.mu.Unlock()

			for _, mac := range removed {
				m.logger.Printf("Device timeout: %s (not seen for %v)", mac, m.scanTimeout)
			}
		}
	}
}

func (m *Manager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanning = false
	if m.scanContextCancel != nil {
		m.scanContextCancel()
		m.scanContextCancel = nil
	}
	return m.adapter.StopScan()
}

// IsScanning reports whether a scan is in progress
func (m *Manager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect initiates a connection. The result is reported asynchronously
// through the adapter's connect handler.
func (m *Manager) Connect(device Device) error {
	addressStr := device.GetAddressString()
	m.logger.Printf("bt.Manager: Attempting to connect to device: %s", addressStr)

	m.mu.RLock()
	impl, ok := m.devicesByAddress[addressStr]
	m.mu.RUnlock()
	if !ok || impl == nil {
		return fmt.Errorf("unknown device %s", addressStr)
	}

	params := bluetooth.ConnectionParams{}

	_, err := m.adapter.Connect(impl.getAddress(), params)
	if err != nil {
		m.logger.Printf("bt.Manager: Connection error: %v", err)
		return err
	}

	impl.setState(Connecting)

	m.logger.Printf("bt.Manager: Connection initiated to device: %s", addressStr)
	return nil
}

func (m *Manager) Disconnect(device Device) error {
	addressStr := device.GetAddressString()
	m.logger.Printf("bt.Manager: Attempting to disconnect from device: %s", addressStr)

	m.mu.RLock()
	impl, ok := m.devicesByAddress[addressStr]
	m.mu.RUnlock()
	if !ok || impl == nil {
		return fmt.Errorf("unknown device %s", addressStr)
	}
	if impl.GetState() == Disconnected {
		m.logger.Printf("Device already in disconnected state")
		return nil
	}
	innerDevice := impl.getConnectedDevice()
	if innerDevice == nil {
		m.logger.Printf("Tried to disconnect but device was nil")
		return nil
	}
	return innerDevice.Disconnect()
}

// GetConnectedDevices returns all currently connected devices
func (m *Manager) GetConnectedDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Device, 0)
	for _, device := range m.devicesByAddress {
		if device.IsConnected() {
			result = append(result, device)
		}
	}
	return result
}

func (m *Manager) GetScanDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Device, 0)
	for _, device := range m.devicesByAddress {
		if device.IsRecentlyScanned() {
			result = append(result, device)
		}
	}
	return result
}

// ListenToDeviceList registers a channel to receive scan list changes.
// Events are emitted at most once per second.
// Returns a deregistration function that can be called to remove the listener
func (m *Manager) ListenToDeviceList(ch chan<- []Device) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

// ListenToConnectedDevices registers a channel to receive connected devices list changes
// Returns a deregistration function that can be called to remove the listener
func (m *Manager) ListenToConnectedDevices(ch chan<- []Device) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *Manager) emitConnectedDevicesChange() {
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
}
