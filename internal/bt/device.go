package bt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/squat-coach/internal/safe_map"
	"tinygo.org/x/bluetooth"
)

type DeviceState int

const (
	Disconnected DeviceState = iota
	Connecting
	Connected
)

func (s DeviceState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Device is a peripheral seen during scanning or currently connected.
// Notification subscriptions are the only characteristic operations this
// app needs; there is no read/write path.
type Device interface {
	GetAddressString() string
	GetScanRSSI() (int16, error)
	GetScanLastSeen() time.Time
	SetScanLastSeen(time.Time)
	GetLocalName() string
	IsConnected() bool
	GetState() DeviceState
	IsRecentlyScanned() bool
	WaitForConnection(timeout time.Duration) error
	EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
	GetServiceUUIDs() []string
	HasServiceUUID(uuid string) bool
}

type deviceImpl struct {
	address         bluetooth.Address
	scanLastSeen    time.Time
	localName       string
	scanResult      *bluetooth.ScanResult
	connectedDevice *bluetooth.Device // nil while not connected
	mu              sync.RWMutex
	bleMu           sync.Mutex // serializes characteristic operations
	scanTimeout     time.Duration
	logger          *log.Logger
	state           DeviceState

	serviceByUuid          *safe_map.SafeMap[string, *bluetooth.DeviceService]
	characteristicByUuid   *safe_map.SafeMap[string, *bluetooth.DeviceCharacteristic]
	serviceCharsDiscovered *safe_map.SafeMap[string, bool]
	allServicesDiscovered  bool
	serviceUuids           []bluetooth.UUID
	serviceUuidStrs        []string
}

func newDeviceImpl(
	logger *log.Logger,
	address bluetooth.Address,
	scanTimeout time.Duration,
) *deviceImpl {
	if logger == nil {
		panic("logger must be non nil")
	}
	if scanTimeout <= 0 {
		panic("scanTimeout must be > 0")
	}
	return &deviceImpl{
		logger:                 logger,
		address:                address,
		localName:              "Unknown",
		scanTimeout:            scanTimeout,
		scanLastSeen:           time.Unix(0, 0),
		state:                  Disconnected,
		serviceByUuid:          safe_map.NewSafeMap[string, *bluetooth.DeviceService](),
		characteristicByUuid:   safe_map.NewSafeMap[string, *bluetooth.DeviceCharacteristic](),
		serviceCharsDiscovered: safe_map.NewSafeMap[string, bool](),
		serviceUuids:           make([]bluetooth.UUID, 0),
	}
}

func (d *deviceImpl) getAddress() bluetooth.Address {
	return d.address
}

func (d *deviceImpl) GetAddressString() string {
	return d.address.String()
}

func (d *deviceImpl) GetServiceUUIDs() []string {
	return d.serviceUuidStrs
}

func (d *deviceImpl) HasServiceUUID(uuid string) bool {
	for _, u := range d.serviceUuidStrs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (d *deviceImpl) setServiceUUIDs(serviceUuids []bluetooth.UUID) {
	d.serviceUuids = serviceUuids
	d.serviceUuidStrs = make([]string, 0, len(serviceUuids))
	for _, uuid := range serviceUuids {
		d.serviceUuidStrs = append(d.serviceUuidStrs, uuid.String())
	}
}

// WaitForConnection polls until the connect handler has delivered the
// underlying device, or the timeout elapses.
func (d *deviceImpl) WaitForConnection(timeout time.Duration) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	timeoutChan := time.After(timeout)

	for {
		select {
		case <-ticker.C:
			if d.IsConnected() {
				return nil
			}
		case <-timeoutChan:
			return fmt.Errorf("timeout after %v waiting for connection", timeout)
		}
	}
}

func (d *deviceImpl) EnableNotifications(
	serviceUuidStr string,
	characteristicUuidStr string,
	callbackFunc func(buf []byte)) error {

	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	d.logger.Printf("Device: EnableNotifications for service=%s char=%s", serviceUuidStr, characteristicUuidStr)

	characteristic, err := d.resolveCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		d.logger.Printf("Device: could not resolve characteristic: %v", err)
		return err
	}

	if err := characteristic.EnableNotifications(callbackFunc); err != nil {
		d.logger.Printf("Device: EnableNotifications failed: %v", err)
		return fmt.Errorf("failed to enable notifications: %w", err)
	}

	d.logger.Printf("Device: notifications enabled for %s", characteristicUuidStr)
	return nil
}

func (d *deviceImpl) DisableNotifications(
	serviceUuidStr string,
	characteristicUuidStr string) error {

	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	d.logger.Printf("Device: DisableNotifications for service=%s char=%s", serviceUuidStr, characteristicUuidStr)

	characteristic, err := d.resolveCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		d.logger.Printf("Device: could not resolve characteristic: %v", err)
		return err
	}

	// A nil callback turns notifications off.
	if err := characteristic.EnableNotifications(nil); err != nil {
		d.logger.Printf("Device: DisableNotifications failed: %v", err)
		return fmt.Errorf("failed to disable notifications: %w", err)
	}

	d.logger.Printf("Device: notifications disabled for %s", characteristicUuidStr)
	return nil
}

func (d *deviceImpl) resolveCharacteristic(serviceUuidStr, characteristicUuidStr string) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuid, err := bluetooth.ParseUUID(serviceUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUuidStr, err)
	}

	characteristicUuid, err := bluetooth.ParseUUID(characteristicUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUuidStr, err)
	}

	return d.getDeviceCharacteristic(serviceUuid, characteristicUuid)
}

func (d *deviceImpl) GetScanRSSI() (int16, error) {
	scanResult := d.getScanResult()
	if scanResult == nil {
		return 0, errors.New("no rssi available")
	}
	return scanResult.RSSI, nil
}

func (d *deviceImpl) GetState() DeviceState {
	return d.state
}

func (d *deviceImpl) GetLocalName() string {
	if d.scanResult != nil {
		scanResultLocalName := d.scanResult.LocalName()
		if scanResultLocalName != "" {
			return scanResultLocalName
		}
	}
	return d.localName
}

func (d *deviceImpl) GetScanLastSeen() time.Time {
	return d.scanLastSeen
}

func (d *deviceImpl) SetScanLastSeen(t time.Time) {
	d.scanLastSeen = t
}

func (d *deviceImpl) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectedDevice != nil
}

func (d *deviceImpl) IsRecentlyScanned() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scanResult == nil {
		return false
	}
	return time.Since(d.scanLastSeen) <= d.scanTimeout
}

func (d *deviceImpl) setScanResult(scanResult *bluetooth.ScanResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanResult = scanResult
}

func (d *deviceImpl) getScanResult() *bluetooth.ScanResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scanResult
}

func (d *deviceImpl) setConnectedDevice(device *bluetooth.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectedDevice = device
}

func (d *deviceImpl) getConnectedDevice() *bluetooth.Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectedDevice
}

func (d *deviceImpl) setState(state DeviceState) {
	d.state = state
}

func (d *deviceImpl) getDeviceService(serviceUuid bluetooth.UUID) (*bluetooth.DeviceService, error) {
	if d.getConnectedDevice() == nil {
		return nil, errors.New("no connected device")
	}

	serviceUuidStr := serviceUuid.String()

	service, ok := d.serviceByUuid.Load(serviceUuidStr)
	if ok {
		return service, nil
	}

	// Discover every service in one pass. Re-discovering individual
	// services interrupts operations on services already in use.
	if !d.allServicesDiscovered {
		connectedDevice := d.getConnectedDevice()

		d.logger.Printf("Device: discovering all services")
		deviceServices, err := connectedDevice.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("error discovering services: %w", err)
		}

		for i := range deviceServices {
			svc := &deviceServices[i]
			svcUuidStr := svc.UUID().String()
			d.serviceByUuid.Store(svcUuidStr, svc)
			d.logger.Printf("Device: cached service %s", svcUuidStr)
		}

		d.allServicesDiscovered = true
	}

	service, ok = d.serviceByUuid.Load(serviceUuidStr)
	if !ok {
		return nil, fmt.Errorf("service %v not found on device", serviceUuidStr)
	}

	return service, nil
}

func (d *deviceImpl) getDeviceCharacteristic(serviceUuid bluetooth.UUID, charUuid bluetooth.UUID) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuidStr := serviceUuid.String()
	charUuidStr := charUuid.String()
	comboUuidStr := fmt.Sprintf("%s_%s", serviceUuidStr, charUuidStr)

	characteristic, ok := d.characteristicByUuid.Load(comboUuidStr)
	if ok {
		return characteristic, nil
	}

	if discovered, _ := d.serviceCharsDiscovered.Load(serviceUuidStr); !discovered {
		service, err := d.getDeviceService(serviceUuid)
		if err != nil {
			return nil, err
		}

		// Same story as services: discover all characteristics at once.
		d.logger.Printf("Device: discovering all characteristics for service %s", serviceUuidStr)
		discoveredCharacteristics, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics for service %v: %w", serviceUuidStr, err)
		}

		for i := range discoveredCharacteristics {
			char := &discoveredCharacteristics[i]
			charKey := fmt.Sprintf("%s_%s", serviceUuidStr, char.UUID().String())
			d.characteristicByUuid.Store(charKey, char)
			d.logger.Printf("Device: cached characteristic %s", char.UUID().String())
		}

		d.serviceCharsDiscovered.Store(serviceUuidStr, true)
	}

	characteristic, ok = d.characteristicByUuid.Load(comboUuidStr)
	if !ok {
		return nil, fmt.Errorf("characteristic %v not found in service %v", charUuidStr, serviceUuidStr)
	}

	return characteristic, nil
}
