package coach

import (
	"fmt"
	"log"
	"time"

	"github.com/lowaak/squat-coach/internal/bt"
)

const connectionWaitTimeout = 10 * time.Second

// DeviceHandler connects sensors, subscribes to their notification streams,
// and feeds decoded metric values into the model.
type DeviceHandler struct {
	manager bt.ManagerInterface
	model   *SessionModel
	logger  *log.Logger
}

func NewDeviceHandler(manager bt.ManagerInterface, model *SessionModel, logger *log.Logger) *DeviceHandler {
	if manager == nil {
		panic("DeviceHandler: manager cannot be nil")
	}
	if model == nil {
		panic("DeviceHandler: model cannot be nil")
	}
	if logger == nil {
		panic("DeviceHandler: logger cannot be nil")
	}
	return &DeviceHandler{
		manager: manager,
		model:   model,
		logger:  logger,
	}
}

// StartScan starts scanning for the services any known device type advertises
func (h *DeviceHandler) StartScan() {
	h.manager.StartScan(GetUniqueServiceUUIDs())
}

// StopScan stops an active scan
func (h *DeviceHandler) StopScan() error {
	return h.manager.StopScan()
}

// IsScanning reports whether a scan is running
func (h *DeviceHandler) IsScanning() bool {
	return h.manager.IsScanning()
}

// ConnectAndSubscribe connects to the device at the given address, waits for
// the connection to establish, enables notifications for every stream the
// device type defines, and assigns the device to that type in the model
func (h *DeviceHandler) ConnectAndSubscribe(deviceTypeID DeviceTypeID, address string) error {
	deviceType, ok := GetDeviceTypeByID(deviceTypeID)
	if !ok {
		return fmt.Errorf("unknown device type: %s", deviceTypeID)
	}

	device := h.manager.GetDeviceByAddressString(address)
	if device == nil {
		return fmt.Errorf("device not found in scan results: %s", address)
	}

	if !device.IsConnected() {
		h.logger.Printf("DeviceHandler: Connecting to %s for %s", address, deviceTypeID)
		if err := h.manager.Connect(device); err != nil {
			return fmt.Errorf("connect to %s failed: %w", address, err)
		}
		if err := device.WaitForConnection(connectionWaitTimeout); err != nil {
			return fmt.Errorf("connection to %s did not establish: %w", address, err)
		}
	}

	for _, stream := range deviceType.GetNotifyStreams() {
		if !device.HasServiceUUID(stream.ServiceUUID) {
			h.logger.Printf("DeviceHandler: Device %s does not advertise service %s, subscribing anyway", address, stream.ServiceUUID)
		}
		handler := h.createNotificationHandler(stream.ID)
		if err := device.EnableNotifications(stream.ServiceUUID, stream.CharacteristicUUID, handler); err != nil {
			return fmt.Errorf("enable notifications for %s on %s failed: %w", stream.ID, address, err)
		}
		h.logger.Printf("DeviceHandler: Subscribed to %s on %s", stream.ID, address)
	}

	h.model.SetConnectedDeviceForDeviceType(deviceTypeID, &UIDeviceModel{
		Name:    device.GetLocalName(),
		Address: device.GetAddressString(),
	})

	return nil
}

// UnsubscribeDeviceType disables notifications and disconnects the device
// currently assigned to the given device type
func (h *DeviceHandler) UnsubscribeDeviceType(deviceTypeID DeviceTypeID) error {
	assigned := h.model.GetConnectedDeviceForDeviceType(deviceTypeID)
	if assigned == nil {
		return nil
	}

	device := h.manager.GetDeviceByAddressString(assigned.Address)
	if device == nil {
		h.model.ClearConnectedDeviceForDeviceType(deviceTypeID)
		return nil
	}

	deviceType, ok := GetDeviceTypeByID(deviceTypeID)
	if ok && device.IsConnected() {
		for _, stream := range deviceType.GetNotifyStreams() {
			if err := device.DisableNotifications(stream.ServiceUUID, stream.CharacteristicUUID); err != nil {
				h.logger.Printf("DeviceHandler: DisableNotifications for %s failed: %v", stream.ID, err)
			}
		}
	}

	h.model.ClearConnectedDeviceForDeviceType(deviceTypeID)

	if err := h.manager.Disconnect(device); err != nil {
		return fmt.Errorf("disconnect from %s failed: %w", assigned.Address, err)
	}
	return nil
}

// createNotificationHandler returns the notification callback for a stream
func (h *DeviceHandler) createNotificationHandler(streamID DataStreamID) func(buf []byte) {
	switch streamID {
	case StreamHeartRate:
		return func(buf []byte) {
			hr, err := parseHeartRateData(buf)
			if err != nil {
				h.logger.Printf("DeviceHandler: Dropping heart rate notification: %v", err)
				return
			}
			h.model.SetMetrics(MetricData{MetricHeartRate: float64(hr)})
		}
	default:
		return func(buf []byte) {
			h.logger.Printf("DeviceHandler: No decoder for stream %s, dropping %d bytes", streamID, len(buf))
		}
	}
}

// parseHeartRateData decodes a Heart Rate Measurement characteristic value.
// Flags bit 0 selects between a uint8 and a uint16 heart rate value.
func parseHeartRateData(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("heart rate payload too short: %d bytes", len(buf))
	}

	flags := buf[0]
	if flags&0x01 == 0 {
		return int(buf[1]), nil
	}

	if len(buf) < 3 {
		return 0, fmt.Errorf("heart rate payload too short for uint16 value: %d bytes", len(buf))
	}
	return int(uint16(buf[1]) | uint16(buf[2])<<8), nil
}
