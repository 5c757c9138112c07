package coach

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/lowaak/squat-coach/internal/bt"
	"github.com/lowaak/squat-coach/internal/camera"
	"github.com/lowaak/squat-coach/internal/events"
	goFuncUtils "github.com/lowaak/squat-coach/internal/go_func_utils"
)

type UIDeviceModel struct {
	Name    string
	Address string
	RSSI    int16
}

// UIState holds the current state of the UI that views need to render
type UIState struct {
	Mode UIMode
}

type UIDeviceModelByDeviceType map[DeviceTypeID][]*UIDeviceModel
type btDevicesByDeviceType map[DeviceTypeID][]bt.Device

// MetricData holds the most recent value for each metric
type MetricData map[MetricID]float64

// AutoConnectRequest asks the controller to reconnect a remembered device
type AutoConnectRequest struct {
	DeviceTypeID DeviceTypeID
	Device       *UIDeviceModel
}

type SessionModel struct {
	logEvent                         *events.ChannelEvent[string]
	scanDevicesEvent                 *events.ChannelEvent[UIDeviceModelByDeviceType]
	scanDevicesByDeviceType          btDevicesByDeviceType
	connectedDeviceByDeviceTypeEvent *events.ChannelEvent[UIDeviceModelByDeviceType]
	connectedDeviceByDeviceType      map[DeviceTypeID]*UIDeviceModel
	closeApplicationEvent            *events.ChannelEvent[struct{}]
	uiStateEvent                     *events.ChannelEvent[UIState]
	uiState                          UIState
	latestDataEvent                  *events.ChannelEvent[MetricData]
	latestData                       MetricData
	sessionStateEvent                *events.ChannelEvent[SessionState]
	sessionState                     SessionState
	cameraAvailableEvent             *events.ChannelEvent[bool]
	cameraAvailable                  bool
	autoConnectEvent                 *events.ChannelEvent[AutoConnectRequest]
	autoConnectAttempted             map[DeviceTypeID]bool
	persistence                      *ModelPersistence
	logLines                         []string
	logMu                            sync.RWMutex
	mu                               sync.RWMutex
	ctx                              context.Context
	cancel                           context.CancelFunc
	wg                               sync.WaitGroup
	logger                           *log.Logger
}

const maxLogLines = 1000

func NewSessionModel(
	manager bt.ManagerInterface,
	cam camera.ManagerInterface,
	persistence *ModelPersistence,
	logger *log.Logger,
	uiLogChan <-chan string,
) *SessionModel {
	if logger == nil {
		panic("SessionModel: logger cannot be nil")
	}
	if cam == nil {
		panic("SessionModel: camera manager cannot be nil")
	}
	if persistence == nil {
		panic("SessionModel: persistence cannot be nil")
	}
	if uiLogChan == nil {
		panic("SessionModel: uiLogChan cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	model := &SessionModel{
		logEvent:                         events.NewChannelEvent[string](false),
		scanDevicesEvent:                 events.NewChannelEvent[UIDeviceModelByDeviceType](true),
		connectedDeviceByDeviceTypeEvent: events.NewChannelEvent[UIDeviceModelByDeviceType](true),
		closeApplicationEvent:            events.NewChannelEvent[struct{}](true),
		uiStateEvent:                     events.NewChannelEvent[UIState](true),
		uiState:                          UIState{Mode: UIModeDeviceManagement},
		latestDataEvent:                  events.NewChannelEvent[MetricData](true),
		latestData:                       make(MetricData),
		sessionStateEvent:                events.NewChannelEvent[SessionState](true),
		sessionState: SessionState{
			FormFeedback: SessionReadyFeedback,
			FormScore:    FormScoreGood,
		},
		cameraAvailableEvent:        events.NewChannelEvent[bool](true),
		cameraAvailable:             cam.Available(),
		autoConnectEvent:            events.NewChannelEvent[AutoConnectRequest](false),
		autoConnectAttempted:        make(map[DeviceTypeID]bool),
		persistence:                 persistence,
		scanDevicesByDeviceType:     make(btDevicesByDeviceType),
		connectedDeviceByDeviceType: make(map[DeviceTypeID]*UIDeviceModel),
		logLines:                    make([]string, 0, maxLogLines),
		ctx:                         ctx,
		cancel:                      cancel,
		logger:                      logger,
	}

	// Listen to device list changes from the bt manager
	model.wg.Add(1)
	goFuncUtils.SafeGo(model.logger, func() { model.listenToScanDevices(ctx, manager) })

	// Listen to physical device connection changes from the bt manager.
	// This is used to clear device assignments when devices disconnect.
	model.wg.Add(1)
	goFuncUtils.SafeGo(model.logger, func() { model.listenToPhysicalConnections(ctx, manager) })

	// Listen to camera availability changes
	model.wg.Add(1)
	goFuncUtils.SafeGo(model.logger, func() { model.listenToCameraAvailability(ctx, cam) })

	// Read from the UI log channel and populate logLines
	model.wg.Add(1)
	goFuncUtils.SafeGo(model.logger, func() { model.readFromLogChannel(ctx, uiLogChan) })

	return model
}

// Shutdown stops all goroutines and waits for them to finish
func (m *SessionModel) Shutdown() {
	m.logger.Println("SessionModel: Shutting down")
	m.cancel()
	m.wg.Wait()
	m.logger.Println("SessionModel: Shutdown complete")
}

// ListenToLog registers a channel to receive log messages
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

// ListenToScanDevices registers a channel to receive scan device list changes
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToScanDevices(ch chan<- UIDeviceModelByDeviceType) func() {
	return m.scanDevicesEvent.Listen(ch)
}

// ListenToConnectedDeviceByDeviceType registers a channel to receive connected device by device type changes
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToConnectedDeviceByDeviceType(ch chan<- UIDeviceModelByDeviceType) func() {
	return m.connectedDeviceByDeviceTypeEvent.Listen(ch)
}

// ListenToCloseApplication registers a channel to receive close application signals
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

// RequestCloseApplication signals that the application should close
func (m *SessionModel) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}

// ListenToAutoConnect registers a channel to receive auto-connect requests
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToAutoConnect(ch chan<- AutoConnectRequest) func() {
	return m.autoConnectEvent.Listen(ch)
}

// ListenToUIState registers a channel to receive UI state changes
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToUIState(ch chan<- UIState) func() {
	return m.uiStateEvent.Listen(ch)
}

// GetUIState returns the current UI state
func (m *SessionModel) GetUIState() UIState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uiState
}

// SetMode updates the current UI mode and notifies listeners
func (m *SessionModel) SetMode(mode UIMode) {
	m.mu.Lock()
	if m.uiState.Mode == mode {
		m.mu.Unlock()
		return
	}
	m.uiState.Mode = mode
	state := m.uiState
	m.mu.Unlock()

	m.uiStateEvent.Notify(state)
}

// ListenToLatestData registers a channel to receive latest data updates
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToLatestData(ch chan<- MetricData) func() {
	return m.latestDataEvent.Listen(ch)
}

// GetLatestData returns a copy of the current latest data map
func (m *SessionModel) GetLatestData() MetricData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(MetricData)
	for k, v := range m.latestData {
		result[k] = v
	}
	return result
}

// SetMetric updates a single metric value and notifies listeners
func (m *SessionModel) SetMetric(metricID MetricID, value float64) {
	m.mu.Lock()
	m.latestData[metricID] = value
	dataCopy := make(MetricData)
	for k, v := range m.latestData {
		dataCopy[k] = v
	}
	m.mu.Unlock()

	m.latestDataEvent.Notify(dataCopy)
}

// SetMetrics updates multiple metric values and notifies listeners once
func (m *SessionModel) SetMetrics(metrics MetricData) {
	if len(metrics) == 0 {
		return
	}

	m.mu.Lock()
	for k, v := range metrics {
		m.latestData[k] = v
	}
	dataCopy := make(MetricData)
	for k, v := range m.latestData {
		dataCopy[k] = v
	}
	m.mu.Unlock()

	m.latestDataEvent.Notify(dataCopy)
}

// ListenToSessionState registers a channel to receive session state updates
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToSessionState(ch chan<- SessionState) func() {
	return m.sessionStateEvent.Listen(ch)
}

// GetSessionState returns the current session state
func (m *SessionModel) GetSessionState() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionState
}

// SetSessionState updates the session state and notifies listeners
func (m *SessionModel) SetSessionState(state SessionState) {
	m.mu.Lock()
	m.sessionState = state
	stateCopy := m.sessionState
	m.mu.Unlock()

	m.sessionStateEvent.Notify(stateCopy)
}

// RecordCompletedSession adds a finished session's reps to the lifetime total
func (m *SessionModel) RecordCompletedSession(reps int) {
	total := m.persistence.AddCompletedSession(reps)
	m.logger.Printf("SessionModel: Recorded session of %d reps (lifetime total: %d)", reps, total)
}

// GetLifetimeReps returns the persisted lifetime rep total
func (m *SessionModel) GetLifetimeReps() int {
	return m.persistence.GetLifetimeReps()
}

// ListenToCameraAvailability registers a channel to receive camera availability changes
// Returns a deregistration function that can be called to remove the listener
func (m *SessionModel) ListenToCameraAvailability(ch chan<- bool) func() {
	return m.cameraAvailableEvent.Listen(ch)
}

// IsCameraAvailable returns the last known camera availability
func (m *SessionModel) IsCameraAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cameraAvailable
}

// GetScanDevices returns the current sorted scan device list
func (m *SessionModel) GetScanDevices() UIDeviceModelByDeviceType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return convertDevicesByDeviceTypeToUIDeviceModelByDeviceType(m.scanDevicesByDeviceType)
}

// GetConnectedDeviceForDeviceType returns the connected device for a specific device type
func (m *SessionModel) GetConnectedDeviceForDeviceType(deviceTypeID DeviceTypeID) *UIDeviceModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectedDeviceByDeviceType[deviceTypeID]
}

// SetConnectedDeviceForDeviceType sets the connected device for a specific device type,
// remembers it as the preferred device, and notifies listeners
func (m *SessionModel) SetConnectedDeviceForDeviceType(deviceTypeID DeviceTypeID, device *UIDeviceModel) {
	m.mu.Lock()
	m.connectedDeviceByDeviceType[deviceTypeID] = device
	result := m.buildConnectedDeviceByDeviceTypeSnapshot()
	m.mu.Unlock()

	if device != nil {
		m.persistence.SetPreferredDevice(deviceTypeID, device.Address)
	}

	m.connectedDeviceByDeviceTypeEvent.Notify(result)
}

// ClearConnectedDeviceForDeviceType clears the connected device for a specific device type and notifies listeners
func (m *SessionModel) ClearConnectedDeviceForDeviceType(deviceTypeID DeviceTypeID) {
	m.mu.Lock()
	delete(m.connectedDeviceByDeviceType, deviceTypeID)
	result := m.buildConnectedDeviceByDeviceTypeSnapshot()
	m.mu.Unlock()

	m.connectedDeviceByDeviceTypeEvent.Notify(result)
}

// buildConnectedDeviceByDeviceTypeSnapshot creates a snapshot of the connected devices map
// Must be called with mu held
func (m *SessionModel) buildConnectedDeviceByDeviceTypeSnapshot() UIDeviceModelByDeviceType {
	result := make(UIDeviceModelByDeviceType)
	for deviceTypeID, device := range m.connectedDeviceByDeviceType {
		if device != nil {
			result[deviceTypeID] = []*UIDeviceModel{device}
		}
	}
	return result
}

// readFromLogChannel reads log lines from the channel and populates logLines
func (m *SessionModel) readFromLogChannel(ctx context.Context, logChan <-chan string) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				return
			}

			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n lines of logs
func (m *SessionModel) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}

	if n >= len(m.logLines) {
		result := make([]string, len(m.logLines))
		copy(result, m.logLines)
		return result
	}

	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}

// listenToCameraAvailability mirrors camera manager availability into the model
func (m *SessionModel) listenToCameraAvailability(ctx context.Context, cam camera.ManagerInterface) {
	defer m.wg.Done()

	availableChan := make(chan bool, 1)
	unregister := cam.ListenToAvailability(availableChan)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case available, ok := <-availableChan:
			if !ok {
				return
			}

			m.mu.Lock()
			changed := m.cameraAvailable != available
			m.cameraAvailable = available
			m.mu.Unlock()

			if changed {
				m.logger.Printf("SessionModel: Camera availability changed to %t", available)
			}
			m.cameraAvailableEvent.Notify(available)
		}
	}
}

// listenToScanDevices listens to the bt manager's device list event, updates
// the internal sorted device list grouped by device type, and emits it to the
// view event. It also raises auto-connect requests for remembered devices.
func (m *SessionModel) listenToScanDevices(ctx context.Context, manager bt.ManagerInterface) {
	defer m.wg.Done()

	deviceChan := make(chan []bt.Device, 1)
	unregister := manager.ListenToDeviceList(deviceChan)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case devices, ok := <-deviceChan:
			if !ok {
				return
			}

			sortedDevices := sortDevices(devices)

			devicesByDeviceType := make(btDevicesByDeviceType)

			// Group devices by device type based on scan service UUIDs
			for _, deviceType := range AllDeviceTypes {
				if _, ok := devicesByDeviceType[deviceType.ID]; !ok {
					devicesByDeviceType[deviceType.ID] = make([]bt.Device, 0)
				}
				for _, device := range sortedDevices {
					for _, scanUUID := range deviceType.ScanServiceUUIDs {
						if device.HasServiceUUID(scanUUID) {
							devicesByDeviceType[deviceType.ID] = append(devicesByDeviceType[deviceType.ID], device)
							break // Don't add same device twice
						}
					}
				}
			}

			m.mu.Lock()
			m.scanDevicesByDeviceType = devicesByDeviceType
			result := convertDevicesByDeviceTypeToUIDeviceModelByDeviceType(m.scanDevicesByDeviceType)
			m.mu.Unlock()

			m.scanDevicesEvent.Notify(result)

			m.checkAutoConnect(result)
		}
	}
}

// checkAutoConnect raises an auto-connect request once per device type when a
// remembered preferred device shows up in scan results.
func (m *SessionModel) checkAutoConnect(scanResults UIDeviceModelByDeviceType) {
	for _, deviceType := range AllDeviceTypes {
		preferred := m.persistence.GetPreferredDevice(deviceType.ID)
		if preferred == "" {
			continue
		}

		m.mu.Lock()
		attempted := m.autoConnectAttempted[deviceType.ID]
		alreadyAssigned := m.connectedDeviceByDeviceType[deviceType.ID] != nil
		m.mu.Unlock()
		if attempted || alreadyAssigned {
			continue
		}

		for _, device := range scanResults[deviceType.ID] {
			if device.Address != preferred {
				continue
			}

			m.mu.Lock()
			m.autoConnectAttempted[deviceType.ID] = true
			m.mu.Unlock()

			m.logger.Printf("SessionModel: Preferred %s %s found in scan, requesting auto-connect", deviceType.ID, preferred)
			m.autoConnectEvent.Notify(AutoConnectRequest{
				DeviceTypeID: deviceType.ID,
				Device:       device,
			})
			break
		}
	}
}

// listenToPhysicalConnections listens to the bt manager's connected devices event.
// When a device disconnects physically, we clear any device type assignments for it.
func (m *SessionModel) listenToPhysicalConnections(ctx context.Context, manager bt.ManagerInterface) {
	defer m.wg.Done()

	deviceChan := make(chan []bt.Device, 1)
	unregister := manager.ListenToConnectedDevices(deviceChan)
	defer unregister()

	prevConnectedAddresses := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return
		case devices, ok := <-deviceChan:
			if !ok {
				return
			}

			currentConnectedAddresses := make(map[string]bool)
			for _, dev := range devices {
				currentConnectedAddresses[dev.GetAddressString()] = true
			}

			disconnectedAddresses := make([]string, 0)
			for addr := range prevConnectedAddresses {
				if !currentConnectedAddresses[addr] {
					disconnectedAddresses = append(disconnectedAddresses, addr)
				}
			}

			if len(disconnectedAddresses) > 0 {
				m.mu.Lock()
				changed := false
				for deviceTypeID, device := range m.connectedDeviceByDeviceType {
					if device != nil {
						for _, addr := range disconnectedAddresses {
							if device.Address == addr {
								delete(m.connectedDeviceByDeviceType, deviceTypeID)
								changed = true
								m.logger.Printf("SessionModel: Cleared device type %s assignment due to device disconnect: %s", deviceTypeID, addr)
							}
						}
					}
				}
				var result UIDeviceModelByDeviceType
				if changed {
					result = m.buildConnectedDeviceByDeviceTypeSnapshot()
				}
				m.mu.Unlock()

				if changed {
					m.connectedDeviceByDeviceTypeEvent.Notify(result)
				}
			}

			prevConnectedAddresses = currentConnectedAddresses
		}
	}
}

func sortDevices(devices []bt.Device) []bt.Device {
	sorted := make([]bt.Device, len(devices))
	copy(sorted, devices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].GetAddressString() < sorted[j].GetAddressString()
	})
	return sorted
}

func convertDevicesToUIModels(devices []bt.Device) []*UIDeviceModel {
	uiDeviceModels := make([]*UIDeviceModel, 0, len(devices))
	for _, device := range devices {
		rssi, err := device.GetScanRSSI()
		if err != nil {
			rssi = 0
		}

		uiDeviceModels = append(uiDeviceModels, &UIDeviceModel{
			Name:    device.GetLocalName(),
			Address: device.GetAddressString(),
			RSSI:    rssi,
		})
	}
	return uiDeviceModels
}

func convertDevicesByDeviceTypeToUIDeviceModelByDeviceType(devicesByDeviceType btDevicesByDeviceType) UIDeviceModelByDeviceType {
	result := make(UIDeviceModelByDeviceType)
	for deviceTypeID, deviceSlice := range devicesByDeviceType {
		result[deviceTypeID] = convertDevicesToUIModels(deviceSlice)
	}
	return result
}
