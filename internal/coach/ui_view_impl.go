package coach

// UIViewImpl is the interface that UI framework implementations must satisfy.
// BaseUIView drives an implementation with model updates; the implementation
// owns the widgets and keyboard handling.
type UIViewImpl interface {
	// Initialize sets up the framework-specific widgets
	Initialize(controller *UIController)

	// SetupKeyboardHandlers wires keyboard input to controller actions
	SetupKeyboardHandlers(controller *UIController)

	// Run starts the UI main loop and blocks until it exits
	Run() error

	// Stop terminates the UI main loop
	Stop()

	// Draw schedules a redraw of the UI
	Draw() error

	// SetMode switches the visible page
	SetMode(mode UIMode)

	// GetCurrentMode returns the currently visible page's mode
	GetCurrentMode() UIMode

	// GetLogViewHeight returns the visible height of the log view in lines
	GetLogViewHeight() int

	// ClearLogView empties the log view
	ClearLogView()

	// WriteLogLine appends one line to the log view
	WriteLogLine(line string) error

	// SetScanDeviceList replaces the scan result list for a device type
	SetScanDeviceList(deviceTypeID DeviceTypeID, devices []string)

	// SetConnectedDeviceByDeviceType updates the connected device display
	SetConnectedDeviceByDeviceType(devices UIDeviceModelByDeviceType)

	// UpdateLatestData refreshes the metric display
	UpdateLatestData(data MetricData)

	// UpdateSessionState refreshes the session dashboard
	UpdateSessionState(state SessionState)

	// UpdateCameraAvailability refreshes the camera status display
	UpdateCameraAvailability(available bool)
}
