package coach

import (
	"fmt"
	"log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Page names for tview.Pages
const (
	pageDeviceManagement = "device_management"
	pageSessionDashboard = "session_dashboard"
)

// CursesUIViewImpl implements UIViewImpl using tview (curses-based terminal UI)
type CursesUIViewImpl struct {
	logger      *log.Logger
	app         *tview.Application
	model       *SessionModel
	currentMode UIMode

	// Root container that holds all pages
	pages *tview.Pages

	// Shared components (visible in all modes)
	logView  *tview.TextView
	mainFlex *tview.Flex // Main layout: mode content on left, logs on right

	// Device Management mode components
	deviceMgmtFlex       *tview.Flex
	scanDeviceLists      map[DeviceTypeID]*tview.List
	connectedDeviceTexts map[DeviceTypeID]*tview.TextView // Per-device-type connected device display
	deviceMgmtTabWidgets []*tview.Box

	// Session Dashboard mode components
	sessionDashboardFlex       *tview.Flex
	sessionDashboardTabWidgets []*tview.Box
	sessionPanel               *tview.TextView
	metricsPanel               *tview.TextView

	// Last rendered dashboard state, kept so camera and session updates can
	// redraw the panel together
	lastSessionState    SessionState
	lastCameraAvailable bool
}

func NewCursesUIView(logger *log.Logger, app *tview.Application, model *SessionModel) *CursesUIViewImpl {
	return &CursesUIViewImpl{
		logger:               logger,
		app:                  app,
		model:                model,
		currentMode:          UIModeDeviceManagement,
		scanDeviceLists:      make(map[DeviceTypeID]*tview.List),
		connectedDeviceTexts: make(map[DeviceTypeID]*tview.TextView),
	}
}

// Initialize sets up the tview widgets
func (ui *CursesUIViewImpl) Initialize(controller *UIController) {
	// Create shared log view
	// Note: Don't use SetChangedFunc with app.Draw() - it can cause hangs during shutdown
	// when the app has been stopped but log messages are still being written.
	// The BaseUIView's event listeners already call Draw() after updating content.
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	// Create pages container for mode switching
	ui.pages = tview.NewPages()

	// Initialize each mode
	ui.initDeviceManagementMode(controller)
	ui.initSessionDashboardMode(controller)

	// Add pages
	ui.pages.AddPage(pageDeviceManagement, ui.deviceMgmtFlex, true, true)
	ui.pages.AddPage(pageSessionDashboard, ui.sessionDashboardFlex, true, false)

	// Create main layout: pages on left, logs on right
	ui.mainFlex = tview.NewFlex().
		AddItem(ui.pages, 0, 1, true).
		AddItem(ui.logView, 0, 1, false)

	// Set initial focus
	ui.setFocusForCurrentMode()
}

// initDeviceManagementMode sets up the Device Management mode UI
func (ui *CursesUIViewImpl) initDeviceManagementMode(controller *UIController) {
	// Create instructions box at the top
	instructionsText := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	instructionsText.SetText("[yellow]S[white] Toggle Scan  |  [yellow]Tab[white] Cycle Devices  |  [yellow]Enter[white] Connect  |  [yellow]D[white] Disconnect\n[yellow]1[white] Devices  |  [yellow]2[white] Session")

	// Create a horizontal flex to hold each device type's column
	deviceTypesRowFlex := tview.NewFlex().SetDirection(tview.FlexColumn)

	for _, deviceType := range AllDeviceTypes {
		deviceType := deviceType // Capture loop variable

		// Create a vertical flex for this device type: scan list + connected device display
		deviceTypeColumnFlex := tview.NewFlex().SetDirection(tview.FlexRow)

		// Scan device list for this device type
		deviceTypeList := tview.NewList().
			ShowSecondaryText(false).
			SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
				ui.logger.Printf("UI: Device selected from %s list: index=%d, text=%s", deviceType.ID, index, mainText)
				scanDevicesByDeviceType := ui.model.GetScanDevices()
				devices, ok := scanDevicesByDeviceType[deviceType.ID]
				if !ok {
					ui.logger.Printf("UI: No devices found for device type %s", deviceType.ID)
					return
				}
				ui.logger.Printf("UI: Found %d devices for device type %s", len(devices), deviceType.ID)
				if index < len(devices) {
					selected := devices[index]
					ui.logger.Printf("UI: Connecting to %s (%s) for device type %s", selected.Name, selected.Address, deviceType.ID)
					controller.ScanDeviceSelected(deviceType.ID, selected)
				} else {
					ui.logger.Printf("UI: Index %d out of range (have %d devices)", index, len(devices))
				}
			})
		deviceTypeList.SetBorder(true).SetTitle(fmt.Sprintf(" %s ", deviceType.DisplayName))
		ui.scanDeviceLists[deviceType.ID] = deviceTypeList

		// Connected device text for this device type
		connectedText := tview.NewTextView().
			SetDynamicColors(true).
			SetTextAlign(tview.AlignLeft)
		connectedText.SetBorder(true).SetTitle(" Connected ")
		connectedText.SetText(" [gray]None[white]")
		ui.connectedDeviceTexts[deviceType.ID] = connectedText

		// Add to column: scan list takes most space, connected indicator is small
		deviceTypeColumnFlex.AddItem(deviceTypeList, 0, 4, true)
		deviceTypeColumnFlex.AddItem(connectedText, 3, 0, false)

		// Add column to row
		deviceTypesRowFlex.AddItem(deviceTypeColumnFlex, 0, 1, false)

		// Add scan list to tab widgets for focus cycling
		ui.deviceMgmtTabWidgets = append(ui.deviceMgmtTabWidgets, deviceTypeList.Box)
	}

	// Create device management layout: instructions at top, device types below
	ui.deviceMgmtFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(instructionsText, 2, 0, false).
		AddItem(deviceTypesRowFlex, 0, 1, true)
}

// initSessionDashboardMode sets up the Session Dashboard mode UI
func (ui *CursesUIViewImpl) initSessionDashboardMode(controller *UIController) {
	// Create session panel for the squat session display
	ui.sessionPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.sessionPanel.SetBorder(true).SetTitle(" Session ")
	ui.lastSessionState = SessionState{
		FormFeedback: SessionReadyFeedback,
		FormScore:    FormScoreGood,
	}
	ui.updateSessionDisplay()

	// Create metrics panel for displaying live data
	ui.metricsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.metricsPanel.SetBorder(true).SetTitle(" Metrics ")
	ui.updateMetricsDisplay(nil) // Initialize with no data

	ui.sessionDashboardTabWidgets = append(ui.sessionDashboardTabWidgets, ui.sessionPanel.Box)
	ui.sessionDashboardTabWidgets = append(ui.sessionDashboardTabWidgets, ui.metricsPanel.Box)

	// Create session dashboard layout: session panel + metrics side by side
	ui.sessionDashboardFlex = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(ui.sessionPanel, 0, 2, true).
		AddItem(ui.metricsPanel, 0, 1, false)
}

// SetMode switches the UI to the specified mode
func (ui *CursesUIViewImpl) SetMode(mode UIMode) {
	if ui.currentMode == mode {
		return
	}

	ui.currentMode = mode

	switch mode {
	case UIModeDeviceManagement:
		ui.pages.SwitchToPage(pageDeviceManagement)
	case UIModeSessionDashboard:
		ui.pages.SwitchToPage(pageSessionDashboard)
	}

	ui.setFocusForCurrentMode()
	ui.app.Draw()
}

// GetCurrentMode returns the currently active UI mode
func (ui *CursesUIViewImpl) GetCurrentMode() UIMode {
	return ui.currentMode
}

// setFocusForCurrentMode sets focus to the first widget in the current mode
func (ui *CursesUIViewImpl) setFocusForCurrentMode() {
	var widgets []*tview.Box
	switch ui.currentMode {
	case UIModeDeviceManagement:
		widgets = ui.deviceMgmtTabWidgets
	case UIModeSessionDashboard:
		widgets = ui.sessionDashboardTabWidgets
	}

	if len(widgets) > 0 {
		ui.app.SetFocus(widgets[0])
	}
}

// getTabWidgetsForCurrentMode returns the tab widgets for the current mode
func (ui *CursesUIViewImpl) getTabWidgetsForCurrentMode() []*tview.Box {
	switch ui.currentMode {
	case UIModeDeviceManagement:
		return ui.deviceMgmtTabWidgets
	case UIModeSessionDashboard:
		return ui.sessionDashboardTabWidgets
	default:
		return nil
	}
}

// getFocusedDeviceTypeID returns the DeviceTypeID of the currently focused device type list, or empty string if none
func (ui *CursesUIViewImpl) getFocusedDeviceTypeID() DeviceTypeID {
	for deviceTypeID, list := range ui.scanDeviceLists {
		if list.Box.HasFocus() {
			return deviceTypeID
		}
	}
	return ""
}

// SetupKeyboardHandlers sets up keyboard event handlers
func (ui *CursesUIViewImpl) SetupKeyboardHandlers(controller *UIController) {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Number keys for mode switching (1-9)
		if event.Key() == tcell.KeyRune {
			if mode, ok := GetUIModeByKey(event.Rune()); ok {
				// Delegate to controller - it will update the model, which will notify us
				controller.OnModeChange(mode)
				return nil
			}
		}

		// Tab to switch focus between widgets in current mode
		if event.Key() == tcell.KeyTab {
			widgets := ui.getTabWidgetsForCurrentMode()
			widgetCount := len(widgets)
			if widgetCount > 0 {
				for i := 0; i < widgetCount+1; i++ {
					idx := i % widgetCount
					if widgets[idx].HasFocus() {
						nextIdx := (idx + 1) % widgetCount
						ui.app.SetFocus(widgets[nextIdx])
						break
					}
				}
			}
			return nil
		}

		// Escape to quit
		if event.Key() == tcell.KeyEscape {
			controller.OnEscapeKey()
			return nil
		}

		// Mode-specific key handlers
		switch ui.currentMode {
		case UIModeDeviceManagement:
			// 's' key to toggle scanning (only in device management mode)
			if event.Key() == tcell.KeyRune && event.Rune() == 's' {
				controller.ToggleDeviceScan()
				return nil
			}
			// 'd' key to disconnect the device for the focused device type
			if event.Key() == tcell.KeyRune && event.Rune() == 'd' {
				if deviceTypeID := ui.getFocusedDeviceTypeID(); deviceTypeID != "" {
					controller.DisconnectDeviceForDeviceType(deviceTypeID)
				}
				return nil
			}
		case UIModeSessionDashboard:
			// Space to start/stop the session
			if event.Key() == tcell.KeyRune && event.Rune() == ' ' {
				controller.ToggleSession()
				return nil
			}
			// 'x' to stop the session
			if event.Key() == tcell.KeyRune && event.Rune() == 'x' {
				controller.StopSession()
				return nil
			}
			// 'r' to reset the rep count
			if event.Key() == tcell.KeyRune && event.Rune() == 'r' {
				controller.ResetSession()
				return nil
			}
			// 'c' to retry camera acquisition
			if event.Key() == tcell.KeyRune && event.Rune() == 'c' {
				controller.RetryCamera()
				return nil
			}
		}

		return event
	})
}

// GetLogViewHeight returns the visible height of the log view
func (ui *CursesUIViewImpl) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

// ClearLogView clears the log view
func (ui *CursesUIViewImpl) ClearLogView() {
	ui.logView.Clear()
}

// WriteLogLine writes a line to the log view
func (ui *CursesUIViewImpl) WriteLogLine(line string) error {
	_, err := fmt.Fprint(ui.logView, line)
	return err
}

// SetScanDeviceList updates the device list for a specific device type
func (ui *CursesUIViewImpl) SetScanDeviceList(deviceTypeID DeviceTypeID, devices []string) {
	deviceTypeList, ok := ui.scanDeviceLists[deviceTypeID]
	if !ok {
		return
	}

	currentSelectionIndex := deviceTypeList.GetCurrentItem()

	var currentSelectionText *string
	if currentSelectionIndex < deviceTypeList.GetItemCount() {
		main, _ := deviceTypeList.GetItemText(currentSelectionIndex)
		currentSelectionText = &main
	}

	deviceTypeList.Clear()

	selectedIdx := -1
	for i, dev := range devices {
		if currentSelectionText != nil && *currentSelectionText == dev {
			selectedIdx = i
		}
		deviceTypeList.AddItem(dev, "", 0, nil)
	}
	if selectedIdx > -1 {
		deviceTypeList.SetCurrentItem(selectedIdx)
	}
}

// SetConnectedDeviceByDeviceType updates the connected device display for each device type
func (ui *CursesUIViewImpl) SetConnectedDeviceByDeviceType(devices UIDeviceModelByDeviceType) {
	// Update each device type's connected device text
	for deviceTypeID, textView := range ui.connectedDeviceTexts {
		if deviceList, ok := devices[deviceTypeID]; ok && len(deviceList) > 0 {
			device := deviceList[0]
			textView.SetText(fmt.Sprintf(" [green]*[white] %s", device.Name))
		} else {
			textView.SetText(" [gray]None[white]")
		}
	}
}

// Draw refreshes/redraws the UI
func (ui *CursesUIViewImpl) Draw() error {
	ui.app.Draw()
	return nil
}

// Run starts the UI and blocks until it exits
func (ui *CursesUIViewImpl) Run() error {
	// SetRoot must be called before setting focus, otherwise focus may be reset
	ui.app.SetRoot(ui.mainFlex, true)
	ui.setFocusForCurrentMode()
	return ui.app.Run()
}

// Stop stops the UI framework
func (ui *CursesUIViewImpl) Stop() {
	ui.app.Stop()
}

// UpdateLatestData updates the metrics display with the latest data
func (ui *CursesUIViewImpl) UpdateLatestData(data MetricData) {
	ui.updateMetricsDisplay(data)
}

// updateMetricsDisplay formats and displays the latest data in the metrics panel
func (ui *CursesUIViewImpl) updateMetricsDisplay(data MetricData) {
	if ui.metricsPanel == nil {
		return
	}

	var text string

	if len(data) == 0 {
		text = "\n\n  [gray]No sensor data[white]\n\n  Connect a heart rate monitor in Device\n  Management mode (press 1) to see live\n  metrics here."
	} else {
		text = "\n"

		if hr, ok := data[MetricHeartRate]; ok {
			text += fmt.Sprintf("  [red]HR[white]  Heart Rate:  [yellow]%.0f[white] bpm\n\n", hr)
		}

		if text == "\n" {
			text = "\n\n  [gray]Waiting for data...[white]"
		}
	}

	ui.metricsPanel.SetText(text)
}

// UpdateSessionState updates the session dashboard display
func (ui *CursesUIViewImpl) UpdateSessionState(state SessionState) {
	ui.lastSessionState = state
	ui.updateSessionDisplay()
}

// UpdateCameraAvailability updates the camera status display
func (ui *CursesUIViewImpl) UpdateCameraAvailability(available bool) {
	ui.lastCameraAvailable = available
	ui.updateSessionDisplay()
}

// updateSessionDisplay formats and displays the session state
func (ui *CursesUIViewImpl) updateSessionDisplay() {
	if ui.sessionPanel == nil {
		return
	}

	state := ui.lastSessionState

	var text string
	text = "\n"

	// Session status
	if state.Active {
		text += "  [green]*[white] Session: [yellow]ACTIVE[white]\n\n"
	} else {
		text += "  [gray]o[white] Session: [gray]Stopped[white]\n\n"
	}

	// Rep count
	text += fmt.Sprintf("  Squats:  [yellow]%d[white]\n\n", state.RepCount)

	// In-squat indicator
	if state.InSquat {
		text += "  Position: [cyan]IN SQUAT[white]\n\n"
	} else {
		text += "  Position: [gray]standing[white]\n\n"
	}

	// Form feedback colored by score
	var feedbackColor string
	switch state.FormScore {
	case FormScoreGood:
		feedbackColor = "green"
	case FormScoreWarning:
		feedbackColor = "orange"
	default:
		feedbackColor = "red"
	}
	text += fmt.Sprintf("  [%s]%s[white]\n\n", feedbackColor, state.FormFeedback)

	// Camera status
	if ui.lastCameraAvailable {
		text += "  [gray]Camera:[white] [green]ready[white]\n"
	} else {
		text += "  [gray]Camera:[white] [red]unavailable[white] [gray](press 'c' to retry)[white]\n"
	}

	// Controls hint
	text += "\n  [gray]------------------------[white]\n"
	if state.Active {
		text += "  [yellow]Space[white] Stop  |  [yellow]R[white] Reset\n"
	} else {
		text += "  [yellow]Space[white] Start  |  [yellow]R[white] Reset\n"
	}

	ui.sessionPanel.SetText(text)
}
