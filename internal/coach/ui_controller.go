package coach

import (
	"context"
	"log"
	"sync"

	"github.com/lowaak/squat-coach/internal/camera"
	goFuncUtils "github.com/lowaak/squat-coach/internal/go_func_utils"
)

// UIController handles UI events and coordinates with the SessionModel
type UIController struct {
	model          *SessionModel
	deviceHandler  *DeviceHandler
	sessionManager *SessionManager
	cam            camera.ManagerInterface
	logger         *log.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// NewUIController creates a new UIController with the given dependencies
func NewUIController(
	model *SessionModel,
	deviceHandler *DeviceHandler,
	sessionManager *SessionManager,
	cam camera.ManagerInterface,
	logger *log.Logger,
) *UIController {
	if model == nil {
		panic("UIController: model cannot be nil")
	}
	if deviceHandler == nil {
		panic("UIController: deviceHandler cannot be nil")
	}
	if sessionManager == nil {
		panic("UIController: sessionManager cannot be nil")
	}
	if cam == nil {
		panic("UIController: camera manager cannot be nil")
	}
	if logger == nil {
		panic("UIController: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &UIController{
		model:          model,
		deviceHandler:  deviceHandler,
		sessionManager: sessionManager,
		cam:            cam,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}

	c.wg.Add(1)
	goFuncUtils.SafeGo(logger, func() { c.listenToAutoConnect() })

	return c
}

func (c *UIController) listenToAutoConnect() {
	defer c.wg.Done()

	ch := make(chan AutoConnectRequest, 1)
	unregister := c.model.ListenToAutoConnect(ch)
	defer unregister()

	for {
		select {
		case <-c.ctx.Done():
			return
		case req, ok := <-ch:
			if !ok {
				return
			}
			c.logger.Printf("Auto-connecting %s (%s) from persistence", req.Device.Address, req.DeviceTypeID)
			c.ScanDeviceSelected(req.DeviceTypeID, req.Device)
		}
	}
}

// ScanDeviceSelected handles when a scan device is selected from the UI
// deviceTypeID identifies which device type the device was selected from
func (c *UIController) ScanDeviceSelected(deviceTypeID DeviceTypeID, uiDeviceModel *UIDeviceModel) {
	err := c.deviceHandler.ConnectAndSubscribe(deviceTypeID, uiDeviceModel.Address)
	if err != nil {
		c.logger.Printf("Connection failed: %v", err)
		return
	}
}

// DisconnectDeviceForDeviceType unsubscribes and disconnects the device
// currently assigned to a device type
func (c *UIController) DisconnectDeviceForDeviceType(deviceTypeID DeviceTypeID) {
	device := c.model.GetConnectedDeviceForDeviceType(deviceTypeID)
	if device == nil {
		c.logger.Printf("No device connected for device type %s", deviceTypeID)
		return
	}

	if err := c.deviceHandler.UnsubscribeDeviceType(deviceTypeID); err != nil {
		c.logger.Printf("Disconnect failed: %v", err)
		return
	}
	c.logger.Printf("Device %s disconnected", device.Address)
}

// OnEscapeKey handles when the Escape key is pressed
func (c *UIController) OnEscapeKey() {
	c.model.RequestCloseApplication()
}

func (c *UIController) StartDeviceScan() {
	if c.deviceHandler.IsScanning() {
		c.logger.Printf("already scanning")
		return
	}
	c.deviceHandler.StartScan()
}

func (c *UIController) StopDeviceScan() {
	if !c.deviceHandler.IsScanning() {
		c.logger.Printf("already not scanning")
		return
	}
	err := c.deviceHandler.StopScan()
	if err != nil {
		c.logger.Printf("error stopping scan: %v", err)
	}
}

func (c *UIController) ToggleDeviceScan() {
	if c.deviceHandler.IsScanning() {
		c.StopDeviceScan()
	} else {
		c.StartDeviceScan()
	}
}

// OnModeChange handles when the user requests a mode change
func (c *UIController) OnModeChange(mode UIMode) {
	if info, ok := GetUIModeInfo(mode); ok {
		c.logger.Printf("Switching to %s mode", info.DisplayName)
	}
	// We want to scan whenever we are in device mgmt mode
	if mode == UIModeDeviceManagement {
		c.StartDeviceScan()
	} else {
		c.StopDeviceScan()
	}
	c.model.SetMode(mode)
}

// --- Session Control Methods ---

// StartSession starts a new workout session
func (c *UIController) StartSession() {
	if err := c.sessionManager.Start(); err != nil {
		c.logger.Printf("Cannot start session: %v", err)
	}
}

// StopSession ends the running workout session
func (c *UIController) StopSession() {
	c.sessionManager.Stop()
}

// ResetSession zeroes the rep count
func (c *UIController) ResetSession() {
	c.sessionManager.Reset()
}

// ToggleSession starts or stops the session based on current state
func (c *UIController) ToggleSession() {
	if err := c.sessionManager.Toggle(); err != nil {
		c.logger.Printf("Cannot start session: %v", err)
	}
}

// RetryCamera attempts to acquire the camera again
func (c *UIController) RetryCamera() {
	if err := c.cam.Acquire(); err != nil {
		c.logger.Printf("Camera still unavailable: %v", err)
		return
	}
	c.logger.Printf("Camera acquired")
}

// Shutdown stops the session manager and cleans up resources
func (c *UIController) Shutdown() {
	c.cancel()
	c.wg.Wait()
	c.sessionManager.Shutdown()
}
