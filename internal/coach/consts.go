package coach

import "time"

// Bluetooth Service and Characteristic UUIDs
const (
	// Heart Rate Service
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"
)

// CharacteristicMode defines how we interact with a characteristic
type CharacteristicMode int

const (
	ModeNotify CharacteristicMode = iota // Subscribe to notifications
)

// UIMode represents the current UI mode/screen
type UIMode int

const (
	UIModeDeviceManagement UIMode = iota // Device scanning and connection
	UIModeSessionDashboard               // Live squat session and metrics
)

// UIModeInfo contains display information for a UI mode
type UIModeInfo struct {
	Mode        UIMode
	DisplayName string
	KeyBinding  rune // The number key to activate this mode (1-9)
}

// AllUIModes defines all available UI modes in order
var AllUIModes = []UIModeInfo{
	{Mode: UIModeDeviceManagement, DisplayName: "Device Management", KeyBinding: '1'},
	{Mode: UIModeSessionDashboard, DisplayName: "Session Dashboard", KeyBinding: '2'},
}

// GetUIModeByKey returns the mode for a given key binding
func GetUIModeByKey(key rune) (UIMode, bool) {
	for _, info := range AllUIModes {
		if info.KeyBinding == key {
			return info.Mode, true
		}
	}
	return 0, false
}

// GetUIModeInfo returns the info for a given mode
func GetUIModeInfo(mode UIMode) (UIModeInfo, bool) {
	for _, info := range AllUIModes {
		if info.Mode == mode {
			return info, true
		}
	}
	return UIModeInfo{}, false
}

// DataStreamID uniquely identifies a data stream
type DataStreamID string

const (
	StreamHeartRate DataStreamID = "heart_rate"
)

// DataStream defines a service/characteristic combo for a specific data need
type DataStream struct {
	ID                 DataStreamID
	DisplayName        string
	Description        string
	ServiceUUID        string
	CharacteristicUUID string
	Mode               CharacteristicMode
}

var DataStreamHeartRate = DataStream{
	ID:                 StreamHeartRate,
	DisplayName:        "Heart Rate",
	Description:        "Heart rate from a connected sensor",
	ServiceUUID:        ServiceUUIDHeartRate,
	CharacteristicUUID: CharUUIDHeartRateMeasurement,
	Mode:               ModeNotify,
}

// AllDataStreams is the registry of all supported data streams
var AllDataStreams = []DataStream{
	DataStreamHeartRate,
}

// GetStreamByID returns a stream by its ID
func GetStreamByID(id DataStreamID) (DataStream, bool) {
	for _, s := range AllDataStreams {
		if s.ID == id {
			return s, true
		}
	}
	return DataStream{}, false
}

// GetUniqueServiceUUIDs returns a deduplicated list of service UUIDs
func GetUniqueServiceUUIDs() []string {
	seen := make(map[string]bool)
	var result []string
	for _, s := range AllDataStreams {
		if !seen[s.ServiceUUID] {
			seen[s.ServiceUUID] = true
			result = append(result, s.ServiceUUID)
		}
	}
	return result
}

// DeviceTypeID uniquely identifies a device type
type DeviceTypeID string

const (
	DeviceTypeHeartRateMonitor DeviceTypeID = "heart_rate_monitor"
)

// DeviceType represents a category of fitness device that users interact with
type DeviceType struct {
	ID               DeviceTypeID
	DisplayName      string
	Description      string
	ScanServiceUUIDs []string                    // Service UUIDs that qualify a device for this type
	DataStreams      map[DataStreamID]DataStream // Possible streams to subscribe to
}

// AllDeviceTypes defines all supported device types
var AllDeviceTypes = []DeviceType{
	{
		ID:               DeviceTypeHeartRateMonitor,
		DisplayName:      "Heart Rate Monitor",
		Description:      "Chest strap or optical heart rate sensor",
		ScanServiceUUIDs: []string{ServiceUUIDHeartRate},
		DataStreams: map[DataStreamID]DataStream{
			StreamHeartRate: DataStreamHeartRate,
		},
	},
}

// GetDeviceTypeByID returns a device type by its ID
func GetDeviceTypeByID(id DeviceTypeID) (DeviceType, bool) {
	for _, dt := range AllDeviceTypes {
		if dt.ID == id {
			return dt, true
		}
	}
	return DeviceType{}, false
}

// GetPrimaryServiceUUID returns the first scan service UUID for this device type
func (dt DeviceType) GetPrimaryServiceUUID() string {
	if len(dt.ScanServiceUUIDs) > 0 {
		return dt.ScanServiceUUIDs[0]
	}
	return ""
}

// MatchesServiceUUID returns true if the given service UUID qualifies a device for this type
func (dt DeviceType) MatchesServiceUUID(serviceUUID string) bool {
	for _, uuid := range dt.ScanServiceUUIDs {
		if uuid == serviceUUID {
			return true
		}
	}
	return false
}

// GetNotifyStreams returns all streams in this device type that use notifications
func (dt DeviceType) GetNotifyStreams() []DataStream {
	var result []DataStream
	for _, stream := range dt.DataStreams {
		if stream.Mode == ModeNotify {
			result = append(result, stream)
		}
	}
	return result
}

// MetricID identifies an individual displayable metric value
type MetricID string

const (
	MetricHeartRate MetricID = "heart_rate"
)

// MetricInfo contains display information for a metric
type MetricInfo struct {
	ID          MetricID
	DisplayName string
	Unit        string
	FormatStr   string // Printf format string for the value
}

// AllMetrics defines metadata for all supported metrics
var AllMetrics = map[MetricID]MetricInfo{
	MetricHeartRate: {
		ID:          MetricHeartRate,
		DisplayName: "Heart Rate",
		Unit:        "bpm",
		FormatStr:   "%.0f",
	},
}

// GetMetricInfo returns the metadata for a given metric ID
func GetMetricInfo(id MetricID) (MetricInfo, bool) {
	info, ok := AllMetrics[id]
	return info, ok
}

// FormScore grades the most recent form feedback shown to the user
type FormScore int

const (
	FormScoreGood FormScore = iota
	FormScoreWarning
	FormScoreError
)

func (s FormScore) String() string {
	switch s {
	case FormScoreGood:
		return "good"
	case FormScoreWarning:
		return "warning"
	case FormScoreError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionState holds the live state of a squat session
type SessionState struct {
	Active       bool
	RepCount     int
	InSquat      bool
	FormFeedback string
	FormScore    FormScore
}

// Feedback messages not tied to a specific detection outcome
const (
	SessionReadyFeedback = "Get ready to squat!"
	SessionResetFeedback = "Counter reset - fresh start!"
	CameraNeededFeedback = "Camera unavailable - connect a camera and press 'c' to retry"
	SessionSummaryFormat = "Session complete! Total squats: %d"
)

// SessionConfig holds the timing parameters of the detection loop
type SessionConfig struct {
	// DetectInterval is how often the detector is consulted while a
	// session is active.
	DetectInterval time.Duration

	// SquatHold is how long the in-squat indicator stays up after a
	// repetition before it clears.
	SquatHold time.Duration
}

// DefaultSessionConfig returns the standard production timing
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DetectInterval: 3 * time.Second,
		SquatHold:      1 * time.Second,
	}
}
