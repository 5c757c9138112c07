package coach

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const (
	persistenceDirName  = ".squat-coach"
	persistenceFileName = "prefs.json"
)

type persistedData struct {
	PreferredDeviceByDeviceType map[DeviceTypeID]string `json:"preferredDeviceByDeviceType"`
	LifetimeReps                int                     `json:"lifetimeReps"`
}

// ModelPersistence stores user preferences and lifetime stats in a JSON file
// under the user's home directory. All methods are safe for concurrent use.
type ModelPersistence struct {
	mu       sync.Mutex
	filePath string
	data     persistedData
	logger   *log.Logger
}

// NewModelPersistence creates a persistence store rooted at baseDir, or the
// user's home directory when baseDir is omitted. Existing data is loaded if
// present; load and save failures are logged and otherwise ignored so the
// application keeps working without persistence.
func NewModelPersistence(logger *log.Logger, baseDir ...string) *ModelPersistence {
	if logger == nil {
		panic("ModelPersistence: logger cannot be nil")
	}

	root := ""
	if len(baseDir) > 0 {
		root = baseDir[0]
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Printf("ModelPersistence: Cannot determine home directory, persistence disabled: %v", err)
		} else {
			root = home
		}
	}

	p := &ModelPersistence{
		logger: logger,
		data: persistedData{
			PreferredDeviceByDeviceType: make(map[DeviceTypeID]string),
		},
	}

	if root != "" {
		p.filePath = filepath.Join(root, persistenceDirName, persistenceFileName)
		p.load()
	}

	return p
}

// GetPreferredDevice returns the remembered device address for a device type,
// or an empty string when none is stored.
func (p *ModelPersistence) GetPreferredDevice(deviceTypeID DeviceTypeID) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data.PreferredDeviceByDeviceType[deviceTypeID]
}

// SetPreferredDevice remembers a device address for a device type
func (p *ModelPersistence) SetPreferredDevice(deviceTypeID DeviceTypeID, address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data.PreferredDeviceByDeviceType[deviceTypeID] == address {
		return
	}
	p.data.PreferredDeviceByDeviceType[deviceTypeID] = address
	p.save()
}

// ClearPreferredDevice forgets the remembered device for a device type
func (p *ModelPersistence) ClearPreferredDevice(deviceTypeID DeviceTypeID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.data.PreferredDeviceByDeviceType[deviceTypeID]; !ok {
		return
	}
	delete(p.data.PreferredDeviceByDeviceType, deviceTypeID)
	p.save()
}

// AddCompletedSession adds reps to the lifetime total and returns the new total
func (p *ModelPersistence) AddCompletedSession(reps int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if reps > 0 {
		p.data.LifetimeReps += reps
		p.save()
	}
	return p.data.LifetimeReps
}

// GetLifetimeReps returns the persisted lifetime rep total
func (p *ModelPersistence) GetLifetimeReps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data.LifetimeReps
}

// load reads the persistence file. Must be called with mu held or before
// the store is shared.
func (p *ModelPersistence) load() {
	raw, err := os.ReadFile(p.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Printf("ModelPersistence: Failed to read %s: %v", p.filePath, err)
		}
		return
	}

	var data persistedData
	if err := json.Unmarshal(raw, &data); err != nil {
		p.logger.Printf("ModelPersistence: Failed to parse %s: %v", p.filePath, err)
		return
	}

	if data.PreferredDeviceByDeviceType == nil {
		data.PreferredDeviceByDeviceType = make(map[DeviceTypeID]string)
	}
	p.data = data
}

// save writes the persistence file. Must be called with mu held.
func (p *ModelPersistence) save() {
	if p.filePath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(p.filePath), 0o755); err != nil {
		p.logger.Printf("ModelPersistence: Failed to create directory for %s: %v", p.filePath, err)
		return
	}

	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		p.logger.Printf("ModelPersistence: Failed to encode preferences: %v", err)
		return
	}

	if err := os.WriteFile(p.filePath, raw, 0o644); err != nil {
		p.logger.Printf("ModelPersistence: Failed to write %s: %v", p.filePath, err)
	}
}
