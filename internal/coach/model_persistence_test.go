package coach

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelPersistence_NilLoggerPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewModelPersistence(nil, t.TempDir())
	})
}

func TestModelPersistence_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := testLogger()

	p := NewModelPersistence(logger, dir)
	p.SetPreferredDevice(DeviceTypeHeartRateMonitor, "AA:BB:CC:DD:EE:FF")
	p.AddCompletedSession(12)

	// A fresh instance reads the same file back
	p2 := NewModelPersistence(logger, dir)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", p2.GetPreferredDevice(DeviceTypeHeartRateMonitor))
	assert.Equal(t, 12, p2.GetLifetimeReps())
}

func TestModelPersistence_LifetimeRepsAccumulate(t *testing.T) {
	p := NewModelPersistence(testLogger(), t.TempDir())

	assert.Equal(t, 5, p.AddCompletedSession(5))
	assert.Equal(t, 8, p.AddCompletedSession(3))

	// Empty sessions don't touch the total
	assert.Equal(t, 8, p.AddCompletedSession(0))
	assert.Equal(t, 8, p.GetLifetimeReps())
}

func TestModelPersistence_ClearPreferredDevice(t *testing.T) {
	dir := t.TempDir()
	p := NewModelPersistence(testLogger(), dir)

	p.SetPreferredDevice(DeviceTypeHeartRateMonitor, "AA:BB:CC:DD:EE:FF")
	p.ClearPreferredDevice(DeviceTypeHeartRateMonitor)

	assert.Empty(t, p.GetPreferredDevice(DeviceTypeHeartRateMonitor))

	p2 := NewModelPersistence(testLogger(), dir)
	assert.Empty(t, p2.GetPreferredDevice(DeviceTypeHeartRateMonitor))
}

func TestModelPersistence_CorruptFileIgnored(t *testing.T) {
	dir := t.TempDir()
	prefsDir := filepath.Join(dir, persistenceDirName)
	require.NoError(t, os.MkdirAll(prefsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(prefsDir, persistenceFileName), []byte("not json"), 0o644))

	p := NewModelPersistence(testLogger(), dir)
	assert.Empty(t, p.GetPreferredDevice(DeviceTypeHeartRateMonitor))
	assert.Zero(t, p.GetLifetimeReps())

	// And the store still works after the bad load
	p.SetPreferredDevice(DeviceTypeHeartRateMonitor, "AA:BB:CC:DD:EE:FF")
	p2 := NewModelPersistence(testLogger(), dir)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", p2.GetPreferredDevice(DeviceTypeHeartRateMonitor))
}

func TestModelPersistence_MissingFileStartsEmpty(t *testing.T) {
	p := NewModelPersistence(testLogger(), t.TempDir())
	assert.Empty(t, p.GetPreferredDevice(DeviceTypeHeartRateMonitor))
	assert.Zero(t, p.GetLifetimeReps())
}
