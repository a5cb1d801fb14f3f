package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice 在临时目录中构造 sysfs 设备目录
func fakeDevice(t *testing.T, deviceClass string, ifaceClasses ...string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bDeviceClass"), []byte(deviceClass+"\n"), 0o644))
	for i, class := range ifaceClasses {
		iface := filepath.Join(dir, "1-1:1."+string(rune('0'+i)))
		require.NoError(t, os.Mkdir(iface, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(iface, "bInterfaceClass"), []byte(class+"\n"), 0o644))
	}
	return dir
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		device   string
		ifaces   []string
		wantType string
		wantDesc string
	}{
		{"BadUSB", "00", []string{"08", "03"}, DeviceTypeBadUSB, "USB composite device (storage + HID, BadUSB suspect)"},
		{"Storage", "00", []string{"08"}, "udisk", "USB mass storage device"},
		{"Hub", "09", []string{"09"}, "hub", "USB hub"},
		{"Keyboard", "00", []string{"03"}, "other", "USB input device"},
		{"Webcam", "ef", []string{"0e", "0E", "01"}, "other", "USB video device"},
		{"Vendor", "ff", []string{"ff"}, "other", "USB vendor-specific device"},
		{"NoInterfaces", "00", nil, "other", "USB device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(fakeDevice(t, tt.device, tt.ifaces...))
			assert.Equal(t, tt.wantType, c.DeviceType())
			assert.Equal(t, tt.wantDesc, c.Description())
			assert.Len(t, c.Interfaces, len(tt.ifaces))
		})
	}
}

func TestClassifyMissingPath(t *testing.T) {
	c := Classify(filepath.Join(t.TempDir(), "gone"))
	assert.Equal(t, "other", c.DeviceType())
	assert.Equal(t, "USB device", c.Description())
}
