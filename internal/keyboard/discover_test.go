package keyboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHidraw(t *testing.T, root, name, hidID string, descriptor []byte) {
	t.Helper()
	dir := filepath.Join(root, "class", "hidraw", name, "device")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte("DRIVER=hid-generic\nHID_ID="+hidID+"\nHID_NAME=ITE\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report_descriptor"), descriptor, 0o644))
}

func TestDiscoverFindsLightingInterface(t *testing.T) {
	root := t.TempDir()
	writeHidraw(t, root, "hidraw0", "0003:0000046D:0000C52B", []byte{0x06, 0x89, 0xFF})
	writeHidraw(t, root, "hidraw1", "0003:0000048D:0000C965", []byte{0x05, 0x01, 0x09, 0x06})
	writeHidraw(t, root, "hidraw2", "0003:0000048D:0000C965", []byte{0x05, 0x01, 0x06, 0x89, 0xFF, 0x09, 0xCC})

	path, err := Discover(root, KnownDevices)
	require.NoError(t, err)
	assert.Equal(t, "/dev/hidraw2", path)
}

func TestDiscoverNotFound(t *testing.T) {
	root := t.TempDir()
	writeHidraw(t, root, "hidraw0", "0003:0000048D:0000FFFF", []byte{0x06, 0x89, 0xFF})

	_, err := Discover(root, KnownDevices)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestParseHIDID(t *testing.T) {
	id, ok := parseHIDID("HID_ID=0003:0000048D:0000C975\n")
	require.True(t, ok)
	assert.Equal(t, DeviceID{Vendor: 0x048D, Product: 0xC975}, id)

	_, ok = parseHIDID("HID_NAME=x\n")
	assert.False(t, ok)
}
