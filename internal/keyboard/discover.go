package keyboard

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DeviceID identifies a USB HID keyboard controller.
type DeviceID struct {
	Vendor  uint16
	Product uint16
}

// KnownDevices are the four-zone controllers the report format was made for.
var KnownDevices = []DeviceID{
	{Vendor: 0x048D, Product: 0xC975},
	{Vendor: 0x048D, Product: 0xC973},
	{Vendor: 0x048D, Product: 0xC965},
	{Vendor: 0x048D, Product: 0xC963},
	{Vendor: 0x048D, Product: 0xC955},
}

// lightingUsagePage is the vendor usage page (0xFF89) of the lighting
// interface, as it appears as a long item in the report descriptor.
var lightingUsagePage = []byte{0x06, 0x89, 0xFF}

// Discover scans sysfsRoot/class/hidraw for the lighting interface of a
// known keyboard and returns its /dev node.
func Discover(sysfsRoot string, known []DeviceID) (string, error) {
	nodes, err := filepath.Glob(filepath.Join(sysfsRoot, "class", "hidraw", "hidraw*"))
	if err != nil {
		return "", err
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		uevent, err := os.ReadFile(filepath.Join(node, "device", "uevent"))
		if err != nil {
			continue
		}
		id, ok := parseHIDID(string(uevent))
		if !ok || !containsID(known, id) {
			continue
		}
		descriptor, err := os.ReadFile(filepath.Join(node, "device", "report_descriptor"))
		if err != nil || !bytes.Contains(descriptor, lightingUsagePage) {
			continue
		}
		return filepath.Join("/dev", filepath.Base(node)), nil
	}
	return "", ErrDeviceNotFound
}

// parseHIDID reads a line like HID_ID=0003:0000048D:0000C965.
func parseHIDID(uevent string) (DeviceID, bool) {
	for _, line := range strings.Split(uevent, "\n") {
		value, ok := strings.CutPrefix(strings.TrimSpace(line), "HID_ID=")
		if !ok {
			continue
		}
		var bus, vendor, product uint32
		if _, err := fmt.Sscanf(value, "%x:%x:%x", &bus, &vendor, &product); err != nil {
			return DeviceID{}, false
		}
		return DeviceID{Vendor: uint16(vendor), Product: uint16(product)}, true
	}
	return DeviceID{}, false
}

func containsID(ids []DeviceID, id DeviceID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
