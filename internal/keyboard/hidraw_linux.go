//go:build linux

package keyboard

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// HIDRaw writes feature reports to a /dev/hidraw node.
type HIDRaw struct {
	f *os.File
}

// OpenHIDRaw opens path for feature report writes.
func OpenHIDRaw(path string) (*HIDRaw, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &HIDRaw{f: f}, nil
}

// hidiocsfeature is HIDIOCSFEATURE(n): _IOC(_IOC_WRITE|_IOC_READ, 'H', 0x06, n).
func hidiocsfeature(n int) uintptr {
	const (
		iocRead  = 2
		iocWrite = 1
	)
	return uintptr((iocRead|iocWrite)<<30 | n<<16 | 'H'<<8 | 0x06)
}

// Write sends report as a HID feature report.
func (h *HIDRaw) Write(report []byte) error {
	if len(report) == 0 {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), hidiocsfeature(len(report)), uintptr(unsafe.Pointer(&report[0])))
	if errno != 0 {
		return fmt.Errorf("HIDIOCSFEATURE: %w", errno)
	}
	return nil
}

// Close closes the device node.
func (h *HIDRaw) Close() error {
	return h.f.Close()
}
