// Package system probes host memory so staging allocations can be refused
// before the kernel has to.
package system

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupported is returned where the platform exposes no memory counters.
var ErrUnsupported = errors.New("system: memory probe not supported on " + runtime.GOOS)

// Headroom is the most that is left untouched for the OS and other
// processes when deciding whether a host buffer fits. Requests smaller than
// Headroom reserve their own size instead, so small buffers still fit on
// hosts with little free memory.
const Headroom = 256 * 1024 * 1024

// MemInfo contains information about system memory
type MemInfo struct {
	TotalBytes     int64
	AvailableBytes int64
	UsedBytes      int64
}

// ReadMemInfo returns the current memory counters of the host.
func ReadMemInfo() (*MemInfo, error) {
	return readMemInfo()
}

// CheckAllocation fails if n bytes cannot reasonably be obtained.
// Platforms without counters always pass.
func CheckAllocation(n int64) error {
	if n < 0 {
		return fmt.Errorf("negative allocation of %d bytes", n)
	}
	info, err := ReadMemInfo()
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil
		}
		return err
	}
	return info.fits(n)
}

func (m *MemInfo) fits(n int64) error {
	usable := m.AvailableBytes - reserveFor(n)
	if usable < 0 {
		usable = 0
	}
	if n > usable {
		return fmt.Errorf("%s requested, %s usable of %s available",
			FormatBytes(n), FormatBytes(usable), FormatBytes(m.AvailableBytes))
	}
	return nil
}

// reserveFor returns the memory kept free alongside an n-byte request.
func reserveFor(n int64) int64 {
	return min(n, Headroom)
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
