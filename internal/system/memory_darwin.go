package system

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Darwin has no cheap "available" counter; free + inactive pages would need
// host_statistics64, so the total is reported as available.
func readMemInfo() (*MemInfo, error) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return nil, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	return &MemInfo{
		TotalBytes:     int64(total),
		AvailableBytes: int64(total),
	}, nil
}
