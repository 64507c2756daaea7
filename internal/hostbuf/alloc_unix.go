//go:build unix

package hostbuf

import (
	"os"

	"golang.org/x/sys/unix"
)

var pageSize = os.Getpagesize()

// allocate maps anonymous page-aligned memory. Anonymous mappings are
// zero-filled by the kernel and never moved by the Go runtime, so their
// address can be handed to a DMA engine.
func allocate(size int) (data, mapping []byte, err error) {
	aligned := (size + pageSize - 1) / pageSize * pageSize
	mapping, err = unix.Mmap(-1, 0, aligned,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	return mapping[:size], mapping, nil
}

func free(_, mapping []byte) error {
	return unix.Munmap(mapping)
}
