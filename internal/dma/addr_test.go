package dma

import "unsafe"

func addrOf(s []uint16) uintptr {
	return uintptr(unsafe.Pointer(&s[0]))
}
