// Package hostbuf owns the flat host allocations that views and DMA
// bindings point into. It is the only package that obtains or frees raw
// memory.
package hostbuf

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/xupit3r/planedma/internal/system"
	"github.com/xupit3r/planedma/internal/view"
)

var (
	// ErrAllocation is returned when host memory cannot be obtained.
	ErrAllocation = errors.New("hostbuf: allocation failed")
	// ErrReleased is returned when a released buffer is used or released again.
	ErrReleased = errors.New("hostbuf: buffer already released")
)

// Buffer is a zero-initialized host allocation plus the dense view of its
// native layout.
type Buffer struct {
	data     []byte
	store    []byte // whole usable allocation, data is a prefix
	mapping  []byte // full mapping including page padding, nil on heap
	elemSize int
	count    int
	native   view.View
	released bool
}

// Allocate obtains elemSize*Π(extents) zeroed bytes. The native view is dense
// with the first extent fastest varying.
func Allocate(elemSize int, extents ...int) (*Buffer, error) {
	return allocateReserve(elemSize, extents, 0)
}

// allocateReserve allocates at least reserve bytes so the buffer can later
// be reshaped to any layout of that size.
func allocateReserve(elemSize int, extents []int, reserve int) (*Buffer, error) {
	count, native, err := shape(elemSize, extents)
	if err != nil {
		return nil, err
	}
	size := count * elemSize
	n := max(size, reserve)

	if err := system.CheckAllocation(int64(n)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	b := &Buffer{elemSize: elemSize, count: count, native: native}
	if n == 0 {
		return b, nil
	}
	store, mapping, err := allocate(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes: %v", ErrAllocation, n, err)
	}
	b.store = store
	b.data = store[:size]
	b.mapping = mapping
	return b, nil
}

// shape validates a layout and returns its element count and native view.
func shape(elemSize int, extents []int) (int, view.View, error) {
	if elemSize <= 0 {
		return 0, view.View{}, fmt.Errorf("%w: element size %d", ErrAllocation, elemSize)
	}
	count := 1
	for i, e := range extents {
		if e < 0 {
			return 0, view.View{}, fmt.Errorf("%w: negative extent %d on axis %d", ErrAllocation, e, i)
		}
		if e != 0 && count > math.MaxInt/e {
			return 0, view.View{}, fmt.Errorf("%w: element count overflows", ErrAllocation)
		}
		count *= e
	}
	if len(extents) == 0 {
		count = 0
	}
	if count > math.MaxInt/elemSize {
		return 0, view.View{}, fmt.Errorf("%w: byte size overflows", ErrAllocation)
	}
	native, err := view.New(elemSize, count, extents...)
	if err != nil {
		return 0, view.View{}, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	return count, native, nil
}

// reshape gives the storage a new zeroed layout. The layout must fit.
func (b *Buffer) reshape(elemSize, count int, native view.View) {
	size := count * elemSize
	b.data = b.store[:size]
	clear(b.data)
	b.elemSize = elemSize
	b.count = count
	b.native = native
	b.released = false
}

// Reserved returns the number of bytes the storage can hold.
func (b *Buffer) Reserved() int { return len(b.store) }

// ElemSize returns the size of one element in bytes.
func (b *Buffer) ElemSize() int { return b.elemSize }

// Len returns the number of elements.
func (b *Buffer) Len() int { return b.count }

// Size returns the allocation size in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// View returns the dense view of the native layout.
func (b *Buffer) View() view.View { return b.native }

// Released reports whether Release has been called.
func (b *Buffer) Released() bool { return b.released }

// Addr returns the host address of the first byte, or 0 for an empty or
// released buffer.
func (b *Buffer) Addr() uintptr {
	if b.released || len(b.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.data[0]))
}

// Bytes returns the raw storage. It must not be retained past Release.
func (b *Buffer) Bytes() []byte {
	if b.released {
		return nil
	}
	return b.data
}

// Uint16s returns the storage as 16-bit samples.
func (b *Buffer) Uint16s() []uint16 {
	if b.released || len(b.data) == 0 || b.elemSize != 2 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b.data[0])), b.count)
}

// Release frees the storage. Views and DMA bindings referencing the buffer
// must be retired first.
func (b *Buffer) Release() error {
	if b.released {
		return ErrReleased
	}
	b.released = true
	store, mapping := b.store, b.mapping
	b.data, b.store, b.mapping = nil, nil, nil
	if len(store) == 0 {
		return nil
	}
	return free(store, mapping)
}
