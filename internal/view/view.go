// Package view describes rectangular regions of flat buffers as strided,
// multi-dimensional views. A View never owns memory.
package view

import (
	"errors"
	"fmt"
	"strings"
)

// MaxRank is the largest number of axes a View may carry.
const MaxRank = 4

// ErrRange is returned for crop or embed geometry that does not fit.
var ErrRange = errors.New("view: geometry out of range")

// Dim describes one axis of a view.
type Dim struct {
	Min    int // first coordinate of the axis in parent coordinates
	Extent int // number of coordinates
	Stride int // elements between neighbouring coordinates
}

// View is a strided description of a region of a flat allocation.
type View struct {
	elemSize int
	capacity int // element count of the owning allocation
	base     int // element offset of coordinate zero before Min
	dims     []Dim
}

// New returns a dense view with the first axis fastest varying.
func New(elemSize, capacity int, extents ...int) (View, error) {
	if elemSize <= 0 {
		return View{}, fmt.Errorf("%w: element size %d", ErrRange, elemSize)
	}
	if len(extents) > MaxRank {
		return View{}, fmt.Errorf("%w: rank %d exceeds %d", ErrRange, len(extents), MaxRank)
	}
	dims := make([]Dim, len(extents))
	stride := 1
	for i, e := range extents {
		if e < 0 {
			return View{}, fmt.Errorf("%w: negative extent %d on axis %d", ErrRange, e, i)
		}
		dims[i] = Dim{Extent: e, Stride: stride}
		stride *= e
	}
	v := View{elemSize: elemSize, capacity: capacity, dims: dims}
	if err := v.Check(); err != nil {
		return View{}, err
	}
	return v, nil
}

// ElemSize returns the size of one element in bytes.
func (v View) ElemSize() int { return v.elemSize }

// Capacity returns the element count of the owning allocation.
func (v View) Capacity() int { return v.capacity }

// Rank returns the number of axes.
func (v View) Rank() int { return len(v.dims) }

// Dim returns the descriptor of one axis.
func (v View) Dim(axis int) Dim { return v.dims[axis] }

// Dims returns a copy of all axis descriptors.
func (v View) Dims() []Dim {
	out := make([]Dim, len(v.dims))
	copy(out, v.dims)
	return out
}

// Extents returns the extent of every axis.
func (v View) Extents() []int {
	out := make([]int, len(v.dims))
	for i, d := range v.dims {
		out[i] = d.Extent
	}
	return out
}

// Len returns the number of addressable coordinates.
func (v View) Len() int {
	if len(v.dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range v.dims {
		n *= d.Extent
	}
	return n
}

// Empty reports whether the view addresses no elements.
func (v View) Empty() bool { return v.Len() == 0 }

// ElementOffset maps local coordinates to a linear element offset.
// Missing trailing coordinates are treated as zero.
func (v View) ElementOffset(coords ...int) int {
	off := v.base
	for i, d := range v.dims {
		c := 0
		if i < len(coords) {
			c = coords[i]
		}
		off += (d.Min + c) * d.Stride
	}
	return off
}

// Span returns the lowest element offset touched and one past the highest.
// An empty view has lo == hi.
func (v View) Span() (lo, hi int) {
	if v.Empty() {
		o := v.ElementOffset()
		return o, o
	}
	lo = v.base
	hi = v.base
	for _, d := range v.dims {
		first := d.Min * d.Stride
		last := (d.Min + d.Extent - 1) * d.Stride
		if first > last {
			first, last = last, first
		}
		lo += first
		hi += last
	}
	return lo, hi + 1
}

// Check verifies the view stays inside its allocation and has no negative
// extent or stride.
func (v View) Check() error {
	for i, d := range v.dims {
		if d.Extent < 0 {
			return fmt.Errorf("%w: negative extent %d on axis %d", ErrRange, d.Extent, i)
		}
		if d.Stride < 0 {
			return fmt.Errorf("%w: negative stride %d on axis %d", ErrRange, d.Stride, i)
		}
	}
	if v.Empty() {
		return nil
	}
	lo, hi := v.Span()
	if lo < 0 || hi > v.capacity {
		return fmt.Errorf("%w: span [%d, %d) outside allocation of %d elements", ErrRange, lo, hi, v.capacity)
	}
	return nil
}

// Crop narrows one axis to [start, start+length) of its current extent.
func (v View) Crop(axis, start, length int) (View, error) {
	if axis < 0 || axis >= len(v.dims) {
		return View{}, fmt.Errorf("%w: crop axis %d of rank %d", ErrRange, axis, len(v.dims))
	}
	d := v.dims[axis]
	if start < 0 || length < 0 || start+length > d.Extent {
		return View{}, fmt.Errorf("%w: crop [%d, %d) of axis %d with extent %d",
			ErrRange, start, start+length, axis, d.Extent)
	}
	out := v.clone()
	out.dims[axis].Min += start
	out.dims[axis].Extent = length
	return out, nil
}

// Embed inserts a new axis at position axis. Axes at or after the insertion
// point shift by one. The result must stay inside the allocation.
func (v View) Embed(axis int, d Dim) (View, error) {
	if axis < 0 || axis > len(v.dims) {
		return View{}, fmt.Errorf("%w: embed axis %d of rank %d", ErrRange, axis, len(v.dims))
	}
	if len(v.dims) == MaxRank {
		return View{}, fmt.Errorf("%w: embed would exceed rank %d", ErrRange, MaxRank)
	}
	if d.Extent < 0 || d.Stride < 0 {
		return View{}, fmt.Errorf("%w: embedded axis extent %d stride %d", ErrRange, d.Extent, d.Stride)
	}
	out := v.clone()
	out.dims = append(out.dims[:axis], append([]Dim{d}, out.dims[axis:]...)...)
	if err := out.Check(); err != nil {
		return View{}, err
	}
	return out, nil
}

// Interleave reinterprets axis as groups of components interleaved
// element by element. The axis keeps extent/components groups with
// stride*components, and a trailing component axis is appended.
func (v View) Interleave(axis, components int) (View, error) {
	if axis < 0 || axis >= len(v.dims) {
		return View{}, fmt.Errorf("%w: interleave axis %d of rank %d", ErrRange, axis, len(v.dims))
	}
	if components <= 0 {
		return View{}, fmt.Errorf("%w: %d components", ErrRange, components)
	}
	d := v.dims[axis]
	if d.Extent%components != 0 {
		return View{}, fmt.Errorf("%w: extent %d of axis %d is not a multiple of %d components",
			ErrRange, d.Extent, axis, components)
	}
	if d.Min%components != 0 {
		return View{}, fmt.Errorf("%w: axis %d starts at %d, not on a %d-component boundary",
			ErrRange, axis, d.Min, components)
	}
	out := v.clone()
	out.dims[axis] = Dim{
		Min:    d.Min / components,
		Extent: d.Extent / components,
		Stride: d.Stride * components,
	}
	return out.Embed(len(out.dims), Dim{Extent: components, Stride: d.Stride})
}

// Compact returns the same geometry shifted so its span starts at zero and
// its capacity equals the span length.
func (v View) Compact() View {
	lo, hi := v.Span()
	out := v.clone()
	out.base -= lo
	out.capacity = hi - lo
	return out
}

// WithCapacity returns the view re-targeted at an allocation of n elements.
func (v View) WithCapacity(n int) (View, error) {
	out := v.clone()
	out.capacity = n
	if err := out.Check(); err != nil {
		return View{}, err
	}
	return out, nil
}

// SameShape reports whether both views have identical extents.
func (v View) SameShape(o View) bool {
	if len(v.dims) != len(o.dims) {
		return false
	}
	for i := range v.dims {
		if v.dims[i].Extent != o.dims[i].Extent {
			return false
		}
	}
	return true
}

// Each calls fn for every coordinate with the first axis fastest varying.
// Iteration stops when fn returns false.
func (v View) Each(fn func(coords []int) bool) {
	if v.Empty() {
		return
	}
	coords := make([]int, len(v.dims))
	for {
		if !fn(coords) {
			return
		}
		i := 0
		for ; i < len(coords); i++ {
			coords[i]++
			if coords[i] < v.dims[i].Extent {
				break
			}
			coords[i] = 0
		}
		if i == len(coords) {
			return
		}
	}
}

func (v View) String() string {
	var sb strings.Builder
	sb.WriteString("view[")
	for i, d := range v.dims {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%d+%d/%d", d.Min, d.Extent, d.Stride)
	}
	fmt.Fprintf(&sb, "] base=%d cap=%d", v.base, v.capacity)
	return sb.String()
}

func (v View) clone() View {
	out := v
	out.dims = v.Dims()
	return out
}
