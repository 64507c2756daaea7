package dma

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/xupit3r/planedma/internal/view"
)

// DefaultMaxEngines is the number of engine contexts a SimDevice offers.
const DefaultMaxEngines = 4

// SimDevice is a software DMA device. It keeps the same bookkeeping a
// hardware engine does, validates format and geometry at prepare time and
// performs strided transfers with the CPU.
type SimDevice struct {
	mu         sync.Mutex
	name       string
	maxEngines int
	allocFault error
	rejected   map[Format]bool

	nextEngine EngineID
	engines    map[EngineID]int // engine -> prepared bindings
	nextHandle Handle
	bindings   map[Handle]*binding
	stats      Stats
}

type binding struct {
	addr     uintptr
	geom     view.View
	engine   EngineID
	prepared bool
	isWrite  bool
	format   Format
	dirty    bool
}

// SimOption configures a SimDevice.
type SimOption func(*SimDevice)

// WithMaxEngines limits the number of concurrently allocated engines.
func WithMaxEngines(n int) SimOption {
	return func(d *SimDevice) { d.maxEngines = n }
}

// WithAllocateFault makes every AllocateEngine call fail with err.
func WithAllocateFault(err error) SimOption {
	return func(d *SimDevice) { d.allocFault = err }
}

// WithRejectedFormats makes PrepareForHostCopy refuse the given formats.
func WithRejectedFormats(fs ...Format) SimOption {
	return func(d *SimDevice) {
		for _, f := range fs {
			d.rejected[f] = true
		}
	}
}

// NewSimDevice creates a software DMA device.
func NewSimDevice(opts ...SimOption) *SimDevice {
	d := &SimDevice{
		name:       "sim",
		maxEngines: DefaultMaxEngines,
		rejected:   make(map[Format]bool),
		engines:    make(map[EngineID]int),
		bindings:   make(map[Handle]*binding),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *SimDevice) Name() string {
	return fmt.Sprintf("%s (%d engines)", d.name, d.maxEngines)
}

func (d *SimDevice) AllocateEngine() (EngineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.allocFault != nil {
		return 0, fmt.Errorf("%w: %v", ErrEngineAllocation, d.allocFault)
	}
	if len(d.engines) >= d.maxEngines {
		return 0, fmt.Errorf("%w: all %d engines in use", ErrEngineAllocation, d.maxEngines)
	}
	d.nextEngine++
	id := d.nextEngine
	d.engines[id] = 0
	d.stats.EnginesAllocated++
	d.stats.ActiveEngines = len(d.engines)
	return id, nil
}

func (d *SimDevice) DeallocateEngine(id EngineID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.engines[id]
	if !ok {
		return fmt.Errorf("%w: engine %d", ErrEngineReleased, id)
	}
	if n > 0 {
		return fmt.Errorf("%w: engine %d still has %d prepared bindings", ErrState, id, n)
	}
	delete(d.engines, id)
	d.stats.EnginesReleased++
	d.stats.ActiveEngines = len(d.engines)
	return nil
}

func (d *SimDevice) WrapNative(addr uintptr, v view.View) (Handle, error) {
	if v.Empty() {
		return 0, fmt.Errorf("%w: empty geometry %v", ErrPrepare, v)
	}
	if addr == 0 {
		return 0, fmt.Errorf("%w: null host address", ErrPrepare)
	}
	if err := v.Check(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPrepare, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextHandle++
	h := d.nextHandle
	d.bindings[h] = &binding{addr: addr, geom: v}
	d.stats.Wraps++
	d.stats.ActiveBindings = len(d.bindings)
	return h, nil
}

func (d *SimDevice) Detach(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bindings[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	if b.prepared {
		return fmt.Errorf("%w: handle %d is still prepared", ErrState, h)
	}
	delete(d.bindings, h)
	d.stats.Detaches++
	d.stats.ActiveBindings = len(d.bindings)
	return nil
}

func (d *SimDevice) PrepareForHostCopy(h Handle, e EngineID, isWrite bool, f Format) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bindings[h]
	if !ok {
		return fmt.Errorf("%w: unbound handle %d", ErrPrepare, h)
	}
	if b.prepared {
		return fmt.Errorf("%w: handle %d already prepared", ErrPrepare, h)
	}
	if _, ok := d.engines[e]; !ok {
		return fmt.Errorf("%w: engine %d", ErrEngineReleased, e)
	}
	if err := d.checkFormat(b.geom, f); err != nil {
		return err
	}

	b.prepared = true
	b.engine = e
	b.isWrite = isWrite
	b.format = f
	b.dirty = false
	d.engines[e]++
	d.stats.Prepares++
	return nil
}

func (d *SimDevice) checkFormat(v view.View, f Format) error {
	if d.rejected[f] {
		return fmt.Errorf("%w: format %s not supported by %s", ErrPrepare, f, d.name)
	}
	if _, ok := formatNames[f]; !ok {
		return fmt.Errorf("%w: unknown format %d", ErrPrepare, int(f))
	}
	if sz := f.SampleSize(); sz != 0 && sz != v.ElemSize() {
		return fmt.Errorf("%w: format %s needs %d-byte samples, view has %d",
			ErrPrepare, f, sz, v.ElemSize())
	}
	switch f.Plane() {
	case LumaPlane:
		if v.Rank() != 2 {
			return fmt.Errorf("%w: format %s needs a 2-axis luma view, got %v", ErrPrepare, f, v)
		}
	case ChromaPlane:
		if v.Rank() != 3 || v.Dim(2).Extent != 2 {
			return fmt.Errorf("%w: format %s needs a 3-axis chroma view with 2 components, got %v",
				ErrPrepare, f, v)
		}
	}
	if f != RawData && v.Rank() >= 2 && v.Dim(0).Stride == 0 {
		return fmt.Errorf("%w: zero row stride in %v", ErrPrepare, v)
	}
	return nil
}

func (d *SimDevice) Unprepare(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bindings[h]
	if !ok {
		return fmt.Errorf("%w: unbound handle %d", ErrUnprepare, h)
	}
	if !b.prepared {
		return fmt.Errorf("%w: handle %d is not prepared", ErrUnprepare, h)
	}
	b.prepared = false
	b.dirty = false
	d.engines[b.engine]--
	b.engine = 0
	d.stats.Unprepares++
	return nil
}

func (d *SimDevice) SetDeviceDirty(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bindings[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	if !b.prepared {
		return fmt.Errorf("%w: handle %d is not prepared", ErrState, h)
	}
	b.dirty = true
	return nil
}

func (d *SimDevice) CopyToHost(h Handle, dst []byte, dstView view.View) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.transferable(h, false, dstView, len(dst))
	if err != nil {
		return err
	}
	src := hostBytes(b.addr, b.geom)
	n := gather(dst, dstView, src, b.geom)
	b.dirty = false
	d.stats.Transfers++
	d.stats.BytesTransferred += int64(n)
	return nil
}

func (d *SimDevice) CopyToDevice(h Handle, src []byte, srcView view.View) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.transferable(h, true, srcView, len(src))
	if err != nil {
		return err
	}
	dst := hostBytes(b.addr, b.geom)
	n := gather(dst, b.geom, src, srcView)
	d.stats.Transfers++
	d.stats.BytesTransferred += int64(n)
	return nil
}

func (d *SimDevice) transferable(h Handle, isWrite bool, hostView view.View, hostLen int) (*binding, error) {
	b, ok := d.bindings[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	if !b.prepared {
		return nil, fmt.Errorf("%w: handle %d transferred before prepare", ErrState, h)
	}
	if b.isWrite != isWrite {
		dir := "read"
		if b.isWrite {
			dir = "write"
		}
		return nil, fmt.Errorf("%w: handle %d is prepared for %s", ErrState, h, dir)
	}
	if !b.geom.SameShape(hostView) || b.geom.ElemSize() != hostView.ElemSize() {
		return nil, fmt.Errorf("%w: host view %v does not match device view %v", ErrState, hostView, b.geom)
	}
	if _, hi := hostView.Span(); hi*hostView.ElemSize() > hostLen {
		return nil, fmt.Errorf("%w: host buffer of %d bytes too small for %v", ErrState, hostLen, hostView)
	}
	return b, nil
}

// hostBytes exposes the allocation a binding was wrapped around. The address
// comes from an mmap'd or pinned region that outlives the binding.
func hostBytes(addr uintptr, v view.View) []byte {
	n := v.Capacity() * v.ElemSize()
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// gather copies every coordinate of srcView into dstView and returns the
// number of bytes moved.
func gather(dst []byte, dstView view.View, src []byte, srcView view.View) int {
	es := srcView.ElemSize()
	moved := 0
	srcView.Each(func(c []int) bool {
		so := srcView.ElementOffset(c...) * es
		do := dstView.ElementOffset(c...) * es
		copy(dst[do:do+es], src[so:so+es])
		moved += es
		return true
	})
	return moved
}

func (d *SimDevice) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
