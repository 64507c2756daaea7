// Package dma sequences DMA engine allocation, per-plane binding and
// preparation, transfer and teardown over host memory described by strided
// views.
package dma

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/xupit3r/planedma/internal/view"
)

// EngineID identifies an engine context on a device.
type EngineID uint64

// Handle identifies a device-side binding of a host region.
type Handle uint64

// Device is the interface a DMA-capable device exposes. Sessions call it in
// protocol order; implementations report misuse with the package sentinels.
type Device interface {
	// Name returns a human-readable device name
	Name() string

	// AllocateEngine reserves an engine context
	AllocateEngine() (EngineID, error)

	// DeallocateEngine releases an engine with no prepared bindings
	DeallocateEngine(EngineID) error

	// WrapNative binds the region v describes at host address addr
	WrapNative(addr uintptr, v view.View) (Handle, error)

	// Detach drops an unprepared binding
	Detach(Handle) error

	// PrepareForHostCopy readies a binding for transfer on an engine
	PrepareForHostCopy(h Handle, e EngineID, isWrite bool, f Format) error

	// Unprepare reverses PrepareForHostCopy and waits for in-flight transfers
	Unprepare(Handle) error

	// SetDeviceDirty marks the device copy of a binding authoritative
	SetDeviceDirty(Handle) error

	// CopyToHost transfers a prepared read binding into dst, laid out by dstView
	CopyToHost(h Handle, dst []byte, dstView view.View) error

	// CopyToDevice transfers src, laid out by srcView, into a prepared write binding
	CopyToDevice(h Handle, src []byte, srcView view.View) error

	// Stats returns call counters
	Stats() Stats
}

// Stats counts device calls. A finished session leaves Active* at zero and
// every allocate/prepare matched by a release/unprepare.
type Stats struct {
	EnginesAllocated int64
	EnginesReleased  int64
	Wraps            int64
	Detaches         int64
	Prepares         int64
	Unprepares       int64
	Transfers        int64
	BytesTransferred int64
	ActiveEngines    int
	ActiveBindings   int
}

// Balanced reports whether every acquisition was matched by a release.
func (s Stats) Balanced() bool {
	return s.EnginesAllocated == s.EnginesReleased &&
		s.Wraps == s.Detaches &&
		s.Prepares == s.Unprepares &&
		s.ActiveEngines == 0 &&
		s.ActiveBindings == 0
}

// Factory opens a device.
type Factory func() (Device, error)

var (
	mu        sync.Mutex
	factories = map[string]Factory{
		"sim": func() (Device, error) { return NewSimDevice(), nil },
	}
)

// Register makes a device available to Open under name.
func Register(name string, f Factory) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		return fmt.Errorf("dma: device %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Open returns a new instance of the named device.
func Open(name string) (Device, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dma: no device %q (available: %v)", name, Devices())
	}
	return f()
}

// Devices lists registered device names.
func Devices() []string {
	mu.Lock()
	defer mu.Unlock()
	names := lo.Keys(factories)
	sort.Strings(names)
	return names
}
