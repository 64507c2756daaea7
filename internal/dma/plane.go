package dma

import (
	"fmt"

	"github.com/xupit3r/planedma/internal/hostbuf"
	"github.com/xupit3r/planedma/internal/view"
)

// Plane is a view bound to a session's engine. The device view addresses the
// wrapped host memory; the host view addresses the plane's own staging
// buffer with the same strides, shifted to start at zero.
type Plane struct {
	name    string
	session *Session
	device  view.View
	host    view.View
	handle  Handle
	staging *hostbuf.Buffer

	format      Format
	isWrite     bool
	wrapped     bool
	prepared    bool
	deviceDirty bool
}

// Name returns the plane name given at wrap time.
func (p *Plane) Name() string {
	if p == nil {
		return "<nil>"
	}
	return p.name
}

// DeviceView returns the geometry over the wrapped memory.
func (p *Plane) DeviceView() view.View { return p.device }

// Geometry returns the geometry of the host staging samples.
func (p *Plane) Geometry() view.View { return p.host }

// Format returns the format the plane was last prepared with.
func (p *Plane) Format() Format { return p.format }

// Prepared reports whether the plane is currently prepared.
func (p *Plane) Prepared() bool { return p.prepared }

// DeviceDirty reports whether the next host read will transfer.
func (p *Plane) DeviceDirty() bool { return p.deviceDirty }

// HostBytes returns the staging bytes, transferring from the device first if
// the device copy is dirty.
func (p *Plane) HostBytes() ([]byte, error) {
	if !p.wrapped || p.staging == nil || p.staging.Released() {
		return nil, opErr("copy-to-host", p.name, fmt.Errorf("%w: plane is not bound", ErrState))
	}
	if p.deviceDirty {
		if !p.prepared {
			return nil, opErr("copy-to-host", p.name, fmt.Errorf("%w: plane is not prepared", ErrState))
		}
		if err := p.session.dev.CopyToHost(p.handle, p.staging.Bytes(), p.host); err != nil {
			return nil, opErr("copy-to-host", p.name, err)
		}
		p.deviceDirty = false
	}
	return p.staging.Bytes(), nil
}

// Host returns the staging samples as 16-bit values.
func (p *Plane) Host() ([]uint16, error) {
	if p.host.ElemSize() != 2 {
		return nil, opErr("copy-to-host", p.name, fmt.Errorf("%w: %d-byte samples", ErrState, p.host.ElemSize()))
	}
	if _, err := p.HostBytes(); err != nil {
		return nil, err
	}
	return p.staging.Uint16s(), nil
}

// Flush transfers the staging buffer to the device memory of a plane
// prepared for writing.
func (p *Plane) Flush() error {
	if !p.prepared {
		return opErr("copy-to-device", p.name, fmt.Errorf("%w: plane is not prepared", ErrState))
	}
	if err := p.session.dev.CopyToDevice(p.handle, p.staging.Bytes(), p.host); err != nil {
		return opErr("copy-to-device", p.name, err)
	}
	return nil
}
