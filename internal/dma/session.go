package dma

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/planedma/internal/hostbuf"
	"github.com/xupit3r/planedma/internal/pipeline"
	"github.com/xupit3r/planedma/internal/view"
)

// State is a step of the session protocol.
type State int

const (
	Idle State = iota
	EngineAllocated
	PlanesPrepared
	TransferExecuted
	PlanesUnprepared
	EngineReleased
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case EngineAllocated:
		return "engine-allocated"
	case PlanesPrepared:
		return "planes-prepared"
	case TransferExecuted:
		return "transfer-executed"
	case PlanesUnprepared:
		return "planes-unprepared"
	case EngineReleased:
		return "engine-released"
	default:
		return "unknown"
	}
}

var sessionSeq atomic.Uint64

// Engine is the capability for one allocated engine context. It is only
// handed out by a Session and stops working once the session releases it.
type Engine struct {
	id       EngineID
	device   Device
	session  *Session
	released bool
}

// ID returns the device's engine id.
func (e *Engine) ID() EngineID { return e.id }

// Device returns the name of the device the engine lives on.
func (e *Engine) Device() string { return e.device.Name() }

// Released reports whether the engine has been given back to the device.
func (e *Engine) Released() bool { return e.released }

// Session drives one engine through allocate, prepare, transfer, unprepare
// and release. A Session is not safe for concurrent use.
type Session struct {
	id     uint64
	dev    Device
	log    *logrus.Entry
	state  State
	engine *Engine
	planes []*Plane
}

// NewSession creates an idle session on dev.
func NewSession(dev Device, log *logrus.Entry) *Session {
	id := sessionSeq.Add(1)
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		id:  id,
		dev: dev,
		log: log.WithFields(logrus.Fields{"session": id, "device": dev.Name()}),
	}
}

// State returns the current protocol state.
func (s *Session) State() State { return s.state }

// Engine returns the engine, or nil before AllocateEngine.
func (s *Session) Engine() *Engine { return s.engine }

// Planes returns every plane wrapped in this session.
func (s *Session) Planes() []*Plane {
	out := make([]*Plane, len(s.planes))
	copy(out, s.planes)
	return out
}

// AllocateEngine moves Idle to EngineAllocated.
func (s *Session) AllocateEngine() (*Engine, error) {
	if s.state != Idle {
		return nil, opErr("allocate", "", fmt.Errorf("%w: session is %s", ErrState, s.state))
	}
	id, err := s.dev.AllocateEngine()
	if err != nil {
		if !errors.Is(err, ErrEngineAllocation) {
			err = fmt.Errorf("%w: %v", ErrEngineAllocation, err)
		}
		return nil, opErr("allocate", "", err)
	}
	s.engine = &Engine{id: id, device: s.dev, session: s}
	s.state = EngineAllocated
	s.log.WithField("engine", id).Debug("engine allocated")
	return s.engine, nil
}

// Wrap binds geometry v over the host allocation at addr and allocates the
// plane's host staging buffer. The plane is not yet prepared.
func (s *Session) Wrap(name string, v view.View, addr uintptr) (*Plane, error) {
	if err := s.usableEngine(); err != nil {
		return nil, opErr("wrap", name, err)
	}
	h, err := s.dev.WrapNative(addr, v)
	if err != nil {
		return nil, opErr("wrap", name, err)
	}

	hostView := v.Compact()
	staging, err := hostbuf.Allocate(v.ElemSize(), hostView.Capacity())
	if err != nil {
		if derr := s.dev.Detach(h); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, opErr("wrap", name, err)
	}

	p := &Plane{
		name:    name,
		session: s,
		device:  v,
		host:    hostView,
		handle:  h,
		staging: staging,
		wrapped: true,
	}
	s.planes = append(s.planes, p)
	s.log.WithFields(logrus.Fields{"plane": name, "geometry": v.String()}).Debug("plane wrapped")
	return p, nil
}

// Prepare readies a wrapped plane for transfer in format f. isWrite selects
// host-to-device instead of device-to-host.
func (s *Session) Prepare(p *Plane, f Format, isWrite bool) error {
	if err := s.usableEngine(); err != nil {
		return opErr("prepare", p.Name(), err)
	}
	if !s.owns(p) || !p.wrapped {
		return opErr("prepare", p.Name(), fmt.Errorf("%w: plane is not bound", ErrPrepare))
	}
	if p.prepared {
		return opErr("prepare", p.Name(), fmt.Errorf("%w: plane already prepared", ErrPrepare))
	}
	if err := s.dev.PrepareForHostCopy(p.handle, s.engine.id, isWrite, f); err != nil {
		return opErr("prepare", p.Name(), err)
	}
	p.prepared = true
	p.format = f
	p.isWrite = isWrite
	p.deviceDirty = false
	s.state = PlanesPrepared
	s.log.WithFields(logrus.Fields{"plane": p.name, "format": f, "write": isWrite}).Debug("plane prepared")
	return nil
}

// WrapAndPrepare binds v over addr and prepares it in one step. If the
// prepare fails the binding is dropped again.
func (s *Session) WrapAndPrepare(name string, v view.View, addr uintptr, f Format, isWrite bool) (*Plane, error) {
	p, err := s.Wrap(name, v, addr)
	if err != nil {
		return nil, err
	}
	if err := s.Prepare(p, f, isWrite); err != nil {
		if derr := s.detach(p); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, err
	}
	return p, nil
}

// MarkDeviceDirty makes the device copy of p authoritative; the next host
// read transfers it.
func (s *Session) MarkDeviceDirty(p *Plane) error {
	if !s.owns(p) || !p.prepared {
		return opErr("mark-dirty", p.Name(), fmt.Errorf("%w: plane is not prepared", ErrState))
	}
	if p.isWrite {
		return opErr("mark-dirty", p.Name(), fmt.Errorf("%w: plane is prepared for writing", ErrState))
	}
	if err := s.dev.SetDeviceDirty(p.handle); err != nil {
		return opErr("mark-dirty", p.Name(), err)
	}
	p.deviceDirty = true
	return nil
}

// InvokeConsumer runs pl over the given planes and returns its status. A
// non-zero status yields an ErrPipeline error; teardown is unaffected.
func (s *Session) InvokeConsumer(pl pipeline.Pipeline, inY, inUV pipeline.Input, outY, outUV pipeline.Output) (int, error) {
	switch s.state {
	case EngineAllocated, PlanesPrepared, TransferExecuted:
	default:
		return 0, opErr("invoke", "", fmt.Errorf("%w: session is %s", ErrState, s.state))
	}
	status := pl.Run(inY, inUV, outY, outUV)
	s.state = TransferExecuted
	if status != pipeline.StatusOK {
		s.log.WithField("status", status).Warn("pipeline reported failure")
		return status, opErr("invoke", "", fmt.Errorf("%w: status %d", ErrPipeline, status))
	}
	return status, nil
}

// Unprepare reverses Prepare for one plane. Planes that were never
// prepared, or already unprepared, fail with ErrUnprepare.
func (s *Session) Unprepare(p *Plane) error {
	if p == nil || !s.owns(p) || !p.prepared {
		return opErr("unprepare", p.Name(), fmt.Errorf("%w: plane is not prepared", ErrUnprepare))
	}
	if err := s.dev.Unprepare(p.handle); err != nil {
		return opErr("unprepare", p.Name(), err)
	}
	p.prepared = false
	p.deviceDirty = false
	if s.preparedCount() == 0 {
		s.state = PlanesUnprepared
	}
	s.log.WithField("plane", p.name).Debug("plane unprepared")
	return nil
}

// ReleaseEngine detaches every plane, frees their staging buffers and gives
// the engine back. All planes must be unprepared first.
func (s *Session) ReleaseEngine() error {
	if s.engine == nil {
		return opErr("release", "", fmt.Errorf("%w: no engine allocated", ErrState))
	}
	if s.engine.released {
		return opErr("release", "", ErrEngineReleased)
	}
	if n := s.preparedCount(); n > 0 {
		return opErr("release", "", fmt.Errorf("%w: %d planes still prepared", ErrState, n))
	}

	var errs []error
	for _, p := range s.planes {
		if err := s.detach(p); err != nil {
			errs = append(errs, opErr("detach", p.name, err))
		}
	}
	if err := s.dev.DeallocateEngine(s.engine.id); err != nil {
		errs = append(errs, opErr("release", "", err))
		return errors.Join(errs...)
	}
	s.engine.released = true
	s.state = EngineReleased
	s.log.WithField("engine", s.engine.id).Debug("engine released")
	return errors.Join(errs...)
}

// Close tears the session down from any state: prepared planes are
// unprepared in reverse order, then the engine is released. Calling Close
// on a released or idle session is a no-op.
func (s *Session) Close() error {
	if s.engine == nil || s.engine.released {
		return nil
	}
	var errs []error
	for i := len(s.planes) - 1; i >= 0; i-- {
		if p := s.planes[i]; p.prepared {
			if err := s.Unprepare(p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.ReleaseEngine(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		s.log.WithError(errors.Join(errs...)).Warn("session teardown incomplete")
	}
	return errors.Join(errs...)
}

// WithSession allocates an engine on dev, runs fn and tears the session
// down on every exit path, including a panic in fn. Teardown errors are
// joined with fn's error.
func WithSession(dev Device, log *logrus.Entry, fn func(*Session) error) (err error) {
	s := NewSession(dev, log)
	if _, err := s.AllocateEngine(); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}

func (s *Session) usableEngine() error {
	if s.engine == nil {
		return fmt.Errorf("%w: no engine allocated", ErrState)
	}
	if s.engine.released {
		return ErrEngineReleased
	}
	return nil
}

func (s *Session) owns(p *Plane) bool {
	return p != nil && p.session == s
}

func (s *Session) preparedCount() int {
	n := 0
	for _, p := range s.planes {
		if p.prepared {
			n++
		}
	}
	return n
}

func (s *Session) detach(p *Plane) error {
	if !p.wrapped {
		return nil
	}
	var errs []error
	if err := s.dev.Detach(p.handle); err != nil {
		errs = append(errs, err)
	}
	p.wrapped = false
	if p.staging != nil && !p.staging.Released() {
		if err := p.staging.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
