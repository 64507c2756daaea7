package dma

import (
	"errors"
)

var (
	// ErrEngineAllocation is returned when the device cannot provide an
	// engine context.
	ErrEngineAllocation = errors.New("dma: engine allocation failed")
	// ErrPrepare is returned when a plane cannot be bound or prepared.
	ErrPrepare = errors.New("dma: prepare failed")
	// ErrUnprepare is returned when unpreparing a plane that is not prepared.
	ErrUnprepare = errors.New("dma: unprepare failed")
	// ErrState is returned for calls out of protocol order.
	ErrState = errors.New("dma: invalid state")
	// ErrEngineReleased is returned when a released engine is used.
	ErrEngineReleased = errors.New("dma: engine released")
	// ErrPipeline is returned when the consumer reports a non-zero status.
	ErrPipeline = errors.New("dma: pipeline failed")
	// ErrUnknownHandle is returned by devices for handles they never issued.
	ErrUnknownHandle = errors.New("dma: unknown handle")
)

// OpError records the operation and plane an error happened on.
type OpError struct {
	Op    string
	Plane string
	Err   error
}

func (e *OpError) Error() string {
	if e.Plane == "" {
		return "dma: " + e.Op + ": " + e.Err.Error()
	}
	return "dma: " + e.Op + " " + e.Plane + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, plane string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Plane: plane, Err: err}
}
