// Package pipeline defines the boundary to the pixel-processing stage that
// consumes prepared input planes and fills output planes.
package pipeline

import (
	"github.com/xupit3r/planedma/internal/view"
)

// Status codes returned by the reference pipelines. Any non-zero status is a
// failure.
const (
	StatusOK            = 0
	StatusInputFailed   = 1
	StatusGeometry      = 2
	StatusOutputMissing = 3
)

// Input is a plane the pipeline reads. Host may trigger a device transfer
// before returning the samples.
type Input interface {
	Geometry() view.View
	Host() ([]uint16, error)
}

// Output is a plane the pipeline writes. View addresses Data.
type Output struct {
	View view.View
	Data []uint16
}

// Pipeline consumes a luma/chroma pair and produces a luma/chroma pair.
type Pipeline interface {
	Run(inY, inUV Input, outY, outUV Output) int
}

// Func adapts a function to the Pipeline interface.
type Func func(inY, inUV Input, outY, outUV Output) int

// Run calls f.
func (f Func) Run(inY, inUV Input, outY, outUV Output) int {
	return f(inY, inUV, outY, outUV)
}

// Static is a host-resident Input that needs no transfer. It stands in for
// planes with zero extent, which are never bound to an engine.
type Static struct {
	View view.View
	Data []uint16
}

// Geometry returns the view of the samples.
func (s Static) Geometry() view.View { return s.View }

// Host returns the samples.
func (s Static) Host() ([]uint16, error) { return s.Data, nil }
