// Package validate checks pipeline output against an independently computed
// transform of the pipeline input.
package validate

import (
	"fmt"
	"iter"

	"github.com/xupit3r/planedma/internal/planar"
	"github.com/xupit3r/planedma/internal/view"
)

// Transform maps an input sample to the sample the pipeline must produce.
type Transform func(uint16) uint16

// Double is the transform of the reference pipeline. It wraps like the
// 16-bit arithmetic it checks.
func Double(s uint16) uint16 { return s * 2 }

// Sampler reads samples through a view's coordinate mapping.
type Sampler interface {
	Geometry() view.View
	At(coords []int) uint16
}

// Samples is a Sampler over a flat slice.
type Samples struct {
	View view.View
	Data []uint16
}

// Geometry returns the view.
func (s Samples) Geometry() view.View { return s.View }

// At returns the sample at local coordinates.
func (s Samples) At(coords []int) uint16 { return s.Data[s.View.ElementOffset(coords...)] }

type transformed struct {
	src Sampler
	tf  Transform
}

func (t transformed) Geometry() view.View { return t.src.Geometry() }

func (t transformed) At(coords []int) uint16 { return t.tf(t.src.At(coords)) }

// Expected returns a lazy Sampler yielding tf applied to src.
func Expected(src Sampler, tf Transform) Sampler {
	return transformed{src: src, tf: tf}
}

// Mismatch is one sample that differs from its expected value.
type Mismatch struct {
	Plane    string
	Coords   []int
	Expected uint16
	Actual   uint16
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s%v: expected %d, got %d", m.Plane, m.Coords, m.Expected, m.Actual)
}

// Compare returns the mismatches between actual and expected, walking both
// through their own geometry. The sequence is lazy and can be iterated any
// number of times. Differences up to tol are accepted.
func Compare(plane string, actual, expected Sampler, tol uint16) (iter.Seq[Mismatch], error) {
	av, ev := actual.Geometry(), expected.Geometry()
	if !av.SameShape(ev) {
		return nil, fmt.Errorf("%s: output %v and expected %v differ in shape", plane, av, ev)
	}
	for name, s := range map[string]Sampler{"output": actual, "expected": expected} {
		if sm, ok := s.(Samples); ok {
			if _, hi := sm.View.Span(); !sm.View.Empty() && hi > len(sm.Data) {
				return nil, fmt.Errorf("%s: %s view %v exceeds %d samples", plane, name, sm.View, len(sm.Data))
			}
		}
	}

	return func(yield func(Mismatch) bool) {
		av.Each(func(c []int) bool {
			a, e := actual.At(c), expected.At(c)
			if diff(a, e) <= tol {
				return true
			}
			return yield(Mismatch{
				Plane:    plane,
				Coords:   append([]int(nil), c...),
				Expected: e,
				Actual:   a,
			})
		})
	}, nil
}

func diff(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}

// Validator compares pipeline output against Transform of the input.
type Validator struct {
	Transform Transform
	Tolerance uint16
}

// New returns a Validator for the doubling pipeline with exact matching.
func New() Validator {
	return Validator{Transform: Double}
}

func (v Validator) transform() Transform {
	if v.Transform == nil {
		return Double
	}
	return v.Transform
}

// Frame compares two whole frames sample by sample in (x, y) order.
func (v Validator) Frame(input, output Samples) (iter.Seq[Mismatch], error) {
	return Compare("frame", output, Expected(input, v.transform()), v.Tolerance)
}

// Planes compares the luma and chroma planes of two frames, each through
// the coordinate mapping of its own plane view.
func (v Validator) Planes(layout planar.Layout, input, output Samples) (iter.Seq[Mismatch], error) {
	inY, inUV, err := layout.Planes(input.View)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	outY, outUV, err := layout.Planes(output.View)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	tf := v.transform()
	luma, err := Compare("luma", Samples{outY, output.Data}, Expected(Samples{inY, input.Data}, tf), v.Tolerance)
	if err != nil {
		return nil, err
	}
	chroma, err := Compare("chroma", Samples{outUV, output.Data}, Expected(Samples{inUV, input.Data}, tf), v.Tolerance)
	if err != nil {
		return nil, err
	}

	return func(yield func(Mismatch) bool) {
		for m := range luma {
			if !yield(m) {
				return
			}
		}
		for m := range chroma {
			if !yield(m) {
				return
			}
		}
	}, nil
}
