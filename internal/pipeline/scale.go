package pipeline

import (
	"github.com/xupit3r/planedma/internal/logging"
	"github.com/xupit3r/planedma/internal/view"
)

// Scale multiplies every sample by Factor. Each plane is walked through its
// own geometry, so luma and chroma are addressed independently of how they
// are laid out in memory.
type Scale struct {
	Factor uint16
}

// Run implements Pipeline.
func (s Scale) Run(inY, inUV Input, outY, outUV Output) int {
	if st := s.plane("luma", inY, outY); st != StatusOK {
		return st
	}
	return s.plane("chroma", inUV, outUV)
}

func (s Scale) plane(name string, in Input, out Output) int {
	src := in.Geometry()
	if !src.SameShape(out.View) {
		logging.Errorf("%s: input %v and output %v differ in shape", name, src, out.View)
		return StatusGeometry
	}
	if src.Empty() {
		return StatusOK
	}

	samples, err := in.Host()
	if err != nil {
		logging.Errorf("%s: reading input: %v", name, err)
		return StatusInputFailed
	}
	if !fits(src, len(samples)) {
		logging.Errorf("%s: input view %v exceeds %d samples", name, src, len(samples))
		return StatusGeometry
	}
	if out.Data == nil || !fits(out.View, len(out.Data)) {
		logging.Errorf("%s: output view %v has no backing of the right size", name, out.View)
		return StatusOutputMissing
	}

	src.Each(func(c []int) bool {
		out.Data[out.View.ElementOffset(c...)] = samples[src.ElementOffset(c...)] * s.Factor
		return true
	})
	logging.Debugf("%s: scaled %d samples by %d", name, src.Len(), s.Factor)
	return StatusOK
}

func fits(v view.View, n int) bool {
	lo, hi := v.Span()
	return lo >= 0 && hi <= n
}
