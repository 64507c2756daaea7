// Package planar lays out 4:2:0 semi-planar frames (P010, NV12): a luma
// plane of width x height samples followed by a chroma plane of
// height/2 rows holding interleaved U/V pairs.
package planar

import (
	"encoding/binary"
	"fmt"

	"github.com/xupit3r/planedma/internal/hostbuf"
	"github.com/xupit3r/planedma/internal/view"
)

// Components is the number of interleaved chroma components.
const Components = 2

// Layout is the geometry of one frame.
type Layout struct {
	Width  int
	Height int
}

// NewLayout validates a frame size. Subsampling halves both axes, so width
// must be positive and even and height even.
func NewLayout(width, height int) (Layout, error) {
	if width <= 0 || width%2 != 0 {
		return Layout{}, fmt.Errorf("%w: width %d must be positive and even", view.ErrRange, width)
	}
	if height < 0 || height%2 != 0 {
		return Layout{}, fmt.Errorf("%w: height %d must be non-negative and even", view.ErrRange, height)
	}
	return Layout{Width: width, Height: height}, nil
}

func (l Layout) String() string {
	return fmt.Sprintf("%dx%d", l.Width, l.Height)
}

// Rows returns the number of frame rows, luma plus chroma.
func (l Layout) Rows() int { return l.Height + l.Height/2 }

// FrameElements returns the sample count of a whole frame.
func (l Layout) FrameElements() int { return l.Width * l.Rows() }

// FrameExtents returns the (x, y) extents of the frame as one 2D image.
func (l Layout) FrameExtents() []int { return []int{l.Width, l.Rows()} }

// AllocateFrame returns a zeroed host buffer holding one frame of
// elemSize-byte samples.
func (l Layout) AllocateFrame(elemSize int) (*hostbuf.Buffer, error) {
	return hostbuf.Allocate(elemSize, l.FrameExtents()...)
}

// Luma returns the (width, height) luma plane of frame.
func (l Layout) Luma(frame view.View) (view.View, error) {
	if err := l.checkFrame(frame); err != nil {
		return view.View{}, err
	}
	return frame.Crop(1, 0, l.Height)
}

// Chroma returns the (width/2, height/2, 2) chroma plane of frame.
func (l Layout) Chroma(frame view.View) (view.View, error) {
	if err := l.checkFrame(frame); err != nil {
		return view.View{}, err
	}
	rows, err := frame.Crop(1, l.Height, l.Height/2)
	if err != nil {
		return view.View{}, err
	}
	return rows.Interleave(0, Components)
}

// Planes returns both planes of frame.
func (l Layout) Planes(frame view.View) (luma, chroma view.View, err error) {
	if luma, err = l.Luma(frame); err != nil {
		return view.View{}, view.View{}, fmt.Errorf("luma plane: %w", err)
	}
	if chroma, err = l.Chroma(frame); err != nil {
		return view.View{}, view.View{}, fmt.Errorf("chroma plane: %w", err)
	}
	return luma, chroma, nil
}

func (l Layout) checkFrame(frame view.View) error {
	ext := frame.Extents()
	if len(ext) != 2 || ext[0] != l.Width || ext[1] != l.Rows() {
		return fmt.Errorf("%w: frame %v does not match layout %s", view.ErrRange, frame, l)
	}
	return nil
}

// FillSequential writes consecutive 32-bit counters 0, 1, 2, ... little
// endian over b, so every 16-bit sample pair carries a distinct value and a
// misplaced transfer shows up as a mismatch. A trailing partial word is
// left untouched.
func FillSequential(b []byte) {
	for i := 0; i+4 <= len(b); i += 4 {
		binary.LittleEndian.PutUint32(b[i:], uint32(i/4))
	}
}
