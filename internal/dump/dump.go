// Package dump writes planes to 16-bit grayscale TIFF files so partial or
// failing output can be inspected with ordinary image tools.
package dump

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/xupit3r/planedma/internal/view"
)

// Image renders v over data as a Gray16 image. A 2-axis view maps to
// (x, y); a 3-axis view places its components side by side, so an
// interleaved U/V plane becomes a U image next to a V image.
func Image(v view.View, data []uint16) (*image.Gray16, error) {
	ext := v.Extents()
	var w, h, comps int
	switch len(ext) {
	case 2:
		w, h, comps = ext[0], ext[1], 1
	case 3:
		w, h, comps = ext[0], ext[1], ext[2]
	default:
		return nil, fmt.Errorf("dump: cannot render rank-%d view", len(ext))
	}
	if _, hi := v.Span(); !v.Empty() && hi > len(data) {
		return nil, fmt.Errorf("dump: view %v exceeds %d samples", v, len(data))
	}

	img := image.NewGray16(image.Rect(0, 0, w*comps, h))
	v.Each(func(c []int) bool {
		x := c[0]
		if comps > 1 {
			x += c[2] * w
		}
		img.SetGray16(x, c[1], color.Gray16{Y: data[v.ElementOffset(c...)]})
		return true
	})
	return img, nil
}

// WriteTIFF renders v over data into path, creating parent directories.
func WriteTIFF(path string, v view.View, data []uint16) error {
	img, err := Image(v, data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return fmt.Errorf("dump: encoding %s: %w", path, err)
	}
	return f.Close()
}
