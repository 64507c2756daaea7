package dma

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Format is the pixel layout an engine is asked to transfer.
type Format int

const (
	RawData  Format = iota // untyped bytes, any geometry
	NV12                   // 8-bit 4:2:0, luma + interleaved chroma
	NV12Y                  // 8-bit luma plane
	NV12UV                 // 8-bit interleaved chroma plane
	P010                   // 10-bit in 16-bit samples, 4:2:0
	P010Y                  // 10-bit luma plane
	P010UV                 // 10-bit interleaved chroma plane
	NV124R                 // 8-bit 4:2:0, 4-row tiled
	NV124RY                // 8-bit 4-row tiled luma plane
	NV124RUV               // 8-bit 4-row tiled chroma plane
)

var formatNames = map[Format]string{
	RawData:  "raw",
	NV12:     "nv12",
	NV12Y:    "nv12-y",
	NV12UV:   "nv12-uv",
	P010:     "p010",
	P010Y:    "p010-y",
	P010UV:   "p010-uv",
	NV124R:   "nv124r",
	NV124RY:  "nv124r-y",
	NV124RUV: "nv124r-uv",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat maps a name such as "p010" or "nv12-uv" to a Format.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown DMA format %q", s)
}

// Formats lists every format name in declaration order.
func Formats() []Format {
	out := lo.Keys(formatNames)
	slices.Sort(out)
	return out
}

// SampleSize returns the bytes per sample, or 0 for RawData which accepts
// any element size.
func (f Format) SampleSize() int {
	switch f {
	case RawData:
		return 0
	case P010, P010Y, P010UV:
		return 2
	default:
		return 1
	}
}

// PlaneKind tells which planes a format may describe.
type PlaneKind int

const (
	AnyPlane PlaneKind = iota
	LumaPlane
	ChromaPlane
)

// Plane returns the kind of plane the format is restricted to. Whole-frame
// formats describe either plane.
func (f Format) Plane() PlaneKind {
	switch f {
	case NV12Y, P010Y, NV124RY:
		return LumaPlane
	case NV12UV, P010UV, NV124RUV:
		return ChromaPlane
	default:
		return AnyPlane
	}
}

func (k PlaneKind) String() string {
	switch k {
	case LumaPlane:
		return "luma"
	case ChromaPlane:
		return "chroma"
	default:
		return "any plane"
	}
}
