package view

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustNew(t *testing.T, capacity int, extents ...int) View {
	t.Helper()
	v, err := New(2, capacity, extents...)
	if err != nil {
		t.Fatalf("New(%v) failed: %v", extents, err)
	}
	return v
}

func TestNewDenseStrides(t *testing.T) {
	tests := []struct {
		name    string
		extents []int
		strides []int
	}{
		{"1D", []int{10}, []int{1}},
		{"2D", []int{64, 96}, []int{1, 64}},
		{"3D", []int{4, 3, 2}, []int{1, 4, 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := 1
			for _, e := range tt.extents {
				n *= e
			}
			v := mustNew(t, n, tt.extents...)
			for i, d := range v.Dims() {
				if d.Stride != tt.strides[i] {
					t.Errorf("axis %d: expected stride %d, got %d", i, tt.strides[i], d.Stride)
				}
			}
			if v.Len() != n {
				t.Errorf("expected %d elements, got %d", n, v.Len())
			}
		})
	}
}

func TestNewRejectsOversizedView(t *testing.T) {
	if _, err := New(2, 10, 4, 4); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange, got %v", err)
	}
	if _, err := New(2, 10, 1, 1, 1, 1, 1); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange for rank 5, got %v", err)
	}
}

func TestElementOffset(t *testing.T) {
	v := mustNew(t, 64*96, 64, 96)
	if got := v.ElementOffset(3, 2); got != 3+2*64 {
		t.Errorf("ElementOffset(3, 2) = %d", got)
	}

	c, err := v.Crop(1, 64, 32)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if got := c.ElementOffset(0, 0); got != 64*64 {
		t.Errorf("cropped origin = %d, want %d", got, 64*64)
	}
	if got := c.ElementOffset(5); got != 64*64+5 {
		t.Errorf("missing coordinates should be zero, got %d", got)
	}
}

func TestCrop(t *testing.T) {
	v := mustNew(t, 64*96, 64, 96)

	tests := []struct {
		name    string
		axis    int
		start   int
		length  int
		wantErr bool
	}{
		{"luma rows", 1, 0, 64, false},
		{"chroma rows", 1, 64, 32, false},
		{"full", 0, 0, 64, false},
		{"empty", 1, 96, 0, false},
		{"past end", 1, 64, 33, true},
		{"negative start", 0, -1, 4, true},
		{"negative length", 0, 0, -4, true},
		{"bad axis", 2, 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := v.Crop(tt.axis, tt.start, tt.length)
			if tt.wantErr {
				if !errors.Is(err, ErrRange) {
					t.Errorf("expected ErrRange, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Crop failed: %v", err)
			}
			d := c.Dim(tt.axis)
			if d.Min != tt.start || d.Extent != tt.length {
				t.Errorf("got %+v, want min %d extent %d", d, tt.start, tt.length)
			}
			if err := c.Check(); err != nil {
				t.Errorf("cropped view out of range: %v", err)
			}
		})
	}
}

func TestCropComposes(t *testing.T) {
	v := mustNew(t, 32*40, 32, 40)

	for a := 0; a <= 10; a += 5 {
		for b := 0; b <= 10; b += 5 {
			once, err := v.Crop(1, 4, 30)
			if err != nil {
				t.Fatal(err)
			}
			twice, err := once.Crop(1, a, 20-b)
			if err != nil {
				t.Fatal(err)
			}
			single, err := v.Crop(1, 4+a, 20-b)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(single.Dims(), twice.Dims()); diff != "" {
				t.Errorf("crop(%d, %d) after crop(4, 30) differs (-single +twice):\n%s", a, 20-b, diff)
			}
			if single.ElementOffset(1, 1) != twice.ElementOffset(1, 1) {
				t.Errorf("element offsets differ")
			}
		}
	}
}

func TestEmbed(t *testing.T) {
	v := mustNew(t, 16, 4, 4)

	e, err := v.Embed(0, Dim{Extent: 1, Stride: 0})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if diff := cmp.Diff([]int{1, 4, 4}, e.Extents()); diff != "" {
		t.Errorf("extents (-want +got):\n%s", diff)
	}
	if e.Dim(1).Stride != 1 || e.Dim(2).Stride != 4 {
		t.Errorf("later axes did not shift: %v", e)
	}

	if _, err := v.Embed(2, Dim{Extent: 2, Stride: 16}); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange for embed past capacity, got %v", err)
	}
	if _, err := v.Embed(3, Dim{Extent: 1, Stride: 1}); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange for bad axis, got %v", err)
	}
	if _, err := v.Embed(0, Dim{Extent: -1, Stride: 1}); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange for negative extent, got %v", err)
	}
}

func TestInterleave(t *testing.T) {
	const w, h = 8, 4
	frame := mustNew(t, w*h*3/2, w, h*3/2)
	rows, err := frame.Crop(1, h, h/2)
	if err != nil {
		t.Fatal(err)
	}

	uv, err := rows.Interleave(0, 2)
	if err != nil {
		t.Fatalf("Interleave failed: %v", err)
	}
	if diff := cmp.Diff([]int{w / 2, h / 2, 2}, uv.Extents()); diff != "" {
		t.Errorf("extents (-want +got):\n%s", diff)
	}
	// (x, y, c) addresses the c-th component of the x-th pair in row h+y.
	if got, want := uv.ElementOffset(1, 1, 1), (h+1)*w+2*1+1; got != want {
		t.Errorf("ElementOffset(1, 1, 1) = %d, want %d", got, want)
	}
	lo, hi := uv.Span()
	if lo != w*h || hi != w*h*3/2 {
		t.Errorf("span [%d, %d), want [%d, %d)", lo, hi, w*h, w*h*3/2)
	}

	odd := mustNew(t, 7*2, 7, 2)
	if _, err := odd.Interleave(0, 2); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange for odd width, got %v", err)
	}
	if _, err := rows.Interleave(0, 0); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange for zero components, got %v", err)
	}
}

func TestCompact(t *testing.T) {
	frame := mustNew(t, 8*6, 8, 6)
	rows, _ := frame.Crop(1, 4, 2)
	uv, err := rows.Interleave(0, 2)
	if err != nil {
		t.Fatal(err)
	}

	c := uv.Compact()
	if c.ElementOffset(0, 0, 0) != 0 {
		t.Errorf("compact origin = %d", c.ElementOffset(0, 0, 0))
	}
	if c.Capacity() != 16 {
		t.Errorf("compact capacity = %d, want 16", c.Capacity())
	}
	if err := c.Check(); err != nil {
		t.Errorf("compact view out of range: %v", err)
	}
	if !c.SameShape(uv) {
		t.Error("compact changed the shape")
	}
}

func TestEmptyView(t *testing.T) {
	v := mustNew(t, 0, 64, 0)
	if !v.Empty() {
		t.Error("expected empty view")
	}
	if err := v.Check(); err != nil {
		t.Errorf("empty view should be valid: %v", err)
	}
	calls := 0
	v.Each(func([]int) bool { calls++; return true })
	if calls != 0 {
		t.Errorf("Each visited %d coordinates of an empty view", calls)
	}
}

func TestCheckRejectsNegativeGeometry(t *testing.T) {
	tests := []struct {
		name string
		dims []Dim
	}{
		{"negative stride", []Dim{{Extent: 4, Stride: 1}, {Min: 3, Extent: 4, Stride: -4}}},
		{"negative stride on empty view", []Dim{{Extent: 0, Stride: -1}}},
		{"negative extent", []Dim{{Extent: -1, Stride: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := View{elemSize: 2, capacity: 16, dims: tt.dims}
			if err := v.Check(); !errors.Is(err, ErrRange) {
				t.Errorf("expected ErrRange, got %v", err)
			}
		})
	}
}

func TestEach(t *testing.T) {
	v := mustNew(t, 6, 3, 2)
	var got [][]int
	v.Each(func(c []int) bool {
		got = append(got, append([]int(nil), c...))
		return true
	})
	want := [][]int{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {1, 1}, {2, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Each order (-want +got):\n%s", diff)
	}

	n := 0
	v.Each(func([]int) bool { n++; return n < 2 })
	if n != 2 {
		t.Errorf("Each did not stop early, visited %d", n)
	}
}
