package pipeline

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xupit3r/planedma/internal/view"
)

type failingInput struct{ v view.View }

func (f failingInput) Geometry() view.View     { return f.v }
func (f failingInput) Host() ([]uint16, error) { return nil, errors.New("transfer failed") }

func mustView(t *testing.T, capacity int, extents ...int) view.View {
	t.Helper()
	v, err := view.New(2, capacity, extents...)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestScale(t *testing.T) {
	y := mustView(t, 4, 2, 2)
	uvFrame := mustView(t, 4, 4, 1)
	uv, err := uvFrame.Interleave(0, 2)
	if err != nil {
		t.Fatal(err)
	}

	inY := Static{y, []uint16{1, 2, 3, 4}}
	inUV := Static{uv, []uint16{10, 20, 30, 40}}
	outY := Output{y, make([]uint16, 4)}
	outUV := Output{uv, make([]uint16, 4)}

	if st := (Scale{Factor: 2}).Run(inY, inUV, outY, outUV); st != StatusOK {
		t.Fatalf("Run returned status %d", st)
	}
	if diff := cmp.Diff([]uint16{2, 4, 6, 8}, outY.Data); diff != "" {
		t.Errorf("luma (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint16{20, 40, 60, 80}, outUV.Data); diff != "" {
		t.Errorf("chroma (-want +got):\n%s", diff)
	}
}

func TestScaleFailures(t *testing.T) {
	y := mustView(t, 4, 2, 2)
	wide := mustView(t, 8, 4, 2)
	empty := mustView(t, 0, 2, 0)
	data := []uint16{1, 2, 3, 4}

	tests := []struct {
		name  string
		inY   Input
		outY  Output
		inUV  Input
		outUV Output
		want  int
	}{
		{"shape mismatch", Static{y, data}, Output{wide, make([]uint16, 8)}, Static{empty, nil}, Output{View: empty}, StatusGeometry},
		{"input fails", failingInput{y}, Output{y, make([]uint16, 4)}, Static{empty, nil}, Output{View: empty}, StatusInputFailed},
		{"short input", Static{y, data[:2]}, Output{y, make([]uint16, 4)}, Static{empty, nil}, Output{View: empty}, StatusGeometry},
		{"missing output", Static{y, data}, Output{View: y}, Static{empty, nil}, Output{View: empty}, StatusOutputMissing},
		{"empty planes", Static{empty, nil}, Output{View: empty}, Static{empty, nil}, Output{View: empty}, StatusOK},
		{"chroma fails after luma", Static{y, data}, Output{y, make([]uint16, 4)}, failingInput{y}, Output{y, make([]uint16, 4)}, StatusInputFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Scale{Factor: 2}).Run(tt.inY, tt.inUV, tt.outY, tt.outUV); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFunc(t *testing.T) {
	called := false
	p := Func(func(inY, inUV Input, outY, outUV Output) int {
		called = true
		return StatusGeometry
	})
	if st := p.Run(nil, nil, Output{}, Output{}); st != StatusGeometry || !called {
		t.Errorf("Func did not forward the call: status %d called %v", st, called)
	}
}
