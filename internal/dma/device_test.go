package dma

import (
	"errors"
	"runtime"
	"testing"

	"github.com/xupit3r/planedma/internal/view"
)

func TestOpenSim(t *testing.T) {
	dev, err := Open("sim")
	if err != nil {
		t.Fatalf("Open(sim) failed: %v", err)
	}
	if dev.Name() == "" {
		t.Error("Device name is empty")
	}

	if _, err := Open("hexagon"); err == nil {
		t.Error("expected error for unregistered device")
	}
}

func TestRegister(t *testing.T) {
	if err := Register("sim", nil); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := Register("sim-small", func() (Device, error) {
		return NewSimDevice(WithMaxEngines(1)), nil
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	found := false
	for _, name := range Devices() {
		if name == "sim-small" {
			found = true
		}
	}
	if !found {
		t.Errorf("sim-small missing from %v", Devices())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"p010", P010},
		{" P010-UV ", P010UV},
		{"nv12-y", NV12Y},
		{"raw", RawData},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if back, _ := ParseFormat(got.String()); back != got {
			t.Errorf("%s does not parse back", got)
		}
	}
	if _, err := ParseFormat("yuv444"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFormats(t *testing.T) {
	fs := Formats()
	if len(fs) != 10 || fs[0] != RawData || fs[len(fs)-1] != NV124RUV {
		t.Fatalf("unexpected format list %v", fs)
	}
	planes := map[PlaneKind]int{}
	for _, f := range fs {
		planes[f.Plane()]++
	}
	if planes[LumaPlane] != 3 || planes[ChromaPlane] != 3 || planes[AnyPlane] != 4 {
		t.Errorf("plane kinds %v", planes)
	}
}

func TestSimDeviceDirectMisuse(t *testing.T) {
	dev := NewSimDevice()
	buf := make([]uint16, 16)
	v, err := view.New(2, 16, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := dev.WrapNative(0, v); !errors.Is(err, ErrPrepare) {
		t.Errorf("expected ErrPrepare for null address, got %v", err)
	}
	if err := dev.PrepareForHostCopy(42, 1, false, P010); !errors.Is(err, ErrPrepare) {
		t.Errorf("expected ErrPrepare for unbound handle, got %v", err)
	}
	if err := dev.Unprepare(42); !errors.Is(err, ErrUnprepare) {
		t.Errorf("expected ErrUnprepare for unbound handle, got %v", err)
	}
	if err := dev.DeallocateEngine(7); !errors.Is(err, ErrEngineReleased) {
		t.Errorf("expected ErrEngineReleased, got %v", err)
	}
	if err := dev.SetDeviceDirty(42); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("expected ErrUnknownHandle, got %v", err)
	}

	e, err := dev.AllocateEngine()
	if err != nil {
		t.Fatal(err)
	}
	h, err := dev.WrapNative(addrOf(buf), v)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.CopyToHost(h, make([]byte, 32), v); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState for transfer before prepare, got %v", err)
	}
	if err := dev.PrepareForHostCopy(h, e, false, RawData); err != nil {
		t.Fatal(err)
	}
	if err := dev.DeallocateEngine(e); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState releasing an engine with prepared bindings, got %v", err)
	}
	if err := dev.Detach(h); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState detaching a prepared binding, got %v", err)
	}
	if err := dev.CopyToDevice(h, make([]byte, 32), v); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState writing through a read binding, got %v", err)
	}
	if err := dev.CopyToHost(h, make([]byte, 8), v); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState for short destination, got %v", err)
	}
	if err := dev.Unprepare(h); err != nil {
		t.Fatal(err)
	}
	if err := dev.Detach(h); err != nil {
		t.Fatal(err)
	}
	if err := dev.DeallocateEngine(e); err != nil {
		t.Fatal(err)
	}
	if st := dev.Stats(); !st.Balanced() {
		t.Errorf("unbalanced stats %+v", st)
	}
	runtime.KeepAlive(buf)
}
