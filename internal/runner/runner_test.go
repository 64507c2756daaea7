package runner

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/xupit3r/planedma/internal/dma"
	"github.com/xupit3r/planedma/internal/hostbuf"
	"github.com/xupit3r/planedma/internal/pipeline"
	"github.com/xupit3r/planedma/internal/validate"
	"github.com/xupit3r/planedma/internal/view"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func baseOptions() Options {
	return Options{
		Width:     64,
		Height:    64,
		Format:    dma.P010,
		Device:    dma.NewSimDevice(),
		Validator: validate.New(),
		Log:       quietLog(),
	}
}

func TestRunEndToEnd(t *testing.T) {
	for _, perPlane := range []bool{false, true} {
		opts := baseOptions()
		opts.PerPlane = perPlane

		res, err := Run(context.Background(), opts)
		if err != nil {
			t.Fatalf("perPlane=%v: Run failed: %v", perPlane, err)
		}
		if !res.Report.OK() {
			t.Fatalf("perPlane=%v: %d mismatches, first %v", perPlane, res.Report.Count, res.Report.Mismatches)
		}
		if res.Prepared != 2 || res.Status != 0 {
			t.Errorf("prepared=%d status=%d", res.Prepared, res.Status)
		}
		if !res.Stats.Balanced() || res.Stats.EnginesAllocated != 1 || res.Stats.Prepares != 2 {
			t.Errorf("unexpected device stats %+v", res.Stats)
		}
		if want := int64(64 * 96 * 2); res.Stats.BytesTransferred != want {
			t.Errorf("transferred %d bytes, want %d", res.Stats.BytesTransferred, want)
		}
	}
}

func TestRunZeroHeight(t *testing.T) {
	opts := baseOptions()
	opts.Height = 0

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Prepared != 0 || res.Report.Count != 0 {
		t.Errorf("prepared=%d mismatches=%d", res.Prepared, res.Report.Count)
	}
	if !res.Stats.Balanced() || res.Stats.EnginesAllocated != 1 {
		t.Errorf("unexpected device stats %+v", res.Stats)
	}
}

func TestRunRejectsOddSizes(t *testing.T) {
	for _, sz := range []Size{{63, 64}, {64, 63}, {0, 64}} {
		opts := baseOptions()
		opts.Width, opts.Height = sz.Width, sz.Height
		if _, err := Run(context.Background(), opts); !errors.Is(err, view.ErrRange) {
			t.Errorf("%s: expected ErrRange, got %v", sz, err)
		}
	}
}

// linearChroma scales luma correctly but writes chroma as if it were a
// dense (width/2, height/2, 2) block, the classic stride bug.
var linearChroma = pipeline.Func(func(inY, inUV pipeline.Input, outY, outUV pipeline.Output) int {
	for _, pl := range []struct {
		in     pipeline.Input
		out    pipeline.Output
		linear bool
	}{{inY, outY, false}, {inUV, outUV, true}} {
		src, err := pl.in.Host()
		if err != nil {
			return pipeline.StatusInputFailed
		}
		g := pl.in.Geometry()
		dst := pl.out.View
		lo, _ := dst.Span()
		dense, _ := view.New(2, dst.Len(), dst.Extents()...)
		g.Each(func(c []int) bool {
			off := dst.ElementOffset(c...)
			if pl.linear {
				off = lo + dense.ElementOffset(c...)
			}
			pl.out.Data[off] = src[g.ElementOffset(c...)] * 2
			return true
		})
	}
	return pipeline.StatusOK
})

func TestRunDetectsGeometryBug(t *testing.T) {
	opts := baseOptions()
	opts.Pipeline = linearChroma
	opts.PerPlane = true
	opts.Collector = validate.Collector{Limit: 5}

	res, err := Run(context.Background(), opts)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if res.Report.Count == 0 || len(res.Report.Mismatches) != 5 || !res.Report.Truncated {
		t.Errorf("unexpected report %+v", res.Report)
	}
	for _, m := range res.Report.Mismatches {
		if m.Plane != "chroma" {
			t.Errorf("mismatch reported in %s", m.Plane)
		}
	}
	if !res.Stats.Balanced() {
		t.Errorf("unbalanced device stats %+v", res.Stats)
	}
}

func TestRunPipelineFailure(t *testing.T) {
	opts := baseOptions()
	opts.Pipeline = pipeline.Func(func(_, _ pipeline.Input, _, _ pipeline.Output) int { return -1 })
	opts.DumpDir = t.TempDir()
	opts.DumpOnFail = true

	res, err := Run(context.Background(), opts)
	if !errors.Is(err, dma.ErrPipeline) {
		t.Fatalf("expected ErrPipeline, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("untouched output should fail validation, got %v", err)
	}
	if res.Status != -1 {
		t.Errorf("status = %d", res.Status)
	}
	if !res.Stats.Balanced() {
		t.Errorf("teardown skipped after pipeline failure: %+v", res.Stats)
	}
	if len(res.Dumped) != 2 {
		t.Fatalf("expected input and output dumps, got %v", res.Dumped)
	}
	for _, p := range res.Dumped {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("dump missing: %v", err)
		}
	}
}

func TestRunNoDumpOnSuccess(t *testing.T) {
	opts := baseOptions()
	opts.DumpDir = t.TempDir()
	opts.DumpOnFail = true

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Dumped) != 0 {
		t.Errorf("dumped %v on success", res.Dumped)
	}
}

func TestRunRejectedFormat(t *testing.T) {
	opts := baseOptions()
	dev := dma.NewSimDevice(dma.WithRejectedFormats(dma.P010))
	opts.Device = dev

	res, err := Run(context.Background(), opts)
	if !errors.Is(err, dma.ErrPrepare) {
		t.Fatalf("expected ErrPrepare, got %v", err)
	}
	if res == nil || !res.Stats.Balanced() {
		t.Errorf("engine or bindings leaked: %+v", dev.Stats())
	}
}

func TestRunRejectsPlaneFormats(t *testing.T) {
	for _, f := range []dma.Format{dma.P010Y, dma.P010UV, dma.NV12Y, dma.NV124RUV} {
		t.Run(f.String(), func(t *testing.T) {
			opts := baseOptions()
			dev := dma.NewSimDevice()
			opts.Device = dev
			opts.Format = f

			if _, err := Run(context.Background(), opts); !errors.Is(err, dma.ErrPrepare) {
				t.Fatalf("expected ErrPrepare, got %v", err)
			}
			if st := dev.Stats(); st.EnginesAllocated != 0 {
				t.Errorf("engine allocated for a rejected format: %+v", st)
			}
		})
	}
}

func TestRunEngineUnavailable(t *testing.T) {
	opts := baseOptions()
	opts.Device = dma.NewSimDevice(dma.WithAllocateFault(errors.New("busy")))

	_, err := Run(context.Background(), opts)
	if !errors.Is(err, dma.ErrEngineAllocation) {
		t.Fatalf("expected ErrEngineAllocation, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, baseOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParseSizes(t *testing.T) {
	got, err := ParseSizes([]string{"64x64", "1920X1080", " 64x64 ", "32x0"})
	if err != nil {
		t.Fatalf("ParseSizes failed: %v", err)
	}
	want := []Size{{64, 64}, {1920, 1080}, {32, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sizes (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"64", "ax64", "64xb"} {
		if _, err := ParseSize(bad); err == nil {
			t.Errorf("ParseSize(%q) should fail", bad)
		}
	}
}

func TestSweep(t *testing.T) {
	sizes := []Size{{64, 64}, {32, 16}, {63, 8}, {16, 0}, {128, 32}}
	opts := baseOptions()
	opts.Device = nil

	results, err := Sweep(context.Background(), opts, sizes, 3, func() (dma.Device, error) {
		return dma.NewSimDevice(dma.WithMaxEngines(1)), nil
	})
	if err == nil {
		t.Fatal("expected the odd size to fail")
	}
	if len(results) != len(sizes) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Size != sizes[i] {
			t.Errorf("result %d is for %s, want %s", i, r.Size, sizes[i])
		}
		if sizes[i].Width == 63 {
			if !errors.Is(r.Err, view.ErrRange) {
				t.Errorf("%s: expected ErrRange, got %v", r.Size, r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("%s: %v", r.Size, r.Err)
			continue
		}
		if !r.Result.Report.OK() || !r.Result.Stats.Balanced() {
			t.Errorf("%s: report %+v stats %+v", r.Size, r.Result.Report, r.Result.Stats)
		}
	}
}

func TestRunWithPool(t *testing.T) {
	pool := hostbuf.NewPool(0)
	defer pool.Close()

	// 64x60 falls into the same size class as 64x64 and reshapes the
	// recycled storage.
	for i, h := range []int{64, 64, 60} {
		opts := baseOptions()
		opts.Height = h
		opts.Pool = pool
		opts.PerPlane = true

		res, err := Run(context.Background(), opts)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if !res.Report.OK() {
			t.Fatalf("run %d: %d mismatches", i, res.Report.Count)
		}
	}

	st := pool.Stats()
	if st.Allocations != 6 || st.Misses != 2 || st.Reuses != 4 {
		t.Errorf("unexpected pool stats %+v", st)
	}
}
