// Package runner stages a P010 frame through a DMA session, runs the
// pipeline over the transferred planes and validates the output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/planedma/internal/dma"
	"github.com/xupit3r/planedma/internal/dump"
	"github.com/xupit3r/planedma/internal/hostbuf"
	"github.com/xupit3r/planedma/internal/logging"
	"github.com/xupit3r/planedma/internal/pipeline"
	"github.com/xupit3r/planedma/internal/planar"
	"github.com/xupit3r/planedma/internal/validate"
	"github.com/xupit3r/planedma/internal/view"
)

// ErrValidation is returned after teardown when the output differs from the
// expected transform.
var ErrValidation = errors.New("runner: output does not match expected transform")

// Options configures one run.
type Options struct {
	Width  int
	Height int
	Format dma.Format

	// Device is used as is; when nil, DeviceName is opened.
	Device     dma.Device
	DeviceName string

	// Pipeline defaults to pipeline.Scale{Factor: 2}.
	Pipeline  pipeline.Pipeline
	Validator validate.Validator
	Collector validate.Collector
	// PerPlane validates luma and chroma through their own views instead
	// of the whole frame in (x, y) order.
	PerPlane bool

	DumpDir    string
	DumpOnFail bool

	// Pool, when set, supplies the frame buffers and takes them back after
	// teardown.
	Pool *hostbuf.Pool

	Log *logrus.Entry
}

// Result describes a finished run. It is returned even when the run fails
// so partial output can be reported.
type Result struct {
	Layout   planar.Layout
	Device   string
	Prepared int
	Status   int
	Report   validate.Report
	Stats    dma.Stats
	Elapsed  time.Duration
	Dumped   []string
}

// Run executes the whole transfer-and-verify sequence. Host buffers are
// released only after the session has unprepared every plane and released
// its engine.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	layout, err := planar.NewLayout(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	if k := opts.Format.Plane(); k != dma.AnyPlane {
		return nil, fmt.Errorf("%w: %s describes only the %s plane, a frame needs a whole-frame format",
			dma.ErrPrepare, opts.Format, k)
	}
	dev, err := openDevice(opts)
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = logging.WithFields(logrus.Fields{})
	}
	log = log.WithField("frame", layout.String())

	input, err := allocateFrame(opts.Pool, layout)
	if err != nil {
		return nil, fmt.Errorf("input frame: %w", err)
	}
	defer releaseFrame(log, opts.Pool, "input", input)
	planar.FillSequential(input.Bytes())

	output, err := allocateFrame(opts.Pool, layout)
	if err != nil {
		return nil, fmt.Errorf("output frame: %w", err)
	}
	defer releaseFrame(log, opts.Pool, "output", output)

	inY, inUV, err := layout.Planes(input.View())
	if err != nil {
		return nil, err
	}
	outY, outUV, err := layout.Planes(output.View())
	if err != nil {
		return nil, err
	}

	pl := opts.Pipeline
	if pl == nil {
		pl = pipeline.Scale{Factor: 2}
	}

	res := &Result{Layout: layout, Device: dev.Name()}
	start := time.Now()

	sessionErr := dma.WithSession(dev, log, func(s *dma.Session) error {
		y, err := stage(s, "luma", inY, input, opts.Format)
		if err != nil {
			return err
		}
		uv, err := stage(s, "chroma", inUV, input, opts.Format)
		if err != nil {
			return err
		}
		res.Prepared = len(s.Planes())

		status, err := s.InvokeConsumer(pl, y, uv,
			pipeline.Output{View: outY, Data: output.Uint16s()},
			pipeline.Output{View: outUV, Data: output.Uint16s()})
		res.Status = status
		return err
	})
	res.Elapsed = time.Since(start)
	res.Stats = dev.Stats()

	report, verr := validateOutput(opts, layout, input, output)
	if verr != nil {
		return res, errors.Join(sessionErr, verr)
	}
	res.Report = report

	failed := sessionErr != nil || !report.OK()
	if opts.DumpDir != "" && (!opts.DumpOnFail || failed) {
		paths, err := dumpFrames(opts.DumpDir, layout, input, output)
		res.Dumped = paths
		if err != nil {
			log.WithError(err).Warn("dumping frames failed")
		}
	}

	log.WithFields(logrus.Fields{
		"prepared":   res.Prepared,
		"status":     res.Status,
		"mismatches": report.Count,
		"elapsed":    res.Elapsed,
	}).Info("run finished")

	if !report.OK() {
		sessionErr = errors.Join(sessionErr, fmt.Errorf("%w: %d mismatches", ErrValidation, report.Count))
	}
	return res, sessionErr
}

// stage wraps, prepares and marks one input plane. Planes with zero extent
// are never bound; the pipeline reads them as empty host planes.
func stage(s *dma.Session, name string, v view.View, buf *hostbuf.Buffer, f dma.Format) (pipeline.Input, error) {
	if v.Empty() {
		return pipeline.Static{View: v.Compact()}, nil
	}
	p, err := s.WrapAndPrepare(name, v, buf.Addr(), f, false)
	if err != nil {
		return nil, err
	}
	if err := s.MarkDeviceDirty(p); err != nil {
		return nil, err
	}
	return p, nil
}

func validateOutput(opts Options, layout planar.Layout, input, output *hostbuf.Buffer) (validate.Report, error) {
	v := opts.Validator
	if v.Transform == nil {
		v.Transform = validate.Double
	}
	c := opts.Collector
	if c.Limit == 0 {
		c.Limit = validate.DefaultLimit
	}

	in := validate.Samples{View: input.View(), Data: input.Uint16s()}
	out := validate.Samples{View: output.View(), Data: output.Uint16s()}

	var err error
	var seq iter.Seq[validate.Mismatch]
	if opts.PerPlane {
		seq, err = v.Planes(layout, in, out)
	} else {
		seq, err = v.Frame(in, out)
	}
	if err != nil {
		return validate.Report{}, err
	}
	return c.Collect(seq), nil
}

func dumpFrames(dir string, layout planar.Layout, input, output *hostbuf.Buffer) ([]string, error) {
	if layout.FrameElements() == 0 {
		return nil, nil
	}
	var paths []string
	for _, f := range []struct {
		name string
		buf  *hostbuf.Buffer
	}{{"input", input}, {"output", output}} {
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.tiff", layout, f.name))
		if err := dump.WriteTIFF(path, f.buf.View(), f.buf.Uint16s()); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func openDevice(opts Options) (dma.Device, error) {
	if opts.Device != nil {
		return opts.Device, nil
	}
	name := opts.DeviceName
	if name == "" {
		name = "sim"
	}
	return dma.Open(name)
}

func allocateFrame(pool *hostbuf.Pool, layout planar.Layout) (*hostbuf.Buffer, error) {
	if pool != nil {
		return pool.Get(2, layout.FrameExtents()...)
	}
	return layout.AllocateFrame(2)
}

func releaseFrame(log *logrus.Entry, pool *hostbuf.Pool, name string, b *hostbuf.Buffer) {
	var err error
	if pool != nil {
		err = pool.Put(b)
	} else {
		err = b.Release()
	}
	if err != nil {
		log.WithError(err).Warnf("releasing %s frame", name)
	}
}
