package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/xupit3r/planedma/internal/dma"
	"github.com/xupit3r/planedma/internal/hostbuf"
)

// Size is a frame size.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// ParseSize parses "WIDTHxHEIGHT".
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("size %q: want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Size{}, fmt.Errorf("size %q: width: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Size{}, fmt.Errorf("size %q: height: %w", s, err)
	}
	return Size{Width: width, Height: height}, nil
}

// ParseSizes parses a list of sizes, dropping duplicates.
func ParseSizes(in []string) ([]Size, error) {
	sizes := make([]Size, 0, len(in))
	for _, s := range in {
		sz, err := ParseSize(s)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, sz)
	}
	return lo.Uniq(sizes), nil
}

// SweepResult is the outcome of one size in a sweep.
type SweepResult struct {
	Size   Size
	Result *Result
	Err    error
}

// Sweep runs one independent session per size, at most workers at a time.
// Each run gets its own device from open. Frame buffers are recycled through
// base.Pool, or a pool private to the sweep. Every size runs to completion;
// the returned error joins the per-size failures.
func Sweep(ctx context.Context, base Options, sizes []Size, workers int, open dma.Factory) (_ []SweepResult, err error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]SweepResult, len(sizes))
	if base.Pool == nil {
		base.Pool = hostbuf.NewPool(0)
		defer func() {
			if cerr := base.Pool.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sz := range sizes {
		g.Go(func() error {
			results[i].Size = sz
			dev, err := open()
			if err != nil {
				results[i].Err = err
				return nil
			}
			opts := base
			opts.Width, opts.Height = sz.Width, sz.Height
			opts.Device = dev
			if opts.Log != nil {
				opts.Log = opts.Log.WithField("sweep", sz.String())
			}
			results[i].Result, results[i].Err = Run(ctx, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Size, r.Err))
		}
	}
	return results, errors.Join(errs...)
}
