package saliency

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/tensor"
)

func differentiable(model Model, m Method, opts Options) (Differentiable, error) {
	d, ok := model.(Differentiable)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs input gradients, %T has none", ErrUnsupportedMethod, m, model)
	}
	if opts.Device != device.Local {
		return nil, fmt.Errorf("%s runs on %s only, requested %s: %w", m, device.Local, opts.Device, device.ErrPlacement)
	}
	return d, nil
}

// gradients evaluates input gradients over the rows of points in chunks of
// batchSize. rev, a single (C, L) strand or nil, is repeated for every row.
func gradients(ctx context.Context, model Differentiable, points *tensor.Tensor[float32], rev *tensor.Tensor[float32], target, batchSize int) (*tensor.Tensor[float32], error) {
	m := points.Dim(0)
	out := tensor.New[float32](points.Shape...)
	for start := 0; start < m; start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, m)
		chunk := points.Slice(start, end)
		var revChunk *tensor.Tensor[float32]
		if rev != nil {
			revChunk = tensor.New[float32](chunk.Shape...)
			for i := 0; i < end-start; i++ {
				copy(revChunk.Row(i).Data, rev.Data)
			}
		}
		g, err := model.InputGradient(chunk, revChunk, target)
		if err != nil {
			return nil, err
		}
		if err := tensor.CheckShape("input gradient", g.Shape, chunk.Shape); err != nil {
			return nil, err
		}
		copy(out.Slice(start, end).Data, g.Data)
	}
	return out, nil
}

func reverseRow(rev *tensor.Tensor[float32], i int) *tensor.Tensor[float32] {
	if rev == nil {
		return nil
	}
	return rev.Row(i)
}

// InputXGradientBackend multiplies the input by its gradient.
type InputXGradientBackend struct{}

func (InputXGradientBackend) Attribute(ctx context.Context, model Model, in Input, opts Options) (*tensor.Tensor[float64], error) {
	d, err := differentiable(model, InputXGradient, opts)
	if err != nil {
		return nil, err
	}
	rev := strands(model, in)
	out := tensor.New[float64](in.Forward.Shape...)
	for i := 0; i < in.Forward.Dim(0); i++ {
		x := in.Forward.Slice(i, i+1)
		g, err := gradients(ctx, d, x, reverseRow(rev, i), opts.Target, opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		row := out.Row(i).Data
		for k, v := range x.Data {
			row[k] = float64(v) * float64(g.Data[k])
		}
	}
	return out, nil
}

// DeepLiftBackend approximates rescale-rule multipliers by the mean input
// gradient at Steps midpoints of the straight path from the reference to
// the input, and multiplies them by the input's difference from the
// reference.
type DeepLiftBackend struct{}

func (DeepLiftBackend) Attribute(ctx context.Context, model Model, in Input, opts Options) (*tensor.Tensor[float64], error) {
	d, err := differentiable(model, DeepLift, opts)
	if err != nil {
		return nil, err
	}
	rev := strands(model, in)
	rng := rand.New(rand.NewSource(opts.Seed))
	n, c, l := in.Forward.Dim(0), in.Forward.Dim(1), in.Forward.Dim(2)
	out := tensor.New[float64](n, c, l)
	steps := opts.Steps

	for i := 0; i < n; i++ {
		x := in.Forward.Row(i)
		base, err := Baseline(x, opts.Reference, rng)
		if err != nil {
			return nil, err
		}
		points := tensor.New[float32](steps, c, l)
		for s := 0; s < steps; s++ {
			alpha := (float32(s) + 0.5) / float32(steps)
			row := points.Row(s).Data
			for k := range row {
				row[k] = base.Data[k] + alpha*(x.Data[k]-base.Data[k])
			}
		}
		g, err := gradients(ctx, d, points, reverseRow(rev, i), opts.Target, opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		accumulate(out.Row(i).Data, g, x, []*tensor.Tensor[float32]{base}, steps)
	}
	return out, nil
}

// GradientSHAPBackend averages gradient x (input - baseline) over Samples
// random points between a freshly drawn baseline and the input.
type GradientSHAPBackend struct{}

func (GradientSHAPBackend) Attribute(ctx context.Context, model Model, in Input, opts Options) (*tensor.Tensor[float64], error) {
	d, err := differentiable(model, GradientSHAP, opts)
	if err != nil {
		return nil, err
	}
	rev := strands(model, in)
	rng := rand.New(rand.NewSource(opts.Seed))
	n, c, l := in.Forward.Dim(0), in.Forward.Dim(1), in.Forward.Dim(2)
	out := tensor.New[float64](n, c, l)
	samples := opts.Samples

	for i := 0; i < n; i++ {
		x := in.Forward.Row(i)
		points := tensor.New[float32](samples, c, l)
		bases := make([]*tensor.Tensor[float32], samples)
		for s := range bases {
			base, err := Baseline(x, opts.Reference, rng)
			if err != nil {
				return nil, err
			}
			bases[s] = base
			alpha := rng.Float32()
			row := points.Row(s).Data
			for k := range row {
				row[k] = base.Data[k] + alpha*(x.Data[k]-base.Data[k])
			}
		}
		g, err := gradients(ctx, d, points, reverseRow(rev, i), opts.Target, opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		accumulate(out.Row(i).Data, g, x, bases, samples)
	}
	return out, nil
}

// accumulate sets dst to the mean over rows s of g[s] * (x - bases[s]),
// where a single base is shared by every row.
func accumulate(dst []float64, g, x *tensor.Tensor[float32], bases []*tensor.Tensor[float32], rows int) {
	for s := 0; s < rows; s++ {
		base := bases[min(s, len(bases)-1)]
		gs := g.Row(s).Data
		for k := range dst {
			dst[k] += float64(gs[k]) * float64(x.Data[k]-base.Data[k])
		}
	}
	for k := range dst {
		dst[k] /= float64(rows)
	}
}
