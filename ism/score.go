package ism

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/tensor"
)

// Model maps a (B, C, L) batch to (B, ...) outputs.
type Model interface {
	Forward(x *tensor.Tensor[float32]) (*tensor.Tensor[float32], error)
}

// DistanceModel is implemented by accelerator models that can reduce their
// outputs to distances from a reference without copying them back.
type DistanceModel interface {
	Model
	Distances(x *tensor.Tensor[float32], ref []float32) ([]float32, error)
}

// PairModel is implemented by models that can score a batch together with
// its reverse complements. Only a model reporting StrandAware is scored
// that way.
type PairModel interface {
	Model
	StrandAware() bool
	ForwardPair(fwd, rev *tensor.Tensor[float32]) (*tensor.Tensor[float32], error)
}

// Paired returns m as a PairModel when it is strand-aware.
func Paired(m Model) (PairModel, bool) {
	p, ok := m.(PairModel)
	if !ok || !p.StrandAware() {
		return nil, false
	}
	return p, true
}

// Scorer runs a model over every perturbation of a sequence.
type Scorer struct {
	Model     Model
	BatchSize int
}

// Score returns one L2 distance per perturbation of the (C, L) sequence x,
// in Perturber row order. The reference output is computed exactly once.
// rev, the (C, L) reverse complement of x or nil, is held fixed while x is
// perturbed; it is used only by strand-aware models.
// Accelerator scratch held by the model is released before Score returns,
// and a failed release fails an otherwise successful Score.
func (s *Scorer) Score(ctx context.Context, x, rev *tensor.Tensor[float32]) (scores []float64, err error) {
	if s.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	}
	p, err := NewPerturber(x)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := device.ReleaseScratch(s.Model); rerr != nil && err == nil {
			scores, err = nil, fmt.Errorf("release scratch: %w", rerr)
		}
	}()

	forward := s.Model.Forward
	pm, paired := Paired(s.Model)
	paired = paired && rev != nil
	if paired {
		if err := tensor.CheckShape("reverse strand", rev.Shape, x.Shape); err != nil {
			return nil, err
		}
		forward = func(batch *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
			revs := tensor.New[float32](batch.Shape...)
			for i := 0; i < batch.Dim(0); i++ {
				copy(revs.Row(i).Data, rev.Data)
			}
			return pm.ForwardPair(batch, revs)
		}
	}

	ref, err := forward(x.Reshape(1, p.C, p.L))
	if err != nil {
		return nil, fmt.Errorf("reference forward: %w", err)
	}
	if ref.Rank() < 1 || ref.Dim(0) != 1 {
		return nil, fmt.Errorf("reference output has shape %v, want (1, ...): %w", ref.Shape, tensor.ErrShapeMismatch)
	}
	outShape := ref.Shape[1:]

	dm, onDevice := s.Model.(DistanceModel)
	onDevice = onDevice && !paired && device.Of(s.Model) == device.Accelerator

	scores = make([]float64, 0, p.Len())
	for start := 0; start < p.Len(); start += s.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+s.BatchSize, p.Len())
		chunk, err := p.Chunk(start, end)
		if err != nil {
			return nil, err
		}

		if onDevice {
			d, err := dm.Distances(chunk, ref.Data)
			if err != nil {
				return nil, fmt.Errorf("perturbations [%d, %d): %w", start, end, err)
			}
			if len(d) != end-start {
				return nil, fmt.Errorf("got %d distances for %d perturbations: %w", len(d), end-start, tensor.ErrShapeMismatch)
			}
			for _, v := range d {
				scores = append(scores, float64(v))
			}
			continue
		}

		out, err := forward(chunk)
		if err != nil {
			return nil, fmt.Errorf("perturbations [%d, %d): %w", start, end, err)
		}
		if err := tensor.CheckShape("perturbation output", out.Shape, append([]int{end - start}, outShape...)); err != nil {
			return nil, err
		}
		d, err := Distances(out, ref)
		if err != nil {
			return nil, err
		}
		scores = append(scores, d...)
	}
	return scores, nil
}

// Distances returns, for every row of outputs, the Euclidean distance to
// the single row of ref, reduced over all trailing axes.
func Distances(outputs, ref *tensor.Tensor[float32]) ([]float64, error) {
	if outputs.Rank() < 1 || ref.Rank() != outputs.Rank() || ref.Dim(0) != 1 {
		return nil, fmt.Errorf("outputs %v against reference %v: %w", outputs.Shape, ref.Shape, tensor.ErrShapeMismatch)
	}
	if err := tensor.CheckShape("output row", outputs.Shape[1:], ref.Shape[1:]); err != nil {
		return nil, err
	}
	r := tensor.Convert[float64](ref).Data
	rows := tensor.Convert[float64](outputs)
	d := make([]float64, outputs.Dim(0))
	for b := range d {
		d[b] = floats.Distance(rows.Row(b).Data, r, 2)
	}
	return d, nil
}
