package ism

import (
	"context"
	"fmt"

	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/tensor"
)

// Attribute scores every sequence of a (N, C, L) batch in order and returns
// the (N, C, L) attribution maps. rev holds the matching reverse
// complements or is nil. Cancellation is honoured between sequences and
// between perturbation chunks.
func (s *Scorer) Attribute(ctx context.Context, x, rev *tensor.Tensor[float32]) (*tensor.Tensor[float64], error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("ISM input has shape %v, want (N, C, L): %w", x.Shape, tensor.ErrShapeMismatch)
	}
	if rev != nil {
		if err := tensor.CheckShape("reverse strands", rev.Shape, x.Shape); err != nil {
			return nil, err
		}
	}
	n, c, l := x.Dim(0), x.Dim(1), x.Dim(2)
	out := tensor.New[float64](n, c, l)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sx := x.Row(i)
		var srev *tensor.Tensor[float32]
		if rev != nil {
			srev = rev.Row(i)
		}
		scores, err := s.Score(ctx, sx, srev)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		m, err := Reconstruct(scores, seq.ArgMax(sx), c)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		copy(out.Row(i).Data, m.RawMatrix().Data)
	}
	return out, nil
}
