package saliency

import (
	"fmt"
	"math/rand"

	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/tensor"
)

// GCContent is the per-position A, C, G, T baseline of the gc reference.
var GCContent = []float32{0.3, 0.2, 0.2, 0.3}

// Baseline builds the reference for one (C, L) sequence.
func Baseline(x *tensor.Tensor[float32], ref Reference, rng *rand.Rand) (*tensor.Tensor[float32], error) {
	c, l := x.Dim(0), x.Dim(1)
	switch ref {
	case ReferenceZero, "":
		return tensor.New[float32](c, l), nil
	case ReferenceShuffle:
		if err := seq.ValidateOneHot(x); err != nil {
			return nil, fmt.Errorf("shuffle reference: %w", err)
		}
		return seq.ShuffleOneHot(x, rng), nil
	case ReferenceGC:
		if c != len(GCContent) {
			return nil, fmt.Errorf("gc reference needs %d channels, got %d: %w", len(GCContent), c, tensor.ErrShapeMismatch)
		}
		b := tensor.New[float32](c, l)
		for ch, v := range GCContent {
			row := b.Data[ch*l : (ch+1)*l]
			for p := range row {
				row[p] = v
			}
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: reference %q", ErrUnsupportedMethod, string(ref))
	}
}
