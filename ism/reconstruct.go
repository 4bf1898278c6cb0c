package ism

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/attrib/tensor"
)

// Reconstruct folds a position-major score vector back into a (C, L) map.
// Alternative i at position p lands on channel AltChannel(orig[p], i, c);
// the observed channel at every position stays exactly zero.
func Reconstruct(scores []float64, orig []int, c int) (*mat.Dense, error) {
	l := len(orig)
	if c < 2 || l == 0 || len(scores) != l*(c-1) {
		return nil, fmt.Errorf("%d scores for %d positions and %d channels: %w", len(scores), l, c, tensor.ErrShapeMismatch)
	}
	m := mat.NewDense(c, l, nil)
	for p, o := range orig {
		if o < 0 || o >= c {
			return nil, fmt.Errorf("position %d has observed channel %d of %d: %w", p, o, c, tensor.ErrShapeMismatch)
		}
		for i := 1; i < c; i++ {
			m.Set(AltChannel(o, i, c), p, scores[p*(c-1)+i-1])
		}
	}
	return m, nil
}
