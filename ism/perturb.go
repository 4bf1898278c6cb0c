// Package ism implements in-silico mutagenesis: every single-base
// substitution of a one-hot sequence is scored by how far it moves the
// model output, and the scores are folded back into a (C, L) map.
package ism

import (
	"fmt"

	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/tensor"
)

// AltChannel is the channel substituted at a position whose observed base
// is orig, for alternative index i in 1..c-1.
func AltChannel(orig, i, c int) int {
	return (orig + i) % c
}

// Perturber generates the L*(C-1) single-position variants of one sequence
// in position-major, alternative-minor order. Rows are materialised per
// chunk; the full set never has to exist at once.
type Perturber struct {
	x    *tensor.Tensor[float32]
	orig []int
	C, L int
}

// NewPerturber validates x as a (C, L) one-hot sequence. x is never modified.
func NewPerturber(x *tensor.Tensor[float32]) (*Perturber, error) {
	if err := seq.ValidateOneHot(x); err != nil {
		return nil, err
	}
	return &Perturber{x: x, orig: seq.ArgMax(x), C: x.Dim(0), L: x.Dim(1)}, nil
}

// Len is the number of perturbations, L*(C-1).
func (p *Perturber) Len() int { return p.L * (p.C - 1) }

// Original returns the observed channel at every position.
func (p *Perturber) Original() []int { return p.orig }

// Site maps a row index to its position and alternative index.
func (p *Perturber) Site(row int) (pos, alt int) {
	return row / (p.C - 1), row%(p.C-1) + 1
}

// Chunk returns rows [start, end) as a (end-start, C, L) batch.
func (p *Perturber) Chunk(start, end int) (*tensor.Tensor[float32], error) {
	if start < 0 || end > p.Len() || start > end {
		return nil, fmt.Errorf("perturbation rows [%d, %d) outside [0, %d): %w", start, end, p.Len(), tensor.ErrShapeMismatch)
	}
	out := tensor.New[float32](end-start, p.C, p.L)
	size := p.C * p.L
	for r := start; r < end; r++ {
		row := out.Data[(r-start)*size : (r-start+1)*size]
		copy(row, p.x.Data)
		pos, i := p.Site(r)
		row[p.orig[pos]*p.L+pos] = 0
		row[AltChannel(p.orig[pos], i, p.C)*p.L+pos] = 1
	}
	return out, nil
}

// Perturb materialises the whole perturbation set as (L*(C-1), C, L).
func Perturb(x *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	p, err := NewPerturber(x)
	if err != nil {
		return nil, err
	}
	return p.Chunk(0, p.Len())
}
