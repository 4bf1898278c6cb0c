package attribution

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/openfluke/attrib/tensor"
)

// Agreement is the correlation of two attribution maps of one sequence.
type Agreement struct {
	ID       string  `json:"id"`
	Pearson  float64 `json:"pearson"`
	Spearman float64 `json:"spearman"`
}

// Compare correlates the maps of every sequence of a with the map of the
// same sequence in b. Both stores must hold the sequences of a with equal
// (C, L). Constant maps give NaN correlations.
func Compare(a, b *ResultStore) ([]Agreement, error) {
	if err := tensor.CheckShape("compared attributions", b.data.Shape[1:], a.data.Shape[1:]); err != nil {
		return nil, err
	}
	out := make([]Agreement, 0, a.Len())
	for i, id := range a.ids {
		j, ok := b.index[id]
		if !ok {
			return nil, fmt.Errorf("sequence %s missing from the second run", id)
		}
		x, y := a.data.Row(i).Data, b.data.Row(j).Data
		out = append(out, Agreement{
			ID:       id,
			Pearson:  stat.Correlation(x, y, nil),
			Spearman: stat.Correlation(ranks(x), ranks(y), nil),
		})
	}
	return out, nil
}

// MeanAgreement averages the correlations, skipping NaNs.
func MeanAgreement(as []Agreement) (pearson, spearman float64) {
	var p, s []float64
	for _, a := range as {
		if !math.IsNaN(a.Pearson) {
			p = append(p, a.Pearson)
		}
		if !math.IsNaN(a.Spearman) {
			s = append(s, a.Spearman)
		}
	}
	if len(p) > 0 {
		pearson = stat.Mean(p, nil)
	}
	if len(s) > 0 {
		spearman = stat.Mean(s, nil)
	}
	return pearson, spearman
}

// ranks returns fractional ranks, ties sharing their average rank.
func ranks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })

	out := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = r
		}
		i = j + 1
	}
	return out
}
