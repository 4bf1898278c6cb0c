package seq

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfluke/attrib/tensor"
)

// ErrNotOneHot marks a matrix column that does not hold exactly one 1.
var ErrNotOneHot = errors.New("not one-hot")

// Align says which end of a sequence is kept when it is padded or truncated
// to a fixed length.
type Align int

const (
	AlignStart Align = iota
	AlignEnd
)

// ParseAlign accepts "start" or "end".
func ParseAlign(s string) (Align, error) {
	switch strings.ToLower(s) {
	case "", "start":
		return AlignStart, nil
	case "end":
		return AlignEnd, nil
	default:
		return AlignStart, fmt.Errorf("unknown sequence alignment %q", s)
	}
}

// OneHot encodes s as a (C, L) matrix. With length <= 0 the sequence length is
// used. Longer sequences are truncated and shorter ones padded according to
// align; padding and symbols outside the alphabet become all-zero columns.
func OneHot(s string, a Alphabet, length int, align Align) *tensor.Tensor[float32] {
	if length <= 0 {
		length = len(s)
	}
	if len(s) > length {
		if align == AlignEnd {
			s = s[len(s)-length:]
		} else {
			s = s[:length]
		}
	}
	offset := 0
	if align == AlignEnd {
		offset = length - len(s)
	}

	x := tensor.New[float32](a.Size(), length)
	for i := 0; i < len(s); i++ {
		if c := a.Index(s[i]); c >= 0 {
			x.Data[c*length+offset+i] = 1
		}
	}
	return x
}

// Decode maps a (C, L) one-hot matrix back to symbols. Columns that are not
// one-hot decode to 'N'.
func Decode(x *tensor.Tensor[float32], a Alphabet) string {
	c, l := x.Shape[0], x.Shape[1]
	out := make([]byte, l)
	for p := 0; p < l; p++ {
		out[p] = 'N'
		for ch := 0; ch < c; ch++ {
			if x.Data[ch*l+p] == 1 {
				out[p] = a.Symbols[ch]
				break
			}
		}
	}
	return string(out)
}

// ValidateOneHot checks that x is a (C, L) matrix with exactly one 1 and
// C-1 zeros in every column.
func ValidateOneHot(x *tensor.Tensor[float32]) error {
	if x.Rank() != 2 {
		return fmt.Errorf("one-hot sequence must be (C, L), got %v: %w", x.Shape, tensor.ErrShapeMismatch)
	}
	c, l := x.Shape[0], x.Shape[1]
	if c < 2 {
		return fmt.Errorf("one-hot sequence needs at least 2 channels, got %d: %w", c, tensor.ErrShapeMismatch)
	}
	for p := 0; p < l; p++ {
		ones := 0
		for ch := 0; ch < c; ch++ {
			switch x.Data[ch*l+p] {
			case 1:
				ones++
			case 0:
			default:
				return fmt.Errorf("position %d channel %d holds %v: %w", p, ch, x.Data[ch*l+p], ErrNotOneHot)
			}
		}
		if ones != 1 {
			return fmt.Errorf("position %d has %d hot channels: %w", p, ones, ErrNotOneHot)
		}
	}
	return nil
}

// ArgMax returns the hot channel of every column of a validated one-hot matrix.
func ArgMax(x *tensor.Tensor[float32]) []int {
	c, l := x.Shape[0], x.Shape[1]
	idx := make([]int, l)
	for p := 0; p < l; p++ {
		best := 0
		for ch := 1; ch < c; ch++ {
			if x.Data[ch*l+p] > x.Data[best*l+p] {
				best = ch
			}
		}
		idx[p] = best
	}
	return idx
}

// ReverseComplementOneHot reverses positions and swaps each channel with its
// complement channel.
func ReverseComplementOneHot(x *tensor.Tensor[float32], a Alphabet) (*tensor.Tensor[float32], error) {
	if x.Rank() != 2 || x.Shape[0] != a.Size() {
		return nil, fmt.Errorf("reverse complement of %v with %s alphabet: %w", x.Shape, a.Name, tensor.ErrShapeMismatch)
	}
	c, l := x.Shape[0], x.Shape[1]
	out := tensor.New[float32](c, l)
	for ch := 0; ch < c; ch++ {
		comp := a.complementIndex(ch)
		for p := 0; p < l; p++ {
			out.Data[comp*l+(l-1-p)] = x.Data[ch*l+p]
		}
	}
	return out, nil
}
