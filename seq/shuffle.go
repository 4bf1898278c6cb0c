package seq

import (
	"math/rand"

	"github.com/openfluke/attrib/tensor"
)

// ShuffleTokens returns a random permutation of tokens that preserves every
// dinucleotide count, along with the first and last token.
//
// The walk follows shuffled successor lists in which each token's final
// successor keeps its original place; those final edges form a tree rooted at
// the last token, so the walk always consumes every edge.
func ShuffleTokens(tokens []int, rng *rand.Rand) []int {
	n := len(tokens)
	out := make([]int, n)
	if n < 3 {
		copy(out, tokens)
		return out
	}

	maxTok := 0
	for _, t := range tokens {
		if t > maxTok {
			maxTok = t
		}
	}

	next := make([][]int, maxTok+1)
	for i := 0; i < n-1; i++ {
		t := tokens[i]
		next[t] = append(next[t], i+1)
	}
	for _, succ := range next {
		if len(succ) < 2 {
			continue
		}
		head := succ[:len(succ)-1]
		rng.Shuffle(len(head), func(i, j int) { head[i], head[j] = head[j], head[i] })
	}

	used := make([]int, maxTok+1)
	out[0] = tokens[0]
	for j := 1; j < n; j++ {
		t := out[j-1]
		out[j] = tokens[next[t][used[t]]]
		used[t]++
	}
	return out
}

// DinucleotideShuffle shuffles a sequence string preserving dinucleotide counts.
func DinucleotideShuffle(s string, rng *rand.Rand) string {
	tokens := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		tokens[i] = int(s[i])
	}
	shuffled := ShuffleTokens(tokens, rng)
	out := make([]byte, len(s))
	for i, t := range shuffled {
		out[i] = byte(t)
	}
	return string(out)
}

// ShuffleOneHot applies a dinucleotide shuffle to a (C, L) one-hot matrix.
func ShuffleOneHot(x *tensor.Tensor[float32], rng *rand.Rand) *tensor.Tensor[float32] {
	c, l := x.Shape[0], x.Shape[1]
	shuffled := ShuffleTokens(ArgMax(x), rng)
	out := tensor.New[float32](c, l)
	for p, ch := range shuffled {
		out.Data[ch*l+p] = 1
	}
	return out
}
