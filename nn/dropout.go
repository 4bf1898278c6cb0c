package nn

import "math/rand"

// dropoutForward applies inverted dropout and returns the mask it used.
// Outside training mode it is the identity and the mask is nil.
func dropoutForward(x []float32, rate float32, training bool, rng *rand.Rand) (out, mask []float32) {
	if !training || rate == 0 {
		return x, nil
	}
	keep := 1 - rate
	out = make([]float32, len(x))
	mask = make([]float32, len(x))
	for i, v := range x {
		if rng.Float32() < keep {
			mask[i] = 1 / keep
			out[i] = v * mask[i]
		}
	}
	return out, mask
}

func dropoutInputGrad(gradOut, mask []float32) []float32 {
	if mask == nil {
		return gradOut
	}
	gradIn := make([]float32, len(gradOut))
	for i, g := range gradOut {
		gradIn[i] = g * mask[i]
	}
	return gradIn
}
