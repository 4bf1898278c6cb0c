package nn

import (
	"math"
	"math/rand"
)

// InitDenseLayer builds a dense layer with Xavier-initialised weights.
func InitDenseLayer(inputSize, outputSize int, activation ActivationType, rng *rand.Rand) LayerConfig {
	weights := make([]float32, inputSize*outputSize)
	stddev := math.Sqrt(2.0 / float64(inputSize+outputSize))
	for i := range weights {
		weights[i] = float32(rng.NormFloat64() * stddev)
	}
	return LayerConfig{
		Type:       LayerDense,
		Activation: activation,
		OutputSize: outputSize,
		Kernel:     weights,
		Bias:       make([]float32, outputSize),
	}
}

// denseForward treats each batch row as a flat vector. Weights are indexed
// [i*outputSize + o].
func denseForward(x []float32, l *LayerConfig, inSize, batch int) (pre, post []float32) {
	outSize := l.OutputSize
	pre = make([]float32, batch*outSize)
	post = make([]float32, len(pre))
	for b := 0; b < batch; b++ {
		xb := x[b*inSize : (b+1)*inSize]
		for o := 0; o < outSize; o++ {
			sum := l.Bias[o]
			for i, v := range xb {
				sum += v * l.Kernel[i*outSize+o]
			}
			pre[b*outSize+o] = sum
			post[b*outSize+o] = activate(sum, l.Activation)
		}
	}
	return pre, post
}

func denseInputGrad(gradOut, pre []float32, l *LayerConfig, inSize, batch int) []float32 {
	outSize := l.OutputSize
	gradIn := make([]float32, batch*inSize)
	g := make([]float32, outSize)
	for b := 0; b < batch; b++ {
		for o := range g {
			idx := b*outSize + o
			g[o] = gradOut[idx] * activationDerivative(pre[idx], l.Activation)
		}
		gb := gradIn[b*inSize : (b+1)*inSize]
		for i := range gb {
			var sum float32
			w := l.Kernel[i*outSize : (i+1)*outSize]
			for o, v := range g {
				sum += v * w[o]
			}
			gb[i] = sum
		}
	}
	return gradIn
}
