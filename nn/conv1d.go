package nn

import (
	"math"
	"math/rand"
)

// InitConv1DLayer builds a Conv1D layer with He-initialised kernels.
func InitConv1DLayer(inChannels, filters, kernelSize, stride, padding int, activation ActivationType, rng *rand.Rand) LayerConfig {
	kernel := make([]float32, filters*inChannels*kernelSize)
	stddev := math.Sqrt(2.0 / float64(inChannels*kernelSize))
	for i := range kernel {
		kernel[i] = float32(rng.NormFloat64() * stddev)
	}
	return LayerConfig{
		Type:             LayerConv1D,
		Activation:       activation,
		Conv1DFilters:    filters,
		Conv1DKernelSize: kernelSize,
		Conv1DStride:     stride,
		Conv1DPadding:    padding,
		Kernel:           kernel,
		Bias:             make([]float32, filters),
	}
}

// conv1DForward computes pre- and post-activation outputs.
// Input [batch][in.Channels][in.Length], output [batch][filters][outLen].
func conv1DForward(x []float32, l *LayerConfig, in, out shape, batch int) (pre, post []float32) {
	stride := max(l.Conv1DStride, 1)
	k := l.Conv1DKernelSize
	pre = make([]float32, batch*out.size())
	post = make([]float32, len(pre))

	for b := 0; b < batch; b++ {
		xb := x[b*in.size() : (b+1)*in.size()]
		for f := 0; f < out.Channels; f++ {
			for o := 0; o < out.Length; o++ {
				sum := l.Bias[f]
				for ic := 0; ic < in.Channels; ic++ {
					w := l.Kernel[(f*in.Channels+ic)*k:]
					row := xb[ic*in.Length:]
					for j := 0; j < k; j++ {
						p := o*stride + j - l.Conv1DPadding
						if p >= 0 && p < in.Length {
							sum += row[p] * w[j]
						}
					}
				}
				idx := b*out.size() + f*out.Length + o
				pre[idx] = sum
				post[idx] = activate(sum, l.Activation)
			}
		}
	}
	return pre, post
}

// conv1DInputGrad propagates gradOut back to the layer input.
func conv1DInputGrad(gradOut, pre []float32, l *LayerConfig, in, out shape, batch int) []float32 {
	stride := max(l.Conv1DStride, 1)
	k := l.Conv1DKernelSize
	gradIn := make([]float32, batch*in.size())

	for b := 0; b < batch; b++ {
		gb := gradIn[b*in.size() : (b+1)*in.size()]
		for f := 0; f < out.Channels; f++ {
			for o := 0; o < out.Length; o++ {
				idx := b*out.size() + f*out.Length + o
				g := gradOut[idx] * activationDerivative(pre[idx], l.Activation)
				if g == 0 {
					continue
				}
				for ic := 0; ic < in.Channels; ic++ {
					w := l.Kernel[(f*in.Channels+ic)*k:]
					row := gb[ic*in.Length:]
					for j := 0; j < k; j++ {
						p := o*stride + j - l.Conv1DPadding
						if p >= 0 && p < in.Length {
							row[p] += g * w[j]
						}
					}
				}
			}
		}
	}
	return gradIn
}
