package nn

import "math"

func activate(v float32, a ActivationType) float32 {
	switch a {
	case ActivationScaledReLU:
		return max(v*1.1, 0)
	case ActivationSigmoid:
		return sigmoid(v)
	case ActivationTanh:
		return float32(math.Tanh(float64(v)))
	case ActivationSoftplus:
		return float32(math.Log1p(math.Exp(float64(v))))
	case ActivationLeakyReLU:
		if v < 0 {
			return v * 0.1
		}
		return v
	default:
		return v
	}
}

// activationDerivative is taken with respect to the pre-activation value.
func activationDerivative(pre float32, a ActivationType) float32 {
	switch a {
	case ActivationScaledReLU:
		if pre > 0 {
			return 1.1
		}
		return 0
	case ActivationSigmoid:
		s := sigmoid(pre)
		return s * (1 - s)
	case ActivationTanh:
		t := float32(math.Tanh(float64(pre)))
		return 1 - t*t
	case ActivationSoftplus:
		return sigmoid(pre)
	case ActivationLeakyReLU:
		if pre >= 0 {
			return 1
		}
		return 0.1
	default:
		return 1
	}
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(float64(-v))))
}
