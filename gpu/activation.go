package gpu

import "fmt"

// Activation codes shared with nn.ActivationType.
const (
	ActScaledReLU = 0
	ActSigmoid    = 1
	ActTanh       = 2
	ActSoftplus   = 3
	ActLeakyReLU  = 4
	ActLinear     = 5
)

// activationCode returns the WGSL expression for act applied to v. It must
// agree with the CPU activations in package nn.
func activationCode(act int, v string) string {
	switch act {
	case ActScaledReLU:
		return fmt.Sprintf("max(%s * 1.1, 0.0)", v)
	case ActSigmoid:
		return fmt.Sprintf("1.0 / (1.0 + exp(-%s))", v)
	case ActTanh:
		return fmt.Sprintf("tanh(%s)", v)
	case ActSoftplus:
		return fmt.Sprintf("log(1.0 + exp(%s))", v)
	case ActLeakyReLU:
		return fmt.Sprintf("select(%s, %s * 0.1, %s < 0.0)", v, v, v)
	default:
		return v
	}
}
