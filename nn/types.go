// Package nn holds the trained sequence models that attribution runs
// against: small 1D convolutional networks over one-hot input with a CPU
// forward and backward pass and a WebGPU forward pass.
package nn

import (
	"fmt"
	"math/rand"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/gpu"
)

// ActivationType defines the activation function used in a layer
type ActivationType int

const (
	ActivationScaledReLU ActivationType = 0 // v * 1.1, then ReLU
	ActivationSigmoid    ActivationType = 1 // 1 / (1 + exp(-v))
	ActivationTanh       ActivationType = 2 // tanh(v)
	ActivationSoftplus   ActivationType = 3 // log(1 + exp(v))
	ActivationLeakyReLU  ActivationType = 4 // v if v >= 0, else v * 0.1
	ActivationLinear     ActivationType = 5 // v
)

var activationNames = map[ActivationType]string{
	ActivationScaledReLU: "relu",
	ActivationSigmoid:    "sigmoid",
	ActivationTanh:       "tanh",
	ActivationSoftplus:   "softplus",
	ActivationLeakyReLU:  "leaky_relu",
	ActivationLinear:     "linear",
}

func (a ActivationType) String() string {
	if s, ok := activationNames[a]; ok {
		return s
	}
	return fmt.Sprintf("activation(%d)", int(a))
}

// ParseActivation maps a name to its ActivationType.
func ParseActivation(name string) (ActivationType, error) {
	for a, s := range activationNames {
		if s == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown activation %q", name)
}

// LayerType identifies the kind of layer
type LayerType int

const (
	LayerConv1D          LayerType = 0 // 1D convolution over [channels][length]
	LayerDense           LayerType = 1 // fully connected over the flattened input
	LayerGlobalAvgPool1D LayerType = 2 // mean over the length axis
	LayerDropout         LayerType = 3 // inverted dropout, training mode only
)

var layerNames = map[LayerType]string{
	LayerConv1D:          "conv1d",
	LayerDense:           "dense",
	LayerGlobalAvgPool1D: "global_avg_pool1d",
	LayerDropout:         "dropout",
}

func (t LayerType) String() string {
	if s, ok := layerNames[t]; ok {
		return s
	}
	return fmt.Sprintf("layer(%d)", int(t))
}

// LayerConfig holds configuration for a specific layer
type LayerConfig struct {
	Type       LayerType
	Activation ActivationType

	// Conv1D
	Conv1DFilters    int
	Conv1DKernelSize int
	Conv1DStride     int
	Conv1DPadding    int

	// Dense
	OutputSize int

	// Dropout
	DropoutRate float32

	// Conv kernel [filters][inChannels][k] or dense weights [in*out + o].
	Kernel []float32
	Bias   []float32
}

// shape is the per-row activation layout entering or leaving a layer.
// Dense activations use Length 1.
type shape struct {
	Channels int
	Length   int
}

func (s shape) size() int { return s.Channels * s.Length }

// Network is a feed-forward sequence model taking (B, InChannels, SeqLen)
// one-hot batches.
type Network struct {
	InChannels int
	SeqLen     int
	Layers     []LayerConfig

	// Strands makes the model strand-aware: its output for a sequence is
	// the mean over the sequence and its reverse complement.
	Strands bool

	placement device.Placement
	training  bool
	rng       *rand.Rand

	program *gpu.Program
	scratch gpu.Scratch
}

// NewNetwork validates the layer stack against the input geometry.
func NewNetwork(inChannels, seqLen int, layers []LayerConfig) (*Network, error) {
	n := &Network{
		InChannels: inChannels,
		SeqLen:     seqLen,
		Layers:     layers,
		rng:        rand.New(rand.NewSource(1)),
	}
	if _, err := n.shapes(); err != nil {
		return nil, err
	}
	return n, nil
}

// shapes returns the input shape of every layer followed by the output
// shape of the last one, checking that weight sizes agree.
func (n *Network) shapes() ([]shape, error) {
	if n.InChannels < 1 || n.SeqLen < 1 {
		return nil, fmt.Errorf("invalid input geometry %dx%d", n.InChannels, n.SeqLen)
	}
	if len(n.Layers) == 0 {
		return nil, fmt.Errorf("network has no layers")
	}
	cur := shape{n.InChannels, n.SeqLen}
	out := []shape{cur}
	for i, l := range n.Layers {
		switch l.Type {
		case LayerConv1D:
			stride := max(l.Conv1DStride, 1)
			outLen := (cur.Length+2*l.Conv1DPadding-l.Conv1DKernelSize)/stride + 1
			if l.Conv1DFilters < 1 || l.Conv1DKernelSize < 1 || outLen < 1 {
				return nil, fmt.Errorf("layer %d: invalid conv1d geometry", i)
			}
			if len(l.Kernel) != l.Conv1DFilters*cur.Channels*l.Conv1DKernelSize || len(l.Bias) != l.Conv1DFilters {
				return nil, fmt.Errorf("layer %d: conv1d weights have %d/%d values, want %d/%d",
					i, len(l.Kernel), len(l.Bias), l.Conv1DFilters*cur.Channels*l.Conv1DKernelSize, l.Conv1DFilters)
			}
			cur = shape{l.Conv1DFilters, outLen}
		case LayerDense:
			if l.OutputSize < 1 {
				return nil, fmt.Errorf("layer %d: invalid dense output size %d", i, l.OutputSize)
			}
			if len(l.Kernel) != cur.size()*l.OutputSize || len(l.Bias) != l.OutputSize {
				return nil, fmt.Errorf("layer %d: dense weights have %d/%d values, want %d/%d",
					i, len(l.Kernel), len(l.Bias), cur.size()*l.OutputSize, l.OutputSize)
			}
			cur = shape{l.OutputSize, 1}
		case LayerGlobalAvgPool1D:
			cur = shape{cur.Channels, 1}
		case LayerDropout:
			if l.DropoutRate < 0 || l.DropoutRate >= 1 {
				return nil, fmt.Errorf("layer %d: dropout rate %v outside [0, 1)", i, l.DropoutRate)
			}
		default:
			return nil, fmt.Errorf("layer %d: unsupported layer type %v", i, l.Type)
		}
		out = append(out, cur)
	}
	return out, nil
}

// OutputShape is the per-row output shape: [K] after a dense or pooling
// layer, [filters, length] after a convolution.
func (n *Network) OutputShape() []int {
	shapes, err := n.shapes()
	if err != nil {
		return nil
	}
	last := shapes[len(shapes)-1]
	if last.Length == 1 {
		return []int{last.Channels}
	}
	return []int{last.Channels, last.Length}
}

// Seed reseeds the dropout generator.
func (n *Network) Seed(seed int64) {
	n.rng = rand.New(rand.NewSource(seed))
}
