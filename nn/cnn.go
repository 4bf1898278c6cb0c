package nn

import "math/rand"

// CNNOptions sizes the default sequence CNN.
type CNNOptions struct {
	Filters    int
	KernelSize int
	Hidden     int
	Outputs    int
	Dropout    float32
	Seed       int64
}

// DefaultCNNOptions is a small model suitable for a few hundred bases.
var DefaultCNNOptions = CNNOptions{Filters: 16, KernelSize: 7, Hidden: 32, Outputs: 1, Dropout: 0.1}

// NewCNN builds conv -> conv -> global average pool -> dense -> dropout ->
// dense, with same padding so any sequence length is accepted.
func NewCNN(inChannels, seqLen int, opts CNNOptions) (*Network, error) {
	rng := rand.New(rand.NewSource(opts.Seed))
	pad := opts.KernelSize / 2
	layers := []LayerConfig{
		InitConv1DLayer(inChannels, opts.Filters, opts.KernelSize, 1, pad, ActivationScaledReLU, rng),
		InitConv1DLayer(opts.Filters, opts.Filters, opts.KernelSize, 1, pad, ActivationScaledReLU, rng),
		{Type: LayerGlobalAvgPool1D},
		InitDenseLayer(opts.Filters, opts.Hidden, ActivationLeakyReLU, rng),
		{Type: LayerDropout, DropoutRate: opts.Dropout},
		InitDenseLayer(opts.Hidden, opts.Outputs, ActivationLinear, rng),
	}
	n, err := NewNetwork(inChannels, seqLen, layers)
	if err != nil {
		return nil, err
	}
	n.Seed(opts.Seed)
	return n, nil
}
