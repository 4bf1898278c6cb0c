package nn

import (
	"fmt"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/tensor"
)

// layerTrace keeps what backward needs from one layer's forward pass.
type layerTrace struct {
	input []float32
	pre   []float32
	mask  []float32
}

// Forward runs a (B, InChannels, SeqLen) batch and returns (B, ...) outputs,
// see OutputShape. It runs wherever the network is placed; inputs are host
// tensors and are copied to the accelerator as needed.
func (n *Network) Forward(x *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	shapes, err := n.shapes()
	if err != nil {
		return nil, err
	}
	batch, err := n.checkInput(x)
	if err != nil {
		return nil, err
	}

	var out []float32
	if n.placement == device.Accelerator {
		if n.training && n.hasActiveDropout() {
			return nil, fmt.Errorf("dropout in training mode is not available on %s: %w", n.placement, device.ErrPlacement)
		}
		out, err = n.forwardGPU(x.Data, batch)
		if err != nil {
			return nil, err
		}
	} else {
		out, _ = n.forwardCPU(x.Data, shapes, batch, false)
	}
	return tensor.FromSlice(out, append([]int{batch}, n.OutputShape()...)...), nil
}

// StrandAware reports whether ForwardPair, rather than Forward, is the
// model's output for a sequence with a known reverse complement.
func (n *Network) StrandAware() bool { return n.Strands }

// ForwardPair scores a batch as the mean of the forward and
// reverse-complement outputs.
func (n *Network) ForwardPair(fwd, rev *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	if err := tensor.CheckShape("reverse strand", rev.Shape, fwd.Shape); err != nil {
		return nil, err
	}
	a, err := n.Forward(fwd)
	if err != nil {
		return nil, err
	}
	b, err := n.Forward(rev)
	if err != nil {
		return nil, err
	}
	for i := range a.Data {
		a.Data[i] = (a.Data[i] + b.Data[i]) / 2
	}
	return a, nil
}

func (n *Network) checkInput(x *tensor.Tensor[float32]) (int, error) {
	if x == nil || x.Rank() != 3 {
		var got []int
		if x != nil {
			got = x.Shape
		}
		return 0, fmt.Errorf("network input has shape %v, want (B, %d, %d): %w", got, n.InChannels, n.SeqLen, tensor.ErrShapeMismatch)
	}
	batch := x.Dim(0)
	if err := tensor.CheckShape("network input", x.Shape, []int{batch, n.InChannels, n.SeqLen}); err != nil {
		return 0, err
	}
	return batch, nil
}

func (n *Network) hasActiveDropout() bool {
	for _, l := range n.Layers {
		if l.Type == LayerDropout && l.DropoutRate > 0 {
			return true
		}
	}
	return false
}

// forwardCPU runs every layer on the host. With keep set it records the
// per-layer trace used by InputGradient.
func (n *Network) forwardCPU(x []float32, shapes []shape, batch int, keep bool) ([]float32, []layerTrace) {
	var traces []layerTrace
	if keep {
		traces = make([]layerTrace, len(n.Layers))
	}
	cur := x
	for i := range n.Layers {
		l := &n.Layers[i]
		in, out := shapes[i], shapes[i+1]
		var pre, post, mask []float32
		switch l.Type {
		case LayerConv1D:
			pre, post = conv1DForward(cur, l, in, out, batch)
		case LayerDense:
			pre, post = denseForward(cur, l, in.size(), batch)
		case LayerGlobalAvgPool1D:
			post = globalAvgPoolForward(cur, in, batch)
		case LayerDropout:
			post, mask = dropoutForward(cur, l.DropoutRate, n.training, n.random())
		}
		if keep {
			traces[i] = layerTrace{input: cur, pre: pre, mask: mask}
		}
		cur = post
	}
	return cur, traces
}
