package nn

import (
	"fmt"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/tensor"
)

// InputGradient returns d y / d fwd for every row of fwd, where y is output
// element target of the row (flat index into OutputShape), or the sum of all
// outputs when target is negative.
//
// For a strand-aware network with rev set, y is read from ForwardPair with
// rev held fixed. Otherwise rev is ignored and y is read from Forward.
//
// Gradients are computed on the host only; an accelerator-placed network
// returns device.ErrPlacement.
func (n *Network) InputGradient(fwd, rev *tensor.Tensor[float32], target int) (*tensor.Tensor[float32], error) {
	if n.placement != device.Local {
		return nil, fmt.Errorf("input gradients need a %s network, this one is on %s: %w", device.Local, n.placement, device.ErrPlacement)
	}
	shapes, err := n.shapes()
	if err != nil {
		return nil, err
	}
	batch, err := n.checkInput(fwd)
	if err != nil {
		return nil, err
	}
	scale := float32(1)
	if rev != nil {
		if err := tensor.CheckShape("reverse strand", rev.Shape, fwd.Shape); err != nil {
			return nil, err
		}
		if n.Strands {
			scale = 0.5
		}
	}

	width := shapes[len(shapes)-1].size()
	if target >= width {
		return nil, fmt.Errorf("target %d outside output width %d: %w", target, width, tensor.ErrShapeMismatch)
	}

	_, traces := n.forwardCPU(fwd.Data, shapes, batch, true)

	grad := make([]float32, batch*width)
	for b := 0; b < batch; b++ {
		if target < 0 {
			for k := 0; k < width; k++ {
				grad[b*width+k] = scale
			}
		} else {
			grad[b*width+target] = scale
		}
	}

	for i := len(n.Layers) - 1; i >= 0; i-- {
		l := &n.Layers[i]
		in, out := shapes[i], shapes[i+1]
		tr := traces[i]
		switch l.Type {
		case LayerConv1D:
			grad = conv1DInputGrad(grad, tr.pre, l, in, out, batch)
		case LayerDense:
			grad = denseInputGrad(grad, tr.pre, l, in.size(), batch)
		case LayerGlobalAvgPool1D:
			grad = globalAvgPoolInputGrad(grad, in, batch)
		case LayerDropout:
			grad = dropoutInputGrad(grad, tr.mask)
		}
	}
	return tensor.FromSlice(grad, fwd.Shape...), nil
}
