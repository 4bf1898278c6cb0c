package nn

import (
	"fmt"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/gpu"
	"github.com/openfluke/attrib/tensor"
)

// Placement reports where the network runs.
func (n *Network) Placement() device.Placement { return n.placement }

// Place moves the network to p. Moving to the accelerator compiles the
// forward program and uploads the weights once; moving back frees them.
// Placing on the current target is a no-op.
func (n *Network) Place(p device.Placement) error {
	if p == n.placement {
		return nil
	}
	switch p {
	case device.Local:
		n.Release()
		n.placement = device.Local
		return nil
	case device.Accelerator:
		stages, err := n.stages()
		if err != nil {
			return err
		}
		prog, err := gpu.NewProgram(stages)
		if err != nil {
			return fmt.Errorf("upload network: %w", err)
		}
		n.program = prog
		n.placement = device.Accelerator
		return nil
	default:
		return fmt.Errorf("unknown placement %v: %w", p, device.ErrPlacement)
	}
}

// ReleaseScratch destroys the activation buffers of every forward call
// since the last release. The weights stay resident.
func (n *Network) ReleaseScratch() error {
	n.scratch.Release()
	return nil
}

// Release frees every accelerator resource the network holds.
func (n *Network) Release() {
	n.scratch.Release()
	if n.program != nil {
		n.program.Release()
		n.program = nil
	}
}

// stages lowers the layer stack to accelerator stages. Dropout is the
// identity outside training mode and has no stage.
func (n *Network) stages() ([]gpu.Stage, error) {
	shapes, err := n.shapes()
	if err != nil {
		return nil, err
	}
	var stages []gpu.Stage
	for i, l := range n.Layers {
		in := shapes[i]
		switch l.Type {
		case LayerConv1D:
			stages = append(stages, gpu.Stage{
				Kind: gpu.StageConv1D,
				Conv: gpu.Conv1DSpec{
					InChannels:  in.Channels,
					OutChannels: l.Conv1DFilters,
					KernelSize:  l.Conv1DKernelSize,
					Stride:      max(l.Conv1DStride, 1),
					Padding:     l.Conv1DPadding,
					SeqLen:      in.Length,
					Activation:  int(l.Activation),
				},
				Weights: l.Kernel,
				Bias:    l.Bias,
			})
		case LayerDense:
			stages = append(stages, gpu.Stage{
				Kind:    gpu.StageDense,
				Dense:   gpu.DenseSpec{InputSize: in.size(), OutputSize: l.OutputSize, Activation: int(l.Activation)},
				Weights: l.Kernel,
				Bias:    l.Bias,
			})
		case LayerGlobalAvgPool1D:
			stages = append(stages, gpu.Stage{Kind: gpu.StagePool, Channels: in.Channels, Length: in.Length})
		}
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("network has no accelerator stages")
	}
	return stages, nil
}

func (n *Network) forwardGPU(x []float32, batch int) ([]float32, error) {
	if n.program == nil {
		return nil, fmt.Errorf("network is not uploaded: %w", device.ErrPlacement)
	}
	return n.program.Forward(x, batch, &n.scratch)
}

// Distances scores a (B, C, L) batch by the L2 distance of each output row
// from ref, reducing on the accelerator. ref is one output row, flattened.
func (n *Network) Distances(x *tensor.Tensor[float32], ref []float32) ([]float32, error) {
	if n.placement != device.Accelerator || n.program == nil {
		return nil, fmt.Errorf("on-device distances need an accelerator network: %w", device.ErrPlacement)
	}
	if n.training && n.hasActiveDropout() {
		return nil, fmt.Errorf("dropout in training mode is not available on %s: %w", n.placement, device.ErrPlacement)
	}
	batch, err := n.checkInput(x)
	if err != nil {
		return nil, err
	}
	return n.program.Distances(x.Data, batch, ref, &n.scratch)
}
