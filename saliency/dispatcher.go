package saliency

import (
	"context"
	"fmt"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/ism"
	"github.com/openfluke/attrib/tensor"
)

// Model is the forward capability every method needs.
type Model = ism.Model

// Differentiable models expose input gradients; the gradient methods
// require it. rev is passed only to strand-aware models and is held fixed.
type Differentiable interface {
	Model
	InputGradient(fwd, rev *tensor.Tensor[float32], target int) (*tensor.Tensor[float32], error)
}

// ModeSwitcher is implemented by models with train/eval behaviour.
type ModeSwitcher interface {
	Training() bool
	SetTraining(bool)
}

// Input is one batch: (N, C, L) forward strands and optional reverse
// complements of the same shape.
type Input struct {
	Forward *tensor.Tensor[float32]
	Reverse *tensor.Tensor[float32]
}

// Backend computes (N, C, L) attributions for one method.
type Backend interface {
	Attribute(ctx context.Context, model Model, in Input, opts Options) (*tensor.Tensor[float64], error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, model Model, in Input, opts Options) (*tensor.Tensor[float64], error)

func (f BackendFunc) Attribute(ctx context.Context, model Model, in Input, opts Options) (*tensor.Tensor[float64], error) {
	return f(ctx, model, in, opts)
}

// Dispatcher routes requests to registered backends.
type Dispatcher struct {
	backends map[Method]Backend
}

// NewDispatcher returns a dispatcher with the four built-in methods.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{backends: make(map[Method]Backend)}
	d.Register(NaiveISM, ISMBackend{})
	d.Register(InputXGradient, InputXGradientBackend{})
	d.Register(DeepLift, DeepLiftBackend{})
	d.Register(GradientSHAP, GradientSHAPBackend{})
	return d
}

// Register installs or replaces the backend for m.
func (d *Dispatcher) Register(m Method, b Backend) {
	d.backends[m] = b
}

// Supports reports whether m has a backend.
func (d *Dispatcher) Supports(m Method) bool {
	_, ok := d.backends[m]
	return ok
}

// Explain validates the request, places the model, runs the backend in
// evaluation mode and applies AbsValue. The model's prior mode is restored
// on every return path.
func (d *Dispatcher) Explain(ctx context.Context, model Model, in Input, opts Options) (*tensor.Tensor[float64], error) {
	backend, ok := d.backends[opts.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, string(opts.Method))
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := checkInput(in); err != nil {
		return nil, err
	}
	if err := device.Ensure(model, opts.Device); err != nil {
		return nil, err
	}

	restore := evalMode(model)
	defer restore()

	out, err := backend.Attribute(ctx, model, in, opts)
	if err != nil {
		return nil, err
	}
	if err := tensor.CheckShape(string(opts.Method)+" attributions", out.Shape, in.Forward.Shape); err != nil {
		return nil, err
	}
	if opts.AbsValue {
		out.Abs()
	}
	return out, nil
}

func checkInput(in Input) error {
	if in.Forward == nil || in.Forward.Rank() != 3 || in.Forward.Dim(1) < 2 {
		var got []int
		if in.Forward != nil {
			got = in.Forward.Shape
		}
		return fmt.Errorf("input has shape %v, want (N, C, L) with C >= 2: %w", got, tensor.ErrShapeMismatch)
	}
	if in.Reverse != nil {
		return tensor.CheckShape("reverse complement input", in.Reverse.Shape, in.Forward.Shape)
	}
	return nil
}

// evalMode switches m to evaluation mode and returns the restore func.
func evalMode(m any) func() {
	s, ok := m.(ModeSwitcher)
	if !ok {
		return func() {}
	}
	prev := s.Training()
	s.SetTraining(false)
	return func() { s.SetTraining(prev) }
}
