package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// StageKind selects the kernel a Stage runs.
type StageKind int

const (
	StageConv1D StageKind = iota
	StageDense
	StagePool
)

// Stage is one layer of a compiled forward program. Weights and Bias are
// ignored for StagePool.
type Stage struct {
	Kind  StageKind
	Conv  Conv1DSpec
	Dense DenseSpec
	// Pool dimensions, input[b][Channels][Length].
	Channels int
	Length   int

	Weights []float32
	Bias    []float32
}

// InSize is the number of floats this stage consumes per batch row.
func (s Stage) InSize() int {
	switch s.Kind {
	case StageConv1D:
		return s.Conv.InChannels * s.Conv.SeqLen
	case StageDense:
		return s.Dense.InputSize
	default:
		return s.Channels * s.Length
	}
}

// OutSize is the number of floats this stage produces per batch row.
func (s Stage) OutSize() int {
	switch s.Kind {
	case StageConv1D:
		return s.Conv.OutChannels * s.Conv.OutLen()
	case StageDense:
		return s.Dense.OutputSize
	default:
		return s.Channels
	}
}

func (s Stage) shader() (string, int) {
	switch s.Kind {
	case StageConv1D:
		return Conv1DShader(s.Conv), 4
	case StageDense:
		return DenseShader(s.Dense), 4
	default:
		return PoolShader(s.Channels, s.Length), 2
	}
}

type compiledStage struct {
	Stage
	kernel  *Kernel
	weights *wgpu.Buffer
	bias    *wgpu.Buffer
}

// Program holds the resident weights and pipelines for a network's forward
// pass. Per-call activations live in a caller-supplied Scratch.
type Program struct {
	stages    []compiledStage
	distances map[int]*Kernel
}

// NewProgram compiles stages and uploads their weights. Stage sizes must
// chain: each stage's OutSize is the next stage's InSize.
func NewProgram(stages []Stage) (*Program, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("empty program")
	}
	p := &Program{distances: make(map[int]*Kernel)}
	for i, s := range stages {
		if i > 0 && stages[i-1].OutSize() != s.InSize() {
			p.Release()
			return nil, fmt.Errorf("stage %d expects %d inputs, previous stage produces %d", i, s.InSize(), stages[i-1].OutSize())
		}
		label := fmt.Sprintf("stage%d", i)
		src, bindings := s.shader()
		k, err := Compile(label, src, bindings)
		if err != nil {
			p.Release()
			return nil, err
		}
		cs := compiledStage{Stage: s, kernel: k}
		if s.Kind != StagePool {
			if cs.weights, err = NewFloatBuffer(label+"_W", s.Weights); err == nil {
				cs.bias, err = NewFloatBuffer(label+"_B", s.Bias)
			}
			if err != nil {
				k.Release()
				p.Release()
				return nil, err
			}
		}
		p.stages = append(p.stages, cs)
	}
	return p, nil
}

// OutSize is the per-row width of the program output.
func (p *Program) OutSize() int { return p.stages[len(p.stages)-1].OutSize() }

// InSize is the per-row width of the program input.
func (p *Program) InSize() int { return p.stages[0].InSize() }

// Dispatch runs the program over batch rows of input and leaves the result
// on the device. Every buffer it creates is tracked by scratch.
func (p *Program) Dispatch(input []float32, batch int, scratch *Scratch) (*wgpu.Buffer, error) {
	if len(input) != batch*p.InSize() {
		return nil, fmt.Errorf("program input has %d floats, want %d x %d", len(input), batch, p.InSize())
	}
	cur, err := scratch.Upload("input", input)
	if err != nil {
		return nil, err
	}
	for i, s := range p.stages {
		n := batch * s.OutSize()
		out, err := scratch.Alloc(fmt.Sprintf("stage%d_out", i), n)
		if err != nil {
			return nil, err
		}
		if s.Kind == StagePool {
			err = s.kernel.Run(n, cur, out)
		} else {
			err = s.kernel.Run(n, cur, s.weights, s.bias, out)
		}
		if err != nil {
			return nil, err
		}
		cur = out
	}
	return cur, nil
}

// Forward runs the program and reads the (batch, OutSize) result back.
func (p *Program) Forward(input []float32, batch int, scratch *Scratch) ([]float32, error) {
	out, err := p.Dispatch(input, batch, scratch)
	if err != nil {
		return nil, err
	}
	return ReadBuffer(out, batch*p.OutSize())
}

// Distances runs the program and reduces each output row to its L2
// distance from ref on the device, returning one value per row.
func (p *Program) Distances(input []float32, batch int, ref []float32, scratch *Scratch) ([]float32, error) {
	width := p.OutSize()
	if len(ref) != width {
		return nil, fmt.Errorf("reference has %d values, program output has %d", len(ref), width)
	}
	out, err := p.Dispatch(input, batch, scratch)
	if err != nil {
		return nil, err
	}
	k, err := p.distanceKernel(width)
	if err != nil {
		return nil, err
	}
	refBuf, err := scratch.Upload("reference", ref)
	if err != nil {
		return nil, err
	}
	dist, err := scratch.Alloc("distances", batch)
	if err != nil {
		return nil, err
	}
	if err := k.Run(batch, out, refBuf, dist); err != nil {
		return nil, err
	}
	return ReadBuffer(dist, batch)
}

func (p *Program) distanceKernel(width int) (*Kernel, error) {
	if k, ok := p.distances[width]; ok {
		return k, nil
	}
	k, err := Compile(fmt.Sprintf("distance%d", width), DistanceShader(width), 3)
	if err != nil {
		return nil, err
	}
	p.distances[width] = k
	return k, nil
}

// Release frees the pipelines and resident weight buffers.
func (p *Program) Release() {
	for _, s := range p.stages {
		s.kernel.Release()
		if s.weights != nil {
			s.weights.Destroy()
		}
		if s.bias != nil {
			s.bias.Destroy()
		}
	}
	p.stages = nil
	for w, k := range p.distances {
		k.Release()
		delete(p.distances, w)
	}
}
