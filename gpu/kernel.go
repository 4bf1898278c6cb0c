package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

const workgroupSize = 256

// Kernel is a compiled compute pipeline whose bindings are all storage
// buffers: every binding but the last is read-only, the last is the output.
type Kernel struct {
	Label    string
	Bindings int

	bgl      *wgpu.BindGroupLayout
	layout   *wgpu.PipelineLayout
	pipeline *wgpu.ComputePipeline
}

// Compile builds a kernel from WGSL source with an explicit bind group layout.
func Compile(label, shader string, bindings int) (*Kernel, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	Log("compiling %s", label)

	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shader},
	})
	if err != nil {
		return nil, fmt.Errorf("shader compile %s: %v", label, err)
	}
	defer module.Release()

	entries := make([]wgpu.BindGroupLayoutEntry, bindings)
	for i := range entries {
		typ := wgpu.BufferBindingTypeReadOnlyStorage
		if i == bindings-1 {
			typ = wgpu.BufferBindingTypeStorage
		}
		entries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: typ},
		}
	}

	k := &Kernel{Label: label, Bindings: bindings}
	k.bgl, err = c.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label + "_BGL",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bgl %s: %v", label, err)
	}
	k.layout, err = c.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + "_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{k.bgl},
	})
	if err != nil {
		k.Release()
		return nil, fmt.Errorf("create pipeline layout %s: %v", label, err)
	}
	k.pipeline, err = c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label + "_Pipe",
		Layout: k.layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		k.Release()
		return nil, fmt.Errorf("pipeline create %s: %v", label, err)
	}
	return k, nil
}

// Run dispatches one thread per output element.
func (k *Kernel) Run(threads int, buffers ...*wgpu.Buffer) error {
	if len(buffers) != k.Bindings {
		return fmt.Errorf("kernel %s: %d buffers for %d bindings", k.Label, len(buffers), k.Bindings)
	}
	c, err := GetContext()
	if err != nil {
		return err
	}

	entries := make([]wgpu.BindGroupEntry, len(buffers))
	for i, b := range buffers {
		entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), Buffer: b, Size: b.GetSize()}
	}
	bindGroup, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.Label + "_Bind",
		Layout:  k.bgl,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("bind group %s: %v", k.Label, err)
	}
	defer bindGroup.Release()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workgroups(threads), 1, 1)
	pass.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	c.Queue.Submit(cmd)
	return nil
}

// Release frees the pipeline objects.
func (k *Kernel) Release() {
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
	if k.layout != nil {
		k.layout.Release()
		k.layout = nil
	}
	if k.bgl != nil {
		k.bgl.Release()
		k.bgl = nil
	}
}

func workgroups(threads int) uint32 {
	if threads < 1 {
		threads = 1
	}
	return uint32((threads + workgroupSize - 1) / workgroupSize)
}
