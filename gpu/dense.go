package gpu

import "fmt"

// DenseSpec describes one batched fully connected layer.
type DenseSpec struct {
	InputSize  int
	OutputSize int
	Activation int
}

// DenseShader generates the forward kernel.
//
// Layouts: input[b][i], weights[i*OUT + o], output[b][o].
func DenseShader(s DenseSpec) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read> weights : array<f32>;
		@group(0) @binding(2) var<storage, read> bias : array<f32>;
		@group(0) @binding(3) var<storage, read_write> output : array<f32>;

		const IN: u32 = %du;
		const OUT: u32 = %du;

		@compute @workgroup_size(%d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= arrayLength(&output)) { return; }

			let b = idx / OUT;
			let o = idx %% OUT;
			var sum: f32 = bias[o];
			for (var i: u32 = 0u; i < IN; i++) {
				sum += input[b * IN + i] * weights[i * OUT + o];
			}
			output[idx] = %s;
		}
	`, s.InputSize, s.OutputSize, workgroupSize, activationCode(s.Activation, "sum"))
}
