package gpu

import "fmt"

// Conv1DSpec describes one batched 1D convolution.
type Conv1DSpec struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	SeqLen      int
	Activation  int
}

// OutLen is the output length per filter.
func (s Conv1DSpec) OutLen() int {
	stride := s.Stride
	if stride < 1 {
		stride = 1
	}
	return (s.SeqLen+2*s.Padding-s.KernelSize)/stride + 1
}

// Conv1DShader generates the forward kernel. One thread computes one
// output element of one batch row.
//
// Layouts: input[b][ic][pos], weights[f][ic][k], output[b][f][o].
func Conv1DShader(s Conv1DSpec) string {
	stride := s.Stride
	if stride < 1 {
		stride = 1
	}
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read> weights : array<f32>;
		@group(0) @binding(2) var<storage, read> bias : array<f32>;
		@group(0) @binding(3) var<storage, read_write> output : array<f32>;

		const SEQ_LEN: u32 = %du;
		const IN_CH: u32 = %du;
		const OUT_CH: u32 = %du;
		const KERNEL_SIZE: u32 = %du;
		const STRIDE: u32 = %du;
		const PADDING: u32 = %du;
		const OUT_LEN: u32 = %du;

		@compute @workgroup_size(%d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= arrayLength(&output)) { return; }

			let row = OUT_LEN * OUT_CH;
			let b = idx / row;
			let out_c = (idx %% row) / OUT_LEN;
			let out_pos = idx %% OUT_LEN;
			let in_base = b * IN_CH * SEQ_LEN;

			var sum: f32 = bias[out_c];
			for (var k: u32 = 0u; k < KERNEL_SIZE; k++) {
				let in_pos_signed = i32(out_pos * STRIDE + k) - i32(PADDING);
				if (in_pos_signed >= 0 && u32(in_pos_signed) < SEQ_LEN) {
					let in_pos = u32(in_pos_signed);
					for (var in_c: u32 = 0u; in_c < IN_CH; in_c++) {
						let w_idx = out_c * IN_CH * KERNEL_SIZE + in_c * KERNEL_SIZE + k;
						sum += input[in_base + in_c * SEQ_LEN + in_pos] * weights[w_idx];
					}
				}
			}

			output[idx] = %s;
		}
	`, s.SeqLen, s.InChannels, s.OutChannels, s.KernelSize, stride, s.Padding, s.OutLen(),
		workgroupSize, activationCode(s.Activation, "sum"))
}
