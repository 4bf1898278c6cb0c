package gpu

import "fmt"

// PoolShader generates a global average pool over the length axis:
// input[b][c][l] becomes output[b][c].
func PoolShader(channels, length int) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read_write> output : array<f32>;

		const CH: u32 = %du;
		const LEN: u32 = %du;

		@compute @workgroup_size(%d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= arrayLength(&output)) { return; }

			let base = idx * LEN;
			var sum: f32 = 0.0;
			for (var l: u32 = 0u; l < LEN; l++) {
				sum += input[base + l];
			}
			output[idx] = sum / f32(LEN);
		}
	`, channels, length, workgroupSize)
}
