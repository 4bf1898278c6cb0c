package gpu

import "fmt"

// DistanceShader generates the per-row Euclidean distance between a batch
// of model outputs[b][k] and a single reference[k].
func DistanceShader(width int) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> outputs : array<f32>;
		@group(0) @binding(1) var<storage, read> reference : array<f32>;
		@group(0) @binding(2) var<storage, read_write> dist : array<f32>;

		const K: u32 = %du;

		@compute @workgroup_size(%d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let b = gid.x;
			if (b >= arrayLength(&dist)) { return; }

			var acc: f32 = 0.0;
			for (var k: u32 = 0u; k < K; k++) {
				let d = outputs[b * K + k] - reference[k];
				acc += d * d;
			}
			dist[b] = sqrt(acc);
		}
	`, width, workgroupSize)
}
