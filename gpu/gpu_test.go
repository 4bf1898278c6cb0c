package gpu

import (
	"strings"
	"testing"
)

// TestConv1DShaderConstants verifies the layer geometry is baked into the kernel
func TestConv1DShaderConstants(t *testing.T) {
	s := Conv1DSpec{InChannels: 4, OutChannels: 8, KernelSize: 5, Stride: 1, Padding: 2, SeqLen: 20, Activation: ActScaledReLU}
	if s.OutLen() != 20 {
		t.Fatalf("Expected same-padded output length 20, got %d", s.OutLen())
	}
	src := Conv1DShader(s)
	for _, want := range []string{
		"const SEQ_LEN: u32 = 20u;",
		"const IN_CH: u32 = 4u;",
		"const OUT_CH: u32 = 8u;",
		"const KERNEL_SIZE: u32 = 5u;",
		"const PADDING: u32 = 2u;",
		"max(sum * 1.1, 0.0)",
		"@workgroup_size(256)",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("Conv1D shader missing %q", want)
		}
	}
	if strings.Contains(src, "%!") {
		t.Errorf("Conv1D shader has a formatting error:\n%s", src)
	}
}

// TestStrideDefaultsToOne verifies a zero stride behaves as one
func TestStrideDefaultsToOne(t *testing.T) {
	s := Conv1DSpec{InChannels: 1, OutChannels: 1, KernelSize: 3, SeqLen: 10}
	if s.OutLen() != 8 {
		t.Errorf("Expected output length 8, got %d", s.OutLen())
	}
	if !strings.Contains(Conv1DShader(s), "const STRIDE: u32 = 1u;") {
		t.Error("Expected stride constant 1")
	}
}

func TestActivationCodes(t *testing.T) {
	tests := []struct {
		act  int
		want string
	}{
		{ActScaledReLU, "max(v * 1.1, 0.0)"},
		{ActSigmoid, "1.0 / (1.0 + exp(-v))"},
		{ActTanh, "tanh(v)"},
		{ActSoftplus, "log(1.0 + exp(v))"},
		{ActLeakyReLU, "select(v, v * 0.1, v < 0.0)"},
		{ActLinear, "v"},
	}
	for _, tt := range tests {
		if got := activationCode(tt.act, "v"); got != tt.want {
			t.Errorf("activationCode(%d) = %q, want %q", tt.act, got, tt.want)
		}
	}
}

func TestDenseAndPoolShaders(t *testing.T) {
	dense := DenseShader(DenseSpec{InputSize: 16, OutputSize: 3, Activation: ActLinear})
	if !strings.Contains(dense, "const IN: u32 = 16u;") || !strings.Contains(dense, "const OUT: u32 = 3u;") {
		t.Errorf("Dense shader missing sizes:\n%s", dense)
	}
	if !strings.Contains(dense, "output[idx] = sum;") {
		t.Error("Linear dense layer should store the raw sum")
	}

	pool := PoolShader(8, 20)
	if !strings.Contains(pool, "const LEN: u32 = 20u;") || !strings.Contains(pool, "sum / f32(LEN)") {
		t.Errorf("Pool shader malformed:\n%s", pool)
	}
}

func TestDistanceShader(t *testing.T) {
	src := DistanceShader(7)
	if !strings.Contains(src, "const K: u32 = 7u;") {
		t.Error("Distance shader missing output width")
	}
	if !strings.Contains(src, "dist[b] = sqrt(acc);") {
		t.Error("Distance shader must take the square root of the summed squares")
	}
}

func TestStageSizes(t *testing.T) {
	stages := []Stage{
		{Kind: StageConv1D, Conv: Conv1DSpec{InChannels: 4, OutChannels: 6, KernelSize: 3, SeqLen: 12}},
		{Kind: StagePool, Channels: 6, Length: 10},
		{Kind: StageDense, Dense: DenseSpec{InputSize: 6, OutputSize: 2}},
	}
	for i := 1; i < len(stages); i++ {
		if stages[i-1].OutSize() != stages[i].InSize() {
			t.Errorf("stage %d: OutSize %d does not feed InSize %d", i, stages[i-1].OutSize(), stages[i].InSize())
		}
	}
	if stages[0].InSize() != 48 {
		t.Errorf("Expected conv input size 48, got %d", stages[0].InSize())
	}
}

func TestWorkgroups(t *testing.T) {
	tests := map[int]uint32{0: 1, 1: 1, 256: 1, 257: 2, 1024: 4}
	for threads, want := range tests {
		if got := workgroups(threads); got != want {
			t.Errorf("workgroups(%d) = %d, want %d", threads, got, want)
		}
	}
}

// TestEmptyScratchRelease verifies releasing an unused scratch never touches the device
func TestEmptyScratchRelease(t *testing.T) {
	var s Scratch
	s.Release()
	if s.Len() != 0 || s.Bytes() != 0 {
		t.Errorf("Expected empty scratch, got %d buffers", s.Len())
	}
}

func TestChooseWorkgroup(t *testing.T) {
	tests := []struct {
		limits Limits
		want   uint32
	}{
		{Limits{MaxComputeWorkgroupSizeX: 1024, MaxComputeInvocationsPerWorkgroup: 1024}, 256},
		{Limits{MaxComputeWorkgroupSizeX: 128, MaxComputeInvocationsPerWorkgroup: 1024}, 128},
		{Limits{MaxComputeWorkgroupSizeX: 256, MaxComputeInvocationsPerWorkgroup: 48}, 32},
		{Limits{}, 1},
	}
	for _, tt := range tests {
		if got := chooseWorkgroup(tt.limits); got != tt.want {
			t.Errorf("chooseWorkgroup(%+v) = %d, want %d", tt.limits, got, tt.want)
		}
	}
}

func TestReportMaxRows(t *testing.T) {
	r := &Report{Limits: Limits{
		MaxStorageBufferBindingSize:      1 << 20,
		MaxComputeWorkgroupsPerDimension: 65535,
	}}
	// 1 MiB binding over 4-byte floats, 800 floats a row.
	if got := r.MaxRows(800); got != (1<<20)/3200 {
		t.Errorf("MaxRows(800) = %d, want %d", got, (1<<20)/3200)
	}
	r.Limits.MaxComputeWorkgroupsPerDimension = 4
	if got := r.MaxRows(800); got != 1 {
		t.Errorf("dispatch-bound MaxRows(800) = %d, want 1", got)
	}
	if got := r.MaxRows(0); got != 0 {
		t.Errorf("MaxRows(0) = %d, want 0", got)
	}
}
