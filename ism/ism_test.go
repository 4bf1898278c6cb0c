package ism

import (
	"context"
	"errors"
	"testing"

	"github.com/openfluke/attrib/nn"
	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/tensor"
)

// weightedSum scores a batch as sum_c sum_p (c+1) * x[c][p]. Substituting
// channel a for o at one position moves the output by exactly a-o.
type weightedSum struct {
	calls    int
	rows     int
	released int
	// width > 0 returns a (B, 2, width) output holding the score in [0][0].
	width      int
	releaseErr error
}

func (m *weightedSum) Forward(x *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	m.calls++
	b, c, l := x.Dim(0), x.Dim(1), x.Dim(2)
	m.rows += b
	shape := []int{b}
	if m.width > 0 {
		shape = []int{b, 2, m.width}
	}
	out := tensor.New[float32](shape...)
	stride := out.RowSize()
	for i := 0; i < b; i++ {
		var s float32
		for ch := 0; ch < c; ch++ {
			for p := 0; p < l; p++ {
				s += float32(ch+1) * x.Data[i*c*l+ch*l+p]
			}
		}
		out.Data[i*stride] = s
	}
	return out, nil
}

func (m *weightedSum) ReleaseScratch() error {
	m.released++
	return m.releaseErr
}

func TestAltChannel(t *testing.T) {
	tests := []struct{ orig, i, c, want int }{
		{0, 1, 4, 1},
		{3, 1, 4, 0},
		{2, 3, 4, 1},
		{1, 2, 4, 3},
		{0, 1, 2, 1},
		{1, 1, 2, 0},
	}
	for _, tt := range tests {
		if got := AltChannel(tt.orig, tt.i, tt.c); got != tt.want {
			t.Errorf("AltChannel(%d, %d, %d) = %d, want %d", tt.orig, tt.i, tt.c, got, tt.want)
		}
	}
	// The observed base is never produced.
	for c := 2; c <= 5; c++ {
		for o := 0; o < c; o++ {
			seen := map[int]bool{}
			for i := 1; i < c; i++ {
				a := AltChannel(o, i, c)
				if a == o || seen[a] {
					t.Fatalf("c=%d orig=%d: alternative %d repeats or equals the observed base", c, o, a)
				}
				seen[a] = true
			}
		}
	}
}

func TestReconstructPlacement(t *testing.T) {
	// Two positions, C=3, observed [2, 0].
	scores := []float64{10, 11, 20, 21}
	m, err := Reconstruct(scores, []int{2, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{
		{10, 0},
		{11, 20},
		{0, 21},
	}
	for c := range want {
		for p := range want[c] {
			if got := m.At(c, p); got != want[c][p] {
				t.Errorf("map[%d][%d] = %v, want %v", c, p, got, want[c][p])
			}
		}
	}

	if _, err := Reconstruct(scores[:3], []int{2, 0}, 3); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for a short score vector, got %v", err)
	}
}

func TestPerturbationLayout(t *testing.T) {
	x := seq.OneHot("ACGT", seq.DNA, 0, seq.AlignStart)
	orig := x.Clone()
	set, err := Perturb(x)
	if err != nil {
		t.Fatal(err)
	}
	if !tensor.SameShape(set.Shape, []int{12, 4, 4}) {
		t.Fatalf("Expected shape [12 4 4], got %v", set.Shape)
	}
	for i := range x.Data {
		if x.Data[i] != orig.Data[i] {
			t.Fatal("Perturb modified its input")
		}
	}
	for r := 0; r < 12; r++ {
		row := set.Row(r)
		if err := seq.ValidateOneHot(row); err != nil {
			t.Fatalf("row %d: %v", r, err)
		}
		pos, alt := r/3, r%3+1
		got := seq.Decode(row, seq.DNA)
		want := []byte("ACGT")
		want[pos] = "ACGT"[AltChannel(pos, alt, 4)]
		if got != string(want) {
			t.Errorf("row %d = %s, want %s", r, got, want)
		}
	}
}

// TestHandComputedMap checks ACGT under the weighted sum model, where every
// entry is |c - observed(p)|.
func TestHandComputedMap(t *testing.T) {
	x := seq.OneHot("ACGT", seq.DNA, 0, seq.AlignStart)
	model := &weightedSum{}
	s := &Scorer{Model: model, BatchSize: 5}
	out, err := s.Attribute(context.Background(), x.Reshape(1, 4, 4), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{
		0, 1, 2, 3,
		1, 0, 1, 2,
		2, 1, 0, 1,
		3, 2, 1, 0,
	}
	if !tensor.SameShape(out.Shape, []int{1, 4, 4}) {
		t.Fatalf("Expected shape [1 4 4], got %v", out.Shape)
	}
	for i, w := range want {
		if out.Data[i] != w {
			t.Errorf("map[%d][%d] = %v, want %v", i/4, i%4, out.Data[i], w)
		}
	}
	// One reference pass plus ceil(12/5) chunks.
	if model.calls != 4 || model.rows != 13 {
		t.Errorf("Expected 4 calls over 13 rows, got %d calls over %d rows", model.calls, model.rows)
	}
	if model.released != 1 {
		t.Errorf("Expected scratch released once per sequence, got %d", model.released)
	}
}

// TestMultiAxisOutputReduction verifies every trailing output axis is reduced
func TestMultiAxisOutputReduction(t *testing.T) {
	x := seq.OneHot("GATTACA", seq.DNA, 0, seq.AlignStart)
	flat, err := (&Scorer{Model: &weightedSum{}, BatchSize: 4}).Score(context.Background(), x, nil)
	if err != nil {
		t.Fatal(err)
	}
	wide, err := (&Scorer{Model: &weightedSum{width: 3}, BatchSize: 4}).Score(context.Background(), x, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range flat {
		if flat[i] != wide[i] {
			t.Fatalf("score %d: %v for scalar output, %v for (2, 3) output", i, flat[i], wide[i])
		}
	}
}

func TestDistancesMatchesTwoStageReduction(t *testing.T) {
	out := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 0, 0, 0, 0, 0, 1}, 2, 2, 3)
	ref := tensor.FromSlice([]float32{0, 0, 0, 0, 0, 0}, 1, 2, 3)
	d, err := Distances(out, ref)
	if err != nil {
		t.Fatal(err)
	}
	sq := out.Clone()
	for i, v := range sq.Data {
		sq.Data[i] = v * v
	}
	for b := range d {
		var two float64
		for ch := 0; ch < 2; ch++ {
			var s float32
			for _, v := range sq.Data[b*6+ch*3 : b*6+ch*3+3] {
				s += v
			}
			two += float64(s)
		}
		if d[b]*d[b]-two > 1e-9 || two-d[b]*d[b] > 1e-9 {
			t.Errorf("row %d: distance %v, two-stage sum %v", b, d[b], two)
		}
	}

	if _, err := Distances(out, tensor.New[float32](1, 3, 2)); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestObservedBaseIsZero(t *testing.T) {
	net, err := nn.NewCNN(4, 12, nn.CNNOptions{Filters: 4, KernelSize: 3, Hidden: 6, Outputs: 3, Seed: 5})
	if err != nil {
		t.Fatal(err)
	}
	x := seq.OneHot("ACGTTGCAAGCT", seq.DNA, 0, seq.AlignStart)
	out, err := (&Scorer{Model: net, BatchSize: 7}).Attribute(context.Background(), x.Reshape(1, 4, 12), nil)
	if err != nil {
		t.Fatal(err)
	}
	for p, o := range seq.ArgMax(x) {
		if v := out.Data[o*12+p]; v != 0 {
			t.Errorf("position %d observed channel %d scored %v", p, o, v)
		}
	}
}

func TestBatchSizeInvariance(t *testing.T) {
	net, err := nn.NewCNN(4, 16, nn.CNNOptions{Filters: 4, KernelSize: 5, Hidden: 8, Outputs: 2, Seed: 11})
	if err != nil {
		t.Fatal(err)
	}
	x, err := tensor.Stack(
		seq.OneHot("ACGTACGTTTGACCAG", seq.DNA, 0, seq.AlignStart),
		seq.OneHot("GGGCCCATATATCGCG", seq.DNA, 0, seq.AlignStart),
	)
	if err != nil {
		t.Fatal(err)
	}

	var base *tensor.Tensor[float64]
	for _, bs := range []int{512, 37, 1} {
		out, err := (&Scorer{Model: net, BatchSize: bs}).Attribute(context.Background(), x, nil)
		if err != nil {
			t.Fatal(err)
		}
		if base == nil {
			base = out
			continue
		}
		for i := range out.Data {
			if out.Data[i] != base.Data[i] {
				t.Fatalf("batch size %d: entry %d = %v, want %v", bs, i, out.Data[i], base.Data[i])
			}
		}
	}

	again, _ := (&Scorer{Model: net, BatchSize: 512}).Attribute(context.Background(), x, nil)
	for i := range again.Data {
		if again.Data[i] != base.Data[i] {
			t.Fatal("ISM is not deterministic")
		}
	}
}

func TestScoreRejectsInvalidInput(t *testing.T) {
	s := &Scorer{Model: &weightedSum{}, BatchSize: 8}
	padded := seq.OneHot("AC", seq.DNA, 4, seq.AlignStart)
	if _, err := s.Score(context.Background(), padded, nil); !errors.Is(err, seq.ErrNotOneHot) {
		t.Errorf("Expected ErrNotOneHot for padded columns, got %v", err)
	}
	if _, err := (&Scorer{Model: &weightedSum{}}).Score(context.Background(), seq.OneHot("AC", seq.DNA, 0, seq.AlignStart), nil); err == nil {
		t.Error("Expected an error for a zero batch size")
	}
}

func TestAttributeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &weightedSum{}
	x := seq.OneHot("ACGT", seq.DNA, 0, seq.AlignStart)
	if _, err := (&Scorer{Model: model, BatchSize: 4}).Attribute(ctx, x.Reshape(1, 4, 4), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if model.calls != 0 {
		t.Errorf("Expected no model calls after cancellation, got %d", model.calls)
	}
}

func TestScratchReleaseFailure(t *testing.T) {
	errRelease := errors.New("release failed")
	x := seq.OneHot("ACGT", seq.DNA, 0, seq.AlignStart)

	model := &weightedSum{releaseErr: errRelease}
	scores, err := (&Scorer{Model: model, BatchSize: 4}).Score(context.Background(), x, nil)
	if !errors.Is(err, errRelease) {
		t.Fatalf("Expected the release error, got %v", err)
	}
	if scores != nil {
		t.Errorf("Expected no scores when release fails, got %v", scores)
	}
	if model.released != 1 {
		t.Errorf("Expected one release, got %d", model.released)
	}

	// A scoring error wins over the release error.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Scorer{Model: &weightedSum{releaseErr: errRelease}, BatchSize: 4}).Score(ctx, x, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// linearNet is a bias-free dense network over (4, 4) input with weights
// 1..16, so every output is an exact integer.
func linearNet(t *testing.T, strands bool) *nn.Network {
	t.Helper()
	kernel := make([]float32, 16)
	for i := range kernel {
		kernel[i] = float32(i + 1)
	}
	net, err := nn.NewNetwork(4, 4, []nn.LayerConfig{
		{Type: nn.LayerDense, Activation: nn.ActivationLinear, OutputSize: 1, Kernel: kernel, Bias: []float32{0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	net.Strands = strands
	return net
}

func TestStrandAwareScoring(t *testing.T) {
	x := seq.OneHot("ACGT", seq.DNA, 0, seq.AlignStart).Reshape(1, 4, 4)
	rev := seq.OneHot("TTAA", seq.DNA, 0, seq.AlignStart).Reshape(1, 4, 4)

	single, err := (&Scorer{Model: linearNet(t, false), BatchSize: 5}).Attribute(context.Background(), x, nil)
	if err != nil {
		t.Fatal(err)
	}
	ignored, err := (&Scorer{Model: linearNet(t, false), BatchSize: 5}).Attribute(context.Background(), x, rev)
	if err != nil {
		t.Fatal(err)
	}
	paired, err := (&Scorer{Model: linearNet(t, true), BatchSize: 5}).Attribute(context.Background(), x, rev)
	if err != nil {
		t.Fatal(err)
	}
	// With the reverse strand held fixed, the mean of both strands moves by
	// half of what the forward strand alone does.
	for i := range single.Data {
		if ignored.Data[i] != single.Data[i] {
			t.Errorf("entry %d: %v with an ignored reverse strand, want %v", i, ignored.Data[i], single.Data[i])
		}
		if paired.Data[i] != single.Data[i]/2 {
			t.Errorf("entry %d: strand-aware %v, want %v", i, paired.Data[i], single.Data[i]/2)
		}
	}

	if _, err := (&Scorer{Model: linearNet(t, true), BatchSize: 5}).Attribute(context.Background(), x, rev.Reshape(4, 4, 1)); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for a mismatched reverse strand, got %v", err)
	}
}
