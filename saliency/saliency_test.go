package saliency

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/tensor"
)

// linearModel is f(x) = sum(w * x) with a constant gradient w. It records
// calls and the mode it was called in. With strands set it is strand-aware.
type linearModel struct {
	w           []float32
	strands     bool
	sawReverse  bool
	calls       int
	training    bool
	sawTraining bool
}

func (m *linearModel) Forward(x *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	m.calls++
	m.sawTraining = m.sawTraining || m.training
	b := x.Dim(0)
	out := tensor.New[float32](b, 1)
	for i := 0; i < b; i++ {
		for k, v := range x.Row(i).Data {
			out.Data[i] += v * m.w[k]
		}
	}
	return out, nil
}

func (m *linearModel) InputGradient(fwd, rev *tensor.Tensor[float32], target int) (*tensor.Tensor[float32], error) {
	m.calls++
	m.sawTraining = m.sawTraining || m.training
	scale := float32(1)
	if rev != nil {
		m.sawReverse = true
		scale = 0.5
	}
	g := tensor.New[float32](fwd.Shape...)
	for i := 0; i < fwd.Dim(0); i++ {
		row := g.Row(i).Data
		for k := range row {
			row[k] = scale * m.w[k]
		}
	}
	return g, nil
}

func (m *linearModel) StrandAware() bool { return m.strands }

func (m *linearModel) ForwardPair(fwd, rev *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	m.sawReverse = true
	a, err := m.Forward(fwd)
	if err != nil {
		return nil, err
	}
	b, err := m.Forward(rev)
	if err != nil {
		return nil, err
	}
	for i := range a.Data {
		a.Data[i] = (a.Data[i] + b.Data[i]) / 2
	}
	return a, nil
}

func (m *linearModel) Training() bool    { return m.training }
func (m *linearModel) SetTraining(b bool) { m.training = b }

// forwardOnly has no gradients.
type forwardOnly struct{ calls int }

func (m *forwardOnly) Forward(x *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	m.calls++
	return tensor.New[float32](x.Dim(0), 1), nil
}

func newLinear(c, l int) *linearModel {
	w := make([]float32, c*l)
	for i := range w {
		w[i] = float32(i%5) - 2 // includes negative weights
	}
	return &linearModel{w: w}
}

func batch(t *testing.T, seqs ...string) *tensor.Tensor[float32] {
	t.Helper()
	var xs []*tensor.Tensor[float32]
	for _, s := range seqs {
		xs = append(xs, seq.OneHot(s, seq.DNA, 0, seq.AlignStart))
	}
	x, err := tensor.Stack(xs...)
	if err != nil {
		t.Fatal(err)
	}
	return x
}

func options(m Method) Options {
	o := DefaultOptions()
	o.Method = m
	return o
}

func TestUnknownMethodFailsBeforeModelCall(t *testing.T) {
	model := newLinear(4, 6)
	d := NewDispatcher()
	_, err := d.Explain(context.Background(), model, Input{Forward: batch(t, "ACGTAC")}, options("NotAMethod"))
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("Expected ErrUnsupportedMethod, got %v", err)
	}
	if model.calls != 0 {
		t.Errorf("Expected no model calls, got %d", model.calls)
	}
	if _, err := ParseMethod("NotAMethod"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("ParseMethod: expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods {
		got, err := ParseMethod(string(m))
		if err != nil || got != m {
			t.Errorf("ParseMethod(%q) = %q, %v", m, got, err)
		}
	}
	if got, _ := ParseMethod("naiveism"); got != NaiveISM {
		t.Errorf("Expected case-insensitive match, got %q", got)
	}
	if NaiveISM.Key() != "NaiveISM_imps" {
		t.Errorf("unexpected key %q", NaiveISM.Key())
	}
}

func TestInvalidOptionsFailBeforeModelCall(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Options)
		want error
	}{
		{"ism variant", func(o *Options) { o.ISMVariant = "fancy" }, ErrUnsupportedMethod},
		{"reference", func(o *Options) { o.Reference = "bogus" }, ErrUnsupportedMethod},
		{"batch size", func(o *Options) { o.BatchSize = 0 }, nil},
	}
	for _, tt := range tests {
		model := newLinear(4, 4)
		o := options(NaiveISM)
		tt.mod(&o)
		_, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: batch(t, "ACGT")}, o)
		if err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
		if model.calls != 0 {
			t.Errorf("%s: expected no model calls, got %d", tt.name, model.calls)
		}
	}
}

func TestGradientMethodsNeedGradients(t *testing.T) {
	model := &forwardOnly{}
	_, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: batch(t, "ACGT")}, options(InputXGradient))
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("Expected ErrUnsupportedMethod, got %v", err)
	}
	if model.calls != 0 {
		t.Errorf("Expected no model calls, got %d", model.calls)
	}
}

func TestAcceleratorRequiresPlaceableModel(t *testing.T) {
	model := newLinear(4, 4)
	o := options(NaiveISM)
	o.Device = device.Accelerator
	_, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: batch(t, "ACGT")}, o)
	if !errors.Is(err, device.ErrPlacement) {
		t.Fatalf("Expected ErrPlacement, got %v", err)
	}
}

func TestAbsValue(t *testing.T) {
	model := newLinear(4, 6)
	x := batch(t, "ACGTAC", "TTGACA")
	o := options(InputXGradient)

	raw, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: x}, o)
	if err != nil {
		t.Fatal(err)
	}
	if floats.Min(raw.Data) >= 0 {
		t.Fatal("Expected at least one negative attribution from the linear model")
	}

	o.AbsValue = true
	abs, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: x}, o)
	if err != nil {
		t.Fatal(err)
	}
	if !tensor.SameShape(abs.Shape, raw.Shape) {
		t.Fatalf("abs changed shape %v -> %v", raw.Shape, abs.Shape)
	}
	if floats.Min(abs.Data) < 0 {
		t.Error("Expected all attributions non-negative")
	}
	for i := range raw.Data {
		if abs.Data[i] != math.Abs(raw.Data[i]) {
			t.Fatalf("entry %d: %v, want |%v|", i, abs.Data[i], raw.Data[i])
		}
	}
}

func TestEvalModeIsScoped(t *testing.T) {
	model := newLinear(4, 4)
	model.training = true
	if _, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: batch(t, "ACGT")}, options(NaiveISM)); err != nil {
		t.Fatal(err)
	}
	if model.sawTraining {
		t.Error("Model was called in training mode")
	}
	if !model.training {
		t.Error("Prior training mode was not restored")
	}

	d := NewDispatcher()
	d.Register(NaiveISM, BackendFunc(func(ctx context.Context, m Model, in Input, o Options) (*tensor.Tensor[float64], error) {
		return nil, errors.New("backend failed")
	}))
	if _, err := d.Explain(context.Background(), model, Input{Forward: batch(t, "ACGT")}, options(NaiveISM)); err == nil {
		t.Fatal("Expected the backend error")
	}
	if !model.training {
		t.Error("Prior training mode was not restored after a failure")
	}
}

func TestReverseShapeMismatch(t *testing.T) {
	model := newLinear(4, 4)
	in := Input{Forward: batch(t, "ACGT"), Reverse: batch(t, "ACGT", "ACGT")}
	if _, err := NewDispatcher().Explain(context.Background(), model, in, options(InputXGradient)); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Fatalf("Expected ErrShapeMismatch, got %v", err)
	}
	if model.calls != 0 {
		t.Errorf("Expected no model calls, got %d", model.calls)
	}
}

func TestISMThroughDispatcher(t *testing.T) {
	model := newLinear(4, 5)
	x := batch(t, "ACGTA")
	out, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: x}, options(NaiveISM))
	if err != nil {
		t.Fatal(err)
	}
	// For a linear model the score of substituting a for o at p is |w[a][p] - w[o][p]|.
	orig := seq.ArgMax(x.Row(0))
	for c := 0; c < 4; c++ {
		for p := 0; p < 5; p++ {
			want := math.Abs(float64(model.w[c*5+p] - model.w[orig[p]*5+p]))
			if got := out.Data[c*5+p]; got != want {
				t.Errorf("map[%d][%d] = %v, want %v", c, p, got, want)
			}
		}
	}
}

// TestPathMethodsOnLinearModel checks that DeepLift and GradientSHAP reduce
// to w * (x - baseline) when the gradient is constant.
func TestPathMethodsOnLinearModel(t *testing.T) {
	for _, m := range []Method{DeepLift, GradientSHAP} {
		for _, ref := range []Reference{ReferenceZero, ReferenceGC} {
			model := newLinear(4, 6)
			x := batch(t, "ACGTAC", "GGCATT")
			o := options(m)
			o.Reference = ref
			o.BatchSize = 4
			out, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: x}, o)
			if err != nil {
				t.Fatalf("%s/%s: %v", m, ref, err)
			}
			base, _ := Baseline(x.Row(0), ref, nil)
			for i := 0; i < 2; i++ {
				row := out.Row(i).Data
				xi := x.Row(i).Data
				for k := range row {
					want := float64(model.w[k]) * float64(xi[k]-base.Data[k])
					if math.Abs(row[k]-want) > 1e-9 {
						t.Fatalf("%s/%s: seq %d entry %d = %v, want %v", m, ref, i, k, row[k], want)
					}
				}
			}
		}
	}
}

func TestShuffleReferenceIsSeeded(t *testing.T) {
	model := newLinear(4, 8)
	x := batch(t, "ACGGTACA")
	o := options(GradientSHAP)
	o.Reference = ReferenceShuffle
	o.Seed = 9
	a, err := NewDispatcher().Explain(context.Background(), model, Input{Forward: x}, o)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewDispatcher().Explain(context.Background(), model, Input{Forward: x}, o)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatal("Same seed produced different attributions")
		}
	}
}

func TestBaselines(t *testing.T) {
	x := seq.OneHot("ACGTTA", seq.DNA, 0, seq.AlignStart)
	gc, err := Baseline(x, ReferenceGC, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gc.Data[0] != 0.3 || gc.Data[6] != 0.2 || gc.Data[23] != 0.3 {
		t.Errorf("unexpected gc baseline %v", gc.Data)
	}
	sh, err := Baseline(x, ReferenceShuffle, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if err := seq.ValidateOneHot(sh); err != nil {
		t.Errorf("shuffled baseline is not one-hot: %v", err)
	}
	if _, err := Baseline(tensor.New[float32](5, 3), ReferenceGC, nil); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for a 5-channel gc baseline, got %v", err)
	}
}

func TestReverseStrandsReachOnlyStrandAwareModels(t *testing.T) {
	fwd := batch(t, "ACGTAC", "TTGCAA")
	rev := batch(t, "GTACGT", "TTGCAA")
	d := NewDispatcher()

	for _, m := range []Method{NaiveISM, InputXGradient} {
		plain := newLinear(4, 6)
		alone, err := d.Explain(context.Background(), plain, Input{Forward: fwd}, options(m))
		if err != nil {
			t.Fatal(err)
		}
		withRev, err := d.Explain(context.Background(), plain, Input{Forward: fwd, Reverse: rev}, options(m))
		if err != nil {
			t.Fatal(err)
		}
		if plain.sawReverse {
			t.Errorf("%s: reverse strands reached a model that is not strand-aware", m)
		}

		paired := newLinear(4, 6)
		paired.strands = true
		both, err := d.Explain(context.Background(), paired, Input{Forward: fwd, Reverse: rev}, options(m))
		if err != nil {
			t.Fatal(err)
		}
		if !paired.sawReverse {
			t.Errorf("%s: strand-aware model never saw the reverse strands", m)
		}

		// Holding the reverse strand fixed halves every attribution of
		// the strand mean.
		for i := range alone.Data {
			if withRev.Data[i] != alone.Data[i] {
				t.Errorf("%s entry %d: %v with ignored reverse strands, want %v", m, i, withRev.Data[i], alone.Data[i])
			}
			if math.Abs(both.Data[i]-alone.Data[i]/2) > 1e-9 {
				t.Errorf("%s entry %d: strand-aware %v, want %v", m, i, both.Data[i], alone.Data[i]/2)
			}
		}
	}
}
