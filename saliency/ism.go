package saliency

import (
	"context"
	"log"
	"sync"

	"github.com/openfluke/attrib/ism"
	"github.com/openfluke/attrib/tensor"
)

var strandOnce sync.Once

// strands returns the reverse complements the model should see: all of
// them for a strand-aware model, none otherwise.
func strands(model Model, in Input) *tensor.Tensor[float32] {
	if in.Reverse == nil {
		return nil
	}
	if _, ok := ism.Paired(model); ok {
		return in.Reverse
	}
	strandOnce.Do(func() {
		log.Printf("%T is not strand-aware; reverse complements are ignored", model)
	})
	return nil
}

// ISMBackend runs naive in-silico mutagenesis. The unperturbed sequence is
// its own reference, so Options.Reference is ignored.
type ISMBackend struct{}

func (ISMBackend) Attribute(ctx context.Context, model Model, in Input, opts Options) (*tensor.Tensor[float64], error) {
	s := &ism.Scorer{Model: model, BatchSize: opts.BatchSize}
	return s.Attribute(ctx, in.Forward, strands(model, in))
}
