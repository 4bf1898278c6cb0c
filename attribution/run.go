// Package attribution runs a saliency method over a whole dataset, batch by
// batch, and assembles the per-sequence maps into one (N, C, L) result.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/openfluke/attrib/saliency"
	"github.com/openfluke/attrib/seqdata"
	"github.com/openfluke/attrib/tensor"
)

// Dataset yields sequential batches. Len must be exact; Next returns io.EOF
// after the last batch.
type Dataset interface {
	Len() int
	BatchSize() int
	Next() (*seqdata.Batch, error)
}

// Error reports a failed run with the method and the batch it failed on.
type Error struct {
	Method saliency.Method
	Batch  int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s attribution failed at batch %d: %v", e.Method, e.Batch, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Run iterates ds once and returns the attributions of every sequence in
// dataset order. The context is checked before each batch; a batch in
// flight is never interrupted. Any failure aborts the run.
func Run(ctx context.Context, d *saliency.Dispatcher, model saliency.Model, ds Dataset, opts saliency.Options, observers ...Observer) (*ResultStore, error) {
	if !d.Supports(opts.Method) {
		return nil, &Error{Method: opts.Method, Batch: 0, Err: fmt.Errorf("%w: %q", saliency.ErrUnsupportedMethod, string(opts.Method))}
	}
	if err := opts.Validate(); err != nil {
		return nil, &Error{Method: opts.Method, Batch: 0, Err: err}
	}
	total, size := ds.Len(), ds.BatchSize()
	if total < 1 {
		return nil, &Error{Method: opts.Method, Batch: 0, Err: errors.New("dataset is empty")}
	}

	defer flush(observers)

	runID := uuid.NewString()
	start := time.Now()
	var store *ResultStore
	done := 0
	for batch := 0; ; batch++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Method: opts.Method, Batch: batch, Err: err}
		}
		b, err := ds.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &Error{Method: opts.Method, Batch: batch, Err: err}
		}

		// Rows land at batch*size; only the last batch may be short.
		if b.Index != batch || done != batch*size {
			return nil, &Error{Method: opts.Method, Batch: batch,
				Err: fmt.Errorf("dataset yielded batch %d at row %d, want batch %d at row %d: %w", b.Index, done, batch, batch*size, tensor.ErrShapeMismatch)}
		}

		attr, err := d.Explain(ctx, model, saliency.Input{Forward: b.Forward, Reverse: b.Reverse}, opts)
		if err != nil {
			return nil, &Error{Method: opts.Method, Batch: batch, Err: err}
		}
		if store == nil {
			store = NewResultStore(total, attr.Dim(1), attr.Dim(2))
		}
		if err := store.Put(done, b.IDs, attr); err != nil {
			return nil, &Error{Method: opts.Method, Batch: batch, Err: err}
		}
		done += attr.Dim(0)

		notify(observers, ProgressEvent{
			RunID:   runID,
			Method:  opts.Method,
			Batch:   batch,
			Done:    done,
			Total:   total,
			Elapsed: time.Since(start),
		})
	}
	if done != total {
		return nil, &Error{Method: opts.Method, Batch: -1,
			Err: fmt.Errorf("dataset yielded %d of %d sequences: %w", done, total, tensor.ErrShapeMismatch)}
	}
	return store, nil
}

// FeatureAttribution scores every sequence of sd and stores the result in
// Uns under the method key. With copyData set sd is left untouched and the
// annotated copy is returned; otherwise sd itself is annotated and
// returned. Nothing is written when the run fails.
func FeatureAttribution(ctx context.Context, model saliency.Model, sd *seqdata.SeqData, opts saliency.Options, copyData bool, observers ...Observer) (*seqdata.SeqData, error) {
	loader, err := sd.Loader(opts.BatchSize)
	if err != nil {
		return nil, &Error{Method: opts.Method, Batch: 0, Err: err}
	}
	res, err := Run(ctx, saliency.NewDispatcher(), model, loader, opts, observers...)
	if err != nil {
		return nil, err
	}

	target := sd
	if copyData {
		target = sd.Copy()
	}
	if target.Uns == nil {
		target.Uns = make(map[string]*tensor.Tensor[float64])
	}
	target.Uns[opts.Method.Key()] = res.Tensor()
	return target, nil
}
