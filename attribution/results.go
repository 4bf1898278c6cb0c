package attribution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/attrib/saliency"
	"github.com/openfluke/attrib/storage"
	"github.com/openfluke/attrib/tensor"
)

// ResultStore is a preallocated (N, C, L) attribution array indexed by
// dataset position and sequence identity.
type ResultStore struct {
	ids   []string
	index map[string]int
	data  *tensor.Tensor[float64]
}

// NewResultStore allocates room for n maps of shape (c, l).
func NewResultStore(n, c, l int) *ResultStore {
	return &ResultStore{
		ids:   make([]string, n),
		index: make(map[string]int, n),
		data:  tensor.New[float64](n, c, l),
	}
}

// Len is the number of sequences the store holds.
func (r *ResultStore) Len() int { return len(r.ids) }

// Tensor returns the (N, C, L) array.
func (r *ResultStore) Tensor() *tensor.Tensor[float64] { return r.data }

// IDs returns the sequence identifiers in dataset order.
func (r *ResultStore) IDs() []string { return r.ids }

// Put writes attr, an (n, C, L) batch, at rows [offset, offset+n). The
// write must fit entirely inside the store.
func (r *ResultStore) Put(offset int, ids []string, attr *tensor.Tensor[float64]) error {
	if attr == nil || attr.Rank() != 3 {
		return fmt.Errorf("attributions must be (n, C, L): %w", tensor.ErrShapeMismatch)
	}
	rows := attr.Dim(0)
	if err := tensor.CheckShape("attribution batch", attr.Shape[1:], r.data.Shape[1:]); err != nil {
		return err
	}
	if offset < 0 || offset+rows > r.Len() {
		return fmt.Errorf("rows [%d, %d) exceed store of %d sequences: %w", offset, offset+rows, r.Len(), tensor.ErrShapeMismatch)
	}
	if len(ids) != rows {
		return fmt.Errorf("%d ids for %d attribution rows: %w", len(ids), rows, tensor.ErrShapeMismatch)
	}
	copy(r.data.Slice(offset, offset+rows).Data, attr.Data)
	for i, id := range ids {
		r.ids[offset+i] = id
		r.index[id] = offset + i
	}
	return nil
}

// Map returns a C x L view of the i-th map. Writes go through to the store.
func (r *ResultStore) Map(i int) *mat.Dense {
	return mat.NewDense(r.data.Dim(1), r.data.Dim(2), r.data.Row(i).Data)
}

// Lookup returns the map of the sequence named id. With duplicate names the
// last occurrence wins.
func (r *ResultStore) Lookup(id string) (*mat.Dense, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.Map(i), true
}

// Record converts the store into a persistable record under a fresh run id.
func (r *ResultStore) Record(method saliency.Method) storage.Record {
	return storage.Record{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
		RunID:         uuid.NewString(),
		Key:           method.Key(),
		Method:        string(method),
		IDs:           append([]string(nil), r.ids...),
		Shape:         append([]int(nil), r.data.Shape...),
		CreatedAt:     time.Now().UTC(),
		Data:          r.data.Data,
	}
}

// Save persists the store and returns the run id.
func (r *ResultStore) Save(ctx context.Context, store storage.Store, method saliency.Method) (string, error) {
	record := r.Record(method)
	if err := store.SaveRecord(ctx, record); err != nil {
		return "", fmt.Errorf("save %s run: %w", method, err)
	}
	return record.RunID, nil
}

// Wrap builds a store around an existing (N, C, L) array without copying.
func Wrap(ids []string, data *tensor.Tensor[float64]) (*ResultStore, error) {
	if data == nil || data.Rank() != 3 || len(ids) != data.Dim(0) {
		var shape []int
		if data != nil {
			shape = data.Shape
		}
		return nil, fmt.Errorf("%d ids for attributions of shape %v: %w", len(ids), shape, tensor.ErrShapeMismatch)
	}
	r := &ResultStore{
		ids:   append([]string(nil), ids...),
		index: make(map[string]int, len(ids)),
		data:  data,
	}
	for i, id := range r.ids {
		r.index[id] = i
	}
	return r, nil
}

// FromRecord rebuilds a store from a persisted record.
func FromRecord(record storage.Record) (*ResultStore, error) {
	n := 1
	for _, d := range record.Shape {
		n *= d
	}
	if len(record.Shape) != 3 || n != len(record.Data) {
		return nil, fmt.Errorf("record %s has shape %v for %d values: %w", record.RunID, record.Shape, len(record.Data), tensor.ErrShapeMismatch)
	}
	return Wrap(record.IDs, tensor.FromSlice(record.Data, record.Shape...))
}
