package seqdata

import (
	"fmt"
	"io"

	"github.com/openfluke/attrib/tensor"
)

// Batch is one slice of consecutive sequences.
type Batch struct {
	Index   int
	IDs     []string
	Forward *tensor.Tensor[float32]
	Reverse *tensor.Tensor[float32]
	Labels  []float64
}

// Loader yields the encoded sequences of a SeqData in order, in batches of
// BatchSize; the last batch may be shorter. Batches are views into the
// SeqData encodings.
type Loader struct {
	sd        *SeqData
	batchSize int
	next      int
}

// Loader returns a loader over the one-hot encodings. OneHotEncode must have
// been called.
func (sd *SeqData) Loader(batchSize int) (*Loader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if sd.OHE == nil || sd.OHE.Dim(0) != sd.Len() {
		return nil, fmt.Errorf("sequences are not one-hot encoded")
	}
	if sd.Targets != nil && len(sd.Targets) != sd.Len() {
		return nil, fmt.Errorf("%d targets for %d sequences", len(sd.Targets), sd.Len())
	}
	return &Loader{sd: sd, batchSize: batchSize}, nil
}

// Len is the exact number of sequences.
func (l *Loader) Len() int { return l.sd.Len() }

// BatchSize is the nominal batch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// Next returns the next batch, or io.EOF once every sequence was returned.
func (l *Loader) Next() (*Batch, error) {
	start := l.next * l.batchSize
	if start >= l.Len() {
		return nil, io.EOF
	}
	end := min(start+l.batchSize, l.Len())
	b := &Batch{
		Index:   l.next,
		IDs:     l.sd.Names[start:end],
		Forward: l.sd.OHE.Slice(start, end),
	}
	if l.sd.OHERev != nil {
		b.Reverse = l.sd.OHERev.Slice(start, end)
	}
	if l.sd.Targets != nil {
		b.Labels = l.sd.Targets[start:end]
	}
	l.next++
	return b, nil
}
