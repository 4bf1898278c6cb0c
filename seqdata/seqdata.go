// Package seqdata is the per-sequence annotation store attribution reads
// from and writes results into.
package seqdata

import (
	"fmt"

	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/tensor"
)

// SeqData holds named sequences, their encodings and unstructured
// per-dataset annotations such as attribution maps.
type SeqData struct {
	Names    []string
	Seqs     []string
	RevSeqs  []string
	Targets  []float64
	Alphabet seq.Alphabet

	// OHE and OHERev are (N, C, L) one-hot encodings.
	OHE    *tensor.Tensor[float32]
	OHERev *tensor.Tensor[float32]

	Uns map[string]*tensor.Tensor[float64]
}

// New builds a SeqData from parallel name and sequence slices.
func New(names, seqs []string, alphabet seq.Alphabet) (*SeqData, error) {
	if len(names) != len(seqs) {
		return nil, fmt.Errorf("%d names for %d sequences", len(names), len(seqs))
	}
	return &SeqData{
		Names:    append([]string(nil), names...),
		Seqs:     append([]string(nil), seqs...),
		Alphabet: alphabet,
		Uns:      make(map[string]*tensor.Tensor[float64]),
	}, nil
}

// FromFasta reads every record of a FASTA file.
func FromFasta(path string, alphabet seq.Alphabet) (*SeqData, error) {
	records, err := seq.ReadFasta(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no sequences", path)
	}
	names := make([]string, len(records))
	seqs := make([]string, len(records))
	for i, r := range records {
		names[i], seqs[i] = r.ID, r.Seq
	}
	return New(names, seqs, alphabet)
}

// Len is the number of sequences.
func (sd *SeqData) Len() int { return len(sd.Seqs) }

// Copy returns a deep copy.
func (sd *SeqData) Copy() *SeqData {
	out := &SeqData{
		Names:    append([]string(nil), sd.Names...),
		Seqs:     append([]string(nil), sd.Seqs...),
		RevSeqs:  append([]string(nil), sd.RevSeqs...),
		Targets:  append([]float64(nil), sd.Targets...),
		Alphabet: sd.Alphabet,
		Uns:      make(map[string]*tensor.Tensor[float64], len(sd.Uns)),
	}
	if sd.OHE != nil {
		out.OHE = sd.OHE.Clone()
	}
	if sd.OHERev != nil {
		out.OHERev = sd.OHERev.Clone()
	}
	for k, v := range sd.Uns {
		out.Uns[k] = v.Clone()
	}
	return out
}

// SanitizeSeqs uppercases and strips whitespace from every sequence.
func (sd *SeqData) SanitizeSeqs() {
	for i, s := range sd.Seqs {
		sd.Seqs[i] = seq.Sanitize(s)
	}
}

// ReverseComplementSeqs fills RevSeqs from Seqs.
func (sd *SeqData) ReverseComplementSeqs() {
	sd.RevSeqs = make([]string, len(sd.Seqs))
	for i, s := range sd.Seqs {
		sd.RevSeqs[i] = seq.ReverseComplement(s, sd.Alphabet)
	}
}

// OneHotEncode encodes every sequence to length maxLen (the longest
// sequence when maxLen <= 0), padding or truncating according to align.
// The reverse strand is encoded from RevSeqs when present and derived from
// the forward encoding otherwise.
func (sd *SeqData) OneHotEncode(maxLen int, align seq.Align) error {
	if sd.Len() == 0 {
		return fmt.Errorf("no sequences to encode")
	}
	if maxLen <= 0 {
		for _, s := range sd.Seqs {
			maxLen = max(maxLen, len(s))
		}
	}
	fwd := make([]*tensor.Tensor[float32], sd.Len())
	rev := make([]*tensor.Tensor[float32], sd.Len())
	for i, s := range sd.Seqs {
		fwd[i] = seq.OneHot(s, sd.Alphabet, maxLen, align)
		if sd.RevSeqs != nil {
			rev[i] = seq.OneHot(sd.RevSeqs[i], sd.Alphabet, maxLen, align)
			continue
		}
		rc, err := seq.ReverseComplementOneHot(fwd[i], sd.Alphabet)
		if err != nil {
			return fmt.Errorf("sequence %s: %w", sd.Names[i], err)
		}
		rev[i] = rc
	}
	var err error
	if sd.OHE, err = tensor.Stack(fwd...); err != nil {
		return err
	}
	sd.OHERev, err = tensor.Stack(rev...)
	return err
}
