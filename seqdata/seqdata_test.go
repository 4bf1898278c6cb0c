package seqdata

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/tensor"
)

func testData(t *testing.T) *SeqData {
	t.Helper()
	sd, err := New([]string{"a", "b", "c", "d", "e"}, []string{"acgt", "AACC", "GGTT", "tgca", "CATG"}, seq.DNA)
	if err != nil {
		t.Fatal(err)
	}
	sd.SanitizeSeqs()
	return sd
}

func TestOneHotEncode(t *testing.T) {
	sd := testData(t)
	if err := sd.OneHotEncode(0, seq.AlignStart); err != nil {
		t.Fatal(err)
	}
	if !tensor.SameShape(sd.OHE.Shape, []int{5, 4, 4}) {
		t.Fatalf("Expected shape [5 4 4], got %v", sd.OHE.Shape)
	}
	if got := seq.Decode(sd.OHE.Row(1), seq.DNA); got != "AACC" {
		t.Errorf("Decode = %q", got)
	}
	if got := seq.Decode(sd.OHERev.Row(1), seq.DNA); got != "GGTT" {
		t.Errorf("reverse Decode = %q", got)
	}

	sd.ReverseComplementSeqs()
	if sd.RevSeqs[3] != "TGCA" {
		t.Errorf("RevSeqs[3] = %q", sd.RevSeqs[3])
	}
}

func TestLoaderClipsFinalBatch(t *testing.T) {
	sd := testData(t)
	sd.Targets = []float64{1, 2, 3, 4, 5}
	if err := sd.OneHotEncode(0, seq.AlignStart); err != nil {
		t.Fatal(err)
	}
	l, err := sd.Loader(2)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 5 || l.BatchSize() != 2 {
		t.Fatalf("Len=%d BatchSize=%d", l.Len(), l.BatchSize())
	}
	var sizes []int
	for {
		b, err := l.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, b.Forward.Dim(0))
		if len(b.IDs) != b.Forward.Dim(0) || len(b.Labels) != len(b.IDs) || b.Reverse.Dim(0) != len(b.IDs) {
			t.Errorf("batch %d: inconsistent sizes", b.Index)
		}
	}
	if len(sizes) != 3 || sizes[2] != 1 {
		t.Errorf("Expected batch sizes [2 2 1], got %v", sizes)
	}

	if _, err := sd.Loader(0); err == nil {
		t.Error("Expected an error for batch size 0")
	}
	sd.Targets = sd.Targets[:4]
	if _, err := sd.Loader(2); err == nil {
		t.Error("Expected an error for a target count that does not match the sequences")
	}
}

func TestCopyIsDeep(t *testing.T) {
	sd := testData(t)
	if err := sd.OneHotEncode(0, seq.AlignStart); err != nil {
		t.Fatal(err)
	}
	sd.Uns["x"] = tensor.New[float64](2)
	cp := sd.Copy()
	cp.Seqs[0] = "TTTT"
	cp.OHE.Data[0] = 9
	cp.Uns["x"].Data[0] = 1
	cp.Uns["y"] = tensor.New[float64](1)
	if sd.Seqs[0] != "ACGT" || sd.OHE.Data[0] == 9 || sd.Uns["x"].Data[0] != 0 {
		t.Error("Copy shares state with the original")
	}
	if _, ok := sd.Uns["y"]; ok {
		t.Error("Copy shares the Uns map")
	}
}

func TestFromFasta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqs.fa")
	if err := os.WriteFile(path, []byte(">s1\nACGT\n>s2\nGG\nCC\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sd, err := FromFasta(path, seq.DNA)
	if err != nil {
		t.Fatal(err)
	}
	if sd.Len() != 2 || sd.Names[1] != "s2" || sd.Seqs[1] != "GGCC" {
		t.Errorf("unexpected data %+v", sd)
	}
	if _, err := New([]string{"a"}, nil, seq.DNA); err == nil {
		t.Error("Expected an error for mismatched names and sequences")
	}
}
