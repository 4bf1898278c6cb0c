package nn

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/openfluke/attrib/device"
)

// TensorInfo describes one tensor in a safetensors header.
type TensorInfo struct {
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset []int  `json:"data_offsets"`
}

// LoadSafetensors reads a safetensors file and returns tensors by name,
// widened to float32. F32, F16 and BF16 are supported.
func LoadSafetensors(path string) (map[string][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return LoadSafetensorsFromBytes(data)
}

// LoadSafetensorsFromBytes parses safetensors data held in memory.
func LoadSafetensorsFromBytes(data []byte) (map[string][]float32, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short: need at least 8 bytes for header size")
	}
	headerSize := binary.LittleEndian.Uint64(data[:8])
	if uint64(len(data)-8) < headerSize {
		return nil, fmt.Errorf("data too short: header size %d but only %d bytes available", headerSize, len(data)-8)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerSize], &raw); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	body := data[8+headerSize:]

	tensors := make(map[string][]float32, len(raw))
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		if len(info.Offset) != 2 || info.Offset[0] < 0 || info.Offset[1] > len(body) || info.Offset[0] > info.Offset[1] {
			return nil, fmt.Errorf("tensor %s: data out of bounds", name)
		}
		values, err := decodeTensor(info, body[info.Offset[0]:info.Offset[1]])
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		tensors[name] = values
	}
	return tensors, nil
}

func decodeTensor(info TensorInfo, buf []byte) ([]float32, error) {
	n := 1
	for _, d := range info.Shape {
		n *= d
	}
	width := map[string]int{"F32": 4, "F16": 2, "BF16": 2}[info.DType]
	if width == 0 {
		return nil, fmt.Errorf("unsupported dtype %s", info.DType)
	}
	if len(buf) != n*width {
		return nil, fmt.Errorf("%d bytes for %d %s values", len(buf), n, info.DType)
	}
	out := make([]float32, n)
	for i := range out {
		switch info.DType {
		case "F32":
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		case "F16":
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(buf[i*2:]))
		case "BF16":
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(buf[i*2:])) << 16)
		}
	}
	return out, nil
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal: renormalise
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		return math.Float32frombits(sign | e<<23 | (mant&0x3ff)<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}

func weightName(i int) string { return fmt.Sprintf("layers.%d.weight", i) }
func biasName(i int) string   { return fmt.Sprintf("layers.%d.bias", i) }

// LoadWeights copies layers.{i}.weight and layers.{i}.bias into every
// weighted layer. Each tensor must be present with the expected size.
func (n *Network) LoadWeights(tensors map[string][]float32) error {
	for i := range n.Layers {
		l := &n.Layers[i]
		if l.Type != LayerConv1D && l.Type != LayerDense {
			continue
		}
		w, ok := tensors[weightName(i)]
		if !ok {
			return fmt.Errorf("missing tensor %s", weightName(i))
		}
		b, ok := tensors[biasName(i)]
		if !ok {
			return fmt.Errorf("missing tensor %s", biasName(i))
		}
		if len(w) != len(l.Kernel) || len(b) != len(l.Bias) {
			return fmt.Errorf("layer %d: tensors have %d/%d values, want %d/%d", i, len(w), len(b), len(l.Kernel), len(l.Bias))
		}
		copy(l.Kernel, w)
		copy(l.Bias, b)
	}
	if n.program != nil {
		// Resident weights are stale; re-upload.
		n.Release()
		n.placement = device.Local
		return n.Place(device.Accelerator)
	}
	return nil
}

// SaveSafetensors writes the weighted layers as F32 tensors.
func (n *Network) SaveSafetensors(path string) error {
	var buf bytes.Buffer
	if err := n.WriteSafetensors(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// WriteSafetensors encodes the weighted layers to w.
func (n *Network) WriteSafetensors(w io.Writer) error {
	tensors := make(map[string][]float32)
	for i, l := range n.Layers {
		if l.Type == LayerConv1D || l.Type == LayerDense {
			tensors[weightName(i)] = l.Kernel
			tensors[biasName(i)] = l.Bias
		}
	}
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]TensorInfo, len(names))
	var body bytes.Buffer
	for _, name := range names {
		start := body.Len()
		for _, v := range tensors[name] {
			binary.Write(&body, binary.LittleEndian, math.Float32bits(v))
		}
		header[name] = TensorInfo{DType: "F32", Shape: []int{len(tensors[name])}, Offset: []int{start, body.Len()}}
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(hdr))); err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}
