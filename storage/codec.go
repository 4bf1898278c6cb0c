package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// EncodeRecord splits r into JSON metadata and a little-endian float64
// payload.
func EncodeRecord(r Record) (meta, payload []byte, err error) {
	if err := checkShape(r); err != nil {
		return nil, nil, err
	}
	meta, err = json.Marshal(r)
	if err != nil {
		return nil, nil, err
	}
	payload = make([]byte, 8*len(r.Data))
	for i, v := range r.Data {
		binary.LittleEndian.PutUint64(payload[i*8:], math.Float64bits(v))
	}
	return meta, payload, nil
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(meta, payload []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(meta, &r); err != nil {
		return Record{}, err
	}
	if r.SchemaVersion != CurrentSchemaVersion || r.CodecVersion != CurrentCodecVersion {
		return Record{}, ErrVersionMismatch
	}
	if len(payload)%8 != 0 {
		return Record{}, fmt.Errorf("payload of %d bytes is not a float64 array", len(payload))
	}
	r.Data = make([]float64, len(payload)/8)
	for i := range r.Data {
		r.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	if err := checkShape(r); err != nil {
		return Record{}, err
	}
	return r, nil
}

func checkShape(r Record) error {
	n := 1
	for _, d := range r.Shape {
		n *= d
	}
	if len(r.Shape) == 0 || n != len(r.Data) {
		return fmt.Errorf("record %s: shape %v does not match %d values", r.RunID, r.Shape, len(r.Data))
	}
	if len(r.IDs) != r.Shape[0] {
		return fmt.Errorf("record %s: %d ids for %d rows", r.RunID, len(r.IDs), r.Shape[0])
	}
	return nil
}
